package bridge

// CoordinatorOption настраивает координатор при создании
type CoordinatorOption func(*coordinatorConfig)

// coordinatorConfig внутренняя конфигурация координатора
type coordinatorConfig struct {
	logger      StructuredLogger
	metrics     *MetricsCollector
	bufferLimit int
}

// defaultCoordinatorConfig возвращает конфигурацию по умолчанию:
// неограниченный буфер, глобальный логгер и включенные метрики.
func defaultCoordinatorConfig() *coordinatorConfig {
	return &coordinatorConfig{
		logger:      GetDefaultLogger().WithComponent("coordinator"),
		metrics:     nil,
		bufferLimit: 0,
	}
}

// WithLogger устанавливает логгер координатора
func WithLogger(logger StructuredLogger) CoordinatorOption {
	return func(cfg *coordinatorConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetrics устанавливает сборщик метрик координатора.
// Если опция не задана, координатор создает собственный сборщик
// с конфигурацией по умолчанию.
func WithMetrics(metrics *MetricsCollector) CoordinatorOption {
	return func(cfg *coordinatorConfig) {
		if metrics != nil {
			cfg.metrics = metrics
		}
	}
}

// WithBufferLimit ограничивает глубину буфера отложенных событий.
// При переполнении самое старое событие вытесняется, о чем делается
// запись в лог и метрики. Значение 0 или меньше означает неограниченный
// буфер, это поведение по умолчанию.
func WithBufferLimit(limit int) CoordinatorOption {
	return func(cfg *coordinatorConfig) {
		if limit < 0 {
			limit = 0
		}
		cfg.bufferLimit = limit
	}
}
