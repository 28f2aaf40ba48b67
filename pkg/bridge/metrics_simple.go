// +build !prometheus

package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsConfig конфигурация системы метрик
type MetricsConfig struct {
	// Enabled включает/выключает сбор метрик
	Enabled bool

	// Namespace префикс для метрик (игнорируется в простой версии)
	Namespace string

	// Subsystem подсистема для метрик (игнорируется в простой версии)
	Subsystem string

	// HealthCheckInterval интервал проверок состояния
	HealthCheckInterval time.Duration

	// Logger для диагностики метрик
	Logger StructuredLogger
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:             true,
		Namespace:           "callkit",
		Subsystem:           "bridge",
		HealthCheckInterval: 30 * time.Second,
		Logger:              GetDefaultLogger().WithComponent("metrics"),
	}
}

// HealthStatus представляет состояние компонента
type HealthStatus int32

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HealthCheck результат проверки состояния
type HealthCheck struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
	Metrics    map[string]int64  `json:"metrics"`
	Errors     []string          `json:"errors,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// MetricsCollector упрощенная версия сборщика метрик без Prometheus
//
// Предоставляет только performance counters и health checks без экспорта
// в Prometheus. Используется когда Prometheus не требуется или не доступен.
type MetricsCollector struct {
	// Performance counters (атомарные для fast path)
	totalSubmitted int64
	totalBuffered  int64
	totalDelivered int64
	totalReplayed  int64
	totalDropped   int64
	totalFlushes   int64
	totalAttaches  int64
	totalDetaches  int64
	totalResets    int64
	totalErrors    int64
	totalPanics    int64

	// Текущая и пиковая глубина буфера
	bufferDepth     int64
	bufferHighWater int64

	// Health check статистика
	lastHealthCheck   time.Time
	healthCheckErrors int64
	healthStatus      int32 // 0=unknown, 1=healthy, 2=degraded, 3=unhealthy

	mu      sync.RWMutex
	enabled bool
	logger  StructuredLogger
}

// NewMetricsCollector создает простой сборщик метрик без Prometheus
func NewMetricsCollector(config *MetricsConfig) *MetricsCollector {
	if config == nil {
		config = DefaultMetricsConfig()
	}

	if !config.Enabled {
		return &MetricsCollector{enabled: false}
	}

	logger := config.Logger
	if logger == nil {
		logger = GetDefaultLogger().WithComponent("metrics")
	}

	return &MetricsCollector{
		enabled: true,
		logger:  logger,
	}
}

// EventSubmitted уведомляет о поступлении нативного события.
// buffered означает, что событие отложено до подключения потребителя.
func (mc *MetricsCollector) EventSubmitted(kind EventKind, buffered bool) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalSubmitted, 1)
	if buffered {
		atomic.AddInt64(&mc.totalBuffered, 1)
	}

	mc.logger.Debug(context.Background(), "Event submitted",
		Field{"event_kind", string(kind)},
		Field{"buffered", buffered},
		Field{"total_submitted", atomic.LoadInt64(&mc.totalSubmitted)},
	)
}

// EventDelivered уведомляет о доставке события потребителю.
// replayed означает, что событие было воспроизведено из буфера.
func (mc *MetricsCollector) EventDelivered(kind EventKind, replayed bool) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalDelivered, 1)
	if replayed {
		atomic.AddInt64(&mc.totalReplayed, 1)
	}
}

// EventDropped уведомляет о вытеснении события из переполненного буфера
func (mc *MetricsCollector) EventDropped(kind EventKind) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalDropped, 1)

	mc.logger.Warn(context.Background(), "Event dropped from buffer",
		Field{"event_kind", string(kind)},
		Field{"total_dropped", atomic.LoadInt64(&mc.totalDropped)},
	)
}

// BufferDepth фиксирует текущую глубину буфера отложенных событий
func (mc *MetricsCollector) BufferDepth(depth int) {
	if !mc.enabled {
		return
	}

	atomic.StoreInt64(&mc.bufferDepth, int64(depth))

	for {
		high := atomic.LoadInt64(&mc.bufferHighWater)
		if int64(depth) <= high {
			break
		}
		if atomic.CompareAndSwapInt64(&mc.bufferHighWater, high, int64(depth)) {
			break
		}
	}
}

// BufferFlushed уведомляет о воспроизведении буфера потребителю
func (mc *MetricsCollector) BufferFlushed(count int) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalFlushes, 1)

	mc.logger.Debug(context.Background(), "Buffer flushed",
		Field{"events_count", count},
		Field{"total_flushes", atomic.LoadInt64(&mc.totalFlushes)},
	)
}

// ConsumerAttached уведомляет о подключении потребителя
func (mc *MetricsCollector) ConsumerAttached() {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalAttaches, 1)
}

// ConsumerDetached уведомляет об отключении потребителя
func (mc *MetricsCollector) ConsumerDetached() {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalDetaches, 1)
}

// CoordinatorReset уведомляет о полном сбросе координатора
func (mc *MetricsCollector) CoordinatorReset() {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalResets, 1)
}

// ErrorOccurred уведомляет об ошибке
func (mc *MetricsCollector) ErrorOccurred(err *BridgeError) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalErrors, 1)

	mc.logger.LogError(context.Background(), err, "Error occurred",
		Field{"error_code", err.Code},
		Field{"error_category", err.Category.String()},
		Field{"error_severity", err.Severity.String()},
		Field{"total_errors", atomic.LoadInt64(&mc.totalErrors)},
	)
}

// RecordPanic уведомляет о восстановлении после паники
func (mc *MetricsCollector) RecordPanic(component string) {
	if !mc.enabled {
		return
	}

	atomic.AddInt64(&mc.totalPanics, 1)

	mc.logger.Warn(context.Background(), "Panic recovery",
		Field{"component", component},
		Field{"total_panics", atomic.LoadInt64(&mc.totalPanics)},
	)
}

// GetPerformanceCounters возвращает текущие performance counters
func (mc *MetricsCollector) GetPerformanceCounters() map[string]int64 {
	if !mc.enabled {
		return nil
	}

	return map[string]int64{
		"total_submitted":   atomic.LoadInt64(&mc.totalSubmitted),
		"total_buffered":    atomic.LoadInt64(&mc.totalBuffered),
		"total_delivered":   atomic.LoadInt64(&mc.totalDelivered),
		"total_replayed":    atomic.LoadInt64(&mc.totalReplayed),
		"total_dropped":     atomic.LoadInt64(&mc.totalDropped),
		"total_flushes":     atomic.LoadInt64(&mc.totalFlushes),
		"total_attaches":    atomic.LoadInt64(&mc.totalAttaches),
		"total_detaches":    atomic.LoadInt64(&mc.totalDetaches),
		"total_resets":      atomic.LoadInt64(&mc.totalResets),
		"total_errors":      atomic.LoadInt64(&mc.totalErrors),
		"total_panics":      atomic.LoadInt64(&mc.totalPanics),
		"buffer_depth":      atomic.LoadInt64(&mc.bufferDepth),
		"buffer_high_water": atomic.LoadInt64(&mc.bufferHighWater),
	}
}

// RunHealthCheck выполняет проверку состояния координатора
func (mc *MetricsCollector) RunHealthCheck(coordinator *Coordinator) *HealthCheck {
	start := time.Now()
	check := &HealthCheck{
		Status:     HealthHealthy,
		Timestamp:  start,
		Components: make(map[string]string),
		Metrics:    mc.GetPerformanceCounters(),
		Duration:   0,
	}

	if !mc.enabled {
		check.Status = HealthUnknown
		check.Components["metrics"] = "disabled"
		check.Duration = time.Since(start)
		return check
	}

	var errors []string

	// Проверка координатора
	if coordinator != nil {
		check.Components["coordinator"] = "healthy"

		depth := coordinator.BufferedCount()
		limit := coordinator.BufferLimit()

		check.Components["buffer"] = "healthy"
		switch {
		case limit > 0 && depth >= limit:
			check.Components["buffer"] = "unhealthy"
			errors = append(errors, "deferred buffer is full, oldest events are being dropped")
		case limit > 0 && depth*10 >= limit*8:
			// Более 80% заполнения
			check.Components["buffer"] = "degraded"
			if check.Status == HealthHealthy {
				check.Status = HealthDegraded
			}
		case limit == 0 && depth > 10000:
			// Неограниченный буфер растет без потребителя
			check.Components["buffer"] = "degraded"
			if check.Status == HealthHealthy {
				check.Status = HealthDegraded
			}
		}

		if coordinator.State() == StateReady {
			check.Components["consumer"] = "attached"
		} else {
			check.Components["consumer"] = "detached"
		}
	} else {
		errors = append(errors, "Coordinator is nil")
	}

	// Проверка метрик
	if check.Metrics != nil {
		submitted := check.Metrics["total_submitted"]
		if submitted > 0 {
			errorRate := float64(check.Metrics["total_errors"]) / float64(submitted)
			if errorRate > 0.1 { // Более 10% ошибок
				check.Components["error_rate"] = "degraded"
				if check.Status == HealthHealthy {
					check.Status = HealthDegraded
				}
			} else {
				check.Components["error_rate"] = "healthy"
			}
		}

		if check.Metrics["total_panics"] > 10 {
			check.Components["consumer_panics"] = "degraded"
			if check.Status == HealthHealthy {
				check.Status = HealthDegraded
			}
		} else {
			check.Components["consumer_panics"] = "healthy"
		}
	}

	// Определяем финальный статус
	if len(errors) > 0 {
		check.Status = HealthUnhealthy
		check.Errors = errors
	}

	check.Duration = time.Since(start)

	// Сохраняем результат
	mc.mu.Lock()
	mc.lastHealthCheck = check.Timestamp
	if check.Status == HealthUnhealthy {
		atomic.AddInt64(&mc.healthCheckErrors, 1)
	}
	atomic.StoreInt32(&mc.healthStatus, int32(check.Status))
	mc.mu.Unlock()

	mc.logger.Info(context.Background(), "Health check completed",
		Field{"status", check.Status.String()},
		Field{"duration_ms", check.Duration.Milliseconds()},
		Field{"errors_count", len(errors)},
		Field{"components_count", len(check.Components)},
	)

	return check
}

// GetLastHealthStatus возвращает последний статус проверки
func (mc *MetricsCollector) GetLastHealthStatus() (HealthStatus, time.Time) {
	if !mc.enabled {
		return HealthUnknown, time.Time{}
	}

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	status := HealthStatus(atomic.LoadInt32(&mc.healthStatus))
	return status, mc.lastHealthCheck
}

// StartPeriodicHealthChecks запускает периодические проверки состояния
func (mc *MetricsCollector) StartPeriodicHealthChecks(ctx context.Context, coordinator *Coordinator, interval time.Duration) {
	if !mc.enabled {
		return
	}

	go SafeExecute(ctx, "periodic_health_checks", func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mc.RunHealthCheck(coordinator)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}, mc.logger)
}

// Reset сбрасывает все счетчики (для тестирования)
func (mc *MetricsCollector) Reset() {
	if !mc.enabled {
		return
	}

	atomic.StoreInt64(&mc.totalSubmitted, 0)
	atomic.StoreInt64(&mc.totalBuffered, 0)
	atomic.StoreInt64(&mc.totalDelivered, 0)
	atomic.StoreInt64(&mc.totalReplayed, 0)
	atomic.StoreInt64(&mc.totalDropped, 0)
	atomic.StoreInt64(&mc.totalFlushes, 0)
	atomic.StoreInt64(&mc.totalAttaches, 0)
	atomic.StoreInt64(&mc.totalDetaches, 0)
	atomic.StoreInt64(&mc.totalResets, 0)
	atomic.StoreInt64(&mc.totalErrors, 0)
	atomic.StoreInt64(&mc.totalPanics, 0)
	atomic.StoreInt64(&mc.bufferDepth, 0)
	atomic.StoreInt64(&mc.bufferHighWater, 0)
	atomic.StoreInt64(&mc.healthCheckErrors, 0)
	atomic.StoreInt32(&mc.healthStatus, int32(HealthUnknown))

	mc.mu.Lock()
	mc.lastHealthCheck = time.Time{}
	mc.mu.Unlock()
}
