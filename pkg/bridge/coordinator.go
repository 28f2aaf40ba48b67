package bridge

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Coordinator представляет основную реализацию координатора отложенных событий.
//
// Объединяет два компонента:
//   - Отслеживание готовности (подключен ли потребитель)
//   - Буфер отложенных событий для периода без потребителя
//
// Все операции сериализуются одним мьютексом, поэтому любая операция
// наблюдает согласованную пару (состояние готовности, содержимое буфера).
// Доставка событий потребителю выполняется под той же блокировкой, что
// гарантирует порядок: воспроизведение буфера всегда завершается до
// прямой доставки событий, поступивших после подключения.
//
// Все операции являются thread-safe.
type Coordinator struct {
	mu sync.Mutex

	// buffer создается лениво при первом обращении и существует
	// в единственном экземпляре до явного сброса
	buffer *deferredBuffer

	// consumer текущий потребитель (nil в состоянии NotReady)
	consumer Consumer

	// state текущее состояние готовности
	state ReadinessState

	// bufferAllocs счетчик созданий буфера за время жизни координатора.
	// Конкурентная инициализация должна давать ровно одно создание.
	bufferAllocs int64

	// конфигурация
	bufferLimit int
	logger      StructuredLogger
	metrics     *MetricsCollector
}

var _ ICoordinator = (*Coordinator)(nil)

// New создает координатор отложенных событий.
//
// Координатор создается в состоянии NotReady. Буфер отложенных событий
// создается лениво при первом обращении к любой операции, поэтому сам
// вызов New не считается инициализацией.
func New(opts ...CoordinatorOption) *Coordinator {
	cfg := defaultCoordinatorConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	metrics := cfg.metrics
	if metrics == nil {
		metrics = NewMetricsCollector(nil)
	}

	return &Coordinator{
		state:       StateNotReady,
		bufferLimit: cfg.bufferLimit,
		logger:      cfg.logger,
		metrics:     metrics,
	}
}

// EnsureInitialized гарантирует создание буфера отложенных событий.
//
// Метод идемпотентен: первый вызов создает буфер, все последующие
// наблюдают уже созданный буфер без пересоздания и без потери
// накопленных событий. Безопасен для конкурентного вызова из
// нескольких независимых точек инициализации.
func (c *Coordinator) EnsureInitialized() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureInitializedLocked()
}

// ensureInitializedLocked создает буфер, если он еще не существует.
// Вызывается под c.mu из каждой публичной операции, поэтому любая
// операция служит точкой инициализации.
func (c *Coordinator) ensureInitializedLocked() {
	if c.buffer != nil {
		return
	}

	c.buffer = newDeferredBuffer(c.bufferLimit)
	atomic.AddInt64(&c.bufferAllocs, 1)

	c.logger.Debug(context.Background(), "Буфер отложенных событий создан",
		Int("buffer_limit", c.bufferLimit),
	)
}

// Submit принимает нативное событие телефонии.
//
// В состоянии NotReady событие добавляется в конец буфера, в состоянии
// Ready доставляется потребителю напрямую. Метод никогда не возвращает
// ошибку и никогда не паникует: источник событий не умеет реагировать
// на отказы, поэтому любые проблемы доставки логируются и учитываются
// в метриках, но не всплывают наружу.
func (c *Coordinator) Submit(kind EventKind, attributes map[string]any) {
	c.SubmitEvent(NewEvent(kind, attributes))
}

// SubmitEvent принимает заранее сконструированное событие.
// Семантика идентична Submit.
func (c *Coordinator) SubmitEvent(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureInitializedLocked()

	if c.state == StateReady {
		c.metrics.EventSubmitted(event.Kind, false)
		c.deliverLocked(event, false)
		return
	}

	dropped, hasDropped := c.buffer.append(event)
	if hasDropped {
		c.metrics.EventDropped(dropped.Kind)
		c.logger.Debug(context.Background(), "Старое событие вытеснено из буфера",
			String("dropped_kind", string(dropped.Kind)),
			Int("buffer_limit", c.bufferLimit),
		)
	}

	c.metrics.EventSubmitted(event.Kind, true)
	c.metrics.BufferDepth(c.buffer.len())

	c.logger.Debug(context.Background(), "Событие отложено до подключения потребителя",
		String("event_kind", string(event.Kind)),
		String("call_uuid", event.CallUUID()),
		Int("buffer_depth", c.buffer.len()),
	)
}

// AttachConsumer подключает потребителя событий.
//
// Все накопленные события воспроизводятся потребителю в порядке
// поступления до возврата из метода, после чего координатор переходит
// в состояние Ready и новые события доставляются напрямую. Никакое
// событие не может быть доставлено между воспроизведением буфера и
// переходом в Ready: обе фазы выполняются атомарно под блокировкой.
//
// Повторное подключение при уже подключенном потребителе игнорируется,
// действующий потребитель сохраняется. Подключение nil игнорируется.
func (c *Coordinator) AttachConsumer(consumer Consumer) {
	if consumer == nil {
		c.logger.Warn(context.Background(), "Попытка подключить nil потребителя проигнорирована")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureInitializedLocked()

	if c.state == StateReady {
		c.logger.Warn(context.Background(), "Потребитель уже подключен, повторное подключение проигнорировано")
		return
	}

	drained := c.buffer.drain()
	c.consumer = consumer
	c.state = StateReady

	c.metrics.ConsumerAttached()

	c.logger.Info(context.Background(), "Потребитель подключен",
		Int("deferred_events", len(drained)),
	)

	// Воспроизведение строго в порядке поступления
	for _, event := range drained {
		c.deliverLocked(event, true)
	}

	c.metrics.BufferFlushed(len(drained))
	c.metrics.BufferDepth(0)
}

// DetachConsumer отключает потребителя.
//
// Координатор возвращается в состояние NotReady с пустым буфером:
// события, поступившие после отключения, накапливаются для следующего
// потребителя. Вызов без подключенного потребителя игнорируется.
func (c *Coordinator) DetachConsumer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureInitializedLocked()

	if c.state != StateReady {
		return
	}

	c.consumer = nil
	c.state = StateNotReady
	c.buffer = newDeferredBuffer(c.bufferLimit)
	atomic.AddInt64(&c.bufferAllocs, 1)

	c.metrics.ConsumerDetached()
	c.metrics.BufferDepth(0)

	c.logger.Info(context.Background(), "Потребитель отключен, буфер начат заново")
}

// Reset полностью сбрасывает координатор.
//
// Отбрасывает все отложенные события, отключает потребителя и
// возвращает состояние NotReady. Используется при сбросе нативного
// провайдера и в тестах.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	discarded := 0
	if c.buffer != nil {
		discarded = c.buffer.clear()
	}
	c.buffer = newDeferredBuffer(c.bufferLimit)
	atomic.AddInt64(&c.bufferAllocs, 1)

	c.consumer = nil
	c.state = StateNotReady

	c.metrics.CoordinatorReset()
	c.metrics.BufferDepth(0)

	c.logger.Info(context.Background(), "Координатор сброшен",
		Int("discarded_events", discarded),
	)
}

// State возвращает текущее состояние готовности
func (c *Coordinator) State() ReadinessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BufferedCount возвращает число отложенных событий
func (c *Coordinator) BufferedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffer == nil {
		return 0
	}
	return c.buffer.len()
}

// BufferedSnapshot возвращает копию отложенных событий в порядке
// поступления, не изменяя буфер. Нативная сторона использует снимок
// для диагностики числа ожидающих событий.
func (c *Coordinator) BufferedSnapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureInitializedLocked()
	return c.buffer.snapshot()
}

// ClearBuffer отбрасывает все отложенные события, не меняя состояние
// готовности. Возвращает число отброшенных событий.
func (c *Coordinator) ClearBuffer() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureInitializedLocked()

	discarded := c.buffer.clear()
	if discarded > 0 {
		c.metrics.BufferDepth(0)
		c.logger.Info(context.Background(), "Буфер отложенных событий очищен",
			Int("discarded_events", discarded),
		)
	}
	return discarded
}

// BufferLimit возвращает настроенное ограничение глубины буфера
func (c *Coordinator) BufferLimit() int {
	return c.bufferLimit
}

// Metrics возвращает сборщик метрик координатора
func (c *Coordinator) Metrics() *MetricsCollector {
	return c.metrics
}

// bufferAllocations возвращает число созданий буфера за время жизни
// координатора. Используется тестами идемпотентности инициализации.
func (c *Coordinator) bufferAllocations() int64 {
	return atomic.LoadInt64(&c.bufferAllocs)
}

// deliverLocked доставляет событие потребителю под блокировкой.
//
// Паника потребителя перехватывается и учитывается, после чего событие
// считается доставленным: координатор не повторяет доставку и не дает
// панике уронить источник событий.
func (c *Coordinator) deliverLocked(event Event, replayed bool) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()

				c.metrics.RecordPanic("consumer")
				c.metrics.ErrorOccurred(ErrConsumerPanic(event.Kind, r))

				c.logger.Error(context.Background(), "PANIC потребителя при доставке события",
					String("event_kind", string(event.Kind)),
					String("call_uuid", event.CallUUID()),
					Bool("replayed", replayed),
					Any("panic_value", r),
					String("stack_trace", string(stack)),
				)
			}
		}()

		c.consumer.Deliver(event)
	}()

	c.metrics.EventDelivered(event.Kind, replayed)
}
