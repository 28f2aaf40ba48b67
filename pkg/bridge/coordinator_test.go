package bridge_test

import (
	"sync"
	"testing"

	"github.com/arzzra/call_bridge/pkg/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConsumer потребитель для тестов, запоминающий события
type recordingConsumer struct {
	mu     sync.Mutex
	events []bridge.Event
}

func (r *recordingConsumer) Deliver(event bridge.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingConsumer) Events() []bridge.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]bridge.Event, len(r.events))
	copy(cp, r.events)
	return cp
}

func (r *recordingConsumer) Kinds() []bridge.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]bridge.EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func newTestCoordinator(opts ...bridge.CoordinatorOption) *bridge.Coordinator {
	base := []bridge.CoordinatorOption{bridge.WithLogger(bridge.NoOpLogger{})}
	return bridge.New(append(base, opts...)...)
}

// TestColdStartReplay проверяет основной сценарий холодного старта:
// события поступают до подключения потребителя и воспроизводятся
// при подключении в порядке поступления
func TestColdStartReplay(t *testing.T) {
	c := newTestCoordinator()

	c.EnsureInitialized()
	require.Equal(t, bridge.StateNotReady, c.State(), "Initial state should be NotReady")

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u1"})
	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u1", bridge.AttrReason: 2})
	require.Equal(t, 2, c.BufferedCount(), "Both events should be deferred")

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	// Воспроизведение завершается до возврата из AttachConsumer
	events := consumer.Events()
	require.Len(t, events, 2, "Deferred events should be replayed synchronously")
	assert.Equal(t, bridge.EventCallReceived, events[0].Kind)
	assert.Equal(t, bridge.EventCallEnded, events[1].Kind)
	assert.Equal(t, "u1", events[0].CallUUID())

	assert.Equal(t, bridge.StateReady, c.State(), "State should be Ready after attach")
	assert.Equal(t, 0, c.BufferedCount(), "Buffer should be empty after replay")

	// Последующие события доставляются напрямую
	c.Submit(bridge.EventCallMutedChanged, map[string]any{bridge.AttrCallUUID: "u1", bridge.AttrMuted: true})
	events = consumer.Events()
	require.Len(t, events, 3)
	assert.Equal(t, bridge.EventCallMutedChanged, events[2].Kind)
	assert.Equal(t, 0, c.BufferedCount(), "Direct delivery should not touch the buffer")
}

// TestAttachWithEmptyBuffer проверяет подключение без накопленных событий
func TestAttachWithEmptyBuffer(t *testing.T) {
	c := newTestCoordinator()

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	assert.Equal(t, bridge.StateReady, c.State())
	assert.Empty(t, consumer.Events(), "Nothing to replay on empty buffer")

	c.Submit(bridge.EventCallStarted, map[string]any{bridge.AttrCallUUID: "u2"})
	require.Len(t, consumer.Events(), 1)
	assert.Equal(t, bridge.EventCallStarted, consumer.Events()[0].Kind)
}

// TestRepeatedAttachIgnored проверяет, что повторное подключение
// при уже подключенном потребителе игнорируется и действующий
// потребитель продолжает получать события
func TestRepeatedAttachIgnored(t *testing.T) {
	c := newTestCoordinator()

	first := &recordingConsumer{}
	second := &recordingConsumer{}

	c.AttachConsumer(first)
	c.AttachConsumer(second)

	c.Submit(bridge.EventCallAnswered, map[string]any{bridge.AttrCallUUID: "u3"})

	assert.Len(t, first.Events(), 1, "First consumer keeps receiving events")
	assert.Empty(t, second.Events(), "Second attach must be a no-op")
}

// TestAttachNilConsumerIgnored проверяет, что nil потребитель игнорируется
func TestAttachNilConsumerIgnored(t *testing.T) {
	c := newTestCoordinator()

	c.AttachConsumer(nil)
	assert.Equal(t, bridge.StateNotReady, c.State(), "Nil consumer must not change state")

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u4"})
	assert.Equal(t, 1, c.BufferedCount(), "Events still deferred after nil attach")
}

// TestDetachThenReattach проверяет цикл отключения и повторного
// подключения: новый потребитель получает только события,
// поступившие после отключения предыдущего
func TestDetachThenReattach(t *testing.T) {
	c := newTestCoordinator()

	first := &recordingConsumer{}
	c.AttachConsumer(first)
	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u5"})

	c.DetachConsumer()
	assert.Equal(t, bridge.StateNotReady, c.State())

	// События после отключения копятся для следующего потребителя
	c.Submit(bridge.EventCallHeldChanged, map[string]any{bridge.AttrCallUUID: "u5", bridge.AttrOnHold: true})
	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u5", bridge.AttrReason: 1})
	assert.Equal(t, 2, c.BufferedCount())

	// Первый потребитель больше ничего не получает
	assert.Len(t, first.Events(), 1)

	second := &recordingConsumer{}
	c.AttachConsumer(second)

	kinds := second.Kinds()
	require.Len(t, kinds, 2, "Second consumer receives only post-detach events")
	assert.Equal(t, bridge.EventCallHeldChanged, kinds[0])
	assert.Equal(t, bridge.EventCallEnded, kinds[1])
}

// TestDetachWithoutConsumerIsNoOp проверяет идемпотентность отключения
func TestDetachWithoutConsumerIsNoOp(t *testing.T) {
	c := newTestCoordinator()

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u6"})
	c.DetachConsumer()

	assert.Equal(t, bridge.StateNotReady, c.State())
	assert.Equal(t, 1, c.BufferedCount(), "Detach without consumer must not drop deferred events")
}

// TestReset проверяет полный сброс координатора
func TestReset(t *testing.T) {
	c := newTestCoordinator()

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)
	c.DetachConsumer()

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u7"})
	c.Submit(bridge.EventCallAnswered, map[string]any{bridge.AttrCallUUID: "u7"})
	require.Equal(t, 2, c.BufferedCount())

	c.Reset()

	assert.Equal(t, bridge.StateNotReady, c.State())
	assert.Equal(t, 0, c.BufferedCount(), "Reset discards deferred events")

	// После сброса координатор полностью работоспособен
	c.Submit(bridge.EventCallStarted, map[string]any{bridge.AttrCallUUID: "u8"})
	next := &recordingConsumer{}
	c.AttachConsumer(next)
	require.Len(t, next.Events(), 1)
	assert.Equal(t, bridge.EventCallStarted, next.Events()[0].Kind)
}

// TestBufferedSnapshotNonDestructive проверяет, что снимок буфера
// не изменяет буфер и защищен от модификации вызывающей стороной
func TestBufferedSnapshotNonDestructive(t *testing.T) {
	c := newTestCoordinator()

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u9", bridge.AttrHandle: "+7916"})
	c.Submit(bridge.EventDTMFPerformed, map[string]any{bridge.AttrCallUUID: "u9", bridge.AttrDigits: "42"})

	snapshot := c.BufferedSnapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 2, c.BufferedCount(), "Snapshot must not consume the buffer")

	// Модификация снимка не затрагивает буферизованные события
	snapshot[0].Attributes[bridge.AttrHandle] = "tampered"

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	events := consumer.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "+7916", events[0].StringAttr(bridge.AttrHandle), "Replayed payload must be intact")
	assert.Equal(t, "42", events[1].StringAttr(bridge.AttrDigits))
}

// TestClearBuffer проверяет очистку буфера без смены состояния
func TestClearBuffer(t *testing.T) {
	c := newTestCoordinator()

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u10"})
	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u10"})

	discarded := c.ClearBuffer()
	assert.Equal(t, 2, discarded)
	assert.Equal(t, 0, c.BufferedCount())
	assert.Equal(t, bridge.StateNotReady, c.State(), "ClearBuffer must not change readiness")

	// Повторная очистка пустого буфера
	assert.Equal(t, 0, c.ClearBuffer())
}

// TestConsumerPanicDoesNotLoseEvents проверяет изоляцию паники
// потребителя: паника на одном событии не прерывает воспроизведение
// остальных и не ломает дальнейшую доставку
func TestConsumerPanicDoesNotLoseEvents(t *testing.T) {
	c := newTestCoordinator()

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u11"})
	c.Submit(bridge.EventCallAnswered, map[string]any{bridge.AttrCallUUID: "u11"})
	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u11"})

	var delivered []bridge.EventKind
	c.AttachConsumer(bridge.ConsumerFunc(func(ev bridge.Event) {
		delivered = append(delivered, ev.Kind)
		if ev.Kind == bridge.EventCallAnswered {
			panic("consumer failure")
		}
	}))

	require.Equal(t, []bridge.EventKind{
		bridge.EventCallReceived,
		bridge.EventCallAnswered,
		bridge.EventCallEnded,
	}, delivered, "Replay must survive a panicking consumer")

	// Прямая доставка после паники продолжает работать
	c.Submit(bridge.EventAudioRouteChanged, map[string]any{bridge.AttrRoute: "Speaker"})
	assert.Equal(t, bridge.EventAudioRouteChanged, delivered[len(delivered)-1])
}

// TestBufferLimitEvictsOldest проверяет вытеснение самых старых
// событий при ограниченном буфере
func TestBufferLimitEvictsOldest(t *testing.T) {
	c := newTestCoordinator(bridge.WithBufferLimit(2))

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "a"})
	c.Submit(bridge.EventCallAnswered, map[string]any{bridge.AttrCallUUID: "a"})
	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "a"})

	assert.Equal(t, 2, c.BufferedCount(), "Buffer must not exceed the limit")
	assert.Equal(t, 2, c.BufferLimit())

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	kinds := consumer.Kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, bridge.EventCallAnswered, kinds[0], "Oldest event must be evicted first")
	assert.Equal(t, bridge.EventCallEnded, kinds[1])
}

// TestSubmitCopiesAttributes проверяет, что изменение исходной карты
// атрибутов после Submit не влияет на буферизованное событие
func TestSubmitCopiesAttributes(t *testing.T) {
	c := newTestCoordinator()

	attrs := map[string]any{bridge.AttrCallUUID: "u12", bridge.AttrHasVideo: true}
	c.Submit(bridge.EventCallReceived, attrs)

	// Источник переиспользует карту
	attrs[bridge.AttrCallUUID] = "overwritten"
	attrs[bridge.AttrHasVideo] = false

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	events := consumer.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "u12", events[0].CallUUID())
	assert.True(t, events[0].BoolAttr(bridge.AttrHasVideo))
}

// TestSubmitNilAttributes проверяет событие без полезной нагрузки
func TestSubmitNilAttributes(t *testing.T) {
	c := newTestCoordinator()

	c.Submit(bridge.EventProviderReset, nil)

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	events := consumer.Events()
	require.Len(t, events, 1)
	assert.Equal(t, bridge.EventProviderReset, events[0].Kind)
	assert.Nil(t, events[0].Attributes)
	assert.Empty(t, events[0].CallUUID())
}

// TestEnsureInitializedPreservesBuffer проверяет идемпотентность
// инициализации: повторные вызовы не теряют накопленные события
func TestEnsureInitializedPreservesBuffer(t *testing.T) {
	c := newTestCoordinator()

	c.EnsureInitialized()
	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u13"})
	c.EnsureInitialized()
	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u13"})
	c.EnsureInitialized()

	assert.Equal(t, 2, c.BufferedCount(), "Re-initialization must not reset the buffer")

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)
	assert.Len(t, consumer.Events(), 2)
}

// TestFirstTouchInitialization проверяет, что любая операция служит
// точкой инициализации без предварительного EnsureInitialized
func TestFirstTouchInitialization(t *testing.T) {
	// Submit как первая операция
	c1 := newTestCoordinator()
	c1.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u14"})
	assert.Equal(t, 1, c1.BufferedCount())

	// AttachConsumer как первая операция
	c2 := newTestCoordinator()
	consumer := &recordingConsumer{}
	c2.AttachConsumer(consumer)
	assert.Equal(t, bridge.StateReady, c2.State())

	// BufferedSnapshot как первая операция
	c3 := newTestCoordinator()
	assert.Empty(t, c3.BufferedSnapshot())
}

// TestDefaultCoordinatorSingleton проверяет общий координатор процесса
// и глобальные функции пакета
func TestDefaultCoordinatorSingleton(t *testing.T) {
	require.Same(t, bridge.Default(), bridge.Default(), "Default must return the same instance")

	// Приводим общий координатор в исходное состояние
	bridge.Reset()
	defer bridge.Reset()

	bridge.EnsureInitialized()
	bridge.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u15"})

	snapshot := bridge.BufferedSnapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, bridge.EventCallReceived, snapshot[0].Kind)

	assert.Equal(t, 1, bridge.ClearBuffer())

	bridge.Submit(bridge.EventCallStarted, map[string]any{bridge.AttrCallUUID: "u16"})
	consumer := &recordingConsumer{}
	bridge.AttachConsumer(consumer)
	require.Len(t, consumer.Events(), 1)

	bridge.SubmitEvent(bridge.NewEvent(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u16"}))
	assert.Len(t, consumer.Events(), 2)

	bridge.DetachConsumer()
	assert.Equal(t, bridge.StateNotReady, bridge.Default().State())
}

// TestMetricsCountersTrackLifecycle проверяет performance counters
// координатора на основном сценарии
func TestMetricsCountersTrackLifecycle(t *testing.T) {
	metrics := bridge.NewMetricsCollector(&bridge.MetricsConfig{
		Enabled: true,
		Logger:  bridge.NoOpLogger{},
	})
	c := bridge.New(bridge.WithLogger(bridge.NoOpLogger{}), bridge.WithMetrics(metrics))

	c.Submit(bridge.EventCallReceived, map[string]any{bridge.AttrCallUUID: "u17"})
	c.Submit(bridge.EventCallAnswered, map[string]any{bridge.AttrCallUUID: "u17"})

	consumer := &recordingConsumer{}
	c.AttachConsumer(consumer)

	c.Submit(bridge.EventCallEnded, map[string]any{bridge.AttrCallUUID: "u17"})

	counters := metrics.GetPerformanceCounters()
	require.NotNil(t, counters)
	assert.Equal(t, int64(3), counters["total_submitted"])
	assert.Equal(t, int64(2), counters["total_buffered"])
	assert.Equal(t, int64(3), counters["total_delivered"])
	assert.Equal(t, int64(2), counters["total_replayed"])
	assert.Equal(t, int64(1), counters["total_flushes"])
	assert.Equal(t, int64(1), counters["total_attaches"])
	assert.Equal(t, int64(2), counters["buffer_high_water"])
}
