package bridge

import "sync"

// Координатор процесса создается один раз на процесс: нативная сторона
// и потребитель должны разделять общий буфер отложенных событий,
// иначе события, поступившие до подключения, будут потеряны.
var (
	defaultOnce        sync.Once
	defaultCoordinator *Coordinator
)

// Default возвращает общий координатор процесса, создавая его при
// первом обращении. Все вызовы возвращают один и тот же экземпляр.
func Default() *Coordinator {
	defaultOnce.Do(func() {
		defaultCoordinator = New()
	})
	return defaultCoordinator
}

// EnsureInitialized гарантирует инициализацию общего координатора
func EnsureInitialized() {
	Default().EnsureInitialized()
}

// Submit передает событие общему координатору
func Submit(kind EventKind, attributes map[string]any) {
	Default().Submit(kind, attributes)
}

// SubmitEvent передает заранее сконструированное событие общему координатору
func SubmitEvent(event Event) {
	Default().SubmitEvent(event)
}

// AttachConsumer подключает потребителя к общему координатору
func AttachConsumer(consumer Consumer) {
	Default().AttachConsumer(consumer)
}

// DetachConsumer отключает потребителя от общего координатора
func DetachConsumer() {
	Default().DetachConsumer()
}

// Reset сбрасывает общий координатор
func Reset() {
	Default().Reset()
}

// BufferedSnapshot возвращает снимок буфера общего координатора
func BufferedSnapshot() []Event {
	return Default().BufferedSnapshot()
}

// ClearBuffer очищает буфер общего координатора
func ClearBuffer() int {
	return Default().ClearBuffer()
}
