package bridge

// ReadinessState определяет возможные состояния готовности координатора.
// Координатор начинает работу в StateNotReady и переходит в StateReady
// только после подключения потребителя событий.
type ReadinessState int32

// Состояния готовности
const (
	// StateNotReady - потребитель не подключен, события буферизуются
	StateNotReady ReadinessState = iota

	// StateReady - потребитель подключен, события доставляются напрямую
	StateReady
)

// String возвращает строковое представление состояния готовности
func (s ReadinessState) String() string {
	switch s {
	case StateNotReady:
		return "NotReady"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Consumer представляет потребителя нативных событий телефонии.
//
// Потребитель подключается к координатору поздно, уже после того как
// нативная сторона могла породить события. Все события, накопленные
// до подключения, воспроизводятся потребителю в порядке поступления
// непосредственно в момент подключения.
//
// Deliver вызывается под внутренней блокировкой координатора, поэтому
// реализация не должна обращаться к координатору из Deliver и не должна
// выполнять длительных блокирующих операций. Паника внутри Deliver
// перехватывается координатором и не приводит к потере остальных событий.
type Consumer interface {
	// Deliver доставляет одно событие потребителю
	Deliver(event Event)
}

// ConsumerFunc адаптер, позволяющий использовать обычную функцию
// как Consumer.
type ConsumerFunc func(event Event)

// Deliver вызывает функцию f с переданным событием
func (f ConsumerFunc) Deliver(event Event) {
	f(event)
}

// ICoordinator представляет интерфейс координатора отложенных событий.
//
// Координатор связывает источник нативных событий телефонии с поздно
// подключающимся потребителем. Пока потребитель не подключен, события
// накапливаются в буфере; при подключении буфер воспроизводится
// ровно один раз в порядке поступления, после чего события доставляются
// напрямую.
//
// Все реализации должны быть потокобезопасными.
type ICoordinator interface {
	// EnsureInitialized гарантирует создание буфера отложенных событий.
	// Метод идемпотентен и безопасен для конкурентного вызова из
	// нескольких точек инициализации.
	EnsureInitialized()

	// Submit принимает нативное событие. В состоянии NotReady событие
	// буферизуется, в состоянии Ready доставляется потребителю напрямую.
	// Метод никогда не возвращает ошибку и не паникует.
	Submit(kind EventKind, attributes map[string]any)

	// SubmitEvent принимает заранее сконструированное событие
	SubmitEvent(event Event)

	// AttachConsumer подключает потребителя. Все отложенные события
	// воспроизводятся потребителю до возврата из метода. Повторное
	// подключение при уже подключенном потребителе игнорируется.
	AttachConsumer(consumer Consumer)

	// DetachConsumer отключает потребителя и возвращает координатор
	// в состояние NotReady с пустым буфером
	DetachConsumer()

	// Reset полностью сбрасывает координатор: отбрасывает буфер,
	// отключает потребителя и возвращает состояние NotReady
	Reset()

	// State возвращает текущее состояние готовности
	State() ReadinessState

	// BufferedCount возвращает число отложенных событий
	BufferedCount() int

	// BufferedSnapshot возвращает копию отложенных событий без
	// изменения буфера. Используется для диагностики.
	BufferedSnapshot() []Event

	// ClearBuffer отбрасывает отложенные события, не меняя состояние
	// готовности. Возвращает число отброшенных событий.
	ClearBuffer() int

	// BufferLimit возвращает настроенное ограничение глубины буфера
	// (0 означает без ограничения)
	BufferLimit() int
}
