package bridge

// deferredBuffer хранит события, поступившие до подключения потребителя,
// в порядке поступления.
//
// Буфер не синхронизирован: единственным владельцем является Coordinator,
// и все обращения выполняются под его мьютексом. Это сознательное решение,
// координатор обеспечивает линеаризуемость всех операций одним примитивом
// синхронизации.
type deferredBuffer struct {
	// events - отложенные события в порядке поступления
	events []Event

	// limit - максимальное число событий (0 означает без ограничения).
	// При переполнении вытесняется самое старое событие.
	limit int

	// evicted - число вытесненных событий за время жизни буфера
	evicted uint64

	// highWater - максимальная наблюдавшаяся глубина буфера
	highWater int
}

// newDeferredBuffer создает пустой буфер с указанным ограничением глубины.
// limit <= 0 означает неограниченный буфер.
func newDeferredBuffer(limit int) *deferredBuffer {
	if limit < 0 {
		limit = 0
	}
	return &deferredBuffer{limit: limit}
}

// append добавляет событие в конец буфера.
// Возвращает вытесненное событие и true, если ограничение глубины
// заставило удалить самое старое событие.
func (b *deferredBuffer) append(event Event) (Event, bool) {
	var dropped Event
	var hasDropped bool

	if b.limit > 0 && len(b.events) >= b.limit {
		dropped = b.events[0]
		b.events = b.events[1:]
		b.evicted++
		hasDropped = true
	}

	b.events = append(b.events, event)
	if len(b.events) > b.highWater {
		b.highWater = len(b.events)
	}
	return dropped, hasDropped
}

// drain атомарно возвращает все накопленные события в порядке поступления
// и оставляет буфер логически пустым. Реализован как обмен внутреннего
// среза, поэтому события, добавленные после вызова, попадают уже в новый
// цикл накопления и не могут потеряться или задвоиться.
func (b *deferredBuffer) drain() []Event {
	drained := b.events
	b.events = nil
	return drained
}

// snapshot возвращает глубокую копию содержимого буфера без его изменения.
// Используется для диагностики, буфер продолжает накопление как прежде.
func (b *deferredBuffer) snapshot() []Event {
	if len(b.events) == 0 {
		return nil
	}
	cp := make([]Event, len(b.events))
	for i, ev := range b.events {
		cp[i] = ev.Clone()
	}
	return cp
}

// clear отбрасывает накопленные события и возвращает их количество
func (b *deferredBuffer) clear() int {
	n := len(b.events)
	b.events = nil
	return n
}

// len возвращает текущее число отложенных событий
func (b *deferredBuffer) len() int {
	return len(b.events)
}
