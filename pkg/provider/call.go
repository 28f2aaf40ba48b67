package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Состояния жизненного цикла вызова.
// incoming – входящий вызов, звонит, еще не отвечен;
// dialing  – исходящий вызов, набор, удаленная сторона еще не ответила;
// active   – разговор идет;
// held     – вызов на удержании;
// ended    – вызов завершен, терминальное состояние.
const (
	CallStateIncoming = "incoming"
	CallStateDialing  = "dialing"
	CallStateActive   = "active"
	CallStateHeld     = "held"
	CallStateEnded    = "ended"
)

// События переходов жизненного цикла вызова.
const (
	callEventAnswer  = "answer"
	callEventConnect = "connect"
	callEventHold    = "hold"
	callEventUnhold  = "unhold"
	callEventEnd     = "end"
)

// EndReason причина завершения вызова. Числовые значения совпадают
// с кодами CXCallEndedReason нативного слоя звонков.
type EndReason int

const (
	// EndReasonUnknown причина не указана
	EndReasonUnknown EndReason = 0

	// EndReasonFailed вызов завершился из-за ошибки
	EndReasonFailed EndReason = 1

	// EndReasonRemoteEnded удаленная сторона завершила вызов
	EndReasonRemoteEnded EndReason = 2

	// EndReasonUnanswered вызов не был отвечен
	EndReasonUnanswered EndReason = 3

	// EndReasonAnsweredElsewhere вызов отвечен на другом устройстве
	EndReasonAnsweredElsewhere EndReason = 4

	// EndReasonDeclinedElsewhere вызов отклонен на другом устройстве
	EndReasonDeclinedElsewhere EndReason = 5
)

// String возвращает строковое представление причины завершения.
func (r EndReason) String() string {
	switch r {
	case EndReasonFailed:
		return "failed"
	case EndReasonRemoteEnded:
		return "remoteEnded"
	case EndReasonUnanswered:
		return "unanswered"
	case EndReasonAnsweredElsewhere:
		return "answeredElsewhere"
	case EndReasonDeclinedElsewhere:
		return "declinedElsewhere"
	default:
		return "unknown"
	}
}

// newCallFSM wraps looplab/fsm to keep per-call lifecycle state.
// Events: answer, connect, hold, unhold, end
func newCallFSM(initial string, onTransition func(e *fsm.Event)) *fsm.FSM {
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: callEventAnswer, Src: []string{CallStateIncoming}, Dst: CallStateActive},
			{Name: callEventConnect, Src: []string{CallStateDialing}, Dst: CallStateActive},
			{Name: callEventHold, Src: []string{CallStateActive}, Dst: CallStateHeld},
			{Name: callEventUnhold, Src: []string{CallStateHeld}, Dst: CallStateActive},
			{Name: callEventEnd, Src: []string{CallStateIncoming, CallStateDialing, CallStateActive, CallStateHeld}, Dst: CallStateEnded},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if onTransition != nil {
					onTransition(e)
				}
			},
		},
	)
}

// Call представляет один вызов, отслеживаемый провайдером.
//
// Жизненный цикл управляется конечным автоматом, ортогональные флаги
// (mute) хранятся отдельно. Все методы потокобезопасны.
type Call struct {
	uuid        string
	handle      string
	handleType  HandleType
	displayName string
	hasVideo    bool
	outgoing    bool

	stateMachine *fsm.FSM

	mu         sync.RWMutex
	muted      bool
	endReason  EndReason
	createdAt  time.Time
	answeredAt time.Time
	endedAt    time.Time
}

// CallInfo снимок состояния вызова на момент вызова Info.
type CallInfo struct {
	UUID        string
	Handle      string
	HandleType  HandleType
	DisplayName string
	HasVideo    bool
	Outgoing    bool
	State       string
	Muted       bool
	EndReason   EndReason
	CreatedAt   time.Time
	AnsweredAt  time.Time
	EndedAt     time.Time
}

// newCall создает вызов в указанном начальном состоянии.
// Пустой callUUID заменяется сгенерированным UUID v4.
func newCall(callUUID, handle string, handleType HandleType, displayName string, hasVideo, outgoing bool) *Call {
	if callUUID == "" {
		callUUID = uuid.NewString()
	}

	initial := CallStateIncoming
	if outgoing {
		initial = CallStateDialing
	}

	c := &Call{
		uuid:        callUUID,
		handle:      handle,
		handleType:  handleType,
		displayName: displayName,
		hasVideo:    hasVideo,
		outgoing:    outgoing,
		createdAt:   time.Now(),
	}
	c.stateMachine = newCallFSM(initial, c.handleTransition)

	return c
}

// handleTransition фиксирует временные метки при смене состояния.
func (c *Call) handleTransition(e *fsm.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Dst {
	case CallStateActive:
		if c.answeredAt.IsZero() {
			c.answeredAt = time.Now()
		}
	case CallStateEnded:
		c.endedAt = time.Now()
	}
}

// UUID возвращает идентификатор вызова.
func (c *Call) UUID() string {
	return c.uuid
}

// State возвращает текущее состояние жизненного цикла.
func (c *Call) State() string {
	return c.stateMachine.Current()
}

// Outgoing сообщает, является ли вызов исходящим.
func (c *Call) Outgoing() bool {
	return c.outgoing
}

// Muted возвращает текущее состояние микрофона.
func (c *Call) Muted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

// setMuted устанавливает флаг mute и сообщает, изменилось ли значение.
func (c *Call) setMuted(muted bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted == muted {
		return false
	}
	c.muted = muted
	return true
}

// Info возвращает снимок состояния вызова.
func (c *Call) Info() CallInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CallInfo{
		UUID:        c.uuid,
		Handle:      c.handle,
		HandleType:  c.handleType,
		DisplayName: c.displayName,
		HasVideo:    c.hasVideo,
		Outgoing:    c.outgoing,
		State:       c.stateMachine.Current(),
		Muted:       c.muted,
		EndReason:   c.endReason,
		CreatedAt:   c.createdAt,
		AnsweredAt:  c.answeredAt,
		EndedAt:     c.endedAt,
	}
}

// transition выполняет переход конечного автомата, преобразуя отказ
// автомата в доменную ошибку.
func (c *Call) transition(ctx context.Context, event string) error {
	from := c.stateMachine.Current()
	if err := c.stateMachine.Event(ctx, event); err != nil {
		return ErrInvalidCallTransition(c.uuid, from, event).WithCause(err)
	}
	return nil
}

// answer переводит входящий вызов в активное состояние.
func (c *Call) answer(ctx context.Context) error {
	return c.transition(ctx, callEventAnswer)
}

// connect переводит исходящий вызов в активное состояние
// после ответа удаленной стороны.
func (c *Call) connect(ctx context.Context) error {
	return c.transition(ctx, callEventConnect)
}

// hold ставит активный вызов на удержание.
func (c *Call) hold(ctx context.Context) error {
	return c.transition(ctx, callEventHold)
}

// unhold снимает вызов с удержания.
func (c *Call) unhold(ctx context.Context) error {
	return c.transition(ctx, callEventUnhold)
}

// end завершает вызов с указанной причиной. Повторное завершение
// возвращает ошибку недопустимого перехода.
func (c *Call) end(ctx context.Context, reason EndReason) error {
	if err := c.transition(ctx, callEventEnd); err != nil {
		return err
	}

	c.mu.Lock()
	c.endReason = reason
	c.mu.Unlock()

	return nil
}
