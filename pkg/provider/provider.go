// Package provider реализует провайдер звонков поверх координатора событий.
//
// CallProvider отслеживает зарегистрированные вызовы, управляет их
// жизненным циклом через конечный автомат и публикует события звонков
// в координатор. Операции Report* отражают то, что уже произошло в
// нативном слое телефонии, каждая публикует не более одного события.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/arzzra/call_bridge/pkg/bridge"
)

// Option настраивает CallProvider при создании.
type Option func(*CallProvider)

// WithLogger задает логгер провайдера.
func WithLogger(logger bridge.StructuredLogger) Option {
	return func(p *CallProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// CallProvider управляет вызовами и публикует события их жизненного
// цикла в координатор.
//
// Все методы потокобезопасны. События публикуются вне внутренней
// блокировки провайдера, порядок событий одного вызова сохраняется
// при последовательных операциях.
type CallProvider struct {
	config      *Config
	coordinator bridge.ICoordinator
	logger      bridge.StructuredLogger

	mu     sync.RWMutex
	calls  map[string]*Call
	closed bool
}

// NewCallProvider создает провайдер с указанной конфигурацией.
// При nil координаторе используется координатор по умолчанию.
func NewCallProvider(config *Config, coordinator bridge.ICoordinator, opts ...Option) (*CallProvider, error) {
	if config == nil {
		return nil, bridge.ErrInvalidConfig("config", nil, "конфигурация обязательна")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if coordinator == nil {
		coordinator = bridge.Default()
	}
	coordinator.EnsureInitialized()

	p := &CallProvider{
		config:      config,
		coordinator: coordinator,
		logger:      bridge.GetDefaultLogger().WithComponent("provider"),
		calls:       make(map[string]*Call),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger.Info(context.Background(), "провайдер звонков создан",
		bridge.String("app_name", config.AppName),
		bridge.Int("max_active_calls", config.MaxActiveCalls()),
	)

	return p, nil
}

// Config возвращает копию конфигурации провайдера.
func (p *CallProvider) Config() Config {
	return *p.config
}

// Coordinator возвращает координатор, в который публикуются события.
func (p *CallProvider) Coordinator() bridge.ICoordinator {
	return p.coordinator
}

// ReportIncomingCall регистрирует входящий вызов и публикует событие
// callReceived. Пустой callUUID заменяется сгенерированным.
// Возвращает итоговый UUID вызова.
func (p *CallProvider) ReportIncomingCall(callUUID, handle, displayName string, hasVideo bool) (string, error) {
	call, err := p.registerCall(callUUID, handle, displayName, hasVideo, false)
	if err != nil {
		return "", err
	}

	p.logger.WithCall(call.UUID()).Info(context.Background(), "входящий вызов",
		bridge.String("handle", handle),
		bridge.Bool("has_video", call.hasVideo),
	)
	p.coordinator.Submit(bridge.EventCallReceived, map[string]any{
		bridge.AttrCallUUID:    call.UUID(),
		bridge.AttrHandle:      handle,
		bridge.AttrHandleType:  string(p.config.HandleType),
		bridge.AttrDisplayName: displayName,
		bridge.AttrHasVideo:    call.hasVideo,
	})

	return call.UUID(), nil
}

// ReportOutgoingCall регистрирует исходящий вызов и публикует событие
// callStarted. Пустой callUUID заменяется сгенерированным.
// Возвращает итоговый UUID вызова.
func (p *CallProvider) ReportOutgoingCall(callUUID, handle, displayName string, hasVideo bool) (string, error) {
	call, err := p.registerCall(callUUID, handle, displayName, hasVideo, true)
	if err != nil {
		return "", err
	}

	p.logger.WithCall(call.UUID()).Info(context.Background(), "исходящий вызов",
		bridge.String("handle", handle),
		bridge.Bool("has_video", call.hasVideo),
	)
	p.coordinator.Submit(bridge.EventCallStarted, map[string]any{
		bridge.AttrCallUUID:    call.UUID(),
		bridge.AttrHandle:      handle,
		bridge.AttrHandleType:  string(p.config.HandleType),
		bridge.AttrDisplayName: displayName,
		bridge.AttrHasVideo:    call.hasVideo,
	})

	return call.UUID(), nil
}

// registerCall создает и регистрирует вызов с проверкой лимитов.
func (p *CallProvider) registerCall(callUUID, handle, displayName string, hasVideo, outgoing bool) (*Call, error) {
	// Видео доступно только если приложение его поддерживает
	hasVideo = hasVideo && p.config.SupportsVideo

	call := newCall(callUUID, handle, p.config.HandleType, displayName, hasVideo, outgoing)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed()
	}
	if len(p.calls) >= p.config.MaxActiveCalls() {
		return nil, ErrCallLimitReached(p.config.MaxActiveCalls())
	}
	if _, exists := p.calls[call.UUID()]; exists {
		return nil, ErrDuplicateCall(call.UUID())
	}

	p.calls[call.UUID()] = call
	return call, nil
}

// lookup возвращает зарегистрированный вызов по UUID.
func (p *CallProvider) lookup(callUUID string) (*Call, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrProviderClosed()
	}
	call, ok := p.calls[callUUID]
	if !ok {
		return nil, ErrUnknownCall(callUUID)
	}
	return call, nil
}

// ReportCallAnswered отмечает переход вызова в активное состояние и
// публикует событие callAnswered. Для входящего вызова это ответ
// локальной стороны, для исходящего ответ удаленной.
func (p *CallProvider) ReportCallAnswered(callUUID string) error {
	call, err := p.lookup(callUUID)
	if err != nil {
		return err
	}

	if call.Outgoing() {
		err = call.connect(context.Background())
	} else {
		err = call.answer(context.Background())
	}
	if err != nil {
		return err
	}

	p.logger.WithCall(callUUID).Info(context.Background(), "вызов отвечен",
		bridge.Bool("outgoing", call.Outgoing()),
	)
	p.coordinator.Submit(bridge.EventCallAnswered, map[string]any{
		bridge.AttrCallUUID: callUUID,
		bridge.AttrOutgoing: call.Outgoing(),
	})
	return nil
}

// ReportCallEnded завершает вызов с указанной причиной, удаляет его
// из реестра и публикует событие callEnded.
func (p *CallProvider) ReportCallEnded(callUUID string, reason EndReason) error {
	call, err := p.lookup(callUUID)
	if err != nil {
		return err
	}
	if err := call.end(context.Background(), reason); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.calls, callUUID)
	p.mu.Unlock()

	p.logger.WithCall(callUUID).Info(context.Background(), "вызов завершен",
		bridge.String("reason", reason.String()),
	)
	p.coordinator.Submit(bridge.EventCallEnded, map[string]any{
		bridge.AttrCallUUID: callUUID,
		bridge.AttrReason:   int(reason),
	})
	return nil
}

// ReportCallHeld ставит вызов на удержание или снимает с него и
// публикует событие callHeldChanged. Повторная установка текущего
// значения не публикует событие.
func (p *CallProvider) ReportCallHeld(callUUID string, onHold bool) error {
	call, err := p.lookup(callUUID)
	if err != nil {
		return err
	}

	state := call.State()
	if onHold && state == CallStateHeld || !onHold && state == CallStateActive {
		return nil
	}

	if onHold {
		err = call.hold(context.Background())
	} else {
		err = call.unhold(context.Background())
	}
	if err != nil {
		return err
	}

	p.logger.WithCall(callUUID).Debug(context.Background(), "удержание изменено",
		bridge.Bool("on_hold", onHold),
	)
	p.coordinator.Submit(bridge.EventCallHeldChanged, map[string]any{
		bridge.AttrCallUUID: callUUID,
		bridge.AttrOnHold:   onHold,
	})
	return nil
}

// ReportCallMuted включает или выключает микрофон вызова и публикует
// событие callMutedChanged. Повторная установка текущего значения не
// публикует событие.
func (p *CallProvider) ReportCallMuted(callUUID string, muted bool) error {
	call, err := p.lookup(callUUID)
	if err != nil {
		return err
	}

	if !call.setMuted(muted) {
		return nil
	}

	p.logger.WithCall(callUUID).Debug(context.Background(), "микрофон переключен",
		bridge.Bool("muted", muted),
	)
	p.coordinator.Submit(bridge.EventCallMutedChanged, map[string]any{
		bridge.AttrCallUUID: callUUID,
		bridge.AttrMuted:    muted,
	})
	return nil
}

// ReportDTMF фиксирует передачу DTMF последовательности в активном
// вызове и публикует событие dtmfPerformed.
func (p *CallProvider) ReportDTMF(callUUID, digits string) error {
	call, err := p.lookup(callUUID)
	if err != nil {
		return err
	}
	if state := call.State(); state != CallStateActive {
		return ErrCallNotActive(callUUID, state)
	}

	p.logger.WithCall(callUUID).Debug(context.Background(), "DTMF отправлен",
		bridge.String("digits", digits),
	)
	p.coordinator.Submit(bridge.EventDTMFPerformed, map[string]any{
		bridge.AttrCallUUID: callUUID,
		bridge.AttrDigits:   digits,
	})
	return nil
}

// ReportAudioSessionActivated публикует событие активации аудиосессии.
func (p *CallProvider) ReportAudioSessionActivated() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.coordinator.Submit(bridge.EventAudioSessionActivated, nil)
	return nil
}

// ReportAudioSessionDeactivated публикует событие деактивации аудиосессии.
func (p *CallProvider) ReportAudioSessionDeactivated() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.coordinator.Submit(bridge.EventAudioSessionDeactivated, nil)
	return nil
}

// ReportAudioRouteChanged публикует событие смены аудиомаршрута
// (динамик, гарнитура, bluetooth). Пустая причина не попадает
// в атрибуты события.
func (p *CallProvider) ReportAudioRouteChanged(route, reason string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}

	attrs := map[string]any{
		bridge.AttrRoute: route,
	}
	if reason != "" {
		attrs[bridge.AttrRouteReason] = reason
	}
	p.coordinator.Submit(bridge.EventAudioRouteChanged, attrs)
	return nil
}

// checkOpen возвращает ошибку, если провайдер закрыт.
func (p *CallProvider) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProviderClosed()
	}
	return nil
}

// ReportProviderReset завершает все вызовы без индивидуальных событий,
// очищает реестр и публикует единственное событие providerReset.
// Используется при сбросе нативного слоя звонков.
func (p *CallProvider) ReportProviderReset() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProviderClosed()
	}
	ended := p.drainCallsLocked()
	p.mu.Unlock()

	p.logger.Info(context.Background(), "провайдер сброшен",
		bridge.Int("ended_calls", ended),
	)
	p.coordinator.Submit(bridge.EventProviderReset, map[string]any{
		bridge.AttrAppName: p.config.AppName,
	})
	return nil
}

// drainCallsLocked завершает и удаляет все вызовы. Вызывается под mu.
func (p *CallProvider) drainCallsLocked() int {
	ended := len(p.calls)
	for uuid, call := range p.calls {
		_ = call.end(context.Background(), EndReasonFailed)
		delete(p.calls, uuid)
	}
	return ended
}

// Call возвращает снимок состояния зарегистрированного вызова.
func (p *CallProvider) Call(callUUID string) (CallInfo, error) {
	call, err := p.lookup(callUUID)
	if err != nil {
		return CallInfo{}, err
	}
	return call.Info(), nil
}

// ActiveCalls возвращает снимки всех зарегистрированных вызовов,
// отсортированные по времени создания.
func (p *CallProvider) ActiveCalls() []CallInfo {
	p.mu.RLock()
	infos := make([]CallInfo, 0, len(p.calls))
	for _, call := range p.calls {
		infos = append(infos, call.Info())
	}
	p.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].UUID < infos[j].UUID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// CallCount возвращает число зарегистрированных вызовов.
func (p *CallProvider) CallCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.calls)
}

// CheckIfBusy сообщает, достигнут ли предел одновременных вызовов.
func (p *CallProvider) CheckIfBusy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.calls) >= p.config.MaxActiveCalls()
}

// Close завершает все вызовы и переводит провайдер в закрытое
// состояние. События не публикуются. Повторный вызов безопасен.
func (p *CallProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	ended := p.drainCallsLocked()

	p.logger.Info(context.Background(), "провайдер закрыт",
		bridge.Int("ended_calls", ended),
	)
	return nil
}
