// Package sip_gateway реализует SIP продюсер для провайдера звонков.
//
// Gateway принимает входящие INVITE, CANCEL и BYE запросы через sipgo
// и транслирует их в операции CallProvider. Шлюз не управляет вызовами
// сам: ответ, удержание и завершение со стороны приложения выполняются
// через провайдер.
package sip_gateway

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/call_bridge/pkg/bridge"
	"github.com/arzzra/call_bridge/pkg/provider"
)

// Config содержит конфигурацию SIP шлюза.
type Config struct {
	// ListenAddr адрес прослушивания в формате host:port
	// По умолчанию: 127.0.0.1:5060
	ListenAddr string

	// Transport транспортный протокол: udp или tcp
	// По умолчанию: udp
	Transport string

	// UserAgent строка идентификации в заголовке User-Agent
	UserAgent string
}

// DefaultGatewayConfig возвращает конфигурацию шлюза с умолчаниями.
func DefaultGatewayConfig() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:5060",
		Transport:  "udp",
		UserAgent:  "CallBridge/1.0",
	}
}

// Validate проверяет конфигурацию шлюза.
func (c *Config) Validate() error {
	if c.Transport != "udp" && c.Transport != "tcp" {
		return bridge.ErrInvalidConfig("transport", c.Transport, "допустимы udp и tcp")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return bridge.ErrInvalidConfig("listenAddr", c.ListenAddr, "ожидается host:port").WithCause(err)
	}
	return nil
}

// Option настраивает Gateway при создании.
type Option func(*Gateway)

// WithLogger задает логгер шлюза.
func WithLogger(logger bridge.StructuredLogger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gateway связывает SIP сервер с провайдером звонков.
//
// Входящий INVITE регистрируется как входящий вызов, CANCEL завершает
// его с причиной unanswered, BYE с причиной remoteEnded. Соответствие
// SIP Call-ID и UUID вызова хранится внутри шлюза.
type Gateway struct {
	config   *Config
	provider *provider.CallProvider
	logger   bridge.StructuredLogger

	ua     *sipgo.UserAgent
	server *sipgo.Server

	ctx    context.Context
	cancel context.CancelFunc
	serve  *bridge.SafeGoroutine

	// calls карта SIP Call-ID -> UUID вызова
	calls map[string]string
	mutex sync.RWMutex
}

// New создает шлюз для указанного провайдера.
func New(config *Config, callProvider *provider.CallProvider, opts ...Option) (*Gateway, error) {
	if config == nil {
		config = DefaultGatewayConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if callProvider == nil {
		return nil, bridge.ErrInvalidConfig("provider", nil, "провайдер обязателен")
	}

	g := &Gateway{
		config:   config,
		provider: callProvider,
		logger:   bridge.GetDefaultLogger().WithComponent("sip_gateway"),
		calls:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Start создает SIP стек и запускает прослушивание в отдельной горутине.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(g.config.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to create UA: %w", err)
	}
	g.ua = ua

	g.server, err = sipgo.NewServer(g.ua)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g.setupHandlers()

	g.logger.Info(g.ctx, "запуск SIP шлюза",
		bridge.String("transport", g.config.Transport),
		bridge.String("address", g.config.ListenAddr),
	)

	g.serve = bridge.NewSafeGoroutine(g.ctx, func(ctx context.Context) error {
		return g.server.ListenAndServe(ctx, g.config.Transport, g.config.ListenAddr)
	}, bridge.SafeGoroutineOptions{
		Name:   "sip-gateway-serve",
		Logger: g.logger,
	})
	g.serve.Start()

	return nil
}

// Shutdown останавливает шлюз. Зарегистрированные вызовы остаются
// в провайдере, их завершает приложение.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}

	// Сначала закрываем sipgo компоненты, чтобы ListenAndServe вернулся,
	// затем дожидаемся завершения обслуживающей горутины
	if g.server != nil {
		_ = g.server.Close()
	}
	if g.ua != nil {
		_ = g.ua.Close()
	}
	if g.serve != nil {
		g.serve.Stop()
	}

	g.mutex.Lock()
	g.calls = make(map[string]string)
	g.mutex.Unlock()

	g.logger.Info(ctx, "SIP шлюз остановлен")
	return nil
}

// setupHandlers регистрирует обработчики SIP запросов.
func (g *Gateway) setupHandlers() {
	g.server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) {
		g.handleInvite(req, tx)
	})

	g.server.OnCancel(func(req *sip.Request, tx sip.ServerTransaction) {
		g.handleCancel(req, tx)
	})

	g.server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) {
		g.handleBye(req, tx)
	})

	g.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {
		// ACK подтверждает финальный ответ, состояние вызова не меняет
	})
}

// handleInvite обрабатывает входящий INVITE.
func (g *Gateway) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	from := req.From()
	if from == nil {
		res := sip.NewResponseFromRequest(req, 400, "Bad Request", nil)
		_ = tx.Respond(res)
		return
	}

	callID := req.CallID().Value()

	// Повторный INVITE для известного Call-ID, подтверждаем прогресс
	if uuid, ok := g.callUUID(callID); ok {
		if _, err := g.provider.Call(uuid); err == nil {
			res := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
			_ = tx.Respond(res)
			return
		}
		// Вызов уже завершен приложением, забываем устаревшую запись
		g.forget(callID)
	}

	handle := handleFromURI(from.Address, g.provider.Config().HandleType)
	displayName := from.DisplayName

	contentType := ""
	if hdr := req.GetHeader("Content-Type"); hdr != nil {
		contentType = hdr.Value()
	}
	hasVideo := hasVideoOffer(req.Body(), contentType)

	uuid, err := g.provider.ReportIncomingCall("", handle, displayName, hasVideo)
	if err != nil {
		if bridge.GetErrorCode(err) == "CALL_LIMIT_REACHED" {
			res := sip.NewResponseFromRequest(req, 486, "Busy Here", nil)
			_ = tx.Respond(res)
			return
		}
		g.logger.LogError(g.ctx, err, "не удалось зарегистрировать входящий вызов")
		res := sip.NewResponseFromRequest(req, 500, "Internal Server Error", nil)
		_ = tx.Respond(res)
		return
	}

	g.mutex.Lock()
	g.calls[callID] = uuid
	g.mutex.Unlock()

	g.logger.WithCall(uuid).Info(g.ctx, "входящий INVITE",
		bridge.String("sip_call_id", callID),
		bridge.String("handle", handle),
		bridge.Bool("has_video", hasVideo),
	)

	res := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	if err := tx.Respond(res); err != nil {
		g.logger.Warn(g.ctx, "не удалось отправить 180 Ringing",
			bridge.String("sip_call_id", callID),
			bridge.Err(err),
		)
	}
}

// handleCancel обрабатывает CANCEL, вызов завершается как неотвеченный.
func (g *Gateway) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()

	uuid, ok := g.callUUID(callID)
	if !ok {
		res := sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil)
		_ = tx.Respond(res)
		return
	}

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	_ = tx.Respond(res)

	g.endMappedCall(callID, uuid, provider.EndReasonUnanswered)
}

// handleBye обрабатывает BYE, вызов завершается удаленной стороной.
func (g *Gateway) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()

	uuid, ok := g.callUUID(callID)
	if !ok {
		res := sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil)
		_ = tx.Respond(res)
		return
	}

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	_ = tx.Respond(res)

	g.endMappedCall(callID, uuid, provider.EndReasonRemoteEnded)
}

// endMappedCall завершает вызов в провайдере и удаляет запись.
// Вызов мог быть уже завершен приложением, это не ошибка.
func (g *Gateway) endMappedCall(callID, uuid string, reason provider.EndReason) {
	g.forget(callID)

	if err := g.provider.ReportCallEnded(uuid, reason); err != nil {
		g.logger.WithCall(uuid).Debug(g.ctx, "вызов уже завершен",
			bridge.String("sip_call_id", callID),
			bridge.String("reason", reason.String()),
		)
		return
	}

	g.logger.WithCall(uuid).Info(g.ctx, "вызов завершен по SIP",
		bridge.String("sip_call_id", callID),
		bridge.String("reason", reason.String()),
	)
}

// callUUID возвращает UUID вызова по SIP Call-ID.
func (g *Gateway) callUUID(callID string) (string, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	uuid, ok := g.calls[callID]
	return uuid, ok
}

// forget удаляет запись о вызове.
func (g *Gateway) forget(callID string) {
	g.mutex.Lock()
	delete(g.calls, callID)
	g.mutex.Unlock()
}

// MappedCalls возвращает число отслеживаемых SIP вызовов.
func (g *Gateway) MappedCalls() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.calls)
}
