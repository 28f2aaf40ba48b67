package bridge

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EventKind определяет тип нативного события телефонии.
// Координатор не интерпретирует тип события, для него это
// непрозрачная метка. Константы ниже описывают канонический
// набор событий, который порождает CallProvider.
type EventKind string

// Канонические типы событий
const (
	// EventCallReceived - входящий вызов показан нативному UI
	EventCallReceived EventKind = "callReceived"

	// EventCallStarted - исходящий вызов инициирован
	EventCallStarted EventKind = "callStarted"

	// EventCallAnswered - пользователь принял вызов
	EventCallAnswered EventKind = "callAnswered"

	// EventCallEnded - вызов завершен (локально или удаленно)
	EventCallEnded EventKind = "callEnded"

	// EventCallHeldChanged - вызов поставлен на удержание или снят с него
	EventCallHeldChanged EventKind = "callHeldChanged"

	// EventCallMutedChanged - микрофон выключен или включен
	EventCallMutedChanged EventKind = "callMutedChanged"

	// EventDTMFPerformed - пользователь отправил DTMF сигнал
	EventDTMFPerformed EventKind = "dtmfPerformed"

	// EventAudioSessionActivated - аудиосессия активирована системой
	EventAudioSessionActivated EventKind = "audioSessionActivated"

	// EventAudioSessionDeactivated - аудиосессия деактивирована системой
	EventAudioSessionDeactivated EventKind = "audioSessionDeactivated"

	// EventAudioRouteChanged - изменился маршрут аудио (динамик, гарнитура)
	EventAudioRouteChanged EventKind = "audioRouteChanged"

	// EventProviderReset - нативный провайдер сброшен системой
	EventProviderReset EventKind = "providerReset"
)

// Стандартные ключи атрибутов событий
const (
	AttrCallUUID    = "callUUID"
	AttrHandle      = "handle"
	AttrHandleType  = "handleType"
	AttrDisplayName = "displayName"
	AttrHasVideo    = "hasVideo"
	AttrOutgoing    = "outgoing"
	AttrReason      = "reason"
	AttrOnHold      = "onHold"
	AttrMuted       = "muted"
	AttrDigits      = "digits"
	AttrRoute       = "route"
	AttrRouteReason = "routeReason"
	AttrAppName     = "appName"
)

// Event представляет одно нативное событие телефонии с полезной нагрузкой.
//
// Событие неизменяемо после создания: конструктор копирует карту
// атрибутов, поэтому последующие изменения исходной карты вызывающей
// стороной не влияют на уже созданное событие. Это важно для
// отложенных событий, которые могут храниться в буфере произвольно
// долго до подключения потребителя.
type Event struct {
	// Kind - тип события
	Kind EventKind `json:"kind"`

	// Attributes - полезная нагрузка события (может быть nil)
	Attributes map[string]any `json:"attributes,omitempty"`

	// Timestamp - момент создания события
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent создает событие указанного типа с копией атрибутов.
// Передача nil атрибутов допустима и означает событие без полезной нагрузки.
func NewEvent(kind EventKind, attributes map[string]any) Event {
	return Event{
		Kind:       kind,
		Attributes: copyAttributes(attributes),
		Timestamp:  time.Now(),
	}
}

// Attr возвращает значение атрибута по ключу.
// Второе возвращаемое значение false, если атрибут отсутствует.
func (e Event) Attr(key string) (any, bool) {
	if e.Attributes == nil {
		return nil, false
	}
	v, ok := e.Attributes[key]
	return v, ok
}

// StringAttr возвращает строковый атрибут или пустую строку,
// если атрибут отсутствует или имеет другой тип.
func (e Event) StringAttr(key string) string {
	if v, ok := e.Attr(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// BoolAttr возвращает булев атрибут или false,
// если атрибут отсутствует или имеет другой тип.
func (e Event) BoolAttr(key string) bool {
	if v, ok := e.Attr(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// CallUUID возвращает идентификатор вызова из атрибутов события
// или пустую строку для событий, не привязанных к вызову.
func (e Event) CallUUID() string {
	return e.StringAttr(AttrCallUUID)
}

// Clone возвращает глубокую копию события.
// Используется для диагностических снимков буфера, чтобы
// вызывающая сторона не могла изменить буферизованные атрибуты.
func (e Event) Clone() Event {
	clone := e
	clone.Attributes = copyAttributes(e.Attributes)
	return clone
}

// String возвращает краткое представление события для логов
func (e Event) String() string {
	if len(e.Attributes) == 0 {
		return string(e.Kind)
	}

	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, e.Attributes[k])
	}
	sb.WriteString("}")
	return sb.String()
}

// copyAttributes возвращает поверхностную копию карты атрибутов.
// Для nil или пустой карты возвращает nil.
func copyAttributes(attributes map[string]any) map[string]any {
	if len(attributes) == 0 {
		return nil
	}
	cp := make(map[string]any, len(attributes))
	for k, v := range attributes {
		cp[k] = v
	}
	return cp
}
