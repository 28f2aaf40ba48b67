package provider

import (
	"fmt"

	"github.com/arzzra/call_bridge/pkg/bridge"
)

// ErrUnknownCall создает ошибку для операции над незарегистрированным вызовом.
func ErrUnknownCall(callUUID string) *bridge.BridgeError {
	return bridge.NewBridgeError(
		"UNKNOWN_CALL",
		fmt.Sprintf("вызов %s не зарегистрирован в провайдере", callUUID),
		bridge.ErrorCategoryCall,
		bridge.ErrorSeverityError,
	).WithCallUUID(callUUID)
}

// ErrDuplicateCall создает ошибку регистрации вызова с занятым UUID.
func ErrDuplicateCall(callUUID string) *bridge.BridgeError {
	return bridge.NewBridgeError(
		"DUPLICATE_CALL",
		fmt.Sprintf("вызов %s уже зарегистрирован", callUUID),
		bridge.ErrorCategoryCall,
		bridge.ErrorSeverityError,
	).WithCallUUID(callUUID)
}

// ErrCallLimitReached создает ошибку превышения лимита одновременных вызовов.
func ErrCallLimitReached(limit int) *bridge.BridgeError {
	return bridge.NewBridgeError(
		"CALL_LIMIT_REACHED",
		fmt.Sprintf("достигнут предел одновременных вызовов: %d", limit),
		bridge.ErrorCategoryCapacity,
		bridge.ErrorSeverityWarning,
	).WithField("limit", limit)
}

// ErrInvalidCallTransition создает ошибку недопустимого перехода
// состояния вызова, например попытку ответить на уже завершенный вызов.
func ErrInvalidCallTransition(callUUID, from, event string) *bridge.BridgeError {
	return bridge.NewBridgeError(
		"INVALID_CALL_TRANSITION",
		fmt.Sprintf("переход %q недопустим из состояния %q", event, from),
		bridge.ErrorCategoryState,
		bridge.ErrorSeverityError,
	).WithCallUUID(callUUID).WithField("from_state", from).WithField("transition", event)
}

// ErrCallNotActive создает ошибку для операций, требующих активного
// вызова (например, отправка DTMF).
func ErrCallNotActive(callUUID, state string) *bridge.BridgeError {
	return bridge.NewBridgeError(
		"CALL_NOT_ACTIVE",
		fmt.Sprintf("операция требует активного вызова, текущее состояние %q", state),
		bridge.ErrorCategoryState,
		bridge.ErrorSeverityError,
	).WithCallUUID(callUUID).WithField("state", state)
}

// ErrProviderClosed создает ошибку для операций над закрытым провайдером.
func ErrProviderClosed() *bridge.BridgeError {
	return bridge.NewBridgeError(
		"PROVIDER_CLOSED",
		"провайдер звонков закрыт",
		bridge.ErrorCategoryState,
		bridge.ErrorSeverityError,
	)
}
