package bridge

import (
	"fmt"
	"time"
)

// ErrorCategory категории ошибок для классификации
type ErrorCategory string

const (
	// Критические ошибки системы
	ErrorCategorySystem   ErrorCategory = "SYSTEM"
	ErrorCategoryDelivery ErrorCategory = "DELIVERY"
	ErrorCategoryCapacity ErrorCategory = "CAPACITY"

	// Ошибки состояния координатора и вызовов
	ErrorCategoryState ErrorCategory = "STATE"
	ErrorCategoryCall  ErrorCategory = "CALL"

	// Ошибки конфигурации и валидации
	ErrorCategoryConfig     ErrorCategory = "CONFIG"
	ErrorCategoryValidation ErrorCategory = "VALIDATION"

	// Ошибки транспортного уровня (SIP шлюз)
	ErrorCategoryTransport ErrorCategory = "TRANSPORT"
)

// String возвращает строковое представление категории ошибки
func (ec ErrorCategory) String() string {
	return string(ec)
}

// ErrorSeverity уровни критичности ошибок
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "CRITICAL" // Критичная ошибка, требует немедленного внимания
	ErrorSeverityError    ErrorSeverity = "ERROR"    // Серьезная ошибка, операция не может быть завершена
	ErrorSeverityWarning  ErrorSeverity = "WARNING"  // Предупреждение, операция может быть продолжена
	ErrorSeverityInfo     ErrorSeverity = "INFO"     // Информационное сообщение
)

// String возвращает строковое представление уровня критичности
func (es ErrorSeverity) String() string {
	return string(es)
}

// BridgeError структурированная ошибка с контекстом
type BridgeError struct {
	// Основная информация об ошибке
	Code     string        `json:"code"`     // Уникальный код ошибки
	Message  string        `json:"message"`  // Человекочитаемое сообщение
	Category ErrorCategory `json:"category"` // Категория ошибки
	Severity ErrorSeverity `json:"severity"` // Уровень критичности

	// Контекст ошибки
	EventKind EventKind `json:"event_kind,omitempty"` // Тип события, если применимо
	CallUUID  string    `json:"call_uuid,omitempty"`  // Идентификатор вызова
	Timestamp time.Time `json:"timestamp"`            // Время возникновения ошибки

	// Дополнительные поля
	Fields    map[string]interface{} `json:"fields,omitempty"` // Дополнительные поля контекста
	Cause     error                  `json:"cause,omitempty"`  // Исходная ошибка
	Retryable bool                   `json:"retryable"`        // Можно ли повторить операцию
}

// Error реализует интерфейс error
func (e *BridgeError) Error() string {
	if e.CallUUID != "" {
		return fmt.Sprintf("[%s:%s] %s (call: %s)", e.Category, e.Code, e.Message, e.CallUUID)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// WithField добавляет дополнительное поле к ошибке
func (e *BridgeError) WithField(key string, value interface{}) *BridgeError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithCause добавляет исходную ошибку
func (e *BridgeError) WithCause(cause error) *BridgeError {
	e.Cause = cause
	return e
}

// WithCallUUID добавляет идентификатор вызова к ошибке
func (e *BridgeError) WithCallUUID(uuid string) *BridgeError {
	e.CallUUID = uuid
	return e
}

// IsRetryable проверяет, можно ли повторить операцию
func (e *BridgeError) IsRetryable() bool {
	return e.Retryable
}

// NewBridgeError создает новую структурированную ошибку
func NewBridgeError(code, message string, category ErrorCategory, severity ErrorSeverity) *BridgeError {
	return &BridgeError{
		Code:      code,
		Message:   message,
		Category:  category,
		Severity:  severity,
		Timestamp: time.Now(),
		Fields:    make(map[string]interface{}),
		Retryable: false,
	}
}

// Предопределенные ошибки для частых случаев

// Config-related errors
func ErrInvalidConfig(field string, value interface{}, reason string) *BridgeError {
	return NewBridgeError(
		"INVALID_CONFIG",
		fmt.Sprintf("Неверная конфигурация поля '%s': %v (%s)", field, value, reason),
		ErrorCategoryConfig,
		ErrorSeverityError,
	).WithField("field", field).WithField("value", value).WithField("reason", reason)
}

// Delivery-related errors
func ErrConsumerPanic(kind EventKind, panicValue interface{}) *BridgeError {
	return NewBridgeError(
		"CONSUMER_PANIC",
		fmt.Sprintf("Паника потребителя при доставке события %s: %v", kind, panicValue),
		ErrorCategoryDelivery,
		ErrorSeverityCritical,
	).WithField("event_kind", kind).WithField("panic_value", panicValue)
}

// Capacity-related errors
func ErrBufferOverflow(limit int, dropped EventKind) *BridgeError {
	err := NewBridgeError(
		"BUFFER_OVERFLOW",
		fmt.Sprintf("Буфер отложенных событий переполнен (лимит %d), вытеснено событие %s", limit, dropped),
		ErrorCategoryCapacity,
		ErrorSeverityWarning,
	).WithField("limit", limit).WithField("dropped_kind", dropped)
	err.Retryable = true
	return err
}

// System-related errors
func ErrResourceExhaustion(resource string, limit interface{}) *BridgeError {
	err := NewBridgeError(
		"RESOURCE_EXHAUSTION",
		fmt.Sprintf("Исчерпан ресурс: %s (лимит: %v)", resource, limit),
		ErrorCategorySystem,
		ErrorSeverityCritical,
	).WithField("resource", resource).WithField("limit", limit)
	err.Retryable = true
	return err
}

// Transport-related errors
func ErrTransportFailure(transport string, operation string) *BridgeError {
	err := NewBridgeError(
		"TRANSPORT_FAILURE",
		fmt.Sprintf("Ошибка транспорта %s при операции %s", transport, operation),
		ErrorCategoryTransport,
		ErrorSeverityCritical,
	).WithField("transport", transport).WithField("operation", operation)
	err.Retryable = true
	return err
}

// IsTemporary проверяет, является ли ошибка временной
func IsTemporary(err error) bool {
	if be, ok := err.(*BridgeError); ok {
		return be.Retryable
	}

	// Проверяем стандартные типы временных ошибок
	if temp, ok := err.(interface{ Temporary() bool }); ok {
		return temp.Temporary()
	}

	return false
}

// IsCritical проверяет, является ли ошибка критичной
func IsCritical(err error) bool {
	if be, ok := err.(*BridgeError); ok {
		return be.Severity == ErrorSeverityCritical
	}
	return false
}

// GetErrorCode извлекает код ошибки
func GetErrorCode(err error) string {
	if be, ok := err.(*BridgeError); ok {
		return be.Code
	}
	return "UNKNOWN"
}

// GetErrorCategory извлекает категорию ошибки
func GetErrorCategory(err error) ErrorCategory {
	if be, ok := err.(*BridgeError); ok {
		return be.Category
	}
	return ErrorCategorySystem
}
