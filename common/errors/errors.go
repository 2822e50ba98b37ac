package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an application error independently of its transport.
type Kind string

const (
	KindValidation            Kind = "ValidationError"
	KindNotFound              Kind = "NotFound"
	KindInsufficientStock     Kind = "InsufficientStock"
	KindConcurrencyConflict   Kind = "ConcurrencyConflict"
	KindSessionCreationFailed Kind = "SessionCreationFailed"
	KindPersistenceFailed     Kind = "PersistenceFailed"
	KindNotificationFailed    Kind = "NotificationFailed"
	KindUnauthorized          Kind = "Unauthorized"
	KindInternal              Kind = "Internal"
)

var kindStatus = map[Kind]int{
	KindValidation:            http.StatusBadRequest,
	KindNotFound:              http.StatusNotFound,
	KindInsufficientStock:     http.StatusBadRequest,
	KindConcurrencyConflict:   http.StatusConflict,
	KindSessionCreationFailed: http.StatusInternalServerError,
	KindPersistenceFailed:     http.StatusInternalServerError,
	KindNotificationFailed:    http.StatusInternalServerError,
	KindUnauthorized:          http.StatusUnauthorized,
	KindInternal:              http.StatusInternalServerError,
}

// Error represents an application error
type Error struct {
	Code    int               `json:"code"`
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can compare against
// the predefined values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error of the given kind. The HTTP code is derived from the kind.
func New(kind Kind, message string, err error) *Error {
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func Validation(message string, fields map[string]string) *Error {
	e := New(KindValidation, message, nil)
	e.Fields = fields
	return e
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func InsufficientStock(message string) *Error {
	return New(KindInsufficientStock, message, nil)
}

func ConcurrencyConflict(message string, err error) *Error {
	return New(KindConcurrencyConflict, message, err)
}

func SessionCreationFailed(message string, err error) *Error {
	return New(KindSessionCreationFailed, message, err)
}

func PersistenceFailed(message string, err error) *Error {
	return New(KindPersistenceFailed, message, err)
}

func NotificationFailed(message string, err error) *Error {
	return New(KindNotificationFailed, message, err)
}

func Internal(message string, err error) *Error {
	return New(KindInternal, message, err)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Retryable reports whether repeating the failed operation unchanged could
// succeed. Rejections of the input itself are final.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindInsufficientStock, KindUnauthorized:
		return false
	}
	return true
}

// StatusOf reports the HTTP status for err.
func StatusOf(err error) int {
	var appErr *Error
	if stderrors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-facing message for err. Errors that are not
// application errors never leak their text.
func MessageOf(err error) string {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternalServer.Message
}

// Error middleware for Gin
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			c.AbortWithStatusJSON(StatusOf(err), gin.H{"message": MessageOf(err)})
		}
	}
}

// Common error values, usable as errors.Is targets.
var (
	ErrValidation            = New(KindValidation, "Validation error", nil)
	ErrNotFound              = New(KindNotFound, "Not found", nil)
	ErrInsufficientStock     = New(KindInsufficientStock, "Insufficient stock", nil)
	ErrConcurrencyConflict   = New(KindConcurrencyConflict, "Concurrent update detected", nil)
	ErrSessionCreationFailed = New(KindSessionCreationFailed, "Payment session creation failed", nil)
	ErrPersistenceFailed     = New(KindPersistenceFailed, "Persistence failed", nil)
	ErrNotificationFailed    = New(KindNotificationFailed, "Failed to send email", nil)
	ErrUnauthorized          = New(KindUnauthorized, "Unauthorized", nil)
	ErrInternalServer        = New(KindInternal, "Internal server error", nil)
)
