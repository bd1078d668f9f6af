package server

import (
	"errors"
	"fmt"
)

// ErrorCode код ошибки сервера линий
type ErrorCode int

const (
	// Ошибки сети
	ErrorCodeListenFailed ErrorCode = iota + 2000
	ErrorCodeAcceptFailed

	// Ошибки сессии
	ErrorCodeSessionReadFailed
	ErrorCodeSessionWriteFailed

	// Ошибки оборудования
	ErrorCodeHardwareFailed
)

// String возвращает строковое представление кода ошибки
func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeListenFailed:
		return "ListenFailed"
	case ErrorCodeAcceptFailed:
		return "AcceptFailed"
	case ErrorCodeSessionReadFailed:
		return "SessionReadFailed"
	case ErrorCodeSessionWriteFailed:
		return "SessionWriteFailed"
	case ErrorCodeHardwareFailed:
		return "HardwareFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// ErrShutdown возвращается при попытке запустить обработчик линии после
// начала завершения процесса
var ErrShutdown = errors.New("server: shutting down")

// Error ошибка сервера с кодом, номером линии и идентификатором сессии
type Error struct {
	Code      ErrorCode
	Message   string
	Line      int
	SessionID string
	Wrapped   error
}

func newError(code ErrorCode, line int, message string, wrapped error) *Error {
	return &Error{Code: code, Line: line, Message: message, Wrapped: wrapped}
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	msg := fmt.Sprintf("[линия:%d %s] %s", e.Line, e.Code, e.Message)
	if e.SessionID != "" {
		msg = fmt.Sprintf("[линия:%d %s] сессия %s: %s", e.Line, e.Code, e.SessionID, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// HasCode проверяет, что в цепочке err есть ошибка сервера с кодом code
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
