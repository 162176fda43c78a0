// Package core предоставляет систему ошибок фреймворка.
package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Коды ошибок фреймворка
const (
	ErrNotFound             = "NOT_FOUND"
	ErrAlreadyExists        = "ALREADY_EXISTS"
	ErrInvalidConfig        = "INVALID_CONFIG"
	ErrInvalidArgument      = "INVALID_ARGUMENT"
	ErrPersistence          = "PERSISTENCE_ERROR"
	ErrInitializationFailed = "INITIALIZATION_FAILED"
)

// Эталонные ошибки для сравнения через errors.Is (сравнение идет по коду)
var (
	ErrInvalidArgumentError = &FrameworkError{Code: ErrInvalidArgument}
	ErrPersistenceError     = &FrameworkError{Code: ErrPersistence}
	ErrInvalidConfigError   = &FrameworkError{Code: ErrInvalidConfig}
)

// FrameworkError базовый тип ошибки фреймворка
type FrameworkError struct {
	Code       string
	Message    string
	Cause      error
	StackTrace string
}

// Error реализует интерфейс error
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is проверяет, соответствует ли ошибка коду
func (e *FrameworkError) Is(target error) bool {
	if t, ok := target.(*FrameworkError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext добавляет контекст к ошибке
func (e *FrameworkError) WithContext(context string) *FrameworkError {
	return &FrameworkError{
		Code:       e.Code,
		Message:    fmt.Sprintf("%s: %s", context, e.Message),
		Cause:      e.Cause,
		StackTrace: e.StackTrace,
	}
}

// NewError создает новую ошибку фреймворка
func NewError(code, message string) *FrameworkError {
	return &FrameworkError{
		Code:       code,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку.
// Уже обернутая ошибка с тем же кодом возвращается как есть, чтобы не плодить вложенность.
func Wrap(err error, code, message string) error {
	if err == nil {
		return nil
	}
	var fe *FrameworkError
	if errors.As(err, &fe) && fe.Code == code {
		return err
	}
	return &FrameworkError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// InvalidArgument создает ошибку INVALID_ARGUMENT
func InvalidArgument(format string, args ...interface{}) *FrameworkError {
	return NewError(ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Persistence оборачивает ошибку backend'а в PERSISTENCE_ERROR
func Persistence(err error, format string, args ...interface{}) error {
	return Wrap(err, ErrPersistence, fmt.Sprintf(format, args...))
}

// IsCode проверяет, содержит ли цепочка ошибок FrameworkError с указанным кодом
func IsCode(err error, code string) bool {
	var fe *FrameworkError
	for err != nil {
		if errors.As(err, &fe) {
			if fe.Code == code {
				return true
			}
			err = fe.Cause
			continue
		}
		return false
	}
	return false
}

// captureStackTrace захватывает stack trace
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// Убираем первые несколько строк (сама функция captureStackTrace)
	lines := strings.Split(stack, "\n")
	if len(lines) > 4 {
		lines = lines[4:]
	}
	return strings.Join(lines, "\n")
}
