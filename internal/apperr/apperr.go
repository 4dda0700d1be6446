// Package apperr описывает таксономию ошибок движка и ее отображение на HTTP-статусы.
package apperr

import (
	"errors"
	"net/http"
)

// Kind - стабильный вид ошибки, который видит вызывающая сторона.
type Kind string

// Виды ошибок.
const (
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindExpired    Kind = "EXPIRED"
	KindForbidden  Kind = "FORBIDDEN"
	KindValidation Kind = "VALIDATION_ERROR"
	KindUnexpected Kind = "UNEXPECTED"
)

// Error - ошибка с видом, кодом и человекочитаемым описанием.
// Сравнение через errors.Is выполняется по идентичности указателя.
type Error struct {
	Kind    Kind
	Code    string // Машиночитаемый код, например ALREADY_ACTIVE
	Message string
}

// New создает новую ошибку указанного вида.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf возвращает вид ошибки. Ошибки вне таксономии считаются KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// CodeOf возвращает машиночитаемый код ошибки.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus отображает вид ошибки на HTTP-статус.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
