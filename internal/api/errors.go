package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-convo/internal/conversation"
)

// ApiError is the failure envelope returned by every endpoint.
type ApiError struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(statusCode))
	}
	return &ApiError{StatusCode: statusCode, Message: message}
}

func NewBadRequestError(message string) *ApiError {
	return newApiError(http.StatusBadRequest, message)
}

func NewNotFoundError(message string) *ApiError {
	return newApiError(http.StatusNotFound, message)
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError(message string) *ApiError {
	return newApiError(http.StatusUnauthorized, message)
}

func NewForbiddenError(message string) *ApiError {
	return newApiError(http.StatusForbidden, message)
}

func NewConflictError(message string) *ApiError {
	return newApiError(http.StatusConflict, message)
}

func NewTooManyRequestsError() *ApiError {
	return newApiError(http.StatusTooManyRequests, "")
}

// fromServiceError maps a conversation error onto its HTTP status.
func fromServiceError(err error) *ApiError {
	var svcErr *conversation.Error
	if !errors.As(err, &svcErr) {
		return NewInternalServerError(err)
	}

	switch svcErr.Kind {
	case conversation.KindBadRequest:
		return NewBadRequestError(svcErr.Message)
	case conversation.KindUnauthorized:
		return NewUnauthorizedError(svcErr.Message)
	case conversation.KindForbidden:
		return NewForbiddenError(svcErr.Message)
	case conversation.KindNotFound:
		return NewNotFoundError(svcErr.Message)
	case conversation.KindConflict:
		return NewConflictError(svcErr.Message)
	default:
		return NewInternalServerError(err)
	}
}
