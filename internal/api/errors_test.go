package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-convo/internal/conversation"
	"github.com/stretchr/testify/assert"
)

func Test_fromServiceError(t *testing.T) {
	tcases := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "bad request",
			err:        &conversation.Error{Kind: conversation.KindBadRequest, Message: "content is required"},
			expectCode: http.StatusBadRequest,
			expectMsg:  "content is required",
		},
		{
			name:       "unauthorized",
			err:        &conversation.Error{Kind: conversation.KindUnauthorized, Message: "who are you"},
			expectCode: http.StatusUnauthorized,
			expectMsg:  "who are you",
		},
		{
			name:       "forbidden",
			err:        &conversation.Error{Kind: conversation.KindForbidden, Message: "not admin"},
			expectCode: http.StatusForbidden,
			expectMsg:  "not admin",
		},
		{
			name:       "not found",
			err:        &conversation.Error{Kind: conversation.KindNotFound, Message: "chat does not exist"},
			expectCode: http.StatusNotFound,
			expectMsg:  "chat does not exist",
		},
		{
			name:       "conflict",
			err:        &conversation.Error{Kind: conversation.KindConflict, Message: "already a participant"},
			expectCode: http.StatusConflict,
			expectMsg:  "already a participant",
		},
		{
			name:       "wrapped",
			err:        fmt.Errorf("outer: %w", &conversation.Error{Kind: conversation.KindForbidden, Message: "not admin"}),
			expectCode: http.StatusForbidden,
			expectMsg:  "not admin",
		},
		{
			name:       "internal hides cause",
			err:        &conversation.Error{Kind: conversation.KindInternal, Message: "internal server error", Err: errors.New("pq: boom")},
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
		{
			name:       "foreign error",
			err:        errors.New("boom"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := fromServiceError(tc.err)
			assert.Equal(t, tc.expectCode, apiErr.StatusCode)
			assert.Equal(t, tc.expectMsg, apiErr.Message)
			assert.False(t, apiErr.Success)
		})
	}
}

func TestApiError(t *testing.T) {
	err := NewInternalServerError(errors.New("db down"))
	assert.Equal(t, "internal server error: db down", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "db down")

	assert.Equal(t, "not found", NewNotFoundError("").Message)
	assert.Equal(t, "chat missing", NewNotFoundError("chat missing").Error())
}
