package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestVerifier_Verify(t *testing.T) {
	tm := NewTokenManager([]byte("test-signing-key"))
	token, err := tm.Issue("u1", DefaultTokenExpiration)
	assert.NoError(t, err)

	tcases := []struct {
		name     string
		token    string
		mockUser database.User
		mockErr  error
		lookup   bool
		expected error
	}{
		{
			name:     "valid token for existing user",
			token:    token,
			mockUser: database.User{Id: "u1", Username: "alice"},
			lookup:   true,
		},
		{
			name:     "missing token",
			token:    "",
			expected: ErrMissingToken,
		},
		{
			name:     "invalid token",
			token:    "bogus",
			expected: ErrInvalidToken,
		},
		{
			name:     "user deleted",
			token:    token,
			mockErr:  sql.ErrNoRows,
			lookup:   true,
			expected: ErrUserNotFound,
		},
		{
			name:     "store failure",
			token:    token,
			mockErr:  errors.New("db down"),
			lookup:   true,
			expected: errors.New("get user: db down"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &database.MockStore{}
			defer store.AssertExpectations(t)
			if tc.lookup {
				store.On("GetUserById", "u1").Return(tc.mockUser, tc.mockErr).Once()
			}

			v := NewVerifier(tm, store)
			u, err := v.Verify(context.Background(), tc.token)
			if tc.expected == nil {
				assert.NoError(t, err)
				assert.Equal(t, "u1", u.Id)
				assert.Equal(t, "alice", u.Username)
				return
			}

			if errors.Is(tc.expected, ErrMissingToken) || errors.Is(tc.expected, ErrInvalidToken) || errors.Is(tc.expected, ErrUserNotFound) {
				assert.ErrorIs(t, err, tc.expected)
			} else {
				assert.EqualError(t, err, tc.expected.Error())
			}
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok, "expected no principal on empty context")

	ctx := WithPrincipal(context.Background(), Principal{UserId: "u1", Username: "alice"})
	p, ok := PrincipalFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", p.UserId)
	assert.Equal(t, "alice", p.Username)
}
