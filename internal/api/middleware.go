package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/npezzotti/go-convo/internal/auth"
)

func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error().Err(panicError).Str("path", r.URL.Path).Msg("panic")
				w.Header().Set("Connection", "close")
				s.writeError(w, NewInternalServerError(panicError))
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the caller from the accessToken cookie or bearer
// header and stores the principal on the request context.
func (s *GoChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" {
			s.writeError(w, NewUnauthorizedError("unauthorised request, access token is missing"))
			return
		}

		user, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUserNotFound) {
				s.log.Debug().Err(err).Msg("rejected access token")
				s.writeError(w, NewUnauthorizedError("invalid user access token"))
				return
			}
			s.writeError(w, NewInternalServerError(err))
			return
		}

		ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserId: user.Id, Username: user.Username})
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// rateLimit applies a per client IP and route token bucket.
func (s *GoChatApp) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + "|" + r.URL.Path
		if !s.limiter.allow(key) {
			s.log.Info().Str("key", key).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			s.writeError(w, NewTooManyRequestsError())
			return
		}

		next(w, r)
	}
}
