package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

const defaultRole = "USER"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string     `json:"accessToken"`
	User        types.User `json:"user"`
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		AvatarUrl:    u.AvatarUrl,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *GoChatApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError("invalid request body"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		s.writeError(w, NewBadRequestError("username is required"))
		return
	}
	if req.Password == "" {
		s.writeError(w, NewBadRequestError("password is required"))
		return
	}

	usernameTaken := NewConflictError("user with username already exists")
	if _, err := s.store.GetUserByUsername(r.Context(), req.Username); err == nil {
		s.writeError(w, usernameTaken)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	pwdHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	user, err := s.store.CreateUser(r.Context(), database.CreateUserParams{
		Username:     req.Username,
		EmailAddress: strings.TrimSpace(req.Email),
		PasswordHash: pwdHash,
		Role:         defaultRole,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			s.writeError(w, usernameTaken)
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.log.Info().Str("user_id", user.Id).Msg("user registered")
	s.writeSuccess(w, http.StatusCreated, "user registered successfully", toUser(user))
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError("invalid request body"))
		return
	}

	if req.Username == "" {
		s.writeError(w, NewBadRequestError("username is required"))
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError("user does not exist"))
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError("invalid user credentials"))
		return
	}

	token, err := s.tokens.Issue(user.Id, s.tokenTTL)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, auth.CreateTokenCookie(token, s.tokenTTL))
	s.writeSuccess(w, http.StatusOK, "user logged in successfully", LoginResponse{
		AccessToken: token,
		User:        toUser(user),
	})
}

func (s *GoChatApp) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieKey,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	s.writeSuccess(w, http.StatusOK, "user logged out successfully", nil)
}

func (s *GoChatApp) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError(""))
		return
	}

	user, err := s.store.GetUserById(r.Context(), principal.UserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError("user does not exist"))
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "user fetched successfully", toUser(user))
}
