package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/config"
	"github.com/npezzotti/go-convo/internal/conversation"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/server"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const limiterTTL = 2 * time.Minute

type GoChatApp struct {
	log            zerolog.Logger
	store          database.Store
	hub            *server.Hub
	chats          *conversation.Service
	tokens         *auth.TokenManager
	verifier       *auth.Verifier
	stats          stats.StatsProvider
	limiter        *rateLimiter
	srv            *http.Server
	tokenTTL       time.Duration
	allowedOrigins []string
}

// NewGoChatApp registers every route on mux and wraps it in the shared
// middleware chain.
func NewGoChatApp(mux *http.ServeMux, logger zerolog.Logger, hub *server.Hub, store database.Store, su stats.StatsProvider, cfg *config.Config) *GoChatApp {
	tokens := auth.NewTokenManager(cfg.SigningKey)

	s := &GoChatApp{
		log:            logger.With().Str("component", "api").Logger(),
		store:          store,
		hub:            hub,
		chats:          conversation.NewService(store, hub, logger),
		tokens:         tokens,
		verifier:       auth.NewVerifier(tokens, store),
		stats:          su,
		limiter:        newRateLimiter(rate.Limit(cfg.AuthRateLimit), cfg.AuthRateBurst, limiterTTL),
		tokenTTL:       cfg.TokenTTL,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/users/register", s.rateLimit(s.register))
	mux.HandleFunc("POST /api/users/login", s.rateLimit(s.login))
	mux.HandleFunc("POST /api/users/logout", s.logout)
	mux.HandleFunc("GET /api/users/me", s.authMiddleware(s.me))

	mux.HandleFunc("GET /api/chats", s.authMiddleware(s.listChats))
	mux.HandleFunc("GET /api/chats/users", s.authMiddleware(s.listUsers))
	mux.HandleFunc("POST /api/chats/one-on-one/{receiverId}", s.authMiddleware(s.createOneOnOneChat))
	mux.HandleFunc("DELETE /api/chats/one-on-one/{chatId}", s.authMiddleware(s.deleteOneOnOneChat))
	mux.HandleFunc("POST /api/chats/group", s.authMiddleware(s.createGroupChat))
	mux.HandleFunc("GET /api/chats/group/{chatId}", s.authMiddleware(s.getGroupChat))
	mux.HandleFunc("PATCH /api/chats/group/{chatId}", s.authMiddleware(s.renameGroupChat))
	mux.HandleFunc("DELETE /api/chats/group/{chatId}", s.authMiddleware(s.deleteGroupChat))
	mux.HandleFunc("DELETE /api/chats/group/{chatId}/leave", s.authMiddleware(s.leaveGroupChat))
	mux.HandleFunc("POST /api/chats/group/{chatId}/participants/{userId}", s.authMiddleware(s.addParticipant))
	mux.HandleFunc("DELETE /api/chats/group/{chatId}/participants/{userId}", s.authMiddleware(s.removeParticipant))

	mux.HandleFunc("POST /api/messages/{chatId}", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("GET /api/messages/{chatId}", s.authMiddleware(s.getMessages))

	// the hub authenticates websocket connections itself
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = su.Instrument(h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *GoChatApp) Start() error {
	go s.limiter.gc(30 * time.Second)

	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	s.limiter.Stop()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
