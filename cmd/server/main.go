package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-convo/internal/api"
	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/config"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/logging"
	"github.com/npezzotti/go-convo/internal/server"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// development only, override with CONVO_SIGNING_KEY or -signing-key
const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, config.SplitList(value)...)
	return nil
}

var (
	configPath     string
	addr           string
	dsn            string
	signingKey     string
	logLevel       string
	logFormat      string
	strictJoin     bool
	allowedOrigins stringSliceFlag
)

// loadSettings layers defaults, the YAML file, the environment and finally
// any flags given explicitly on the command line.
func loadSettings() (config.Settings, error) {
	settings := config.DefaultSettings()
	settings.SigningKey = defaultSigningKey

	if configPath != "" {
		if err := settings.LoadFile(configPath); err != nil {
			return settings, err
		}
	}

	if err := settings.LoadEnv(os.LookupEnv); err != nil {
		return settings, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			settings.ServerAddr = addr
		case "dsn":
			settings.DatabaseDSN = dsn
		case "signing-key":
			settings.SigningKey = signingKey
		case "allowed-origins":
			settings.AllowedOrigins = allowedOrigins
		case "log-level":
			settings.LogLevel = logLevel
		case "log-format":
			settings.LogFormat = logFormat
		case "strict-join":
			settings.StrictJoin = strictJoin
		}
	})

	return settings, nil
}

func main() {
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "", "database connection string")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "json", "log format (json or console)")
	flag.BoolVar(&strictJoin, "strict-join", false, "only allow participants to join chat rooms")
	flag.Parse()

	// a missing .env file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Msg("load .env")
	}

	settings, err := loadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("load settings")
	}

	cfg, err := settings.Config()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	store, err := database.NewPgStore(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	verifier := auth.NewVerifier(auth.NewTokenManager(cfg.SigningKey), store)
	hub := server.NewHub(logger, verifier, store, statsUpdater, server.Options{
		AuthTimeout: cfg.AuthTimeout,
		StrictJoin:  cfg.StrictJoin,
	})

	srv := api.NewGoChatApp(mux, logger, hub, store, statsUpdater, cfg)

	go hub.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info().Msg("shutting down hub")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
