package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTokenTTL      = 24 * time.Hour
	defaultAuthTimeout   = 10 * time.Second
	defaultAuthRateLimit = 1.0
	defaultAuthRateBurst = 5
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration
	// AuthTimeout closes websocket connections that have not authenticated
	// within this duration.
	AuthTimeout time.Duration
	// StrictJoin makes the hub check chat membership before JOIN_CHAT.
	StrictJoin    bool
	LogLevel      string
	LogFormat     string
	AuthRateLimit float64
	AuthRateBurst int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		TokenTTL:       defaultTokenTTL,
		AuthTimeout:    defaultAuthTimeout,
		LogLevel:       "info",
		LogFormat:      "json",
		AuthRateLimit:  defaultAuthRateLimit,
		AuthRateBurst:  defaultAuthRateBurst,
	}, nil
}

// Settings holds raw, unvalidated configuration values as read from a
// YAML file, the environment and command line flags.
type Settings struct {
	ServerAddr     string   `yaml:"server_addr"`
	DatabaseDSN    string   `yaml:"database_dsn"`
	SigningKey     string   `yaml:"signing_key"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TokenTTL       string   `yaml:"token_ttl"`
	AuthTimeout    string   `yaml:"auth_timeout"`
	StrictJoin     bool     `yaml:"strict_join"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	AuthRateLimit  float64  `yaml:"auth_rate_limit"`
	AuthRateBurst  int      `yaml:"auth_rate_burst"`
}

func DefaultSettings() Settings {
	return Settings{
		ServerAddr:    "localhost:8000",
		DatabaseDSN:   "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		TokenTTL:      defaultTokenTTL.String(),
		AuthTimeout:   defaultAuthTimeout.String(),
		LogLevel:      "info",
		LogFormat:     "json",
		AuthRateLimit: defaultAuthRateLimit,
		AuthRateBurst: defaultAuthRateBurst,
	}
}

// LoadFile overlays the values set in the YAML file at path. Environment
// variables written as ${VAR} are expanded before parsing.
func (s *Settings) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), s); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// LoadEnv overlays CONVO_* variables found through lookup.
func (s *Settings) LoadEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("CONVO_ADDR", &s.ServerAddr)
	str("CONVO_DSN", &s.DatabaseDSN)
	str("CONVO_SIGNING_KEY", &s.SigningKey)
	str("CONVO_TOKEN_TTL", &s.TokenTTL)
	str("CONVO_AUTH_TIMEOUT", &s.AuthTimeout)
	str("CONVO_LOG_LEVEL", &s.LogLevel)
	str("CONVO_LOG_FORMAT", &s.LogFormat)

	if v, ok := lookup("CONVO_ALLOWED_ORIGINS"); ok && v != "" {
		s.AllowedOrigins = SplitList(v)
	}

	if v, ok := lookup("CONVO_STRICT_JOIN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONVO_STRICT_JOIN: %w", err)
		}
		s.StrictJoin = b
	}

	if v, ok := lookup("CONVO_AUTH_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONVO_AUTH_RATE_LIMIT: %w", err)
		}
		s.AuthRateLimit = f
	}

	if v, ok := lookup("CONVO_AUTH_RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CONVO_AUTH_RATE_BURST: %w", err)
		}
		s.AuthRateBurst = n
	}

	return nil
}

// Config validates the settings and converts them into a Config.
func (s Settings) Config() (*Config, error) {
	cfg, err := NewConfig(s.ServerAddr, s.DatabaseDSN, s.SigningKey, s.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	if s.TokenTTL != "" {
		if cfg.TokenTTL, err = time.ParseDuration(s.TokenTTL); err != nil {
			return nil, fmt.Errorf("parse token ttl: %w", err)
		}
	}
	if s.AuthTimeout != "" {
		if cfg.AuthTimeout, err = time.ParseDuration(s.AuthTimeout); err != nil {
			return nil, fmt.Errorf("parse auth timeout: %w", err)
		}
	}
	if cfg.TokenTTL <= 0 || cfg.AuthTimeout <= 0 {
		return nil, fmt.Errorf("durations must be positive")
	}

	if s.AuthRateLimit > 0 {
		cfg.AuthRateLimit = s.AuthRateLimit
	}
	if s.AuthRateBurst > 0 {
		cfg.AuthRateBurst = s.AuthRateBurst
	}
	if s.LogLevel != "" {
		cfg.LogLevel = s.LogLevel
	}
	if s.LogFormat != "" {
		cfg.LogFormat = s.LogFormat
	}
	cfg.StrictJoin = s.StrictJoin

	return cfg, nil
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
