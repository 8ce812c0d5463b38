package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/config"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/server"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/npezzotti/go-convo/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
		TokenTTL:       time.Hour,
		AuthTimeout:    time.Second,
		AuthRateLimit:  1,
		AuthRateBurst:  100,
	}
}

func newPermissiveStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

// newTestApp wires a GoChatApp around store with a live, unstarted hub.
func newTestApp(t *testing.T, store *database.MockStore, cfg *config.Config) (*GoChatApp, *server.Hub) {
	t.Cleanup(func() { store.AssertExpectations(t) })

	su := newPermissiveStats()
	verifier := auth.NewVerifier(auth.NewTokenManager(cfg.SigningKey), store)
	// connection goroutines may outlive the test, so the hub must not log through t
	hub := server.NewHub(zerolog.Nop(), verifier, store, su, server.Options{AuthTimeout: cfg.AuthTimeout})

	app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), hub, store, su, cfg)
	return app, hub
}

func issueToken(t *testing.T, userId string) string {
	t.Helper()
	token, err := auth.NewTokenManager(testSigningKey).Issue(userId, time.Hour)
	require.NoError(t, err)
	return token
}

// expectUser lets authMiddleware resolve userId any number of times.
func expectUser(store *database.MockStore, userId, username string) {
	store.On("GetUserById", userId).Return(database.User{Id: userId, Username: username}, nil).Maybe()
}

func newRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, target, buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authedRequest(t *testing.T, method, target string, body any, userId string) *http.Request {
	t.Helper()
	req := newRequest(t, method, target, body)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, userId))
	return req
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func serve(app *GoChatApp, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env), "expected a JSON envelope")
	return env
}

// findCookie returns the cookie called name set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
