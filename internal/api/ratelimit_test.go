package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(rate.Every(time.Hour), 2, time.Minute)

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))

	// keys are independent
	assert.True(t, rl.allow("b"))
}

func TestRateLimiter_sweep(t *testing.T) {
	rl := newRateLimiter(rate.Every(time.Hour), 1, time.Minute)
	rl.allow("idle")
	rl.allow("busy")

	rl.mu.Lock()
	rl.m["idle"].ts = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	rl.sweep(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.m, "idle")
	assert.Contains(t, rl.m, "busy")
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := newRateLimiter(rate.Every(time.Hour), 1, time.Minute)

	done := make(chan struct{})
	go func() {
		rl.gc(time.Millisecond)
		close(done)
	}()

	rl.Stop()
	rl.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gc did not exit after Stop")
	}
}

func Test_clientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(req))
}
