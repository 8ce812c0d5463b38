package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/npezzotti/go-convo/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestHub creates a Hub for tests. The four metric registrations are
// expected on su.
func newTestHub(t *testing.T, authn Authenticator, members MembershipChecker, su *stats.MockStatsUpdater, opts Options) *Hub {
	su.On("RegisterMetric", mock.Anything).Times(4)

	return NewHub(testutil.TestLogger(t), authn, members, su, opts)
}

func TestNewHub(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	authn := newTestAuthenticator()
	h := newTestHub(t, authn, nil, su, Options{})

	assert.Equal(t, authn, h.auth)
	assert.Equal(t, defaultAuthTimeout, h.opts.AuthTimeout, "expected default auth timeout")
	assert.NotNil(t, h.topology)
	assert.NotNil(t, h.clients)
	assert.NotNil(t, h.register)
	assert.NotNil(t, h.deregister)
	assert.NotNil(t, h.stop)
	assert.NotNil(t, h.generateShortId)
	su.AssertCalled(t, "RegisterMetric", metricActiveClients)
	su.AssertCalled(t, "RegisterMetric", metricEventsDropped)

	h = newTestHub(t, authn, nil, &stats.MockStatsUpdater{}, Options{AuthTimeout: time.Second})
	assert.Equal(t, time.Second, h.opts.AuthTimeout)
}

func TestHubShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		h := newTestHub(t, newTestAuthenticator(), nil, &stats.MockStatsUpdater{}, Options{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-h.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := h.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		h := newTestHub(t, newTestAuthenticator(), nil, &stats.MockStatsUpdater{}, Options{})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-h.stop:
				// never signal done to simulate a hang
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := h.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestHubShutdown_Integration(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", metricActiveClients).Once()
	su.On("Decr", metricActiveClients).Once()
	defer su.AssertExpectations(t)

	h := newTestHub(t, newTestAuthenticator(), nil, su, Options{})
	go h.Run()

	c := newTestClient(h, "c1")
	h.register <- c

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	select {
	case <-c.stop:
	default:
		t.Error("expected client to be stopped on shutdown")
	}
	assert.Empty(t, h.clients)

	// late deregistration must not block once the loop is gone
	done := make(chan struct{})
	go func() {
		c.cleanup()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("expected cleanup to return after shutdown")
	}
}

func TestHub_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", metricActiveClients).Once()
	su.On("Decr", metricActiveClients).Once()
	su.On("Decr", metricAuthenticatedClients).Once()
	defer su.AssertExpectations(t)

	h := newTestHub(t, newTestAuthenticator(), nil, su, Options{})
	c := authenticatedClient(h, "c1", alice)
	h.topology.Join(ChatRoom("chat-1"), c)

	h.addClient(c)
	assert.Contains(t, h.clients, c)

	h.removeClient(c)
	assert.NotContains(t, h.clients, c)
	assert.Equal(t, 0, h.topology.NumRooms(), "expected the connection to leave every room")
	assert.Equal(t, stateDisconnected, connState(c.state.Load()))

	// removing twice is a no-op
	h.removeClient(c)
}

func TestHub_EmitToUser(t *testing.T) {
	t.Run("delivers to every connection of the user", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Incr", metricEventsDelivered).Twice()
		defer su.AssertExpectations(t)

		h := newTestHub(t, newTestAuthenticator(), nil, su, Options{})
		tab1 := authenticatedClient(h, "a1", alice)
		tab2 := authenticatedClient(h, "a2", alice)
		other := authenticatedClient(h, "b1", bob)

		h.EmitToUser(alice.Id, EventNewChat, map[string]string{"id": "chat-1"})

		for _, c := range []*Client{tab1, tab2} {
			msg := nextMessage(t, c)
			assert.Equal(t, EventNewChat, msg.Event)
			assert.Equal(t, map[string]string{"id": "chat-1"}, msg.Data)
		}
		assert.Len(t, other.send, 0)
	})

	t.Run("offline user is a no-op", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		h := newTestHub(t, newTestAuthenticator(), nil, su, Options{})
		other := authenticatedClient(h, "b1", bob)

		assert.NotPanics(t, func() {
			h.EmitToUser("nobody", EventMessageReceived, nil)
		})
		assert.Len(t, other.send, 0)
		assert.Equal(t, 0, h.topology.Size(UserRoom("nobody")), "expected emit to not create rooms")
	})

	t.Run("full buffer drops the event", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Incr", metricEventsDropped).Once()
		defer su.AssertExpectations(t)

		h := newTestHub(t, newTestAuthenticator(), nil, su, Options{})
		c := authenticatedClient(h, "a1", alice)
		c.send = make(chan *ServerMessage)

		h.EmitToUser(alice.Id, EventNewChat, nil)
	})
}

func TestHub_EmitToRoom_Isolation(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", metricEventsDelivered).Once()
	defer su.AssertExpectations(t)

	h := newTestHub(t, newTestAuthenticator(), nil, su, Options{})
	inChat := authenticatedClient(h, "a1", alice)
	elsewhere := authenticatedClient(h, "b1", bob)
	h.topology.Join(ChatRoom("chat-1"), inChat)
	h.topology.Join(ChatRoom("chat-2"), elsewhere)

	// a user whose id equals the chat id must not receive room traffic
	sameId := authenticatedClient(h, "x1", alice)
	sameId.user.Id = "chat-1"
	h.topology.Join(UserRoom("chat-1"), sameId)

	h.EmitToRoom("chat-1", EventTyping, Typing{ChatId: "chat-1", UserId: "u"})

	assert.Equal(t, EventTyping, nextMessage(t, inChat).Event)
	assert.Len(t, elsewhere.send, 0)
	assert.Len(t, sameId.send, 0)
}

func TestHub_Attach_ShortIdError(t *testing.T) {
	h := newTestHub(t, newTestAuthenticator(), nil, &stats.MockStatsUpdater{}, Options{})
	h.generateShortId = func() (string, error) { return "", errors.New("entropy exhausted") }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		assert.ErrorContains(t, h.Attach(conn, ""), "generate connection id")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "expected the connection to be closed")
}

func TestHandshakeToken(t *testing.T) {
	tcases := []struct {
		name     string
		cookie   string
		query    string
		header   string
		expected string
	}{
		{name: "cookie wins", cookie: "c", query: "q", header: "Bearer h", expected: "c"},
		{name: "query before header", query: "q", header: "Bearer h", expected: "q"},
		{name: "bearer header", header: "Bearer h", expected: "h"},
		{name: "nothing presented"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/ws"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "accessToken", Value: tc.cookie})
			}
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			assert.Equal(t, tc.expected, HandshakeToken(r))
		})
	}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func startHubServer(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	su.On("RegisterMetric", mock.Anything).Times(4)

	// connection goroutines may outlive the test, so they must not log through t
	h := NewHub(zerolog.Nop(), newTestAuthenticator(), nil, su, opts)
	go h.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		assert.NoError(t, h.Attach(conn, HandshakeToken(r)))
	}))

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})

	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestHub_WebsocketRoundTrip(t *testing.T) {
	h, srv := startHubServer(t, Options{})

	// handshake credential
	aliceConn := dial(t, srv, "?token=tok-alice")
	assert.Equal(t, EventConnected, readFrame(t, aliceConn).Event)

	// in-band credential
	bobConn := dial(t, srv, "")
	send(t, bobConn, ClientMessage{Event: EventAuthenticate, Token: "tok-bob"})
	assert.Equal(t, EventConnected, readFrame(t, bobConn).Event)

	// bad credential leaves the connection pending
	malloryConn := dial(t, srv, "?token=forged")
	f := readFrame(t, malloryConn)
	assert.Equal(t, EventSocketError, f.Event)
	assert.JSONEq(t, `{"message":"invalid access token"}`, string(f.Data))
	send(t, malloryConn, ClientMessage{Event: EventJoinChat, ChatId: "chat-1"})
	f = readFrame(t, malloryConn)
	assert.Equal(t, EventSocketError, f.Event)
	assert.JSONEq(t, `{"message":"unauthenticated"}`, string(f.Data))

	send(t, aliceConn, ClientMessage{Event: EventJoinChat, ChatId: "chat-1"})
	send(t, bobConn, ClientMessage{Event: EventJoinChat, ChatId: "chat-1"})
	require.Eventually(t, func() bool {
		return h.topology.Size(ChatRoom("chat-1")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	send(t, aliceConn, ClientMessage{Event: EventTyping, ChatId: "chat-1"})
	f = readFrame(t, bobConn)
	assert.Equal(t, EventTyping, f.Event)
	assert.JSONEq(t, `{"chat_id":"chat-1","user_id":"alice"}`, string(f.Data))

	// alice's next frame is the direct emit, not her own typing event
	h.EmitToUser(alice.Id, EventNewChat, map[string]string{"id": "chat-2"})
	f = readFrame(t, aliceConn)
	assert.Equal(t, EventNewChat, f.Event)
	assert.JSONEq(t, `{"id":"chat-2"}`, string(f.Data))

	bobConn.Close()
	assert.Eventually(t, func() bool {
		return h.topology.Size(ChatRoom("chat-1")) == 1 && h.topology.Size(UserRoom(bob.Id)) == 0
	}, 2*time.Second, 10*time.Millisecond, "expected disconnect to leave all rooms")
}

func TestHub_AuthTimeout(t *testing.T) {
	_, srv := startHubServer(t, Options{AuthTimeout: 50 * time.Millisecond})

	conn := dial(t, srv, "")
	f := readFrame(t, conn)
	assert.Equal(t, EventSocketError, f.Event)
	assert.JSONEq(t, `{"message":"authentication timeout"}`, string(f.Data))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected a close frame, got %v", err)
}
