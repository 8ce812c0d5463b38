package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/npezzotti/go-convo/internal/types"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	metricActiveClients        = "NumActiveClients"
	metricAuthenticatedClients = "NumAuthenticatedClients"
	metricEventsDelivered      = "NumEventsDelivered"
	metricEventsDropped        = "NumEventsDropped"

	defaultAuthTimeout = 10 * time.Second
)

var ErrHubStopped = errors.New("hub is shut down")

// Authenticator resolves a bearer credential to a user.
type Authenticator interface {
	Verify(ctx context.Context, token string) (types.User, error)
}

// MembershipChecker is consulted on JOIN_CHAT when strict joins are enabled.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, chatId, userId string) (bool, error)
}

type Options struct {
	// AuthTimeout closes connections still pending authentication.
	AuthTimeout time.Duration
	// StrictJoin rejects JOIN_CHAT from users who are not participants.
	StrictJoin bool
}

type stopReq struct {
	done chan struct{}
}

// Hub owns the live websocket connections and the rooms they are in.
type Hub struct {
	log             zerolog.Logger
	auth            Authenticator
	members         MembershipChecker
	stats           stats.StatsProvider
	opts            Options
	topology        *RoomTopology
	clients         map[*Client]struct{}
	clientsLock     sync.Mutex
	register        chan *Client
	deregister      chan *Client
	stop            chan stopReq
	done            chan struct{}
	generateShortId func() (string, error)
}

func NewHub(logger zerolog.Logger, authn Authenticator, members MembershipChecker, su stats.StatsProvider, opts Options) *Hub {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}

	su.RegisterMetric(metricActiveClients)
	su.RegisterMetric(metricAuthenticatedClients)
	su.RegisterMetric(metricEventsDelivered)
	su.RegisterMetric(metricEventsDropped)

	return &Hub{
		log:             logger.With().Str("component", "hub").Logger(),
		auth:            authn,
		members:         members,
		stats:           su,
		opts:            opts,
		topology:        NewRoomTopology(),
		clients:         make(map[*Client]struct{}),
		register:        make(chan *Client),
		deregister:      make(chan *Client),
		stop:            make(chan stopReq),
		done:            make(chan struct{}),
		generateShortId: shortid.Generate,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.log.Debug().Str("conn_id", c.id).Msg("registering connection")
			h.addClient(c)
		case c := <-h.deregister:
			h.log.Debug().Str("conn_id", c.id).Msg("removing connection")
			h.removeClient(c)
		case req := <-h.stop:
			h.log.Info().Int("connections", len(h.clients)).Msg("closing connections")
			for c := range h.clients {
				c.stopClient()
				h.removeClient(c)
			}

			close(h.done)
			close(req.done)
			return
		}
	}
}

// Shutdown stops the run loop and closes every connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case h.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach takes ownership of an upgraded connection. token is the credential
// presented on the handshake and may be empty.
func (h *Hub) Attach(conn *websocket.Conn, token string) error {
	id, err := h.generateShortId()
	if err != nil {
		conn.Close()
		return fmt.Errorf("generate connection id: %w", err)
	}

	c := NewClient(id, conn, h, token)

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return ErrHubStopped
	}

	go c.Write()
	go c.Read()

	return nil
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	h.clients[c] = struct{}{}
	h.stats.Incr(metricActiveClients)
}

func (h *Hub) removeClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	rooms := h.topology.LeaveAll(c)
	delete(h.clients, c)
	h.stats.Decr(metricActiveClients)
	if c.isAuthenticated() {
		h.stats.Decr(metricAuthenticatedClients)
	}
	c.setState(stateDisconnected)

	h.log.Debug().Str("conn_id", c.id).Strs("rooms", rooms).Msg("connection left rooms")
}

// admit records user on c and moves it into its personal room. It fails
// once removeClient has run for c, so a slow Verify cannot re-add a
// connection the hub already dropped.
func (h *Hub) admit(c *Client, user types.User) bool {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if !c.state.CompareAndSwap(int32(statePending), int32(stateAuthenticated)) {
		return false
	}

	c.user = user
	h.topology.Join(UserRoom(user.Id), c)
	h.stats.Incr(metricAuthenticatedClients)

	return true
}

// joinRoom adds an authenticated c to room. It reports whether c was newly
// added.
func (h *Hub) joinRoom(room string, c *Client) bool {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if !c.isAuthenticated() {
		return false
	}

	return h.topology.Join(room, c)
}

// deregisterClient hands c to the run loop for removal. After shutdown the
// loop is gone and the connection was already removed.
func (h *Hub) deregisterClient(c *Client) {
	select {
	case h.deregister <- c:
	case <-h.done:
	}
}

// EmitToUser queues an event to every connection of userId. It never
// blocks; users without connections are skipped silently.
func (h *Hub) EmitToUser(userId, event string, payload any) {
	h.broadcast(UserRoom(userId), NewServerMessage(event, payload), nil)
}

// EmitToRoom queues an event to every connection that joined chatId.
func (h *Hub) EmitToRoom(chatId, event string, payload any) {
	h.broadcast(ChatRoom(chatId), NewServerMessage(event, payload), nil)
}

func (h *Hub) broadcast(room string, msg *ServerMessage, skip *Client) int {
	delivered := 0
	for _, c := range h.topology.MembersOf(room) {
		if c == skip {
			continue
		}

		if c.queueMessage(msg) {
			delivered++
			h.stats.Incr(metricEventsDelivered)
		} else {
			h.stats.Incr(metricEventsDropped)
		}
	}

	return delivered
}

// HandshakeToken returns the credential presented when a websocket is
// opened: the accessToken cookie, then the token query parameter, then the
// Authorization header.
func HandshakeToken(r *http.Request) string {
	if c, err := r.Cookie(auth.TokenCookieKey); err == nil && c.Value != "" {
		return c.Value
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return auth.TokenFromRequest(r)
}
