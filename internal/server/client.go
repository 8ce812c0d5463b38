package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/types"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	verifyTimeout  = 5 * time.Second
)

type connState int32

const (
	statePending connState = iota
	stateAuthenticated
	stateDisconnected
)

type Client struct {
	id    string
	conn  *websocket.Conn
	hub   *Hub
	log   zerolog.Logger
	state atomic.Int32
	// user is written once, under the hub's clientsLock, when the
	// connection is admitted.
	user     types.User
	token    string
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(id string, conn *websocket.Conn, h *Hub, token string) *Client {
	return &Client{
		id:    id,
		conn:  conn,
		hub:   h,
		log:   h.log.With().Str("conn_id", id).Logger(),
		token: token,
		send:  make(chan *ServerMessage, sendBufferSize),
		stop:  make(chan struct{}),
	}
}

func (c *Client) setState(s connState) {
	c.state.Store(int32(s))
}

func (c *Client) isAuthenticated() bool {
	return connState(c.state.Load()) == stateAuthenticated
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Str("event", msg.Event).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.flush()
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				continue
			}
			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	authTimer := time.AfterFunc(c.hub.opts.AuthTimeout, c.authTimeout)
	defer authTimer.Stop()

	if c.token != "" {
		c.authenticate(c.token)
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		c.handleMessage(raw)
	}
}

func (c *Client) authTimeout() {
	if c.isAuthenticated() {
		return
	}

	c.log.Info().Msg("authentication timed out")
	c.queueMessage(ErrSocket("authentication timeout"))
	c.stopClient()
}

// handleMessage dispatches one inbound frame. A panic in a handler is
// reported to this connection only.
func (c *Client) handleMessage(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("recovered from panic in event handler")
			c.queueMessage(ErrSocket("internal server error"))
		}
	}()

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Debug().Err(err).Msg("error parsing message")
		c.queueMessage(ErrSocket("invalid message format"))
		return
	}

	if !c.isAuthenticated() {
		if msg.Event == EventAuthenticate {
			c.authenticate(msg.Token)
		} else {
			c.queueMessage(ErrSocket("unauthenticated"))
		}
		return
	}

	switch msg.Event {
	case EventAuthenticate:
		c.queueMessage(ErrSocket("already authenticated"))
	case EventJoinChat:
		c.joinChat(msg.ChatId)
	case EventLeaveChat:
		c.leaveChat(msg.ChatId)
	case EventTyping, EventStopTyping:
		c.typing(msg.Event, msg.ChatId)
	default:
		c.queueMessage(ErrSocket(fmt.Sprintf("unknown event %q", msg.Event)))
	}
}

func (c *Client) authenticate(token string) {
	if token == "" {
		c.queueMessage(ErrSocket(auth.ErrMissingToken.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	user, err := c.hub.auth.Verify(ctx, token)
	if err != nil {
		c.log.Info().Err(err).Msg("authentication failed")
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			c.queueMessage(ErrSocket(auth.ErrInvalidToken.Error()))
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrMissingToken):
			c.queueMessage(ErrSocket(err.Error()))
		default:
			c.queueMessage(ErrSocket("authentication failed"))
		}
		return
	}

	if !c.hub.admit(c, user) {
		c.log.Debug().Str("user_id", user.Id).Msg("connection closed during authentication")
		return
	}

	c.log.Info().Str("user_id", user.Id).Msg("connection authenticated")
	c.queueMessage(Connected())
}

func (c *Client) joinChat(chatId string) {
	if chatId == "" {
		c.queueMessage(ErrSocket("chat_id is required"))
		return
	}

	if c.hub.opts.StrictJoin {
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		defer cancel()

		ok, err := c.hub.members.IsParticipant(ctx, chatId, c.user.Id)
		if err != nil {
			c.log.Error().Err(err).Str("chat_id", chatId).Msg("membership lookup failed")
			c.queueMessage(ErrSocket("internal server error"))
			return
		}
		if !ok {
			c.queueMessage(ErrSocket("not a participant of this chat"))
			return
		}
	}

	if c.hub.joinRoom(ChatRoom(chatId), c) {
		c.log.Debug().Str("chat_id", chatId).Msg("joined chat")
	}
}

func (c *Client) leaveChat(chatId string) {
	if chatId == "" {
		c.queueMessage(ErrSocket("chat_id is required"))
		return
	}

	c.hub.topology.Leave(ChatRoom(chatId), c)
	c.log.Debug().Str("chat_id", chatId).Msg("left chat")
}

// typing relays a typing indicator to every other connection in the chat.
func (c *Client) typing(event, chatId string) {
	if chatId == "" {
		c.queueMessage(ErrSocket("chat_id is required"))
		return
	}

	msg := NewServerMessage(event, Typing{ChatId: chatId, UserId: c.user.Id})
	c.hub.broadcast(ChatRoom(chatId), msg, c)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("event", msg.Event).Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.hub.deregisterClient(c)
	c.stopClient()
}
