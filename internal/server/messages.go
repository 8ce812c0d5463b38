package server

import (
	"time"
)

// Event names carried in the "event" field of every frame.
const (
	EventConnected       = "CONNECTED"
	EventSocketError     = "SOCKET_ERROR"
	EventAuthenticate    = "AUTHENTICATE"
	EventJoinChat        = "JOIN_CHAT"
	EventLeaveChat       = "LEAVE_CHAT"
	EventTyping          = "TYPING"
	EventStopTyping      = "STOP_TYPING"
	EventNewChat         = "NEW_CHAT"
	EventMessageReceived = "MESSAGE_RECEIVED"
)

// ClientMessage is a frame received from a websocket client.
type ClientMessage struct {
	Event  string `json:"event"`
	ChatId string `json:"chat_id,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ServerMessage is a frame sent to websocket clients. A single value may be
// queued to many connections and must not be modified once queued.
type ServerMessage struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SocketError struct {
	Message string `json:"message"`
}

type Typing struct {
	ChatId string `json:"chat_id"`
	UserId string `json:"user_id"`
}

func NewServerMessage(event string, data any) *ServerMessage {
	return &ServerMessage{
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func ErrSocket(message string) *ServerMessage {
	return NewServerMessage(EventSocketError, SocketError{Message: message})
}

func Connected() *ServerMessage {
	return NewServerMessage(EventConnected, nil)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
