package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email,omitempty"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	Role         string    `json:"role,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Participant struct {
	Id     string `json:"id"`
	ChatId string `json:"chat_id"`
	UserId string `json:"user_id"`
	User   User   `json:"user"`
}

type Chat struct {
	Id           string        `json:"id"`
	Name         string        `json:"name"`
	IsGroupChat  bool          `json:"is_group_chat"`
	CreatedBy    string        `json:"created_by"`
	SenderId     string        `json:"sender_id,omitempty"`
	ReceiverId   string        `json:"receiver_id,omitempty"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

// HasParticipant reports whether userId is a member of the chat.
func (c Chat) HasParticipant(userId string) bool {
	for _, p := range c.Participants {
		if p.UserId == userId {
			return true
		}
	}
	return false
}

// ParticipantIds returns the user ids of all members, in row order.
func (c Chat) ParticipantIds() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserId)
	}
	return ids
}

type Message struct {
	Id        string    `json:"id"`
	ChatId    string    `json:"chat_id"`
	SenderId  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Sender    User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
