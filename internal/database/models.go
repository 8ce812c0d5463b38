package database

import "time"

type User struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
	AvatarUrl    string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	Id           string
	Name         string
	IsGroupChat  bool
	CreatedBy    string
	SenderId     string
	ReceiverId   string
	Participants []Participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Participant struct {
	Id        string
	ChatId    string
	UserId    string
	Username  string
	Email     string
	AvatarUrl string
	Role      string
	CreatedAt time.Time
}

type Message struct {
	Id              string
	ChatId          string
	SenderId        string
	SenderUsername  string
	SenderAvatarUrl string
	Content         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateUserParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	Role         string
}

// CreateChatParams describes a chat and its initial members. For one-on-one
// chats SenderId and ReceiverId must be set and are stored on the chat row.
type CreateChatParams struct {
	Name           string
	IsGroupChat    bool
	CreatedBy      string
	SenderId       string
	ReceiverId     string
	ParticipantIds []string
}

type CreateMessageParams struct {
	ChatId   string
	SenderId string
	Content  string
}
