package database

import "context"

// Store is the durable state behind the chat service. Lookups that find no
// row return sql.ErrNoRows; unique constraint violations return ErrDuplicate.
type Store interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsersExcept(ctx context.Context, id string) ([]User, error)
	GetChatById(ctx context.Context, id string) (Chat, error)
	FindOneOnOneChat(ctx context.Context, senderId, receiverId string) (Chat, error)
	ListChatsForUser(ctx context.Context, userId string) ([]Chat, error)
	CreateChat(ctx context.Context, params CreateChatParams) (Chat, error)
	RenameChat(ctx context.Context, id, name string) error
	SoftDeleteChat(ctx context.Context, id string) error
	CreateParticipant(ctx context.Context, chatId, userId string) (Participant, error)
	DeleteParticipant(ctx context.Context, chatId, userId string) error
	IsParticipant(ctx context.Context, chatId, userId string) (bool, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	ListMessages(ctx context.Context, chatId string) ([]Message, error)
}
