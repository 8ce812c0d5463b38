package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockStore) GetUserById(ctx context.Context, id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockStore) ListUsersExcept(ctx context.Context, id string) ([]User, error) {
	args := m.Called(id)
	return args.Get(0).([]User), args.Error(1)
}

func (m *MockStore) GetChatById(ctx context.Context, id string) (Chat, error) {
	args := m.Called(id)
	return args.Get(0).(Chat), args.Error(1)
}

func (m *MockStore) FindOneOnOneChat(ctx context.Context, senderId, receiverId string) (Chat, error) {
	args := m.Called(senderId, receiverId)
	return args.Get(0).(Chat), args.Error(1)
}

func (m *MockStore) ListChatsForUser(ctx context.Context, userId string) ([]Chat, error) {
	args := m.Called(userId)
	return args.Get(0).([]Chat), args.Error(1)
}

func (m *MockStore) CreateChat(ctx context.Context, params CreateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}

func (m *MockStore) RenameChat(ctx context.Context, id, name string) error {
	args := m.Called(id, name)
	return args.Error(0)
}

func (m *MockStore) SoftDeleteChat(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStore) CreateParticipant(ctx context.Context, chatId, userId string) (Participant, error) {
	args := m.Called(chatId, userId)
	return args.Get(0).(Participant), args.Error(1)
}

func (m *MockStore) DeleteParticipant(ctx context.Context, chatId, userId string) error {
	args := m.Called(chatId, userId)
	return args.Error(0)
}

func (m *MockStore) IsParticipant(ctx context.Context, chatId, userId string) (bool, error) {
	args := m.Called(chatId, userId)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockStore) ListMessages(ctx context.Context, chatId string) ([]Message, error) {
	args := m.Called(chatId)
	return args.Get(0).([]Message), args.Error(1)
}
