package conversation

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/server"
	"github.com/npezzotti/go-convo/internal/types"
	"github.com/rs/zerolog"
)

const (
	oneOnOneChatName = "One on one chat"
	minGroupMembers  = 3
)

// Emitter delivers an event to every live connection of a user. Delivery is
// best-effort and must not block.
type Emitter interface {
	EmitToUser(userId, event string, payload any)
}

type CreateGroupChatParams struct {
	Name           string
	ParticipantIds []string
}

// Service validates chat commands, applies them to the store and notifies
// affected users once the change is durable.
type Service struct {
	store   database.Store
	emitter Emitter
	log     zerolog.Logger
}

func NewService(store database.Store, emitter Emitter, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		log:     logger.With().Str("component", "conversation").Logger(),
	}
}

// fanOut sends event to every recipient except the actor.
func (s *Service) fanOut(actorId, event string, payload any, recipients ...string) {
	for _, id := range recipients {
		if id == actorId {
			continue
		}
		s.emitter.EmitToUser(id, event, payload)
	}

	s.log.Debug().
		Str("event", event).
		Str("actor", actorId).
		Int("recipients", len(recipients)).
		Msg("fan-out")
}

func (s *Service) getChat(ctx context.Context, chatId string) (database.Chat, error) {
	if chatId == "" {
		return database.Chat{}, newError(KindBadRequest, "chat id is required")
	}

	chat, err := s.store.GetChatById(ctx, chatId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Chat{}, errChatNotFound
		}
		return database.Chat{}, internalError("get chat", err)
	}

	return chat, nil
}

func (s *Service) getGroupChat(ctx context.Context, chatId string) (types.Chat, error) {
	dbChat, err := s.getChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}
	if !dbChat.IsGroupChat {
		return types.Chat{}, newError(KindNotFound, "group chat does not exist")
	}

	return toChat(dbChat), nil
}

// adminGroupChat loads a group chat the actor administers.
func (s *Service) adminGroupChat(ctx context.Context, actor auth.Principal, chatId string) (types.Chat, error) {
	chat, err := s.getGroupChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}
	if chat.CreatedBy != actor.UserId {
		return types.Chat{}, errNotAdmin
	}

	return chat, nil
}

func (s *Service) reloadChat(ctx context.Context, chatId string) (types.Chat, error) {
	dbChat, err := s.getChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}
	return toChat(dbChat), nil
}

func (s *Service) requireUser(ctx context.Context, userId string) (database.User, error) {
	u, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, errUserNotFound
		}
		return database.User{}, internalError("get user", err)
	}
	return u, nil
}

// CreateOneOnOneChat returns the enabled chat from actor to receiverId,
// creating it if needed. created is false when the chat already existed.
func (s *Service) CreateOneOnOneChat(ctx context.Context, actor auth.Principal, receiverId string) (chat types.Chat, created bool, err error) {
	if receiverId == "" {
		return types.Chat{}, false, newError(KindBadRequest, "receiver id is required")
	}
	if receiverId == actor.UserId {
		return types.Chat{}, false, newError(KindBadRequest, "you can't start a chat with yourself")
	}

	if _, err := s.store.GetUserById(ctx, receiverId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, false, newError(KindNotFound, "receiver does not exist")
		}
		return types.Chat{}, false, internalError("get receiver", err)
	}

	existing, err := s.store.FindOneOnOneChat(ctx, actor.UserId, receiverId)
	if err == nil {
		return toChat(existing), false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Chat{}, false, internalError("find one on one chat", err)
	}

	dbChat, err := s.store.CreateChat(ctx, database.CreateChatParams{
		Name:           oneOnOneChatName,
		CreatedBy:      actor.UserId,
		SenderId:       actor.UserId,
		ReceiverId:     receiverId,
		ParticipantIds: []string{actor.UserId, receiverId},
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// lost a race with a concurrent create for the same pair
			existing, err := s.store.FindOneOnOneChat(ctx, actor.UserId, receiverId)
			if err != nil {
				return types.Chat{}, false, internalError("find one on one chat", err)
			}
			return toChat(existing), false, nil
		}
		return types.Chat{}, false, internalError("create one on one chat", err)
	}

	chat = toChat(dbChat)
	s.fanOut(actor.UserId, server.EventNewChat, chat, chat.ParticipantIds()...)

	return chat, true, nil
}

func (s *Service) CreateGroupChat(ctx context.Context, actor auth.Principal, params CreateGroupChatParams) (types.Chat, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return types.Chat{}, newError(KindBadRequest, "group name is required")
	}
	if len(params.ParticipantIds) < minGroupMembers-1 {
		return types.Chat{}, newError(KindBadRequest, "a group chat needs at least 2 participants besides the creator")
	}

	members := []string{actor.UserId}
	seen := map[string]bool{actor.UserId: true}
	for _, id := range params.ParticipantIds {
		if id == actor.UserId {
			return types.Chat{}, newError(KindBadRequest, "the creator must not be listed as a participant")
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	if len(members) < minGroupMembers {
		return types.Chat{}, newError(KindBadRequest, "a group chat needs at least 3 distinct members")
	}

	for _, id := range members[1:] {
		if _, err := s.requireUser(ctx, id); err != nil {
			return types.Chat{}, err
		}
	}

	dbChat, err := s.store.CreateChat(ctx, database.CreateChatParams{
		Name:           name,
		IsGroupChat:    true,
		CreatedBy:      actor.UserId,
		ParticipantIds: members,
	})
	if err != nil {
		return types.Chat{}, internalError("create group chat", err)
	}

	chat := toChat(dbChat)
	s.fanOut(actor.UserId, server.EventNewChat, chat, chat.ParticipantIds()...)

	return chat, nil
}

// GetGroupChat returns a group chat the actor participates in.
func (s *Service) GetGroupChat(ctx context.Context, actor auth.Principal, chatId string) (types.Chat, error) {
	chat, err := s.getGroupChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}
	if !chat.HasParticipant(actor.UserId) {
		return types.Chat{}, errNotParticipant
	}

	return chat, nil
}

func (s *Service) RenameGroupChat(ctx context.Context, actor auth.Principal, chatId, name string) (types.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Chat{}, newError(KindBadRequest, "group name is required")
	}

	if _, err := s.adminGroupChat(ctx, actor, chatId); err != nil {
		return types.Chat{}, err
	}

	if err := s.store.RenameChat(ctx, chatId, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, errChatNotFound
		}
		return types.Chat{}, internalError("rename chat", err)
	}

	chat, err := s.reloadChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}

	s.fanOut(actor.UserId, server.EventNewChat, chat, chat.ParticipantIds()...)

	return chat, nil
}

func (s *Service) DeleteGroupChat(ctx context.Context, actor auth.Principal, chatId string) error {
	chat, err := s.adminGroupChat(ctx, actor, chatId)
	if err != nil {
		return err
	}

	if err := s.store.SoftDeleteChat(ctx, chatId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errChatNotFound
		}
		return internalError("delete group chat", err)
	}

	s.fanOut(actor.UserId, server.EventLeaveChat, chat, chat.ParticipantIds()...)

	return nil
}

func (s *Service) DeleteOneOnOneChat(ctx context.Context, actor auth.Principal, chatId string) error {
	dbChat, err := s.getChat(ctx, chatId)
	if err != nil {
		return err
	}
	if dbChat.IsGroupChat {
		return newError(KindNotFound, "one on one chat does not exist")
	}

	chat := toChat(dbChat)
	if !chat.HasParticipant(actor.UserId) {
		return errNotParticipant
	}

	if err := s.store.SoftDeleteChat(ctx, chatId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errChatNotFound
		}
		return internalError("delete one on one chat", err)
	}

	s.fanOut(actor.UserId, server.EventLeaveChat, chat, chat.ParticipantIds()...)

	return nil
}

// LeaveGroupChat removes the actor from a group. Remaining members are not
// notified; they see the change on their next fetch.
func (s *Service) LeaveGroupChat(ctx context.Context, actor auth.Principal, chatId string) error {
	chat, err := s.getGroupChat(ctx, chatId)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(actor.UserId) {
		return errNotParticipant
	}

	if err := s.store.DeleteParticipant(ctx, chatId, actor.UserId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotParticipant
		}
		return internalError("leave group chat", err)
	}

	s.log.Debug().Str("chat_id", chatId).Str("user_id", actor.UserId).Msg("left group chat")

	return nil
}

func (s *Service) AddParticipant(ctx context.Context, actor auth.Principal, chatId, userId string) (types.Chat, error) {
	if userId == "" {
		return types.Chat{}, newError(KindBadRequest, "user id is required")
	}

	chat, err := s.adminGroupChat(ctx, actor, chatId)
	if err != nil {
		return types.Chat{}, err
	}

	if _, err := s.requireUser(ctx, userId); err != nil {
		return types.Chat{}, err
	}

	alreadyMember := newError(KindConflict, "user is already a participant of this chat")
	if chat.HasParticipant(userId) {
		return types.Chat{}, alreadyMember
	}

	if _, err := s.store.CreateParticipant(ctx, chatId, userId); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.Chat{}, alreadyMember
		}
		return types.Chat{}, internalError("add participant", err)
	}

	chat, err = s.reloadChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}

	s.fanOut(actor.UserId, server.EventNewChat, chat, userId)

	return chat, nil
}

// RemoveParticipant deletes userId from a group. No lower bound on group
// size is enforced.
func (s *Service) RemoveParticipant(ctx context.Context, actor auth.Principal, chatId, userId string) (types.Chat, error) {
	if userId == "" {
		return types.Chat{}, newError(KindBadRequest, "user id is required")
	}

	chat, err := s.adminGroupChat(ctx, actor, chatId)
	if err != nil {
		return types.Chat{}, err
	}

	notMember := newError(KindNotFound, "user is not a participant of this chat")
	if !chat.HasParticipant(userId) {
		return types.Chat{}, notMember
	}

	if err := s.store.DeleteParticipant(ctx, chatId, userId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, notMember
		}
		return types.Chat{}, internalError("remove participant", err)
	}

	chat, err = s.reloadChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, err
	}

	s.fanOut(actor.UserId, server.EventLeaveChat, chat, userId)

	return chat, nil
}

func (s *Service) SendMessage(ctx context.Context, actor auth.Principal, chatId, content string) (types.Message, error) {
	if strings.TrimSpace(content) == "" {
		return types.Message{}, newError(KindBadRequest, "content is required")
	}

	dbChat, err := s.getChat(ctx, chatId)
	if err != nil {
		return types.Message{}, err
	}

	dbMsg, err := s.store.CreateMessage(ctx, database.CreateMessageParams{
		ChatId:   chatId,
		SenderId: actor.UserId,
		Content:  content,
	})
	if err != nil {
		return types.Message{}, internalError("create message", err)
	}

	msg := toMessage(dbMsg)
	s.fanOut(actor.UserId, server.EventMessageReceived, msg, toChat(dbChat).ParticipantIds()...)

	return msg, nil
}

// GetMessages lists the messages of a chat, newest first.
func (s *Service) GetMessages(ctx context.Context, actor auth.Principal, chatId string) ([]types.Message, error) {
	if _, err := s.getChat(ctx, chatId); err != nil {
		return nil, err
	}

	dbMsgs, err := s.store.ListMessages(ctx, chatId)
	if err != nil {
		return nil, internalError("list messages", err)
	}

	msgs := make([]types.Message, 0, len(dbMsgs))
	for _, m := range dbMsgs {
		msgs = append(msgs, toMessage(m))
	}

	return msgs, nil
}

// ListChats returns the enabled chats the actor participates in.
func (s *Service) ListChats(ctx context.Context, actor auth.Principal) ([]types.Chat, error) {
	dbChats, err := s.store.ListChatsForUser(ctx, actor.UserId)
	if err != nil {
		return nil, internalError("list chats", err)
	}

	chats := make([]types.Chat, 0, len(dbChats))
	for _, c := range dbChats {
		chats = append(chats, toChat(c))
	}

	return chats, nil
}

// ListUsers returns every user except the actor.
func (s *Service) ListUsers(ctx context.Context, actor auth.Principal) ([]types.User, error) {
	dbUsers, err := s.store.ListUsersExcept(ctx, actor.UserId)
	if err != nil {
		return nil, internalError("list users", err)
	}

	users := make([]types.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, toUser(u))
	}

	return users, nil
}
