package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	chatColumns = "c.id, c.name, c.is_group_chat, c.created_by, c.sender_id, c.receiver_id, c.created_at, c.updated_at"

	participantsQuery = "SELECT p.id, p.chat_id, p.user_id, u.username, u.email, u.avatar_url, u.role, p.created_at " +
		"FROM chat_participants p JOIN users u ON u.id = p.user_id " +
		"WHERE p.chat_id = ANY($1) ORDER BY p.created_at, p.id"

	insertParticipantQuery = "INSERT INTO chat_participants (id, chat_id, user_id, created_at) VALUES ($1, $2, $3, $4)"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *PgStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := db.now()
	role := params.Role
	if role == "" {
		role = "USER"
	}

	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, username, email, avatar_url, role, created_at, updated_at",
		db.newId(),
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		role,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarUrl,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, mapError(err)
	}

	return u, nil
}

func (db *PgStore) GetUserById(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, avatar_url, role, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarUrl,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, mapError(err)
}

func (db *PgStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, avatar_url, role, created_at, updated_at FROM users "+
			"WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.AvatarUrl,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStore) ListUsersExcept(ctx context.Context, id string) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, username, email, avatar_url, role, created_at, updated_at FROM users "+
			"WHERE id <> $1 ORDER BY username",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username, &u.EmailAddress, &u.AvatarUrl, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func scanChat(row rowScanner) (Chat, error) {
	var (
		c                    Chat
		senderId, receiverId sql.NullString
	)

	err := row.Scan(
		&c.Id,
		&c.Name,
		&c.IsGroupChat,
		&c.CreatedBy,
		&senderId,
		&receiverId,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}

	c.SenderId = senderId.String
	c.ReceiverId = receiverId.String
	return c, nil
}

// loadParticipants fills in the member list of each chat with a single query.
func (db *PgStore) loadParticipants(ctx context.Context, chats []Chat) error {
	if len(chats) == 0 {
		return nil
	}

	ids := make([]string, len(chats))
	index := make(map[string]int, len(chats))
	for i, c := range chats {
		ids[i] = c.Id
		index[c.Id] = i
		chats[i].Participants = make([]Participant, 0)
	}

	rows, err := db.conn.QueryContext(ctx, participantsQuery, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.Id, &p.ChatId, &p.UserId, &p.Username, &p.Email, &p.AvatarUrl, &p.Role, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}

		if i, ok := index[p.ChatId]; ok {
			chats[i].Participants = append(chats[i].Participants, p)
		}
	}

	return rows.Err()
}

func (db *PgStore) getChat(ctx context.Context, query string, args ...any) (Chat, error) {
	chat, err := scanChat(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Chat{}, mapError(err)
	}

	chats := []Chat{chat}
	if err := db.loadParticipants(ctx, chats); err != nil {
		return Chat{}, err
	}

	return chats[0], nil
}

// GetChatById returns an enabled, non-deleted chat with its participants.
func (db *PgStore) GetChatById(ctx context.Context, id string) (Chat, error) {
	return db.getChat(ctx,
		"SELECT "+chatColumns+" FROM chats c "+
			"WHERE c.id = $1 AND c.is_enabled = TRUE AND c.is_deleted = FALSE LIMIT 1",
		id,
	)
}

// FindOneOnOneChat looks up the live one-on-one chat for the ordered pair.
func (db *PgStore) FindOneOnOneChat(ctx context.Context, senderId, receiverId string) (Chat, error) {
	return db.getChat(ctx,
		"SELECT "+chatColumns+" FROM chats c "+
			"WHERE c.sender_id = $1 AND c.receiver_id = $2 AND c.is_group_chat = FALSE "+
			"AND c.is_enabled = TRUE AND c.is_deleted = FALSE LIMIT 1",
		senderId,
		receiverId,
	)
}

func (db *PgStore) ListChatsForUser(ctx context.Context, userId string) ([]Chat, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+chatColumns+" FROM chats c "+
			"JOIN chat_participants p ON p.chat_id = c.id "+
			"WHERE p.user_id = $1 AND c.is_enabled = TRUE AND c.is_deleted = FALSE "+
			"ORDER BY c.updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}

	chats := make([]Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := db.loadParticipants(ctx, chats); err != nil {
		return nil, err
	}

	return chats, nil
}

// CreateChat inserts the chat row and all participant rows in one
// transaction, then returns the chat as stored.
func (db *PgStore) CreateChat(ctx context.Context, params CreateChatParams) (Chat, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := db.now()
	chatId := db.newId()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO chats (id, name, is_group_chat, created_by, sender_id, receiver_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		chatId,
		params.Name,
		params.IsGroupChat,
		params.CreatedBy,
		nullString(params.SenderId),
		nullString(params.ReceiverId),
		now,
		now,
	)
	if err != nil {
		return Chat{}, mapError(err)
	}

	for _, userId := range params.ParticipantIds {
		_, err = tx.ExecContext(ctx, insertParticipantQuery, db.newId(), chatId, userId, now)
		if err != nil {
			return Chat{}, mapError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	return db.GetChatById(ctx, chatId)
}

func (db *PgStore) RenameChat(ctx context.Context, id, name string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE chats SET name = $2, updated_at = $3 WHERE id = $1 AND is_enabled = TRUE AND is_deleted = FALSE",
		id,
		name,
		db.now(),
	)
	if err != nil {
		return mapError(err)
	}

	return requireAffected(res)
}

func (db *PgStore) SoftDeleteChat(ctx context.Context, id string) error {
	now := db.now()
	res, err := db.conn.ExecContext(ctx,
		"UPDATE chats SET is_enabled = FALSE, is_deleted = TRUE, deleted_at = $2, updated_at = $3 "+
			"WHERE id = $1 AND is_enabled = TRUE",
		id,
		now,
		now,
	)
	if err != nil {
		return mapError(err)
	}

	return requireAffected(res)
}

func (db *PgStore) CreateParticipant(ctx context.Context, chatId, userId string) (Participant, error) {
	p := Participant{
		Id:        db.newId(),
		ChatId:    chatId,
		UserId:    userId,
		CreatedAt: db.now(),
	}

	_, err := db.conn.ExecContext(ctx, insertParticipantQuery, p.Id, p.ChatId, p.UserId, p.CreatedAt)
	if err != nil {
		return Participant{}, mapError(err)
	}

	return p, nil
}

func (db *PgStore) DeleteParticipant(ctx context.Context, chatId, userId string) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2",
		chatId,
		userId,
	)
	if err != nil {
		return mapError(err)
	}

	return requireAffected(res)
}

func (db *PgStore) IsParticipant(ctx context.Context, chatId, userId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)",
		chatId,
		userId,
	).Scan(&exists)
	if errors.Is(mapError(err), sql.ErrNoRows) {
		return false, nil
	}

	return exists, err
}

// CreateMessage appends a message and bumps the chat's updated_at so chat
// listings surface the most recently active conversation first.
func (db *PgStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := db.now()
	var msg Message
	err = tx.QueryRowContext(ctx,
		"WITH m AS ("+
			"INSERT INTO messages (id, chat_id, sender_id, content, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, chat_id, sender_id, content, created_at, updated_at"+
			") SELECT m.id, m.chat_id, m.sender_id, u.username, u.avatar_url, m.content, m.created_at, m.updated_at "+
			"FROM m JOIN users u ON u.id = m.sender_id",
		db.newId(),
		params.ChatId,
		params.SenderId,
		params.Content,
		now,
		now,
	).Scan(
		&msg.Id,
		&msg.ChatId,
		&msg.SenderId,
		&msg.SenderUsername,
		&msg.SenderAvatarUrl,
		&msg.Content,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.ExecContext(ctx, "UPDATE chats SET updated_at = $2 WHERE id = $1", params.ChatId, now)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgStore) ListMessages(ctx context.Context, chatId string) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.chat_id, m.sender_id, u.username, u.avatar_url, m.content, m.created_at, m.updated_at "+
			"FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.chat_id = $1 ORDER BY m.created_at DESC, m.id DESC",
		chatId,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.ChatId, &msg.SenderId, &msg.SenderUsername, &msg.SenderAvatarUrl,
			&msg.Content, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
