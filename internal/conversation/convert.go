package conversation

import (
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		AvatarUrl:    u.AvatarUrl,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func toChat(c database.Chat) types.Chat {
	chat := types.Chat{
		Id:           c.Id,
		Name:         c.Name,
		IsGroupChat:  c.IsGroupChat,
		CreatedBy:    c.CreatedBy,
		SenderId:     c.SenderId,
		ReceiverId:   c.ReceiverId,
		Participants: make([]types.Participant, 0, len(c.Participants)),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}

	for _, p := range c.Participants {
		chat.Participants = append(chat.Participants, types.Participant{
			Id:     p.Id,
			ChatId: p.ChatId,
			UserId: p.UserId,
			User: types.User{
				Id:           p.UserId,
				Username:     p.Username,
				EmailAddress: p.Email,
				AvatarUrl:    p.AvatarUrl,
				Role:         p.Role,
			},
		})
	}

	return chat
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:       m.Id,
		ChatId:   m.ChatId,
		SenderId: m.SenderId,
		Content:  m.Content,
		Sender: types.User{
			Id:        m.SenderId,
			Username:  m.SenderUsername,
			AvatarUrl: m.SenderAvatarUrl,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
