package mapper

import (
	"encoding/json"
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Chat Mappers

func (m *ChatMapper) ChatToEntity(c *model.Chat) *entity.Chat {
	if c == nil {
		return nil
	}

	var deletedAt *time.Time
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		deletedAt = &t
	}

	return &entity.Chat{
		ChatId:    c.ChatId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		DeletedAt: deletedAt,
	}
}

func (m *ChatMapper) ChatToModel(c *entity.Chat) *model.Chat {
	if c == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	}

	title := c.Title
	if title == "" {
		title = entity.DefaultChatTitle
	}

	return &model.Chat{
		ChatId:    c.ChatId,
		Title:     title,
		CreatedAt: c.CreatedAt,
		DeletedAt: deletedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	var refs []string
	if len(msg.SourceRefs) > 0 {
		var stored model.SourceRefs
		if err := json.Unmarshal(msg.SourceRefs, &stored); err == nil {
			refs = stored.Sources
		}
	}

	return &entity.ChatMessage{
		MessageId:  msg.MessageId,
		ChatId:     msg.ChatId,
		Role:       entity.ChatRole(msg.Role),
		Content:    msg.Content,
		SourceRefs: refs,
		CreatedAt:  msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}

	var refs datatypes.JSON
	if len(msg.SourceRefs) > 0 {
		if b, err := json.Marshal(model.SourceRefs{Sources: msg.SourceRefs}); err == nil {
			refs = datatypes.JSON(b)
		}
	}

	return &model.ChatMessage{
		MessageId:  msg.MessageId,
		ChatId:     msg.ChatId,
		Role:       string(msg.Role),
		Content:    msg.Content,
		SourceRefs: refs,
		CreatedAt:  msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessagesToEntities(msgs []*model.ChatMessage) []*entity.ChatMessage {
	entities := make([]*entity.ChatMessage, len(msgs))
	for i, msg := range msgs {
		entities[i] = m.ChatMessageToEntity(msg)
	}
	return entities
}
