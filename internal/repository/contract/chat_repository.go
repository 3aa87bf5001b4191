package contract

import (
	"context"

	"voice2note-be/internal/entity"
)

type ChatRepository interface {
	// CreateIfAbsent inserts the chat with the default title, doing nothing if the id exists.
	CreateIfAbsent(ctx context.Context, chatId string) error
	FindByID(ctx context.Context, chatId string) (*entity.Chat, error)
	// UpdateTitleIfDefault sets title only while the chat still has the default title.
	// It reports whether a row changed.
	UpdateTitleIfDefault(ctx context.Context, chatId string, title string) (bool, error)
	SoftDelete(ctx context.Context, chatId string) (bool, error)
}

type ChatMessageRepository interface {
	Create(ctx context.Context, msg *entity.ChatMessage) error
	CountByChatID(ctx context.Context, chatId string) (int64, error)
	// FindFirst returns up to limit messages in conversation order.
	FindFirst(ctx context.Context, chatId string, limit int) ([]*entity.ChatMessage, error)
	// FindPage returns messages newest first.
	FindPage(ctx context.Context, chatId string, offset, limit int) ([]*entity.ChatMessage, error)
}
