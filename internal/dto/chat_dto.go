package dto

import (
	"time"
)

type SendChatRequest struct {
	ChatId  string `json:"chat_id" validate:"omitempty,max=255"`
	Message string `json:"message" validate:"required"`
}

// SendChatResponse carries references only when at least one note chunk informed the reply.
type SendChatResponse struct {
	ChatId     string   `json:"chat_id"`
	Response   string   `json:"response"`
	References []string `json:"references"`
}

type ChatMessageResponse struct {
	MessageId  int64     `json:"message_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	References []string  `json:"references,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChatMessagesRequest struct {
	Offset int `query:"offset" validate:"gte=0"`
}

type ChatMessagesResponse struct {
	ChatId   string                 `json:"chat_id"`
	Title    string                 `json:"title"`
	Messages []*ChatMessageResponse `json:"messages"`
	Offset   int                    `json:"offset"`
	HasMore  bool                   `json:"has_more"`
}
