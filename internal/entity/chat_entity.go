package entity

import "time"

const DefaultChatTitle = "New Chat"

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type Chat struct {
	ChatId    string
	Title     string
	CreatedAt time.Time
	DeletedAt *time.Time
}

func (c *Chat) HasDefaultTitle() bool {
	return c.Title == DefaultChatTitle
}

type ChatMessage struct {
	MessageId  int64
	ChatId     string
	Role       ChatRole
	Content    string
	SourceRefs []string // audio keys, nil when the reply used no notes
	CreatedAt  time.Time
}
