package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Chat struct {
	ChatId    string         `gorm:"column:chat_id;type:varchar(255);primaryKey"`
	Title     string         `gorm:"column:title;type:varchar(255);not null;default:New Chat"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Chat) TableName() string {
	return "chats"
}

type ChatMessage struct {
	MessageId  int64          `gorm:"column:message_id;primaryKey;autoIncrement"`
	ChatId     string         `gorm:"column:chat_id;type:varchar(255);not null;index"`
	Role       string         `gorm:"column:role;type:varchar(10);not null"`
	Content    string         `gorm:"column:content;type:text;not null"`
	SourceRefs datatypes.JSON `gorm:"column:source_refs;type:jsonb"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// SourceRefs is the stored shape of ChatMessage.SourceRefs.
type SourceRefs struct {
	Sources []string `json:"sources"`
}
