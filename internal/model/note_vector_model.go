package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type NoteVector struct {
	VectorId     int64           `gorm:"column:vector_id;primaryKey;autoIncrement"`
	AudioKey     string          `gorm:"column:audio_key;type:varchar(64);not null;index"`
	ContentChunk string          `gorm:"column:content_chunk;type:text;not null"`
	Embedding    pgvector.Vector `gorm:"column:embedding;type:vector;not null"` // dimension is checked on write, not by the column
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	DeletedAt    gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (NoteVector) TableName() string {
	return "note_vectors"
}
