package entity

import "time"

type NoteChunk struct {
	VectorId     int64
	AudioKey     string
	ContentChunk string
	Embedding    []float32
	CreatedAt    time.Time
	DeletedAt    *time.Time
}
