package contract

import (
	"context"

	"voice2note-be/internal/entity"
)

type NoteVectorRepository interface {
	// DeleteByAudioKey removes every chunk of a note, so a following CreateBulk replaces them.
	DeleteByAudioKey(ctx context.Context, audioKey string) error
	CreateBulk(ctx context.Context, chunks []*entity.NoteChunk) error
	// FindSearchable returns every live chunk of every live note in vector_id order.
	FindSearchable(ctx context.Context) ([]*entity.NoteChunk, error)
	CountByAudioKey(ctx context.Context, audioKey string) (int64, error)
	SoftDeleteByAudioKey(ctx context.Context, audioKey string) error
}
