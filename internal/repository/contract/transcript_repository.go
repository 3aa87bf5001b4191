package contract

import (
	"context"

	"voice2note-be/internal/entity"
)

type TranscriptRepository interface {
	// Upsert creates the transcript of audioKey or merges patch into the existing
	// transcription document. Repeated calls with the same patch converge.
	Upsert(ctx context.Context, audioKey string, rawUri string, patch map[string]interface{}) error
	// Merge patches an existing live transcript and reports whether one was found.
	Merge(ctx context.Context, audioKey string, patch map[string]interface{}) (bool, error)
	FindByKey(ctx context.Context, audioKey string) (*entity.Transcript, error)
	FindByKeys(ctx context.Context, audioKeys []string) ([]*entity.Transcript, error)
	SoftDeleteByKey(ctx context.Context, audioKey string) error
}
