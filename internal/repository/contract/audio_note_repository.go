package contract

import (
	"context"

	"voice2note-be/internal/entity"
)

type AudioNoteRepository interface {
	Create(ctx context.Context, note *entity.AudioNote) error
	// FindByKey returns nil, nil when the note does not exist or is soft-deleted.
	FindByKey(ctx context.Context, audioKey string) (*entity.AudioNote, error)
	// LockByKey row-locks a live note until the transaction ends, serializing writers of
	// the same note. It reports false when no live note has that key.
	LockByKey(ctx context.Context, audioKey string) (bool, error)
	// FindAll lists live notes, newest first.
	FindAll(ctx context.Context, offset, limit int) ([]*entity.AudioNote, error)
	// MergeMetadata applies patch as a jsonb merge; keys absent from patch are kept.
	MergeMetadata(ctx context.Context, audioKey string, patch map[string]interface{}) error
	// AdvanceStatus moves the note to status if it is behind it and clears any recorded
	// stage error. It reports false when no live note has that key.
	AdvanceStatus(ctx context.Context, audioKey string, status entity.NoteStatus) (bool, error)
	MarkFailed(ctx context.Context, audioKey string, reason string) error
	SoftDelete(ctx context.Context, audioKey string) (bool, error)
}
