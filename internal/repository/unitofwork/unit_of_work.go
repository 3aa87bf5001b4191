package unitofwork

import (
	"context"

	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/tenant"
)

// UnitOfWork hands out repositories bound to one tenant namespace and one open
// transaction. It is only valid inside the Work it was passed to.
type UnitOfWork interface {
	Tenant() tenant.ID

	AudioNoteRepository() contract.AudioNoteRepository
	TranscriptRepository() contract.TranscriptRepository
	NoteVectorRepository() contract.NoteVectorRepository
	ChatRepository() contract.ChatRepository
	ChatMessageRepository() contract.ChatMessageRepository
}

// Work is one transaction's worth of tenant reads and writes.
type Work func(ctx context.Context, uow UnitOfWork) error
