package unitofwork

import (
	"context"

	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/repository/implementation"
	"voice2note-be/internal/tenant"

	"gorm.io/gorm"
)

type UnitOfWorkImpl struct {
	tx *gorm.DB
	id tenant.ID
	ns tenant.Namespace
}

func NewUnitOfWork(tx *gorm.DB, id tenant.ID) UnitOfWork {
	return &UnitOfWorkImpl{
		tx: tx,
		id: id,
		ns: id.Namespace(),
	}
}

// RunInTx runs work in a single transaction on db. It commits when work returns nil and
// rolls back on error or panic; a panic is re-raised after the rollback.
func RunInTx(ctx context.Context, db *gorm.DB, id tenant.ID, work Work) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return work(ctx, NewUnitOfWork(tx, id))
	})
}

func (u *UnitOfWorkImpl) Tenant() tenant.ID {
	return u.id
}

// Repository Accessors

func (u *UnitOfWorkImpl) AudioNoteRepository() contract.AudioNoteRepository {
	return implementation.NewAudioNoteRepository(u.tx, u.ns)
}

func (u *UnitOfWorkImpl) TranscriptRepository() contract.TranscriptRepository {
	return implementation.NewTranscriptRepository(u.tx, u.ns)
}

func (u *UnitOfWorkImpl) NoteVectorRepository() contract.NoteVectorRepository {
	return implementation.NewNoteVectorRepository(u.tx, u.ns)
}

func (u *UnitOfWorkImpl) ChatRepository() contract.ChatRepository {
	return implementation.NewChatRepository(u.tx, u.ns)
}

func (u *UnitOfWorkImpl) ChatMessageRepository() contract.ChatMessageRepository {
	return implementation.NewChatMessageRepository(u.tx, u.ns)
}
