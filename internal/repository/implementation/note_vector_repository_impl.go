package implementation

import (
	"context"
	"fmt"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/mapper"
	"voice2note-be/internal/model"
	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/repository/scope"
	"voice2note-be/internal/repository/specification"
	"voice2note-be/internal/tenant"

	"gorm.io/gorm"
)

type NoteVectorRepositoryImpl struct {
	db     *gorm.DB
	ns     tenant.Namespace
	mapper *mapper.NoteVectorMapper
}

func NewNoteVectorRepository(db *gorm.DB, ns tenant.Namespace) contract.NoteVectorRepository {
	return &NoteVectorRepositoryImpl{
		db:     db,
		ns:     ns,
		mapper: mapper.NewNoteVectorMapper(),
	}
}

func (r *NoteVectorRepositoryImpl) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.NoteVector{}).Table(r.ns.Relation(tenant.TableNoteVectors))
}

func (r *NoteVectorRepositoryImpl) DeleteByAudioKey(ctx context.Context, audioKey string) error {
	// hard delete: replaced chunks are not history
	return r.table(ctx).Unscoped().Where("audio_key = ?", audioKey).Delete(&model.NoteVector{}).Error
}

func (r *NoteVectorRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.NoteChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := r.mapper.ToModels(chunks)

	if err := r.table(ctx).Create(models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*chunks[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

// searchable restricts chunks to live notes. The vector table is referenced by its bare
// name, which Postgres resolves against the schema-qualified FROM item.
func (r *NoteVectorRepositoryImpl) searchable(ctx context.Context) *gorm.DB {
	return r.table(ctx).
		Select("note_vectors.*").
		Joins(fmt.Sprintf("JOIN %s AS a ON a.audio_key = note_vectors.audio_key AND a.deleted_at IS NULL",
			r.ns.Table(tenant.TableAudios))).
		Scopes(scope.OrderByVectorID)
}

func (r *NoteVectorRepositoryImpl) FindSearchable(ctx context.Context) ([]*entity.NoteChunk, error) {
	var models []*model.NoteVector
	if err := r.searchable(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *NoteVectorRepositoryImpl) CountByAudioKey(ctx context.Context, audioKey string) (int64, error) {
	var count int64
	query := specification.ByAudioKey{AudioKey: audioKey}.Apply(r.table(ctx))
	err := query.Count(&count).Error
	return count, err
}

func (r *NoteVectorRepositoryImpl) SoftDeleteByAudioKey(ctx context.Context, audioKey string) error {
	return r.table(ctx).Where("audio_key = ?", audioKey).Delete(&model.NoteVector{}).Error
}
