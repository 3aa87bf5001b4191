package implementation

import (
	"context"
	"encoding/json"
	"errors"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/mapper"
	"voice2note-be/internal/model"
	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/repository/scope"
	"voice2note-be/internal/repository/specification"
	"voice2note-be/internal/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AudioNoteRepositoryImpl struct {
	db     *gorm.DB
	ns     tenant.Namespace
	mapper *mapper.AudioNoteMapper
}

func NewAudioNoteRepository(db *gorm.DB, ns tenant.Namespace) contract.AudioNoteRepository {
	return &AudioNoteRepositoryImpl{
		db:     db,
		ns:     ns,
		mapper: mapper.NewAudioNoteMapper(),
	}
}

func (r *AudioNoteRepositoryImpl) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.AudioNote{}).Table(r.ns.Relation(tenant.TableAudios))
}

func (r *AudioNoteRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *AudioNoteRepositoryImpl) Create(ctx context.Context, note *entity.AudioNote) error {
	m := r.mapper.ToModel(note)
	if err := r.table(ctx).Create(m).Error; err != nil {
		return err
	}
	*note = *r.mapper.ToEntity(m)
	return nil
}

func (r *AudioNoteRepositoryImpl) FindByKey(ctx context.Context, audioKey string) (*entity.AudioNote, error) {
	var m model.AudioNote
	query := r.applySpecifications(r.table(ctx), specification.ByAudioKey{AudioKey: audioKey})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *AudioNoteRepositoryImpl) LockByKey(ctx context.Context, audioKey string) (bool, error) {
	var keys []string
	query := r.applySpecifications(r.table(ctx), specification.ByAudioKey{AudioKey: audioKey}).
		Clauses(clause.Locking{Strength: "UPDATE"})
	if err := query.Pluck("audio_key", &keys).Error; err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

func (r *AudioNoteRepositoryImpl) FindAll(ctx context.Context, offset, limit int) ([]*entity.AudioNote, error) {
	var models []*model.AudioNote
	query := r.applySpecifications(r.table(ctx).Scopes(scope.OrderByCreatedDesc),
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *AudioNoteRepositoryImpl) MergeMetadata(ctx context.Context, audioKey string, patch map[string]interface{}) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return r.table(ctx).
		Where("audio_key = ?", audioKey).
		Update("metadata", gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(b))).
		Error
}

func (r *AudioNoteRepositoryImpl) AdvanceStatus(ctx context.Context, audioKey string, status entity.NoteStatus) (bool, error) {
	updates := map[string]interface{}{"stage_error": nil}

	before := make([]string, 0, len(status.Before()))
	for _, s := range status.Before() {
		before = append(before, string(s))
	}
	if len(before) > 0 {
		// never moves a note backwards when an older event is redelivered
		updates["status"] = gorm.Expr("CASE WHEN status IN ? THEN ? ELSE status END", before, string(status))
	}

	res := r.table(ctx).Where("audio_key = ?", audioKey).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AudioNoteRepositoryImpl) MarkFailed(ctx context.Context, audioKey string, reason string) error {
	return r.table(ctx).
		Where("audio_key = ?", audioKey).
		Update("stage_error", reason).
		Error
}

func (r *AudioNoteRepositoryImpl) SoftDelete(ctx context.Context, audioKey string) (bool, error) {
	res := r.table(ctx).Where("audio_key = ?", audioKey).Delete(&model.AudioNote{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
