package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/mapper"
	"voice2note-be/internal/model"
	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/repository/specification"
	"voice2note-be/internal/tenant"

	"gorm.io/gorm"
)

type TranscriptRepositoryImpl struct {
	db     *gorm.DB
	ns     tenant.Namespace
	mapper *mapper.TranscriptMapper
}

func NewTranscriptRepository(db *gorm.DB, ns tenant.Namespace) contract.TranscriptRepository {
	return &TranscriptRepositoryImpl{
		db:     db,
		ns:     ns,
		mapper: mapper.NewTranscriptMapper(),
	}
}

func (r *TranscriptRepositoryImpl) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Transcript{}).Table(r.ns.Relation(tenant.TableTranscripts))
}

func (r *TranscriptRepositoryImpl) Upsert(ctx context.Context, audioKey string, rawUri string, patch map[string]interface{}) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	// an empty raw_uri in a later stage keeps the one recorded by transcription
	sql := fmt.Sprintf(`INSERT INTO %s AS t (audio_key, raw_uri, transcription)
VALUES (?, ?, ?::jsonb)
ON CONFLICT (audio_key) DO UPDATE SET
    transcription = COALESCE(t.transcription, '{}'::jsonb) || EXCLUDED.transcription,
    raw_uri = CASE WHEN EXCLUDED.raw_uri = '' THEN t.raw_uri ELSE EXCLUDED.raw_uri END`,
		r.ns.Table(tenant.TableTranscripts))

	return r.db.WithContext(ctx).Exec(sql, audioKey, rawUri, string(b)).Error
}

func (r *TranscriptRepositoryImpl) Merge(ctx context.Context, audioKey string, patch map[string]interface{}) (bool, error) {
	b, err := json.Marshal(patch)
	if err != nil {
		return false, err
	}
	res := r.table(ctx).
		Where("audio_key = ?", audioKey).
		Update("transcription", gorm.Expr("COALESCE(transcription, '{}'::jsonb) || ?::jsonb", string(b)))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TranscriptRepositoryImpl) FindByKey(ctx context.Context, audioKey string) (*entity.Transcript, error) {
	var m model.Transcript
	query := specification.ByAudioKey{AudioKey: audioKey}.Apply(r.table(ctx))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *TranscriptRepositoryImpl) FindByKeys(ctx context.Context, audioKeys []string) ([]*entity.Transcript, error) {
	if len(audioKeys) == 0 {
		return nil, nil
	}
	var models []*model.Transcript
	query := specification.ByAudioKeys{AudioKeys: audioKeys}.Apply(r.table(ctx))
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Transcript, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *TranscriptRepositoryImpl) SoftDeleteByKey(ctx context.Context, audioKey string) error {
	return r.table(ctx).Where("audio_key = ?", audioKey).Delete(&model.Transcript{}).Error
}
