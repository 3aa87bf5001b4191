package mapper

import (
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/model"

	"gorm.io/gorm"
)

type TranscriptMapper struct{}

func NewTranscriptMapper() *TranscriptMapper {
	return &TranscriptMapper{}
}

func (m *TranscriptMapper) ToEntity(t *model.Transcript) *entity.Transcript {
	if t == nil {
		return nil
	}

	var deletedAt *time.Time
	if t.DeletedAt.Valid {
		d := t.DeletedAt.Time
		deletedAt = &d
	}

	return &entity.Transcript{
		TranscriptId:  t.TranscriptId,
		AudioKey:      t.AudioKey,
		RawUri:        t.RawUri,
		Transcription: decodeDocument(t.Transcription),
		CreatedAt:     t.CreatedAt,
		DeletedAt:     deletedAt,
	}
}

func (m *TranscriptMapper) ToModel(t *entity.Transcript) *model.Transcript {
	if t == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if t.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *t.DeletedAt, Valid: true}
	}

	return &model.Transcript{
		TranscriptId:  t.TranscriptId,
		AudioKey:      t.AudioKey,
		RawUri:        t.RawUri,
		Transcription: encodeDocument(t.Transcription),
		CreatedAt:     t.CreatedAt,
		DeletedAt:     deletedAt,
	}
}
