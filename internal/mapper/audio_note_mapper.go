package mapper

import (
	"encoding/json"
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AudioNoteMapper struct{}

func NewAudioNoteMapper() *AudioNoteMapper {
	return &AudioNoteMapper{}
}

func (m *AudioNoteMapper) ToEntity(a *model.AudioNote) *entity.AudioNote {
	if a == nil {
		return nil
	}

	var deletedAt *time.Time
	if a.DeletedAt.Valid {
		t := a.DeletedAt.Time
		deletedAt = &t
	}

	return &entity.AudioNote{
		AudioId:    a.AudioId,
		AudioKey:   a.AudioKey,
		TenantId:   a.TenantId,
		RawUri:     a.RawUri,
		AudioType:  entity.AudioType(a.AudioType),
		Status:     entity.NoteStatus(a.Status),
		StageError: a.StageError,
		Metadata:   decodeDocument(a.Metadata),
		CreatedAt:  a.CreatedAt,
		DeletedAt:  deletedAt,
	}
}

func (m *AudioNoteMapper) ToModel(a *entity.AudioNote) *model.AudioNote {
	if a == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if a.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *a.DeletedAt, Valid: true}
	}

	status := a.Status
	if status == "" {
		status = entity.StatusRawUploaded
	}

	return &model.AudioNote{
		AudioId:    a.AudioId,
		AudioKey:   a.AudioKey,
		TenantId:   a.TenantId,
		RawUri:     a.RawUri,
		AudioType:  string(a.AudioType),
		Status:     string(status),
		StageError: a.StageError,
		Metadata:   encodeDocument(a.Metadata),
		CreatedAt:  a.CreatedAt,
		DeletedAt:  deletedAt,
	}
}

func (m *AudioNoteMapper) ToEntities(notes []*model.AudioNote) []*entity.AudioNote {
	entities := make([]*entity.AudioNote, len(notes))
	for i, n := range notes {
		entities[i] = m.ToEntity(n)
	}
	return entities
}

func decodeDocument(raw datatypes.JSON) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

func encodeDocument(doc map[string]interface{}) datatypes.JSON {
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
