package mapper

import (
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type NoteVectorMapper struct{}

func NewNoteVectorMapper() *NoteVectorMapper {
	return &NoteVectorMapper{}
}

func (m *NoteVectorMapper) ToEntity(v *model.NoteVector) *entity.NoteChunk {
	if v == nil {
		return nil
	}

	var deletedAt *time.Time
	if v.DeletedAt.Valid {
		t := v.DeletedAt.Time
		deletedAt = &t
	}

	return &entity.NoteChunk{
		VectorId:     v.VectorId,
		AudioKey:     v.AudioKey,
		ContentChunk: v.ContentChunk,
		Embedding:    v.Embedding.Slice(),
		CreatedAt:    v.CreatedAt,
		DeletedAt:    deletedAt,
	}
}

func (m *NoteVectorMapper) ToModel(c *entity.NoteChunk) *model.NoteVector {
	if c == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	}

	return &model.NoteVector{
		VectorId:     c.VectorId,
		AudioKey:     c.AudioKey,
		ContentChunk: c.ContentChunk,
		Embedding:    pgvector.NewVector(c.Embedding),
		CreatedAt:    c.CreatedAt,
		DeletedAt:    deletedAt,
	}
}

func (m *NoteVectorMapper) ToEntities(vectors []*model.NoteVector) []*entity.NoteChunk {
	entities := make([]*entity.NoteChunk, len(vectors))
	for i, v := range vectors {
		entities[i] = m.ToEntity(v)
	}
	return entities
}

func (m *NoteVectorMapper) ToModels(chunks []*entity.NoteChunk) []*model.NoteVector {
	models := make([]*model.NoteVector, len(chunks))
	for i, c := range chunks {
		models[i] = m.ToModel(c)
	}
	return models
}
