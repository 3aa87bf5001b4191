package service

import (
	"context"
	"encoding/json"
	"errors"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/pkg/retrieval"
)

// errSuperseded rolls back a replacement whose transcript an edit has since replaced.
var errSuperseded = errors.New("processed transcript superseded")

type vectorizationStage struct {
	stageBase
	retrieval IRetrievalService
	chunkSize int
}

func NewVectorizationStage(deps PipelineDeps, retrievalService IRetrievalService, chunkSize int) Stage {
	if chunkSize <= 0 {
		chunkSize = retrieval.DefaultChunkSize
	}
	return &vectorizationStage{
		stageBase: newStageBase("vectorization", deps),
		retrieval: retrievalService,
		chunkSize: chunkSize,
	}
}

func (s *vectorizationStage) Handle(ctx context.Context, p objectpath.Path) error {
	ctx, span := s.startSpan(ctx, p)
	defer span.End()

	if err := s.vectorize(ctx, p); err != nil {
		return s.fail(ctx, span, p, err)
	}
	return nil
}

func (s *vectorizationStage) vectorize(ctx context.Context, p objectpath.Path) error {
	if _, err := s.requireNote(ctx, p); err != nil {
		return err
	}

	raw, err := s.read(ctx, p.String())
	if err != nil {
		return err
	}
	var doc entity.ProcessedTranscript
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperror.Validation("processed transcript %s: %v", p.String(), err)
	}

	var stale bool
	err = s.Store.Run(ctx, p.Tenant, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		var err error
		stale, err = s.superseded(ctx, uow, p)
		return err
	})
	if err != nil {
		return err
	}
	if stale {
		s.skipSuperseded(p)
		return nil
	}

	// Embeddings are computed before the transaction so no connection is held across
	// provider calls.
	texts := retrieval.Chunk(doc.TranscriptText, s.chunkSize)
	chunks := make([]*entity.NoteChunk, 0, len(texts))
	for _, text := range texts {
		vec, err := s.retrieval.Embed(ctx, text)
		if err != nil {
			return err
		}
		chunks = append(chunks, &entity.NoteChunk{
			AudioKey:     p.AudioKey,
			ContentChunk: text,
			Embedding:    vec,
		})
	}

	// VECTORIZED and READY commit together with the replaced chunks. The note row lock
	// comes first so a concurrent delivery's delete sees this one's committed chunks.
	err = s.advance(ctx, p, entity.StatusReady, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.AudioNoteRepository().LockByKey(ctx, p.AudioKey)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("note %s of %s", p.AudioKey, p.Tenant)
		}
		// an edit may have committed while the chunks were embedded
		stale, err := s.superseded(ctx, uow, p)
		if err != nil {
			return err
		}
		if stale {
			return errSuperseded
		}

		vectors := uow.NoteVectorRepository()
		if err := vectors.DeleteByAudioKey(ctx, p.AudioKey); err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := vectors.CreateBulk(ctx, chunks); err != nil {
				return err
			}
		}
		_, err = uow.AudioNoteRepository().AdvanceStatus(ctx, p.AudioKey, entity.StatusVectorized)
		return err
	})
	if errors.Is(err, errSuperseded) {
		s.skipSuperseded(p)
		return nil
	}
	if err != nil {
		return err
	}

	s.Logger.Info("Pipeline", "note vectorized", map[string]interface{}{
		"tenant":    p.Tenant.String(),
		"audio_key": p.AudioKey,
		"chunks":    len(chunks),
	})
	return nil
}

// superseded reports whether a newer processed transcript (e.g. from an edit) replaced the
// one this event points at.
func (s *vectorizationStage) superseded(ctx context.Context, uow unitofwork.UnitOfWork, p objectpath.Path) (bool, error) {
	t, err := uow.TranscriptRepository().FindByKey(ctx, p.AudioKey)
	if err != nil || t == nil {
		return false, err
	}
	current := t.ProcessedUri()
	return current != "" && current != s.Archive.URI(p.String()), nil
}

func (s *vectorizationStage) skipSuperseded(p objectpath.Path) {
	s.Logger.Info("Pipeline", "skipping superseded transcript", map[string]interface{}{
		"tenant":     p.Tenant.String(),
		"audio_key":  p.AudioKey,
		"object_key": p.String(),
	})
}
