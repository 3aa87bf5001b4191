package service

import (
	"bytes"
	"context"
	"io"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/pkg/stt"
)

// Transcriber runs one speech-to-text job to completion.
type Transcriber interface {
	Transcribe(ctx context.Context, req stt.Request, media io.Reader) (*stt.Result, error)
}

type transcriptionStage struct {
	stageBase
	stt Transcriber
}

func NewTranscriptionStage(deps PipelineDeps, transcriber Transcriber) Stage {
	return &transcriptionStage{
		stageBase: newStageBase("transcription", deps),
		stt:       transcriber,
	}
}

func (s *transcriptionStage) Handle(ctx context.Context, p objectpath.Path) error {
	ctx, span := s.startSpan(ctx, p)
	defer span.End()

	if err := s.transcribe(ctx, p); err != nil {
		return s.fail(ctx, span, p, err)
	}
	return nil
}

func (s *transcriptionStage) transcribe(ctx context.Context, p objectpath.Path) error {
	if _, err := s.requireNote(ctx, p); err != nil {
		return err
	}

	audio, err := s.read(ctx, p.String())
	if err != nil {
		return err
	}

	res, err := s.stt.Transcribe(ctx, stt.NewRequest(s.Archive.URI(p.String())), bytes.NewReader(audio))
	if err != nil {
		return apperror.Upstream(err, "transcribe %s", p.AudioKey)
	}

	rawKey := objectpath.RawTranscript(p.Tenant, p.AudioKey)
	if err := s.write(ctx, rawKey, res.Document, "application/json"); err != nil {
		return err
	}

	err = s.advance(ctx, p, entity.StatusTranscribed, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.TranscriptRepository().Upsert(ctx, p.AudioKey, s.Archive.URI(rawKey), map[string]interface{}{
			entity.TranscriptKeyText: res.Transcript,
		})
	})
	if err != nil {
		return err
	}

	s.Logger.Info("Pipeline", "audio transcribed", map[string]interface{}{
		"tenant":    p.Tenant.String(),
		"audio_key": p.AudioKey,
		"language":  res.LanguageCode,
		"job_id":    res.JobID,
	})
	return s.publish(ctx, rawKey)
}
