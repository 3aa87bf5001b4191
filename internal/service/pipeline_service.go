package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/archive"
	"voice2note-be/pkg/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "voice2note-be/pipeline"

// Stage processes the object an event points at. Each stage commits its database writes
// before publishing the next object key.
type Stage interface {
	Name() string
	Handle(ctx context.Context, p objectpath.Path) error
}

// StatusNotifier is told about every pipeline status change of a note.
type StatusNotifier interface {
	NoteStatusChanged(ctx context.Context, id tenant.ID, audioKey string, status entity.NoteStatus, stageErr string)
}

// NoteCache caches rendered note details per tenant.
type NoteCache interface {
	Get(ctx context.Context, id tenant.ID, audioKey string, dst interface{}) bool
	Set(ctx context.Context, id tenant.ID, audioKey string, v interface{})
	Invalidate(ctx context.Context, id tenant.ID, audioKey string)
}

type nopNotifier struct{}

func (nopNotifier) NoteStatusChanged(context.Context, tenant.ID, string, entity.NoteStatus, string) {}

type nopCache struct{}

func (nopCache) Get(context.Context, tenant.ID, string, interface{}) bool { return false }
func (nopCache) Set(context.Context, tenant.ID, string, interface{})      {}
func (nopCache) Invalidate(context.Context, tenant.ID, string)            {}

// PipelineDeps are shared by every stage.
type PipelineDeps struct {
	Store     unitofwork.RepositoryFactory
	Archive   archive.Store
	Publisher events.Publisher
	Notifier  StatusNotifier
	Cache     NoteCache
	Logger    logger.ILogger
}

func (d PipelineDeps) withDefaults() PipelineDeps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Cache == nil {
		d.Cache = nopCache{}
	}
	return d
}

type stageBase struct {
	PipelineDeps
	name   string
	tracer trace.Tracer
}

func newStageBase(name string, deps PipelineDeps) stageBase {
	return stageBase{PipelineDeps: deps.withDefaults(), name: name, tracer: otel.Tracer(tracerName)}
}

func (s *stageBase) Name() string {
	return s.name
}

func (s *stageBase) startSpan(ctx context.Context, p objectpath.Path) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "stage."+s.name, trace.WithAttributes(
		attribute.String("tenant", p.Tenant.String()),
		attribute.String("audio_key", p.AudioKey),
		attribute.String("object_key", p.String()),
	))
}

// requireNote fails permanently when the note is unknown or deleted.
func (s *stageBase) requireNote(ctx context.Context, p objectpath.Path) (*entity.AudioNote, error) {
	var note *entity.AudioNote
	err := s.Store.Run(ctx, p.Tenant, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		var err error
		note, err = uow.AudioNoteRepository().FindByKey(ctx, p.AudioKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, apperror.NotFound("note %s of %s", p.AudioKey, p.Tenant)
	}
	return note, nil
}

func (s *stageBase) read(ctx context.Context, key string) ([]byte, error) {
	b, err := archive.ReadAll(ctx, s.Archive, key)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, apperror.NotFound("object %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

func (s *stageBase) write(ctx context.Context, key string, body []byte, contentType string) error {
	if err := s.Archive.Put(ctx, key, bytes.NewReader(body), contentType); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *stageBase) writeFrom(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := s.Archive.Put(ctx, key, r, contentType); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// advance runs extra writes and moves the note to status in one transaction.
func (s *stageBase) advance(ctx context.Context, p objectpath.Path, status entity.NoteStatus, extra unitofwork.Work) error {
	err := s.Store.Run(ctx, p.Tenant, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		if extra != nil {
			if err := extra(ctx, uow); err != nil {
				return err
			}
		}
		ok, err := uow.AudioNoteRepository().AdvanceStatus(ctx, p.AudioKey, status)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("note %s of %s", p.AudioKey, p.Tenant)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Cache.Invalidate(ctx, p.Tenant, p.AudioKey)
	s.Notifier.NoteStatusChanged(ctx, p.Tenant, p.AudioKey, status, "")
	return nil
}

func (s *stageBase) publish(ctx context.Context, key string) error {
	ev := events.StageEvent{BucketName: s.Archive.Bucket(), ObjectKey: key}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// fail logs a stage failure and records it on the note. Recording is best effort: the
// original error is what the caller sees.
func (s *stageBase) fail(ctx context.Context, span trace.Span, p objectpath.Path, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	details := map[string]interface{}{
		"tenant":     p.Tenant.String(),
		"audio_key":  p.AudioKey,
		"stage":      s.name,
		"object_key": p.String(),
		"error":      cause.Error(),
		"permanent":  apperror.IsPermanent(cause),
	}
	s.Logger.Error("Pipeline", "stage failed", details)

	reason := fmt.Sprintf("%s: %s", s.name, cause.Error())
	err := s.Store.Run(context.WithoutCancel(ctx), p.Tenant, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.AudioNoteRepository().MarkFailed(ctx, p.AudioKey, reason)
	})
	if err != nil {
		s.Logger.Warn("Pipeline", "could not record stage failure", map[string]interface{}{
			"tenant":    p.Tenant.String(),
			"audio_key": p.AudioKey,
			"error":     err.Error(),
		})
	} else {
		s.Cache.Invalidate(ctx, p.Tenant, p.AudioKey)
		s.Notifier.NoteStatusChanged(ctx, p.Tenant, p.AudioKey, entity.StatusFailed, reason)
	}
	return cause
}
