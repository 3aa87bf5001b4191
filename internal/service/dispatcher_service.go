package service

import (
	"context"

	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/pkg/events"
)

type IDispatcherService interface {
	// Handle routes a stage event. A nil return acknowledges the event; permanent failures
	// are acknowledged too so they are not redelivered forever.
	Handle(ctx context.Context, ev events.StageEvent) error
}

type dispatcherService struct {
	bucket string
	stages map[objectpath.Kind]Stage
	logger logger.ILogger
}

type StageSet struct {
	Transcoder    Stage
	Transcription Stage
	Summarization Stage
	Vectorization Stage
}

func NewDispatcherService(bucket string, stages StageSet, log logger.ILogger) IDispatcherService {
	return &dispatcherService{
		bucket: bucket,
		stages: map[objectpath.Kind]Stage{
			objectpath.KindRawAudio:            stages.Transcoder,
			objectpath.KindCompressedAudio:     stages.Transcription,
			objectpath.KindRawTranscript:       stages.Summarization,
			objectpath.KindProcessedTranscript: stages.Vectorization,
		},
		logger: log,
	}
}

func (d *dispatcherService) Handle(ctx context.Context, ev events.StageEvent) error {
	if d.bucket != "" && ev.BucketName != d.bucket {
		d.logger.Warn("Dispatcher", "event for foreign bucket ignored", map[string]interface{}{
			"bucket":     ev.BucketName,
			"object_key": ev.ObjectKey,
		})
		return nil
	}

	p, err := objectpath.Parse(ev.ObjectKey)
	if err != nil {
		d.logger.Error("Dispatcher", "unroutable object key", map[string]interface{}{
			"object_key": ev.ObjectKey,
			"error":      err.Error(),
		})
		return nil
	}

	stage, ok := d.stages[p.Kind]
	if !ok || stage == nil {
		d.logger.Debug("Dispatcher", "no stage for object kind", map[string]interface{}{
			"object_key": ev.ObjectKey,
			"kind":       p.Kind.String(),
		})
		return nil
	}

	err = stage.Handle(ctx, p)
	if err == nil {
		return nil
	}
	if apperror.IsPermanent(err) {
		d.logger.Warn("Dispatcher", "permanent stage failure acknowledged", map[string]interface{}{
			"stage":      stage.Name(),
			"object_key": ev.ObjectKey,
			"error":      err.Error(),
		})
		return nil
	}
	return err
}
