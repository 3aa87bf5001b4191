package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"voice2note-be/internal/dto"
	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/archive"
	"voice2note-be/pkg/events"
	"voice2note-be/pkg/media"

	"github.com/google/uuid"
)

type UploadAudioInput struct {
	File        io.Reader
	Filename    string
	ContentType string
	AudioType   string
}

type IAudioService interface {
	Upload(ctx context.Context, id tenant.ID, in UploadAudioInput) (*dto.UploadAudioResponse, error)
}

type audioService struct {
	store     unitofwork.RepositoryFactory
	archive   archive.Store
	publisher events.Publisher
	logger    logger.ILogger
}

func NewAudioService(store unitofwork.RepositoryFactory, arch archive.Store, publisher events.Publisher, log logger.ILogger) IAudioService {
	return &audioService{
		store:     store,
		archive:   arch,
		publisher: publisher,
		logger:    log,
	}
}

// uploadFormat prefers the declared MIME type and falls back to the file extension.
func uploadFormat(contentType, filename string) (media.Format, error) {
	mime := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if f, ok := media.FormatForMIME(mime); ok {
		return f, nil
	}
	return media.ParseFormat(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func (s *audioService) Upload(ctx context.Context, id tenant.ID, in UploadAudioInput) (*dto.UploadAudioResponse, error) {
	audioType := entity.AudioType(in.AudioType)
	if !audioType.Valid() {
		return nil, apperror.Validation("audio_type must be %q or %q", entity.AudioTypeRecorded, entity.AudioTypeUploaded)
	}
	format, err := uploadFormat(in.ContentType, in.Filename)
	if err != nil {
		return nil, err
	}

	key, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	audioKey := key.String()
	rawKey := objectpath.RawAudio(id, audioKey, format.Ext())

	// Resolve the tenant before archiving so an unknown tenant leaves no orphaned object.
	if err := s.store.Run(ctx, id, func(context.Context, unitofwork.UnitOfWork) error { return nil }); err != nil {
		return nil, err
	}

	if err := s.archive.Put(ctx, rawKey, in.File, format.MIME()); err != nil {
		return nil, err
	}

	err = s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.AudioNoteRepository().Create(ctx, &entity.AudioNote{
			AudioKey:  audioKey,
			TenantId:  int64(id),
			RawUri:    s.archive.URI(rawKey),
			AudioType: audioType,
			Status:    entity.StatusRawUploaded,
			Metadata: map[string]interface{}{
				MetaFormat:           format.Ext(),
				MetaOriginalFilename: filepath.Base(in.Filename),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	// The note exists now; a lost event is recoverable through reprocess.
	if err := s.publisher.Publish(ctx, events.StageEvent{BucketName: s.archive.Bucket(), ObjectKey: rawKey}); err != nil {
		s.logger.Error("AudioService", "publish raw upload failed", map[string]interface{}{
			"tenant":     id.String(),
			"audio_key":  audioKey,
			"object_key": rawKey,
			"error":      err.Error(),
		})
	}

	s.logger.Info("AudioService", "audio uploaded", map[string]interface{}{
		"tenant":     id.String(),
		"audio_key":  audioKey,
		"format":     format.Ext(),
		"audio_type": string(audioType),
	})
	return &dto.UploadAudioResponse{AudioKey: audioKey, Status: string(entity.StatusRawUploaded)}, nil
}
