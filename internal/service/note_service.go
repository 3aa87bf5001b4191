package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"voice2note-be/internal/dto"
	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/archive"
	"voice2note-be/pkg/events"
	"voice2note-be/pkg/utils"
)

const (
	defaultNotePageSize = 50
	notePreviewRunes    = 200
)

type INoteService interface {
	List(ctx context.Context, id tenant.ID, req *dto.ListNotesRequest) ([]*dto.NoteSummaryResponse, error)
	Show(ctx context.Context, id tenant.ID, audioKey string) (*dto.NoteDetailResponse, error)
	Edit(ctx context.Context, id tenant.ID, audioKey string, req *dto.EditNoteRequest) (*dto.EditNoteResponse, error)
	Delete(ctx context.Context, id tenant.ID, audioKey string) error
	Reprocess(ctx context.Context, id tenant.ID, audioKey string) (*dto.ReprocessNoteResponse, error)
	// Audio streams the compressed recording.
	Audio(ctx context.Context, id tenant.ID, audioKey string) (io.ReadCloser, error)
}

type noteService struct {
	store     unitofwork.RepositoryFactory
	archive   archive.Store
	publisher events.Publisher
	cache     NoteCache
	logger    logger.ILogger
	now       func() time.Time
}

func NewNoteService(
	store unitofwork.RepositoryFactory,
	arch archive.Store,
	publisher events.Publisher,
	cache NoteCache,
	log logger.ILogger,
) INoteService {
	if cache == nil {
		cache = nopCache{}
	}
	return &noteService{
		store:     store,
		archive:   arch,
		publisher: publisher,
		cache:     cache,
		logger:    log,
		now:       time.Now,
	}
}

func (s *noteService) List(ctx context.Context, id tenant.ID, req *dto.ListNotesRequest) ([]*dto.NoteSummaryResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultNotePageSize
	}

	var notes []*entity.AudioNote
	transcripts := map[string]*entity.Transcript{}
	err := s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		var err error
		notes, err = uow.AudioNoteRepository().FindAll(ctx, req.Offset, limit)
		if err != nil || len(notes) == 0 {
			return err
		}
		keys := make([]string, len(notes))
		for i, n := range notes {
			keys[i] = n.AudioKey
		}
		ts, err := uow.TranscriptRepository().FindByKeys(ctx, keys)
		if err != nil {
			return err
		}
		for _, t := range ts {
			transcripts[t.AudioKey] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]*dto.NoteSummaryResponse, 0, len(notes))
	for _, n := range notes {
		t := transcripts[n.AudioKey]
		preview := t.Summary()
		if preview == "" {
			preview = t.Text()
		}
		res = append(res, &dto.NoteSummaryResponse{
			AudioKey:   n.AudioKey,
			Title:      t.Title(),
			Preview:    utils.Truncate(preview, notePreviewRunes),
			Status:     string(n.EffectiveStatus()),
			StageError: n.StageError,
			AudioType:  string(n.AudioType),
			Duration:   n.MetadataString(MetaDuration),
			CreatedAt:  n.CreatedAt,
		})
	}
	return res, nil
}

// load fetches a live note and its transcript, which may still be nil.
func (s *noteService) load(ctx context.Context, id tenant.ID, audioKey string) (*entity.AudioNote, *entity.Transcript, error) {
	var note *entity.AudioNote
	var transcript *entity.Transcript
	err := s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		var err error
		if note, err = uow.AudioNoteRepository().FindByKey(ctx, audioKey); err != nil || note == nil {
			return err
		}
		transcript, err = uow.TranscriptRepository().FindByKey(ctx, audioKey)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if note == nil {
		return nil, nil, apperror.NotFound("note %s not found", audioKey)
	}
	return note, transcript, nil
}

func (s *noteService) Show(ctx context.Context, id tenant.ID, audioKey string) (*dto.NoteDetailResponse, error) {
	var cached dto.NoteDetailResponse
	if s.cache.Get(ctx, id, audioKey, &cached) {
		return &cached, nil
	}

	note, t, err := s.load(ctx, id, audioKey)
	if err != nil {
		return nil, err
	}

	res := &dto.NoteDetailResponse{
		AudioKey:       note.AudioKey,
		Title:          t.Title(),
		TranscriptText: t.Text(),
		SummaryText:    t.Summary(),
		Status:         string(note.EffectiveStatus()),
		StageError:     note.StageError,
		AudioType:      string(note.AudioType),
		Metadata:       note.Metadata,
		EditedAt:       t.EditedAt(),
		CreatedAt:      note.CreatedAt,
	}
	s.cache.Set(ctx, id, audioKey, res)
	return res, nil
}

// Edit merges the patch into the transcript and writes a fresh processed document, which
// is published so the note is re-vectorized from the edited text.
func (s *noteService) Edit(ctx context.Context, id tenant.ID, audioKey string, req *dto.EditNoteRequest) (*dto.EditNoteResponse, error) {
	if req.NoteTitle == nil && req.TranscriptText == nil {
		return nil, apperror.Validation("nothing to edit: set note_title or transcript_text")
	}

	note, t, err := s.load(ctx, id, audioKey)
	if err != nil {
		return nil, err
	}
	if note.Status.Rank() < entity.StatusSummarized.Rank() || t == nil {
		return nil, apperror.Validation("note %s is still being processed", audioKey)
	}

	now := s.now().UTC()
	editedAt := now.Format(time.RFC3339)
	processedKey := objectpath.ProcessedTranscript(id, audioKey, now.Unix())
	processedUri := s.archive.URI(processedKey)

	doc := entity.ProcessedTranscript{
		Tenant:         id.String(),
		ProcessedUri:   processedUri,
		NoteTitle:      t.Title(),
		TranscriptText: t.Text(),
		SummaryText:    t.Summary(),
	}
	patch := map[string]interface{}{
		entity.TranscriptKeyEditedAt:     editedAt,
		entity.TranscriptKeyProcessedUri: processedUri,
	}
	if req.NoteTitle != nil {
		doc.NoteTitle = *req.NoteTitle
		patch[entity.TranscriptKeyTitle] = *req.NoteTitle
	}
	if req.TranscriptText != nil {
		doc.TranscriptText = *req.TranscriptText
		patch[entity.TranscriptKeyText] = *req.TranscriptText
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := s.archive.Put(ctx, processedKey, bytes.NewReader(body), "application/json"); err != nil {
		return nil, err
	}

	err = s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.TranscriptRepository().Merge(ctx, audioKey, patch)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("note %s not found", audioKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id, audioKey)

	if err := s.publisher.Publish(ctx, events.StageEvent{BucketName: s.archive.Bucket(), ObjectKey: processedKey}); err != nil {
		s.logger.Error("NoteService", "publish edited transcript failed", map[string]interface{}{
			"tenant":     id.String(),
			"audio_key":  audioKey,
			"object_key": processedKey,
			"error":      err.Error(),
		})
	}

	return &dto.EditNoteResponse{AudioKey: audioKey, EditedAt: editedAt}, nil
}

func (s *noteService) Delete(ctx context.Context, id tenant.ID, audioKey string) error {
	err := s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.AudioNoteRepository().SoftDelete(ctx, audioKey)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("note %s not found", audioKey)
		}
		if err := uow.TranscriptRepository().SoftDeleteByKey(ctx, audioKey); err != nil {
			return err
		}
		return uow.NoteVectorRepository().SoftDeleteByAudioKey(ctx, audioKey)
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, id, audioKey)
	s.logger.Info("NoteService", "note deleted", map[string]interface{}{"tenant": id.String(), "audio_key": audioKey})
	return nil
}

// resumeKey is the object whose stage completed last; publishing it re-runs the next stage.
func (s *noteService) resumeKey(id tenant.ID, note *entity.AudioNote, t *entity.Transcript) (string, error) {
	switch note.Status {
	case entity.StatusRawUploaded:
		_, key, err := archive.SplitURI(note.RawUri)
		return key, err
	case entity.StatusTranscoded:
		return objectpath.CompressedAudio(id, note.AudioKey), nil
	case entity.StatusTranscribed:
		return objectpath.RawTranscript(id, note.AudioKey), nil
	default:
		if uri := t.ProcessedUri(); uri != "" {
			_, key, err := archive.SplitURI(uri)
			return key, err
		}
		return objectpath.RawTranscript(id, note.AudioKey), nil
	}
}

func (s *noteService) Reprocess(ctx context.Context, id tenant.ID, audioKey string) (*dto.ReprocessNoteResponse, error) {
	note, t, err := s.load(ctx, id, audioKey)
	if err != nil {
		return nil, err
	}

	key, err := s.resumeKey(id, note, t)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, events.StageEvent{BucketName: s.archive.Bucket(), ObjectKey: key}); err != nil {
		return nil, err
	}

	s.logger.Info("NoteService", "note reprocess requested", map[string]interface{}{
		"tenant":     id.String(),
		"audio_key":  audioKey,
		"object_key": key,
	})
	return &dto.ReprocessNoteResponse{AudioKey: audioKey, Status: string(note.EffectiveStatus()), ObjectKey: key}, nil
}

func (s *noteService) Audio(ctx context.Context, id tenant.ID, audioKey string) (io.ReadCloser, error) {
	note, _, err := s.load(ctx, id, audioKey)
	if err != nil {
		return nil, err
	}
	if note.Status.Rank() < entity.StatusTranscoded.Rank() {
		return nil, apperror.NotFound("audio of note %s is not ready", audioKey)
	}

	rc, err := s.archive.Get(ctx, objectpath.CompressedAudio(id, audioKey))
	if errors.Is(err, archive.ErrNotFound) {
		return nil, apperror.NotFound("audio of note %s not found", audioKey)
	}
	return rc, err
}
