package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"voice2note-be/internal/dto"
	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/pkg/archive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		audioType   string
		wantExt     string
		wantErr     bool
	}{
		{"mime decides", "memo.bin", "audio/webm; codecs=opus", "recorded", "webm", false},
		{"extension fallback", "Memo.WAV", "application/octet-stream", "uploaded", "wav", false},
		{"unsupported format", "memo.ogg", "audio/ogg", "uploaded", "", true},
		{"bad audio type", "memo.mp3", "audio/mpeg", "podcast", "", true},
		{"missing audio type", "memo.mp3", "audio/mpeg", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tenantA)
			res, err := h.audio.Upload(context.Background(), tenantA, UploadAudioInput{
				File:        strings.NewReader("audio"),
				Filename:    tt.filename,
				ContentType: tt.contentType,
				AudioType:   tt.audioType,
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
				assert.Empty(t, h.store.tenant(tenantA).notes)
				assert.Empty(t, h.publisher.keys())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, string(entity.StatusRawUploaded), res.Status)

			rawKey := objectpath.RawAudio(tenantA, res.AudioKey, tt.wantExt)
			assert.Equal(t, []string{rawKey}, h.publisher.keys())
			note := h.note(t, tenantA, res.AudioKey)
			assert.Equal(t, h.archive.URI(rawKey), note.RawUri)
			assert.Equal(t, entity.AudioType(tt.audioType), note.AudioType)
		})
	}
}

func TestUploadToUnknownTenantLeavesNoNote(t *testing.T) {
	h := newHarness(t, tenantA)
	_, err := h.audio.Upload(context.Background(), tenantB, UploadAudioInput{
		File:        strings.NewReader("audio"),
		Filename:    "memo.mp3",
		ContentType: "audio/mpeg",
		AudioType:   "recorded",
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, h.publisher.keys())
	assert.Zero(t, h.archive.count(), "no raw object is archived for an unknown tenant")
}

func TestUploadSurvivesPublishFailure(t *testing.T) {
	h := newHarness(t, tenantA)
	h.publisher.err = errBoom
	key := h.upload(t, tenantA)
	assert.Equal(t, entity.StatusRawUploaded, h.note(t, tenantA, key).Status)

	h.publisher.err = nil
	res, err := h.notes.Reprocess(context.Background(), tenantA, key)
	require.NoError(t, err)
	assert.Equal(t, objectpath.RawAudio(tenantA, key, "mp3"), res.ObjectKey)
	require.NoError(t, h.drain(t))
	assert.Equal(t, entity.StatusReady, h.note(t, tenantA, key).Status)
}

func TestListAndShowNotes(t *testing.T) {
	h := newHarness(t, tenantA)
	ctx := context.Background()
	first := h.upload(t, tenantA)
	require.NoError(t, h.drain(t))
	second := h.upload(t, tenantA)

	list, err := h.notes.List(ctx, tenantA, &dto.ListNotesRequest{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].AudioKey)
	assert.Equal(t, string(entity.StatusRawUploaded), list[0].Status)
	assert.Equal(t, first, list[1].AudioKey)
	assert.Equal(t, string(entity.StatusReady), list[1].Status)
	assert.Equal(t, "ok", list[1].Preview)
	assert.Equal(t, "00:00:05.00", list[1].Duration)

	page, err := h.notes.List(ctx, tenantA, &dto.ListNotesRequest{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first, page[0].AudioKey)

	detail, err := h.notes.Show(ctx, tenantA, first)
	require.NoError(t, err)
	assert.Equal(t, h.stt.transcript, detail.TranscriptText)
	assert.Equal(t, "ok", detail.Title)
	assert.Empty(t, detail.EditedAt)

	_, err = h.notes.Show(ctx, tenantA, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestEditRevectorizesAndSkipsStaleTranscript(t *testing.T) {
	h := newHarness(t, tenantA)
	ctx := context.Background()
	key := h.upload(t, tenantA)

	_, err := h.notes.Edit(ctx, tenantA, key, &dto.EditNoteRequest{NoteTitle: strPtr("early")})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.step(t))
	}
	stale, ok := h.publisher.pop()
	require.True(t, ok)

	svc := h.notes.(*noteService)
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	edited := "book mountain cabin for winter"
	res, err := h.notes.Edit(ctx, tenantA, key, &dto.EditNoteRequest{TranscriptText: strPtr(edited)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.EditedAt)

	queued := h.publisher.keys()
	require.Len(t, queued, 1)
	p := mustKey(t, queued[0])
	assert.Equal(t, objectpath.KindProcessedTranscript, p.Kind)

	raw, err := archive.ReadAll(ctx, h.archive, queued[0])
	require.NoError(t, err)
	var doc entity.ProcessedTranscript
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, edited, doc.TranscriptText)
	assert.Equal(t, "ok", doc.NoteTitle)

	// The pre-edit document arrives late and must not overwrite the edit.
	require.NoError(t, h.dispatcher.Handle(ctx, stale))
	assert.Empty(t, h.store.tenant(tenantA).vectors)

	require.NoError(t, h.drain(t))
	hits, err := h.retrieval.Search(ctx, tenantA, edited, DefaultSearchK, DefaultSearchThreshold)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, edited, hits[0].Content)

	hits, err = h.retrieval.Search(ctx, tenantA, h.stt.transcript, DefaultSearchK, DefaultSearchThreshold)
	require.NoError(t, err)
	assert.Empty(t, hits)

	detail, err := h.notes.Show(ctx, tenantA, key)
	require.NoError(t, err)
	assert.Equal(t, edited, detail.TranscriptText)
	assert.Equal(t, res.EditedAt, detail.EditedAt)
}

func TestEditRequiresAField(t *testing.T) {
	h := newHarness(t, tenantA)
	_, err := h.notes.Edit(context.Background(), tenantA, "any", &dto.EditNoteRequest{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteHidesNoteAndVectors(t *testing.T) {
	h := newHarness(t, tenantA)
	ctx := context.Background()
	key := h.upload(t, tenantA)
	require.NoError(t, h.drain(t))

	require.NoError(t, h.notes.Delete(ctx, tenantA, key))

	_, err := h.notes.Show(ctx, tenantA, key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, h.notes.Delete(ctx, tenantA, key), apperror.ErrNotFound)

	hits, err := h.retrieval.Search(ctx, tenantA, h.stt.transcript, DefaultSearchK, DefaultSearchThreshold)
	require.NoError(t, err)
	assert.Empty(t, hits)

	list, err := h.notes.List(ctx, tenantA, &dto.ListNotesRequest{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReprocessResumesAfterLastCompletedStage(t *testing.T) {
	h := newHarness(t, tenantA)
	ctx := context.Background()
	key := h.upload(t, tenantA)
	h.publisher.pop()

	tests := []struct {
		status entity.NoteStatus
		want   objectpath.Kind
	}{
		{entity.StatusRawUploaded, objectpath.KindRawAudio},
		{entity.StatusTranscoded, objectpath.KindCompressedAudio},
		{entity.StatusTranscribed, objectpath.KindRawTranscript},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			h.store.tenant(tenantA).notes[key].Status = tt.status
			res, err := h.notes.Reprocess(ctx, tenantA, key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mustKey(t, res.ObjectKey).Kind)
			ev, ok := h.publisher.pop()
			require.True(t, ok)
			assert.Equal(t, res.ObjectKey, ev.ObjectKey)
		})
	}

	_, err := h.notes.Reprocess(ctx, tenantA, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAudioStreamsCompressedRecording(t *testing.T) {
	h := newHarness(t, tenantA)
	ctx := context.Background()
	key := h.upload(t, tenantA)

	_, err := h.notes.Audio(ctx, tenantA, key)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, h.step(t))
	rc, err := h.notes.Audio(ctx, tenantA, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "webm:ID3 fake mp3", string(b))
}
