package dto

import (
	"time"
)

type UploadAudioResponse struct {
	AudioKey string `json:"audio_key"`
	Status   string `json:"status"`
}

type NoteSummaryResponse struct {
	AudioKey   string    `json:"audio_key"`
	Title      string    `json:"title"`
	Preview    string    `json:"preview"`
	Status     string    `json:"status"`
	StageError *string   `json:"stage_error,omitempty"`
	AudioType  string    `json:"audio_type"`
	Duration   string    `json:"duration,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListNotesRequest struct {
	Offset int `query:"offset" validate:"gte=0"`
	Limit  int `query:"limit" validate:"gte=0,lte=100"`
}

type NoteDetailResponse struct {
	AudioKey       string                 `json:"audio_key"`
	Title          string                 `json:"title"`
	TranscriptText string                 `json:"transcript_text"`
	SummaryText    string                 `json:"summary_text"`
	Status         string                 `json:"status"`
	StageError     *string                `json:"stage_error,omitempty"`
	AudioType      string                 `json:"audio_type"`
	Metadata       map[string]interface{} `json:"metadata"`
	EditedAt       string                 `json:"edited_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// EditNoteRequest is a merge patch: nil fields are left untouched.
type EditNoteRequest struct {
	NoteTitle      *string `json:"note_title" validate:"omitempty,min=1,max=255"`
	TranscriptText *string `json:"transcript_text" validate:"omitempty,min=1"`
}

type EditNoteResponse struct {
	AudioKey string `json:"audio_key"`
	EditedAt string `json:"edited_at"`
}

type ReprocessNoteResponse struct {
	AudioKey  string `json:"audio_key"`
	Status    string `json:"status"`
	ObjectKey string `json:"object_key"`
}
