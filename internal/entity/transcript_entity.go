package entity

import "time"

// Keys of the transcription document.
const (
	TranscriptKeyTitle        = "note_title"
	TranscriptKeyText         = "transcript_text"
	TranscriptKeySummary      = "summary_text"
	TranscriptKeyEditedAt     = "edited_at"
	TranscriptKeyProcessedUri = "processed_uri"
)

type Transcript struct {
	TranscriptId  int64
	AudioKey      string
	RawUri        string
	Transcription map[string]interface{}
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

func (t *Transcript) field(key string) string {
	if t == nil || t.Transcription == nil {
		return ""
	}
	if v, ok := t.Transcription[key].(string); ok {
		return v
	}
	return ""
}

func (t *Transcript) Title() string        { return t.field(TranscriptKeyTitle) }
func (t *Transcript) Text() string         { return t.field(TranscriptKeyText) }
func (t *Transcript) Summary() string      { return t.field(TranscriptKeySummary) }
func (t *Transcript) EditedAt() string     { return t.field(TranscriptKeyEditedAt) }
func (t *Transcript) ProcessedUri() string { return t.field(TranscriptKeyProcessedUri) }

// ProcessedTranscript is the document stored under transcripts/processed. Vectorization
// reads the transcript from it, so an edit writes a fresh one.
type ProcessedTranscript struct {
	Tenant         string `json:"tenant"`
	ProcessedUri   string `json:"processed_uri"`
	NoteTitle      string `json:"note_title"`
	TranscriptText string `json:"transcript_text"`
	SummaryText    string `json:"summary_text"`
}
