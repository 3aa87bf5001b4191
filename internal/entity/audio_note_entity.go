package entity

import (
	"time"
)

type AudioType string

const (
	AudioTypeRecorded AudioType = "recorded"
	AudioTypeUploaded AudioType = "uploaded"
)

func (t AudioType) Valid() bool {
	return t == AudioTypeRecorded || t == AudioTypeUploaded
}

// NoteStatus is the pipeline position of an AudioNote. It only moves forward.
type NoteStatus string

const (
	StatusRawUploaded NoteStatus = "RAW_UPLOADED"
	StatusTranscoded  NoteStatus = "TRANSCODED"
	StatusTranscribed NoteStatus = "TRANSCRIBED"
	StatusSummarized  NoteStatus = "SUMMARIZED"
	StatusVectorized  NoteStatus = "VECTORIZED"
	StatusReady       NoteStatus = "READY"
	// StatusFailed is reported, never stored: a note whose last stage failed keeps its
	// stored status and carries StageError.
	StatusFailed NoteStatus = "FAILED"
)

var statusOrder = []NoteStatus{
	StatusRawUploaded,
	StatusTranscoded,
	StatusTranscribed,
	StatusSummarized,
	StatusVectorized,
	StatusReady,
}

// Rank is the position of s in the pipeline, -1 for unknown or FAILED.
func (s NoteStatus) Rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Before lists every stored status that precedes s.
func (s NoteStatus) Before() []NoteStatus {
	r := s.Rank()
	if r <= 0 {
		return nil
	}
	out := make([]NoteStatus, r)
	copy(out, statusOrder[:r])
	return out
}

type AudioNote struct {
	AudioId    int64
	AudioKey   string
	TenantId   int64
	RawUri     string
	AudioType  AudioType
	Status     NoteStatus
	StageError *string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// EffectiveStatus folds a recorded stage failure into the reported status.
func (a *AudioNote) EffectiveStatus() NoteStatus {
	if a.StageError != nil {
		return StatusFailed
	}
	return a.Status
}

func (a *AudioNote) MetadataString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[key].(string); ok {
		return v
	}
	return ""
}
