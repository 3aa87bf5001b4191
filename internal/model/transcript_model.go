package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Transcript struct {
	TranscriptId  int64          `gorm:"column:transcript_id;primaryKey;autoIncrement"`
	AudioKey      string         `gorm:"column:audio_key;type:varchar(64);uniqueIndex;not null"`
	RawUri        string         `gorm:"column:raw_uri;type:text"`
	Transcription datatypes.JSON `gorm:"column:transcription;type:jsonb"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	DeletedAt     gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Transcript) TableName() string {
	return "transcripts"
}
