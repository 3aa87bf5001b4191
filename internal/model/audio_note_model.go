package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AudioNote struct {
	AudioId    int64          `gorm:"column:audio_id;primaryKey;autoIncrement"`
	AudioKey   string         `gorm:"column:audio_key;type:varchar(64);uniqueIndex;not null"`
	TenantId   int64          `gorm:"column:tenant_id;not null"`
	RawUri     string         `gorm:"column:raw_uri;type:text;not null"`
	AudioType  string         `gorm:"column:audio_type;type:varchar(8);not null"`
	Status     string         `gorm:"column:status;type:varchar(16);not null;default:RAW_UPLOADED"`
	StageError *string        `gorm:"column:stage_error;type:text"`
	Metadata   datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (AudioNote) TableName() string {
	return "audios"
}
