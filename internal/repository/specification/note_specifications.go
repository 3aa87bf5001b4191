package specification

import (
	"gorm.io/gorm"
)

type ByAudioKey struct {
	AudioKey string
}

func (s ByAudioKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("audio_key = ?", s.AudioKey)
}

type ByAudioKeys struct {
	AudioKeys []string
}

func (s ByAudioKeys) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("audio_key IN ?", s.AudioKeys)
}
