package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxObjectSize caps objects kept in Postgres.
const MaxObjectSize = 64 << 20

type objectRow struct {
	Bucket      string    `gorm:"column:bucket;primaryKey"`
	ObjectKey   string    `gorm:"column:object_key;primaryKey"`
	ContentType string    `gorm:"column:content_type"`
	Data        []byte    `gorm:"column:data"`
	Size        int64     `gorm:"column:size"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (objectRow) TableName() string {
	return "public.archive_objects"
}

// DBStore keeps objects in the management database, for deployments without a shared
// filesystem between the API and the workers.
type DBStore struct {
	db     *gorm.DB
	bucket string
}

func NewDBStore(db *gorm.DB, bucket string) *DBStore {
	return &DBStore{db: db, bucket: bucket}
}

func (s *DBStore) Bucket() string {
	return s.bucket
}

func (s *DBStore) URI(key string) string {
	return URI(s.bucket, key)
}

// Put overwrites: derived objects are rewritten whenever a stage reruns.
func (s *DBStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return fmt.Errorf("archive: read: %w", err)
	}
	if len(data) > MaxObjectSize {
		return fmt.Errorf("archive: %s exceeds maximum size of %d bytes", key, MaxObjectSize)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	row := &objectRow{
		Bucket:      s.bucket,
		ObjectKey:   key,
		ContentType: contentType,
		Data:        data,
		Size:        int64(len(data)),
		UpdatedAt:   time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "data", "size", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("archive: store %s: %w", key, err)
	}
	return nil
}

func (s *DBStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var row objectRow
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND object_key = ?", s.bucket, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(row.Data)), nil
}

func (s *DBStore) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&objectRow{}).
		Where("bucket = ? AND object_key = ?", s.bucket, key).
		Count(&count).Error
	return count > 0, err
}
