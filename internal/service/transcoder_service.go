package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/pkg/media"
)

// MediaProcessor converts and inspects audio files on local disk.
type MediaProcessor interface {
	ToWebM(ctx context.Context, format media.Format, in, out string) (string, error)
	Probe(ctx context.Context, in string) (media.Metadata, error)
}

// Metadata keys written by the transcoder.
const (
	MetaFormat           = "format"
	MetaDuration         = "duration"
	MetaBitRate          = "bit_rate"
	MetaAudioDetails     = "audio_details"
	MetaSize             = "size"
	MetaCompressedUri    = "compressed_uri"
	MetaCompressedKey    = "compressed_key"
	MetaConversionStatus = "conversion_status"
	MetaOriginalFilename = "original_filename"
)

type transcoderStage struct {
	stageBase
	media   MediaProcessor
	workDir string
}

// NewTranscoderStage handles raw uploads: MP3/WAV become Opus/WebM, WebM is re-encoded.
func NewTranscoderStage(deps PipelineDeps, proc MediaProcessor, workDir string) Stage {
	return &transcoderStage{
		stageBase: newStageBase("transcoder", deps),
		media:     proc,
		workDir:   workDir,
	}
}

func (s *transcoderStage) Handle(ctx context.Context, p objectpath.Path) error {
	ctx, span := s.startSpan(ctx, p)
	defer span.End()

	if err := s.transcode(ctx, p); err != nil {
		return s.fail(ctx, span, p, err)
	}
	return nil
}

func (s *transcoderStage) transcode(ctx context.Context, p objectpath.Path) error {
	format, err := media.ParseFormat(p.Ext)
	if err != nil {
		return err
	}
	if _, err := s.requireNote(ctx, p); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(s.workDir, "transcode-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input."+format.Ext())
	out := filepath.Join(dir, "output.webm")

	raw, err := s.read(ctx, p.String())
	if err != nil {
		return err
	}
	if err := os.WriteFile(in, raw, 0o600); err != nil {
		return fmt.Errorf("stage input: %w", err)
	}

	conversion, err := s.media.ToWebM(ctx, format, in, out)
	if err != nil {
		return apperror.Upstream(err, "transcode %s", p.AudioKey)
	}

	md, err := s.media.Probe(ctx, out)
	if errors.Is(err, media.ErrMissingDuration) {
		return apperror.Validation("audio %s has no duration", p.AudioKey)
	}
	if err != nil {
		return apperror.Upstream(err, "probe %s", p.AudioKey)
	}

	compressedKey := objectpath.CompressedAudio(p.Tenant, p.AudioKey)
	f, err := os.Open(out)
	if err != nil {
		return fmt.Errorf("open transcoded file: %w", err)
	}
	defer f.Close()
	if err := s.writeFrom(ctx, compressedKey, f, media.WEBM{}.MIME()); err != nil {
		return err
	}

	metadata := map[string]interface{}{
		MetaFormat:           format.Ext(),
		MetaDuration:         md.Duration,
		MetaBitRate:          md.BitRate,
		MetaAudioDetails:     md.AudioDetails,
		MetaSize:             md.Size,
		MetaCompressedUri:    s.Archive.URI(compressedKey),
		MetaCompressedKey:    compressedKey,
		MetaConversionStatus: conversion,
	}
	doc, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if err := s.write(ctx, objectpath.AudioMetadata(p.Tenant, p.AudioKey), doc, "application/json"); err != nil {
		return err
	}

	err = s.advance(ctx, p, entity.StatusTranscoded, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.AudioNoteRepository().MergeMetadata(ctx, p.AudioKey, metadata)
	})
	if err != nil {
		return err
	}

	s.Logger.Info("Pipeline", "audio transcoded", map[string]interface{}{
		"tenant":     p.Tenant.String(),
		"audio_key":  p.AudioKey,
		"conversion": conversion,
		"duration":   md.Duration,
	})
	return s.publish(ctx, compressedKey)
}
