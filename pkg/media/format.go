// Package media knows the supported audio containers and how to normalize them with ffmpeg.
package media

import (
	"strings"

	"voice2note-be/internal/pkg/apperror"
)

// Format is a closed set: MP3, WAV and WEBM are its only members. Code that behaves
// differently per format implements Handler and goes through Dispatch, so adding a
// format breaks every such site at compile time instead of falling through a string switch.
type Format interface {
	Ext() string
	MIME() string
	isFormat()
}

type MP3 struct{}
type WAV struct{}
type WEBM struct{}

func (MP3) Ext() string   { return "mp3" }
func (MP3) MIME() string  { return "audio/mpeg" }
func (MP3) isFormat()     {}
func (WAV) Ext() string   { return "wav" }
func (WAV) MIME() string  { return "audio/wav" }
func (WAV) isFormat()     {}
func (WEBM) Ext() string  { return "webm" }
func (WEBM) MIME() string { return "audio/webm" }
func (WEBM) isFormat()    {}

// Handler has one method per format.
type Handler[T any] interface {
	OnMP3(MP3) (T, error)
	OnWAV(WAV) (T, error)
	OnWEBM(WEBM) (T, error)
}

func Dispatch[T any](f Format, h Handler[T]) (T, error) {
	switch v := f.(type) {
	case MP3:
		return h.OnMP3(v)
	case WAV:
		return h.OnWAV(v)
	case WEBM:
		return h.OnWEBM(v)
	}
	// unreachable: Format cannot be implemented outside this package
	panic("media: unknown format")
}

func Formats() []Format {
	return []Format{MP3{}, WAV{}, WEBM{}}
}

// ParseFormat maps a file extension, with or without the dot, to its Format.
func ParseFormat(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range Formats() {
		if f.Ext() == ext {
			return f, nil
		}
	}
	return nil, apperror.Validation("unsupported audio format %q, only mp3, wav and webm are accepted", ext)
}

// FormatForMIME maps an upload content type to its Format. Parameters such as
// "; codecs=opus" are ignored.
func FormatForMIME(mime string) (Format, bool) {
	mime, _, _ = strings.Cut(mime, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, f := range Formats() {
		if f.MIME() == mime {
			return f, true
		}
	}
	return nil, false
}
