// Package objectpath builds and parses archive object keys. Stages are triggered by an
// object key alone, so this is the only place the layout is spelled out.
package objectpath

import (
	"fmt"
	"strconv"
	"strings"

	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/tenant"

	"github.com/google/uuid"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindRawAudio
	KindCompressedAudio
	KindAudioMetadata
	KindRawTranscript
	KindProcessedTranscript
)

func (k Kind) String() string {
	switch k {
	case KindRawAudio:
		return "audios/raw"
	case KindCompressedAudio:
		return "audios/compressed"
	case KindAudioMetadata:
		return "audios/metadata"
	case KindRawTranscript:
		return "transcripts/raw"
	case KindProcessedTranscript:
		return "transcripts/processed"
	default:
		return "unknown"
	}
}

// Path is a parsed object key.
type Path struct {
	Tenant   tenant.ID
	Kind     Kind
	AudioKey string
	// Ext is the lower-case extension of a raw audio object, without the dot.
	Ext string
	// Timestamp is the unix second embedded in a processed transcript key.
	Timestamp int64
}

func (p Path) String() string {
	prefix := p.Tenant.String() + "/" + p.Kind.String() + "/"
	switch p.Kind {
	case KindRawAudio:
		return prefix + p.AudioKey + "." + p.Ext
	case KindCompressedAudio:
		return prefix + p.AudioKey + ".webm"
	case KindAudioMetadata, KindRawTranscript:
		return prefix + p.AudioKey + ".json"
	case KindProcessedTranscript:
		return prefix + p.AudioKey + "_" + strconv.FormatInt(p.Timestamp, 10) + ".json"
	default:
		return ""
	}
}

func RawAudio(id tenant.ID, audioKey, ext string) string {
	return Path{Tenant: id, Kind: KindRawAudio, AudioKey: audioKey, Ext: strings.ToLower(ext)}.String()
}

func CompressedAudio(id tenant.ID, audioKey string) string {
	return Path{Tenant: id, Kind: KindCompressedAudio, AudioKey: audioKey}.String()
}

func AudioMetadata(id tenant.ID, audioKey string) string {
	return Path{Tenant: id, Kind: KindAudioMetadata, AudioKey: audioKey}.String()
}

func RawTranscript(id tenant.ID, audioKey string) string {
	return Path{Tenant: id, Kind: KindRawTranscript, AudioKey: audioKey}.String()
}

func ProcessedTranscript(id tenant.ID, audioKey string, unix int64) string {
	return Path{Tenant: id, Kind: KindProcessedTranscript, AudioKey: audioKey, Timestamp: unix}.String()
}

// Parse validates an object key against the layout. Anything else is a ValidationError,
// including a key whose tenant segment is not a valid tenant reference.
func Parse(objectKey string) (Path, error) {
	parts := strings.Split(objectKey, "/")
	if len(parts) != 4 {
		return Path{}, invalid(objectKey)
	}

	id, err := tenant.ParseRef(parts[0])
	if err != nil {
		return Path{}, invalid(objectKey)
	}

	p := Path{Tenant: id}
	name := parts[3]

	switch parts[1] + "/" + parts[2] {
	case KindRawAudio.String():
		dot := strings.LastIndexByte(name, '.')
		if dot <= 0 || dot == len(name)-1 {
			return Path{}, invalid(objectKey)
		}
		p.Kind = KindRawAudio
		p.AudioKey = name[:dot]
		p.Ext = strings.ToLower(name[dot+1:])
	case KindCompressedAudio.String():
		p.Kind = KindCompressedAudio
		p.AudioKey, err = trimSuffix(name, ".webm")
	case KindAudioMetadata.String():
		p.Kind = KindAudioMetadata
		p.AudioKey, err = trimSuffix(name, ".json")
	case KindRawTranscript.String():
		p.Kind = KindRawTranscript
		p.AudioKey, err = trimSuffix(name, ".json")
	case KindProcessedTranscript.String():
		var stem string
		if stem, err = trimSuffix(name, ".json"); err != nil {
			break
		}
		sep := strings.LastIndexByte(stem, '_')
		if sep <= 0 {
			err = fmt.Errorf("missing timestamp")
			break
		}
		p.Kind = KindProcessedTranscript
		p.AudioKey = stem[:sep]
		p.Timestamp, err = strconv.ParseInt(stem[sep+1:], 10, 64)
	default:
		return Path{}, invalid(objectKey)
	}
	if err != nil {
		return Path{}, invalid(objectKey)
	}

	if _, err := uuid.Parse(p.AudioKey); err != nil {
		return Path{}, invalid(objectKey)
	}
	return p, nil
}

func trimSuffix(name, suffix string) (string, error) {
	if !strings.HasSuffix(name, suffix) || len(name) == len(suffix) {
		return "", fmt.Errorf("want %s", suffix)
	}
	return strings.TrimSuffix(name, suffix), nil
}

func invalid(objectKey string) error {
	return apperror.Validation("object key %q does not follow the archive layout", objectKey)
}
