package media

import (
	"errors"
	"strings"
)

var ErrMissingDuration = errors.New("media: missing duration in probe output")

// Metadata is what ffmpeg reports about an input file.
type Metadata struct {
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	AudioDetails string `json:"audio_details,omitempty"`
	Size         int64  `json:"size"`
}

// ParseProbe reads the banner ffmpeg prints to stderr for `ffmpeg -i file`, e.g.
//
//	Duration: 00:00:12.48, start: 0.000000, bitrate: 128 kb/s
//	Stream #0:0: Audio: mp3, 44100 Hz, stereo, fltp, 128 kb/s
func ParseProbe(output string, size int64) (Metadata, error) {
	md := Metadata{BitRate: "N/A", Size: size}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Duration:") {
			parts := strings.Split(line, ", ")
			if d, ok := strings.CutPrefix(parts[0], "Duration: "); ok {
				md.Duration = strings.TrimSpace(d)
			}
			if b, ok := strings.CutPrefix(parts[len(parts)-1], "bitrate: "); ok {
				md.BitRate = strings.TrimSpace(b)
			}
		}
		if md.AudioDetails == "" && strings.HasPrefix(line, "Stream") && strings.Contains(line, "Audio") {
			md.AudioDetails = line
		}
	}

	if md.Duration == "" || md.Duration == "N/A" || md.Duration == "00:00:00" || md.Duration == "00:00:00.00" {
		return md, ErrMissingDuration
	}
	return md, nil
}
