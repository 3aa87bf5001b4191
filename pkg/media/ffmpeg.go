package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

const (
	ConversionConverted = "converted"
	ConversionReencoded = "reencoded"
)

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path}
}

// webmPlan is the ffmpeg invocation that turns one input format into Opus/WebM.
type webmPlan struct {
	args   []string
	status string
}

type webmPlanner struct {
	in, out string
}

func (p webmPlanner) convert() webmPlan {
	return webmPlan{
		args:   []string{"-y", "-i", p.in, "-c:a", "libopus", p.out},
		status: ConversionConverted,
	}
}

func (p webmPlanner) OnMP3(MP3) (webmPlan, error) { return p.convert(), nil }
func (p webmPlanner) OnWAV(WAV) (webmPlan, error) { return p.convert(), nil }

// WebM uploads from browsers often lack a duration header; re-encoding rewrites it.
func (p webmPlanner) OnWEBM(WEBM) (webmPlan, error) {
	return webmPlan{
		args:   []string{"-y", "-i", p.in, "-map_metadata", "-1", "-c:v", "copy", "-c:a", "libopus", p.out},
		status: ConversionReencoded,
	}, nil
}

// ToWebM writes in, of format f, to out as Opus/WebM and reports how it got there.
func (f *FFmpeg) ToWebM(ctx context.Context, format Format, in, out string) (string, error) {
	plan, err := Dispatch[webmPlan](format, webmPlanner{in: in, out: out})
	if err != nil {
		return "", err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, plan.args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("media: ffmpeg %s -> webm: %w: %s", format.Ext(), err, tail(stderr.Bytes()))
	}
	return plan.status, nil
}

// Probe reads duration, bitrate and the audio stream line of a file.
func (f *FFmpeg) Probe(ctx context.Context, in string) (Metadata, error) {
	info, err := os.Stat(in)
	if err != nil {
		return Metadata{}, fmt.Errorf("media: probe: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, "-hide_banner", "-i", in)
	cmd.Stderr = &stderr
	// without an output file ffmpeg always exits 1 after printing the input banner
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Metadata{}, fmt.Errorf("media: probe: %w", err)
		}
	}

	return ParseProbe(stderr.String(), info.Size())
}

func tail(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[len(b)-max:]
	}
	return string(bytes.TrimSpace(b))
}
