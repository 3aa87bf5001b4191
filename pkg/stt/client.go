// Package stt drives an asynchronous speech-to-text job service: submit a job, then poll
// until it completes or fails.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	StatusQueued     = "QUEUED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

var DefaultLanguageOptions = []string{"en-US", "es-ES"}

var ErrJobFailed = errors.New("stt: transcription job failed")

type Config struct {
	Endpoint     string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Request is the job configuration sent along with the media bytes.
type Request struct {
	MediaURI         string   `json:"media_uri"`
	MediaFormat      string   `json:"media_format"`
	LanguageOptions  []string `json:"language_options"`
	IdentifyLanguage bool     `json:"identify_language"`
}

func NewRequest(mediaURI string) Request {
	return Request{
		MediaURI:         mediaURI,
		MediaFormat:      "webm",
		LanguageOptions:  DefaultLanguageOptions,
		IdentifyLanguage: true,
	}
}

type job struct {
	JobID         string          `json:"job_id"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// Result carries the provider document verbatim plus the fields the pipeline reads.
type Result struct {
	JobID        string
	Document     []byte
	Transcript   string
	LanguageCode string
}

type document struct {
	Results struct {
		LanguageCode string `json:"language_code"`
		Transcripts  []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

// ParseDocument extracts results.transcripts[0].transcript.
func ParseDocument(raw []byte) (transcript, language string, err error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", "", fmt.Errorf("decode transcript document: %w", err)
	}
	if len(doc.Results.Transcripts) == 0 {
		return "", "", fmt.Errorf("transcript document has no transcripts")
	}
	return doc.Results.Transcripts[0].Transcript, doc.Results.LanguageCode, nil
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

// Transcribe submits media and blocks until the job finishes, ctx ends or the configured
// timeout elapses.
func (c *Client) Transcribe(ctx context.Context, req Request, media io.Reader) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	j, err := c.start(ctx, req, media)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch j.Status {
		case StatusCompleted:
			transcript, lang, err := ParseDocument(j.Result)
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", j.JobID, err)
			}
			return &Result{JobID: j.JobID, Document: j.Result, Transcript: transcript, LanguageCode: lang}, nil
		case StatusFailed:
			return nil, fmt.Errorf("%w: job %s: %s", ErrJobFailed, j.JobID, j.FailureReason)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s: %w", j.JobID, ctx.Err())
		case <-ticker.C:
		}

		if j, err = c.get(ctx, j.JobID); err != nil {
			return nil, err
		}
	}
}

func (c *Client) start(ctx context.Context, req Request, media io.Reader) (*job, error) {
	config, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal job request: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("config", string(config)); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("media", "audio."+req.MediaFormat)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, media); err != nil {
		return nil, fmt.Errorf("buffer media: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/jobs", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(httpReq)
}

func (c *Client) get(ctx context.Context, jobID string) (*job, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*job, error) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stt response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stt api error (status %d): %s", resp.StatusCode, string(raw))
	}

	var j job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("decode stt job: %w", err)
	}
	if j.JobID == "" {
		return nil, fmt.Errorf("stt response without job_id")
	}
	return &j, nil
}
