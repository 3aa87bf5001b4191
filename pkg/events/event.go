package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	StageTopic  = "pipeline.stage"
	PoisonTopic = "pipeline.poison"
)

// ErrMalformed marks a payload that can never be processed. Buses acknowledge it.
var ErrMalformed = errors.New("malformed stage event")

// StageEvent announces that an object was written to the archive and its stage committed.
type StageEvent struct {
	BucketName string `json:"bucketName"`
	ObjectKey  string `json:"objectKey"`
}

func (e StageEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(payload []byte) (StageEvent, error) {
	var ev StageEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return StageEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(ev.ObjectKey) == "" {
		return StageEvent{}, fmt.Errorf("%w: empty objectKey", ErrMalformed)
	}
	return ev, nil
}

// Handler processes one event. A nil return acknowledges it; an error asks the bus to
// redeliver.
type Handler func(ctx context.Context, ev StageEvent) error

type Publisher interface {
	Publish(ctx context.Context, ev StageEvent) error
}

// Subscriber delivers events to h until ctx is cancelled.
type Subscriber interface {
	Run(ctx context.Context, h Handler) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}
