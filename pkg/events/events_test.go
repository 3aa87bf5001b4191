package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    StageEvent
		wantErr bool
	}{
		{"valid", `{"bucketName":"notes","objectKey":"tenant_1/audios/raw/k.mp3"}`, StageEvent{"notes", "tenant_1/audios/raw/k.mp3"}, false},
		{"not json", `nope`, StageEvent{}, true},
		{"missing key", `{"bucketName":"notes"}`, StageEvent{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func startBus(t *testing.T, retry RetryConfig, h Handler) (*GoChannelBus, context.CancelFunc) {
	t.Helper()
	bus, err := NewGoChannelBus(nil, retry)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = bus.Run(ctx, h) }()
	select {
	case <-bus.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not start")
	}

	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
	})
	return bus, cancel
}

func TestGoChannelBusDelivers(t *testing.T) {
	var mu sync.Mutex
	var got []StageEvent

	bus, _ := startBus(t, DefaultRetryConfig(), func(ctx context.Context, ev StageEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})

	ev := StageEvent{BucketName: "notes", ObjectKey: "tenant_1/audios/raw/k.mp3"}
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == ev
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGoChannelBusRetriesThenPoisons(t *testing.T) {
	var calls atomic.Int32
	retry := RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	bus, _ := startBus(t, retry, func(ctx context.Context, ev StageEvent) error {
		calls.Add(1)
		return errors.New("speech service down")
	})

	poison, err := bus.Poison(context.Background())
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), StageEvent{BucketName: "notes", ObjectKey: "tenant_1/audios/compressed/k.webm"}))

	select {
	case msg := <-poison:
		msg.Ack()
		ev, err := Decode(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "tenant_1/audios/compressed/k.webm", ev.ObjectKey)
	case <-time.After(3 * time.Second):
		t.Fatal("message never reached the poison queue")
	}
	assert.Equal(t, int32(3), calls.Load())
}
