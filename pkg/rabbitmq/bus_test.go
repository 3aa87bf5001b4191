package rabbitmq

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"voice2note-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusRequeuesOnceThenDrops(t *testing.T) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}

	conn, err := Dial(url, 3*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	bus, err := NewBus(conn, "test."+uuid.NewString(), nil)
	require.NoError(t, err)
	defer bus.Close()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = bus.Run(ctx, func(ctx context.Context, ev events.StageEvent) error {
			calls.Add(1)
			return errors.New("always failing")
		})
	}()

	require.NoError(t, bus.Publish(context.Background(), events.StageEvent{BucketName: "b", ObjectKey: "tenant_1/audios/raw/k.mp3"}))

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}
