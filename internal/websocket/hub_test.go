package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil, "test", logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestNotifyStatusReachesOnlyOwningTenant(t *testing.T) {
	h := startHub(t)
	t1, _ := tenant.FromInt(1)
	t2, _ := tenant.FromInt(2)

	c1 := &Client{Hub: h, Tenant: t1, Send: make(chan []byte, 4)}
	c2 := &Client{Hub: h, Tenant: t2, Send: make(chan []byte, 4)}
	require.True(t, h.Register(c1))
	require.True(t, h.Register(c2))
	require.Eventually(t, func() bool { return h.Connections(t1) == 1 && h.Connections(t2) == 1 }, time.Second, 5*time.Millisecond)

	h.NotifyStatus(context.Background(), t1, StatusUpdate{AudioKey: "k1", Status: entity.StatusTranscoded})

	select {
	case frame := <-c1.Send:
		var env envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, "note_status", env.Type)
		assert.Equal(t, "k1", env.Data.AudioKey)
		assert.Equal(t, entity.StatusTranscoded, env.Data.Status)
	case <-time.After(time.Second):
		t.Fatal("owning tenant got nothing")
	}
	assert.Len(t, c2.Send, 0)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	id, _ := tenant.FromInt(3)

	c := &Client{Hub: h, Tenant: id, Send: make(chan []byte)}
	require.True(t, h.Register(c))
	require.Eventually(t, func() bool { return h.Connections(id) == 1 }, time.Second, 5*time.Millisecond)

	h.NotifyStatus(context.Background(), id, StatusUpdate{AudioKey: "k", Status: entity.StatusReady})

	assert.Equal(t, 0, h.Connections(id))
	_, open := <-c.Send
	assert.False(t, open)
}

func TestStoppedHubReleasesClientsWithoutBlocking(t *testing.T) {
	h := NewHub(nil, "test", logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	id, _ := tenant.FromInt(4)
	c := &Client{Hub: h, Tenant: id, Send: make(chan []byte, 1)}
	require.True(t, h.Register(c))
	require.Eventually(t, func() bool { return h.Connections(id) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, open := <-c.Send
	assert.False(t, open)

	released := make(chan struct{})
	go func() {
		h.Unregister(c)
		assert.False(t, h.Register(&Client{Hub: h, Tenant: id, Send: make(chan []byte, 1)}))
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked on a stopped hub")
	}
	assert.Equal(t, 0, h.Connections(id))
}
