package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/tenant"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedNote struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

func TestNoteCacheLocal(t *testing.T) {
	ctx := context.Background()
	c := NewNoteCache(nil, time.Minute, 0, logger.NewNopLogger())
	t1, _ := tenant.FromInt(1)
	t2, _ := tenant.FromInt(2)

	var got cachedNote
	assert.False(t, c.Get(ctx, t1, "k", &got))

	c.Set(ctx, t1, "k", cachedNote{Title: "Trip", Status: "READY"})
	require.True(t, c.Get(ctx, t1, "k", &got))
	assert.Equal(t, "Trip", got.Title)

	assert.False(t, c.Get(ctx, t2, "k", &got), "entries are per tenant")

	c.Invalidate(ctx, t1, "k")
	assert.False(t, c.Get(ctx, t1, "k", &got))
}

func TestNoteCacheSharedLevel(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	id, _ := tenant.FromInt(77)
	writer := NewNoteCache(rdb, time.Minute, time.Minute, logger.NewNopLogger())
	reader := NewNoteCache(rdb, time.Minute, time.Minute, logger.NewNopLogger())
	defer writer.Invalidate(ctx, id, "shared")

	writer.Set(ctx, id, "shared", cachedNote{Title: "From another instance"})

	var got cachedNote
	require.True(t, reader.Get(ctx, id, "shared", &got))
	assert.Equal(t, "From another instance", got.Title)
}
