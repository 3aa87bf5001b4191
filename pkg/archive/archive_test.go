package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURIRoundTrip(t *testing.T) {
	uri := URI("voice-notes", "tenant_1/audios/raw/k.mp3")
	assert.Equal(t, "archive://voice-notes/tenant_1/audios/raw/k.mp3", uri)

	bucket, key, err := SplitURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "voice-notes", bucket)
	assert.Equal(t, "tenant_1/audios/raw/k.mp3", key)

	for _, bad := range []string{"", "s3://b/k", "archive://", "archive://bucket", "archive:///k"} {
		_, _, err := SplitURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "voice-notes")
	require.NoError(t, err)

	key := "tenant_1/transcripts/raw/k.json"

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, key, strings.NewReader(`{"a":1}`), "application/json"))
	require.NoError(t, store.Put(ctx, key, strings.NewReader(`{"a":2}`), "application/json"))

	data, err := ReadAll(ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "b")
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../x", "tenant_1/../../x", "a//b"} {
		err := store.Put(context.Background(), key, strings.NewReader("x"), "")
		assert.Error(t, err, key)
	}
}
