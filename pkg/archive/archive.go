// Package archive stores pipeline artifacts (audio, transcripts) by object key.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNotFound = errors.New("archive: object not found")

const uriScheme = "archive://"

// Store is a flat key/value blob store split into buckets.
type Store interface {
	Bucket() string
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// URI is the stable reference to key stored in database rows.
	URI(key string) string
}

func URI(bucket, key string) string {
	return uriScheme + bucket + "/" + key
}

// SplitURI is the inverse of URI.
func SplitURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("archive: %q is not an archive uri", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("archive: %q is not an archive uri", uri)
	}
	return bucket, key, nil
}

// ReadAll fetches a whole object.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// validKey rejects keys that could escape the bucket.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("archive: invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("archive: invalid key %q", key)
		}
	}
	return nil
}
