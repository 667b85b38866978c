package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore is the media storage capability: opaque put and time-limited
// read links. Keys are chosen by the store.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, contentType string) (key string, err error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewKey builds a unique object key under media/ with a date prefix.
func NewKey(now time.Time, contentType string) string {
	return path.Join("media", now.UTC().Format("2006/01/02"),
		fmt.Sprintf("%d_%s%s", now.Unix(), uuid.New().String(), extension(contentType)))
}

func extension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/octet-stream":
		return ".bin"
	default:
		return ".jpg"
	}
}
