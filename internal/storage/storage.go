// Package storage holds document payload bytes in object storage when the
// durable backend is configured to keep them out of the database.
package storage

import (
	"context"
	"io"
)

// BlobStore defines common payload operations across backends.
type BlobStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// PayloadKey returns the object key for a document's payload.
func PayloadKey(documentID string) string {
	return "documents/" + documentID
}
