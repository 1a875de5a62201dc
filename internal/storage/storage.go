package storage

import "context"

// ObjectInfo represents metadata for a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the batch
// archive needs: rejected or duplicate ingestion batches are written here
// for forensic replay.
type ObjectStorage interface {
	UploadObject(ctx context.Context, key string, data []byte) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Noop discards archives; used when the archive is disabled.
type Noop struct{}

func (Noop) UploadObject(ctx context.Context, key string, data []byte) error { return nil }
func (Noop) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return nil, nil
}
