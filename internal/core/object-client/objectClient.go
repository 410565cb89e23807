package objectclient

import (
	"context"
	"io"
)

// ObjectClient reads objects from S3 or an S3 compatible store such as MinIO.
type ObjectClient interface {
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Download writes the whole object to w and returns the bytes written.
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}
