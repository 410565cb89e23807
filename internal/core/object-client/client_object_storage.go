package objectclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/core"
)

type S3Client struct {
	client *s3.Client
	bucket string
}

var _ ObjectClient = (*S3Client)(nil)

// NewS3Client uses static credentials when both keys are set and the default
// AWS credential chain otherwise. Endpoint points the client at MinIO or
// another S3 compatible server.
func NewS3Client(ctx context.Context, sc cfg.StorageConfig) (*S3Client, error) {
	if sc.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(sc.AwsRegion)}
	if sc.AwsAccessKey != "" && sc.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AwsAccessKey, sc.AwsSecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.UsePathStyle
	})
	slog.Info("s3 client ready", "region", sc.AwsRegion, "bucket", sc.BucketName, "endpoint", sc.Endpoint)

	return &S3Client{client: client, bucket: sc.BucketName}, nil
}

// DefaultBucket is used for locations that name only a key.
func (c *S3Client) DefaultBucket() string { return c.bucket }

func (c *S3Client) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

func (c *S3Client) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	n, err := manager.NewDownloader(c.client).Download(ctxGet, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 download failed: %w", err)
	}
	return n, nil
}

// ObjectStore adapts an ObjectClient to core.FileStore for s3:// and S3 https
// locations.
type ObjectStore struct {
	client        ObjectClient
	defaultBucket string
	tempDir       string
}

var _ core.FileStore = (*ObjectStore)(nil)

func NewObjectStore(client ObjectClient, defaultBucket string) *ObjectStore {
	return &ObjectStore{client: client, defaultBucket: defaultBucket}
}

func (s *ObjectStore) locate(loc string) (Location, error) {
	l, ok := ParseLocation(loc)
	if !ok {
		return Location{}, fmt.Errorf("not an object location: %q", loc)
	}
	if l.Bucket == "" {
		l.Bucket = s.defaultBucket
	}
	if l.Bucket == "" || l.Key == "" {
		return Location{}, fmt.Errorf("object location %q needs a bucket and a key", loc)
	}
	return l, nil
}

func (s *ObjectStore) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	l, err := s.locate(loc)
	if err != nil {
		return nil, err
	}
	return s.client.GetObjectReader(ctx, l.Bucket, l.Key)
}

// Materialize downloads the object into a temp file that keeps the key's
// extension, so type detection by suffix still works.
func (s *ObjectStore) Materialize(ctx context.Context, loc string) (string, func(), error) {
	l, err := s.locate(loc)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp(s.tempDir, "vectorsync-*"+path.Ext(l.Key))
	if err != nil {
		return "", nil, fmt.Errorf("temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	n, err := s.client.Download(ctx, l.Bucket, l.Key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}
	slog.Debug("object downloaded", "bucket", l.Bucket, "key", l.Key, "bytes", n, "path", f.Name())
	return f.Name(), cleanup, nil
}
