package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// s3Client is the minimal minio.Client surface S3Blob depends on. Narrowing
// the interface (rather than depending on *minio.Client directly) keeps the
// backend testable with a fake.
type s3Client interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// S3Config configures a Blob backed by an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// ChunkSize is the multipart upload part size in bytes. Zero lets
	// minio-go choose its own default part size.
	ChunkSize int64
}

// S3Blob is the concrete Blob implementation for S3-compatible stores.
type S3Blob struct {
	client   s3Client
	bucket   string
	prefix   string
	partSize uint64
	logger   *slog.Logger
}

// NewS3Blob constructs a Blob backed by an S3-compatible endpoint via
// minio-go, mirroring the credentials.NewStaticV4 + minio.New wiring used
// elsewhere in this pack's S3 uploader components.
func NewS3Blob(cfg S3Config, logger *slog.Logger) (*S3Blob, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: creating S3 client: %w", err)
	}

	var partSize uint64
	if cfg.ChunkSize > 0 {
		partSize = uint64(cfg.ChunkSize)
	}

	return &S3Blob{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, partSize: partSize, logger: logger}, nil
}

func (s *S3Blob) fullKey(key string) string {
	return s.prefix + key
}

// Head implements Blob.
func (s *S3Blob) Head(ctx context.Context, key string) (*HeadResult, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.fullKey(key), minio.StatObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("blob: head %s: %w", key, err)
	}

	md := make(Metadata, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		md[k] = v
	}

	return &HeadResult{Size: info.Size, Metadata: md}, nil
}

// Put implements Blob.
func (s *S3Blob) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata Metadata, storageClass string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string(metadata),
		StorageClass: storageClass,
		PartSize:     s.partSize,
	}

	if _, err := s.client.PutObject(ctx, s.bucket, s.fullKey(key), r, size, opts); err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}

	return nil
}

// PutJSON implements Blob.
func (s *S3Blob) PutJSON(ctx context.Context, key string, value any) error {
	return putJSON(ctx, s, key, value)
}

// GetJSON implements Blob.
func (s *S3Blob) GetJSON(ctx context.Context, key string, value any) error {
	obj, err := s.client.GetObject(ctx, s.bucket, s.fullKey(key), minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("blob: get %s: %w", key, err)
	}
	defer obj.Close()

	// minio lazily surfaces 404s on first Read, not on GetObject itself.
	if _, statErr := obj.Stat(); statErr != nil {
		var resp minio.ErrorResponse
		if errors.As(statErr, &resp) && resp.Code == "NoSuchKey" {
			return ErrNotFound
		}

		return fmt.Errorf("blob: stat %s: %w", key, statErr)
	}

	return getJSON(obj, value)
}

var _ Blob = (*S3Blob)(nil)
