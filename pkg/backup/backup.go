// Package backup copies embedded graph snapshots to and from S3-compatible
// object storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
)

// ObjectStore is the part of the S3 API a backup needs
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Snapshotter produces an encoded snapshot (storage.GraphStorage does)
type Snapshotter interface {
	EncodeSnapshot() ([]byte, error)
}

// Restorer replaces a graph with an encoded snapshot (storage.GraphStorage does)
type Restorer interface {
	Restore(data []byte) error
}

// SnapshotContentType marks uploaded objects
const SnapshotContentType = "application/x-deconflict-snapshot"

// ErrNoBucket is returned when no bucket was configured
var ErrNoBucket = errors.New("backup bucket is not configured")

// Result describes a finished upload
type Result struct {
	Bucket string
	Key    string
	Size   int
	ETag   string
}

// Options configures a Backup
type Options struct {
	Bucket string
	Prefix string
	Logger logging.Logger
	Now    func() time.Time
}

// Backup uploads and downloads snapshots
type Backup struct {
	store  ObjectStore
	bucket string
	prefix string
	logger logging.Logger
	now    func() time.Time
}

// New creates a Backup over store
func New(store ObjectStore, opts Options) (*Backup, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Backup{
		store:  store,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: opts.Logger.With(logging.Component("backup")),
		now:    opts.Now,
	}, nil
}

// NewS3Client loads credentials from the default AWS chain. A non-empty
// endpoint targets an S3-compatible service with path-style addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// DefaultKey names a snapshot taken at t
func (b *Backup) DefaultKey(t time.Time) string {
	return path.Join(b.prefix, "deconflict-"+t.UTC().Format("20060102T150405Z")+".snap")
}

// Upload encodes src and stores it under key, or under DefaultKey when key is empty
func (b *Backup) Upload(ctx context.Context, src Snapshotter, key string) (*Result, error) {
	data, err := src.EncodeSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if key == "" {
		key = b.DefaultKey(b.now())
	}

	timer := logging.StartTimer(b.logger, "snapshot upload", logging.String("bucket", b.bucket), logging.String("key", key))
	out, err := b.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(data),
		ContentLength:     aws.Int64(int64(len(data))),
		ContentType:       aws.String(SnapshotContentType),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata:          map[string]string{"encoding": "snappy"},
	})
	if err != nil {
		timer.EndError(err)
		return nil, fmt.Errorf("failed to upload s3://%s/%s: %w", b.bucket, key, err)
	}
	timer.End()

	return &Result{
		Bucket: b.bucket,
		Key:    key,
		Size:   len(data),
		ETag:   aws.ToString(out.ETag),
	}, nil
}

// Restore downloads key and loads it into dst
func (b *Backup) Restore(ctx context.Context, key string, dst Restorer) error {
	if key == "" {
		return errors.New("restore needs an object key")
	}
	out, err := b.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", b.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("failed to read s3://%s/%s: %w", b.bucket, key, err)
	}
	if err := dst.Restore(data); err != nil {
		return fmt.Errorf("failed to restore s3://%s/%s: %w", b.bucket, key, err)
	}
	b.logger.Info("snapshot restored", logging.String("key", key), logging.Int("bytes", len(data)))
	return nil
}

// Bucket returns the configured bucket
func (b *Backup) Bucket() string {
	return b.bucket
}
