// Package archive uploads finalized attempt directories to S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/recorder"
)

var (
	ErrNoBucket   = errors.New("archive: no bucket configured")
	ErrIncomplete = errors.New("archive: attempt is not finalized")
)

// Config holds S3 client configuration.
type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the default S3 endpoint (for MinIO, LocalStack)
	Endpoint     string
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	Concurrency   int
	UploadTimeout time.Duration
}

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies attempt directories into a bucket.
type Uploader struct {
	client      ObjectPutter
	bucket      string
	prefix      string
	concurrency int
	timeout     time.Duration

	// OnFile is called after each uploaded file.
	OnFile func(name string, size int64)
}

// Result lists the uploaded objects.
type Result struct {
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys"`
	Bytes  int64    `json:"bytes"`
}

// New creates an uploader backed by the AWS SDK default credential chain.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient creates an uploader on an existing client.
func NewWithClient(client ObjectPutter, cfg Config) *Uploader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	return &Uploader{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		concurrency: cfg.Concurrency,
		timeout:     cfg.UploadTimeout,
	}
}

// KeyBase is the object key prefix for an attempt directory: its path below
// root when dir is inside root, otherwise its session and ordinal names.
func KeyBase(root, dir string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, dir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	clean := filepath.Clean(dir)
	return path.Join(filepath.Base(filepath.Dir(clean)), filepath.Base(clean))
}

// Upload puts every regular file of the attempt in dir below prefix/base.
func (u *Uploader) Upload(ctx context.Context, dir, base string) (*Result, error) {
	if !artifact.Exists(filepath.Join(dir, recorder.WorldTimestampsFile)) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrIncomplete, dir, recorder.WorldTimestampsFile)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt directory: %w", err)
	}

	metadata := map[string]string{}
	if fields, err := artifact.ReadFields(filepath.Join(dir, recorder.InfoFile)); err == nil {
		for _, f := range fields {
			switch f.Key {
			case "Recording UUID":
				metadata["recording-uuid"] = f.Value
			case "Recording Name":
				metadata["recording-name"] = f.Value
			}
		}
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := &Result{Bucket: u.bucket, Keys: make([]string, len(names))}
	sizes := make([]int64, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, name := range names {
		i, name := i, name
		key := path.Join(u.prefix, base, name)
		result.Keys[i] = key
		g.Go(func() error {
			size, err := u.put(gctx, filepath.Join(dir, name), key, metadata)
			if err != nil {
				return fmt.Errorf("upload %s: %w", name, err)
			}
			sizes[i] = size
			slog.Debug("Uploaded artifact", "key", key, "size", size)
			if u.OnFile != nil {
				u.OnFile(name, size)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range sizes {
		result.Bytes += s
	}
	return result, nil
}

func (u *Uploader) put(ctx context.Context, file, key string, metadata map[string]string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
		Metadata:      metadata,
	})
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".arrow":
		return "application/vnd.apache.arrow.file"
	case ".csv":
		return "text/tab-separated-values"
	case ".mkv":
		return "video/x-matroska"
	case ".mjpeg":
		return "video/x-motion-jpeg"
	case ".wav":
		return "audio/wav"
	}
	if filepath.Base(file) == recorder.PupilDataFile {
		return "application/json"
	}
	return "application/octet-stream"
}
