// Package s3store implements the asset store on an S3-compatible object
// store. Asset ids are object keys under a configurable prefix; the content
// address is the object key holding the current bytes. Swapping content in
// place is a server-side copy onto the stable key.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/vectorglue/svgsync/internal/assets"
)

// Options configures the S3-backed asset store.
type Options struct {
	// Bucket is the bucket holding all assets. Required.
	Bucket string

	// Prefix is prepended to every object key (e.g. "svg-assets").
	Prefix string

	// Region overrides the region from the default credential chain.
	Region string

	// Endpoint points the client at an S3-compatible service (MinIO etc.).
	// Path-style addressing is enabled when set.
	Endpoint string

	// Logger for wire diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store implements assets.Store on S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// New builds a Store from the default AWS credential chain and the given
// options.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3store: failed to load AWS config: %w", err)
	}
	if opts.Region != "" {
		cfg.Region = opts.Region
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, opts), nil
}

// NewWithClient wraps an existing S3 client. Used by tests and callers that
// manage their own AWS configuration.
func NewWithClient(client *s3.Client, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: logger,
	}
}

// CreateFromContent puts the content under a fresh uuid-based key and
// returns it as a new object. The content type is sniffed from the bytes.
func (s *Store) CreateFromContent(ctx context.Context, content []byte, filename string) (*assets.Object, error) {
	key := s.objectKey(uuid.NewString(), filename)
	contentType := mimetype.Detect(content).String()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: failed to put object %s: %w", key, err)
	}

	s.logger.Debug("created asset object", "key", key, "bytes", len(content), "contentType", contentType)
	return &assets.Object{ID: key, Address: key}, nil
}

// UpdateContent replaces the bytes behind id with the bytes at address via a
// server-side copy. The stable key (the id) is unchanged.
func (s *Store) UpdateContent(ctx context.Context, id, address string) error {
	source := s.bucket + "/" + address

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(id),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return fmt.Errorf("s3store: failed to copy %s onto %s: %w", address, id, err)
	}

	s.logger.Debug("replaced asset content", "key", id, "source", address)
	return nil
}

// Destroy deletes the object behind id.
func (s *Store) Destroy(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("s3store: failed to delete object %s: %w", id, err)
	}

	s.logger.Debug("deleted asset object", "key", id)
	return nil
}

// objectKey builds the full key for a new object.
func (s *Store) objectKey(id, filename string) string {
	if filename == "" {
		filename = "asset.svg"
	}
	return path.Join(s.prefix, id, filename)
}

// Compile-time interface check.
var _ assets.Store = (*Store)(nil)
