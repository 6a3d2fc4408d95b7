package clientstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// expiresMetadata is the object metadata key holding the snapshot expiry.
const expiresMetadata = "jj-expires-at"

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps one object per snapshot under a key prefix. Expiry is kept in
// object metadata and checked on Load; pair it with a bucket lifecycle rule
// to reclaim space.
//
// Example usage:
//
//	client := s3.New(s3.Options{Region: "us-east-1", Credentials: creds})
//	store := clientstore.NewS3Store(client, "my-bucket", "jj/")
type S3Store struct {
	client S3API
	bucket string
	prefix string

	mu     sync.RWMutex
	closed bool
}

// NewS3Store creates a new S3-backed store.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint  string
	PathStyle bool
}

// NewS3Client builds an S3 client from opts. Credentials come from the
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN environment
// variables.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.PathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return s3.New(o)
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("clientstore: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key) + ".json"
}

func (s *S3Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Save uploads a snapshot.
func (s *S3Store) Save(ctx context.Context, key string, data []byte, expiresAt time.Time) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			expiresMetadata: expiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("clientstore: put %s: %w", key, err)
	}
	return nil
}

// Load downloads a snapshot. A missing object or one past its expiry loads
// as (nil, nil).
func (s *S3Store) Load(ctx context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed{}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("clientstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	if raw, ok := out.Metadata[expiresMetadata]; ok {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err == nil && time.Now().After(expiresAt) {
			return nil, nil
		}
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("clientstore: read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a snapshot.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("clientstore: delete %s: %w", key, err)
	}
	return nil
}

// Close marks the store closed. The client is not owned by the store.
func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
