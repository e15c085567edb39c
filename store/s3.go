package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/justapithecus/glean/awsconf"
	"github.com/justapithecus/glean/iox"
)

// DefaultPresignTTL is how long presigned URLs stay valid.
const DefaultPresignTTL = time.Hour

// DefaultMaxObjectBytes bounds a single fetch.
const DefaultMaxObjectBytes = 64 << 20

// S3Config holds configuration for the S3 backend.
type S3Config struct {
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
	// PresignTTL is the lifetime of presigned URLs (default 1h).
	PresignTTL time.Duration
	// MaxObjectBytes bounds Fetch (default 64 MiB).
	MaxObjectBytes int64
}

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presignAPI is the subset of the S3 presign client used by S3Store.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store is a Store backed by Amazon S3 or an S3-compatible service.
type S3Store struct {
	client   s3API
	presign  presignAPI
	ttl      time.Duration
	maxBytes int64
}

// NewS3Store creates an S3 store using the default credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsConfig, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.Region})
	if err != nil {
		return nil, err
	}
	return NewS3StoreFromConfig(awsConfig, cfg), nil
}

// NewS3StoreFromConfig creates an S3 store from a resolved aws.Config.
func NewS3StoreFromConfig(awsConfig aws.Config, cfg S3Config) *S3Store {
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)
	return newS3Store(client, s3.NewPresignClient(client), cfg)
}

func newS3Store(client s3API, presign presignAPI, cfg S3Config) *S3Store {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &S3Store{client: client, presign: presign, ttl: ttl, maxBytes: maxBytes}
}

// Fetch downloads bucket/key.
func (s *S3Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &Error{Kind: ErrNotFound, Op: "fetch", Bucket: bucket, Key: key, Err: err}
		}
		return nil, wrap("fetch", bucket, key, err)
	}
	defer iox.DiscardClose(out.Body)

	data, err := iox.ReadAllLimit(out.Body, s.maxBytes)
	if err != nil {
		return nil, wrap("fetch", bucket, key, fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

// Put uploads body to bucket/key with the given metadata.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.StorageClass != "" {
		in.StorageClass = s3types.StorageClass(opts.StorageClass)
	}
	if opts.ACL != "" {
		in.ACL = s3types.ObjectCannedACL(opts.ACL)
	}

	_, err := s.client.PutObject(ctx, in)
	return wrap("put", bucket, key, err)
}

// Presign returns a GET URL for bucket/key valid for the configured TTL.
func (s *S3Store) Presign(ctx context.Context, bucket, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", wrap("presign", bucket, key, err)
	}
	return req.URL, nil
}

var (
	_ Store     = (*S3Store)(nil)
	_ Presigner = (*S3Store)(nil)
)
