package remote

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
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/pkg/types"
)

// checksumKey is the user metadata key holding the payload checksum.
const checksumKey = "checksum"

// S3Config holds configuration for the S3 backend.
type S3Config struct {
	// Bucket holding the backup object
	Bucket string
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// Prefix is the hidden key prefix objects live under.
	Prefix string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region: "us-east-1",
		Prefix: ".interntrack/",
	}
}

// s3API is the part of *s3.Client the backend uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Backend implements Backend on one key under a hidden bucket prefix.
// The object key doubles as its id, so updates keep identity.
type S3Backend struct {
	client s3API
	cfg    S3Config
}

// NewS3Backend creates an S3 backend using the ambient AWS credential chain.
// The client makes a single attempt per call; retrying is left to the user.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, transportError("load AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3BackendWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewS3BackendWithClient creates an S3 backend with a pre-configured client.
func NewS3BackendWithClient(client s3API, cfg S3Config) *S3Backend {
	return &S3Backend{client: client, cfg: cfg}
}

func (s *S3Backend) key(name string) string {
	return path.Join(s.cfg.Prefix, name)
}

// List implements Backend. A key holds at most one object.
func (s *S3Backend) List(ctx context.Context, name string) ([]types.ObjectMeta, error) {
	key := s.key(name)
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, s3Error("head "+key, err)
	}

	return []types.ObjectMeta{{
		ID:           key,
		Name:         name,
		ModifiedTime: aws.ToTime(resp.LastModified).UTC(),
		Size:         aws.ToInt64(resp.ContentLength),
		Checksum:     resp.Metadata[checksumKey],
	}}, nil
}

// Create implements Backend.
func (s *S3Backend) Create(ctx context.Context, name string, body []byte, props Properties) (*types.ObjectMeta, error) {
	return s.put(ctx, s.key(name), name, body, props)
}

// Update implements Backend.
func (s *S3Backend) Update(ctx context.Context, id string, body []byte, props Properties) (*types.ObjectMeta, error) {
	return s.put(ctx, id, path.Base(id), body, props)
}

func (s *S3Backend) put(ctx context.Context, key, name string, body []byte, props Properties) (*types.ObjectMeta, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      map[string]string{checksumKey: props.Checksum},
	}
	if props.ContentType != "" {
		input.ContentType = aws.String(props.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, s3Error("put "+key, err)
	}
	return &types.ObjectMeta{
		ID:           key,
		Name:         name,
		ModifiedTime: time.Now().UTC(),
		Size:         int64(len(body)),
		Checksum:     props.Checksum,
	}, nil
}

// Read implements Backend.
func (s *S3Backend) Read(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, s3Error("get "+id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("read "+id, err)
	}
	return data, nil
}

// Account implements Backend. S3 has no user profile; the bucket location
// stands in for it.
func (s *S3Backend) Account(ctx context.Context) (*types.Account, error) {
	return &types.Account{DisplayName: fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, s.cfg.Prefix)}, nil
}

func isS3NotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// s3Error classifies credential rejections as auth failures.
func s3Error(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ExpiredToken", "ExpiredTokenException", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "InvalidToken":
			return authError(op, err)
		}
	}
	return transportError(op, err)
}

// S3Provider opens S3Backends. Credentials come from the AWS chain, so no
// session is needed.
type S3Provider struct {
	Config S3Config
}

// Name implements Provider.
func (p *S3Provider) Name() string { return "s3" }

// Configured implements Provider.
func (p *S3Provider) Configured() bool { return p.Config.Bucket != "" }

// NeedsSession implements Provider.
func (p *S3Provider) NeedsSession() bool { return false }

// Open implements Provider.
func (p *S3Provider) Open(ctx context.Context, _ *session.Session) (Backend, error) {
	return NewS3Backend(ctx, p.Config)
}
