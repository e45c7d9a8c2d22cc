package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/starford/versebook/internal/apperr"
)

// S3Options configures the S3-compatible asset store.
type S3Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	// PublicURL is the base under which uploaded objects are readable.
	// Defaults to <scheme>://<endpoint>/<bucket>.
	PublicURL string
}

// S3Assets stores attachments in an S3-compatible bucket instead of the
// document store.
type S3Assets struct {
	client    *minio.Client
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Assets validates opts and builds the object store client.
func NewS3Assets(opts S3Options) (*S3Assets, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 endpoint and bucket are required", apperr.ErrConfiguration)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 client: %w", err)
	}
	public := opts.PublicURL
	if public == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &S3Assets{
		client:    client,
		bucket:    opts.Bucket,
		prefix:    strings.Trim(opts.Prefix, "/"),
		publicURL: strings.TrimSuffix(public, "/"),
	}, nil
}

func (s *S3Assets) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// URL returns the public URL of the object stored under name.
func (s *S3Assets) URL(name string) string {
	return s.publicURL + "/" + s.key(name)
}

// Ping checks that the bucket exists.
func (s *S3Assets) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperr.Transport("s3: ping", 0, err)
	}
	if !ok {
		return fmt.Errorf("%w: bucket %s does not exist", apperr.ErrConfiguration, s.bucket)
	}
	return nil
}

// UploadAsset implements AssetStore.
func (s *S3Assets) UploadAsset(ctx context.Context, data []byte, name string) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("storage: invalid asset name: %q", name)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: http.DetectContentType(data)})
	if err != nil {
		return "", apperr.Transport("s3: put "+s.key(name), 0, err)
	}
	return s.URL(name), nil
}
