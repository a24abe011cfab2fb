package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"allenpipe/internal/services"
)

// Bucket opens release documents by slash-separated key.
type Bucket interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Location describes the bucket for log lines.
	Location() string
}

// DirBucket serves keys from an unpacked release directory.
type DirBucket struct {
	root string
}

// NewDirBucket returns a bucket rooted at dir.
func NewDirBucket(dir string) *DirBucket {
	return &DirBucket{root: dir}
}

// Open implements Bucket.
func (b *DirBucket) Open(_ context.Context, key string) (io.ReadCloser, error) {
	clean := path.Clean("/" + key)
	file, err := os.Open(filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "release", "open", key, err)
		}
		return nil, services.Wrap(services.ErrFetch, "release", "open", key, err)
	}
	return file, nil
}

// Location implements Bucket.
func (b *DirBucket) Location() string {
	return b.root
}

// S3Options configures an S3Bucket.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional; custom endpoint such as MinIO
	PathStyle       bool
	AccessKeyID     string // optional; default credential chain otherwise
	SecretAccessKey string
	HTTPClient      *http.Client // optional transport override
}

// S3Bucket serves keys from an S3-compatible object store.
type S3Bucket struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Bucket builds an S3 client from opts.
func NewS3Bucket(ctx context.Context, opts S3Options) (*S3Bucket, error) {
	if opts.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "release", "s3", "bucket required", nil)
	}
	region := opts.Region
	if region == "" {
		region = "us-west-2"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "release", "s3", "load aws config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.PathStyle {
			o.UsePathStyle = true
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
	})
	return &S3Bucket{client: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/")}, nil
}

// Open implements Bucket.
func (b *S3Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := b.objectKey(key)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &objectKey})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, services.Wrap(services.ErrNotFound, "release", "get object", objectKey, err)
		}
		return nil, services.Wrap(services.ErrFetch, "release", "get object", objectKey, err)
	}
	return out.Body, nil
}

// Location implements Bucket.
func (b *S3Bucket) Location() string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.prefix)
}

func (b *S3Bucket) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}
