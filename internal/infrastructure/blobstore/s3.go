package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// S3Options configures an S3-compatible blob store
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	TempDir   string
}

// S3Store keeps blobs as objects in one bucket
type S3Store struct {
	client  s3iface.S3API
	bucket  string
	prefix  string
	tempDir string
}

var _ repository.BlobStore = (*S3Store)(nil)

// NewS3Store opens a session against the configured endpoint. Path-style
// addressing keeps MinIO-style endpoints working.
func NewS3Store(opts S3Options) (*S3Store, error) {
	cfg := &aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(!opts.UseSSL),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), opts), nil
}

// NewS3StoreWithClient wraps an existing S3 client
func NewS3StoreWithClient(client s3iface.S3API, opts S3Options) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  opts.Bucket,
		prefix:  opts.Prefix,
		tempDir: opts.TempDir,
	}
}

// Put uploads the content unless an object already exists under key.
// The HeadObject check avoids sending a body that would be rejected; the
// conditional PutObject makes the store itself refuse to overwrite.
// PutObject is atomic from the reader's point of view: a failed upload
// leaves no object behind.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	switch {
	case err == nil:
		return 0, fmt.Errorf("%w: %s", repository.ErrBlobExists, key)
	case !isNotFound(err):
		return 0, fmt.Errorf("failed to check blob %s: %w", key, err)
	}

	body, size, cleanup, err := s.seekable(r)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          body,
		ContentLength: aws.Int64(size),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return 0, fmt.Errorf("%w: %s", repository.ErrBlobExists, key)
		}
		return 0, fmt.Errorf("failed to upload blob %s: %w", key, err)
	}
	return size, nil
}

// Get streams the object body; the caller closes it
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", repository.ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object; S3 treats a missing key as success
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Walk lists every object under the configured prefix
func (s *S3Store) Walk(ctx context.Context, fn func(repository.BlobInfo) error) error {
	var fnErr error
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix)
			if validateKey(key) != nil {
				continue
			}
			if fnErr = fn(repository.BlobInfo{
				Key:      key,
				Size:     aws.Int64Value(obj.Size),
				Modified: aws.TimeValue(obj.LastModified),
			}); fnErr != nil {
				return false
			}
		}
		return true
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("failed to list blobs: %w", err)
	}
	return nil
}

// Ping checks that the bucket is reachable
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not reachable: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key
}

// seekable returns a body the SDK can sign and retry. Non-seekable readers
// are spooled to a temp file first.
func (s *S3Store) seekable(r io.Reader) (io.ReadSeeker, int64, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := remaining(rs)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to size blob body: %w", err)
		}
		return rs, size, func() {}, nil
	}

	tmp, err := os.CreateTemp(s.tempDir, "s3-upload-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	size, err := io.Copy(tmp, r)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("failed to spool blob body: %w", err)
	}
	return tmp, size, cleanup, nil
}

func remaining(rs io.ReadSeeker) (int64, error) {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end - cur, nil
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// isPreconditionFailed reports a conditional write rejected because the
// object exists
func isPreconditionFailed(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusPreconditionFailed {
		return true
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == "PreconditionFailed"
}
