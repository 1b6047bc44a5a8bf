package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// S3Store persists artifacts in an S3 bucket (or an S3 compatible endpoint).
type S3Store struct {
	svc    *s3.S3
	bucket string
	prefix string
}

func NewS3Store(svc *s3.S3, bucket, prefix string) *S3Store {
	return &S3Store{svc: svc, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig creates an AWS session from the default credential chain.
func NewS3StoreFromConfig(cfg config.StorageConfig) (*S3Store, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.S3Region)
	if cfg.S3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.S3Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("artifact: create aws session: %w", err)
	}
	return NewS3Store(s3.New(sess), cfg.S3Bucket, cfg.S3Prefix), nil
}

func (s *S3Store) key(name string) string {
	return s.prefix + name
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte) (models.Artifact, error) {
	if err := checkName(name); err != nil {
		return models.Artifact{}, err
	}
	_, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentType(name)),
	})
	if err != nil {
		slog.Error("s3 upload failed", "bucket", s.bucket, "key", s.key(name), "error", err)
		return models.Artifact{}, fmt.Errorf("artifact: put object: %w", err)
	}
	return models.Artifact{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: ContentType(name),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, models.Artifact, error) {
	if err := checkName(name); err != nil {
		return nil, models.Artifact{}, ErrNotFound
	}
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if isNotFound(err) {
		return nil, models.Artifact{}, ErrNotFound
	}
	if err != nil {
		return nil, models.Artifact{}, fmt.Errorf("artifact: get object: %w", err)
	}

	a := models.Artifact{Name: name, ContentType: ContentType(name)}
	if out.ContentLength != nil {
		a.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		a.CreatedAt = out.LastModified.UTC()
	}
	return out.Body, a, nil
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("artifact: delete object: %w", err)
	}
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("artifact: head bucket: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	if aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound" {
		return true
	}
	var reqErr awserr.RequestFailure
	return errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound
}
