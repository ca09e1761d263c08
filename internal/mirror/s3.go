package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

type S3 struct {
	log     *zap.Logger
	timeout time.Duration
	client  *s3.Client

	Config
}

func NewS3(ctx context.Context, logBuilder *logger.Builder, c *Config) (*S3, error) {
	log := logBuilder.Domain(logger.S3Domain).With(zap.String("s3-bucket", c.S3Bucket))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cfg, err := aws_config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("Failed to load AWS configuration from environment.", zap.Error(err))
		return nil, err
	}

	return &S3{
		log:     log,
		timeout: time.Minute,
		client:  s3.NewFromConfig(cfg),
		Config:  *c,
	}, nil
}

func (s *S3) String() string {
	return fmt.Sprintf("s3://%s/%s", s.S3Bucket, s.template())
}

func isNotFound(err error) bool {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		apiErr   smithy.APIError
	)
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &apiErr):
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	default:
		return false
	}
}

func (s *S3) Fetch(ctx context.Context, a Artefact) ([]byte, error) {
	bucketPath := s.path(a)
	log := s.log.With(zap.Stringer("artefact", a), zap.String("object-path", bucketPath))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.S3Bucket),
		Key:    aws.String(bucketPath),
	})
	if isNotFound(err) {
		log.Debug("Archive not found in mirror.")
		return nil, ErrNotFound
	} else if err != nil {
		log.Error("Failed to lookup object on S3.", zap.Error(err))
		return nil, err
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		log.Error("Failed to download object content from S3.", zap.Error(err))
		return nil, err
	}
	log.Debug("Finished downloading object from S3.")
	return raw, nil
}

func (s *S3) Store(ctx context.Context, a Artefact, content []byte) error {
	bucketPath := s.path(a)
	log := s.log.With(zap.Stringer("artefact", a), zap.String("object-path", bucketPath))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.S3Bucket),
		Key:    aws.String(bucketPath),
	})
	if err == nil {
		log.Debug("Archive already present in mirror.")
		return ErrExists
	} else if !isNotFound(err) {
		log.Error("Failed to check if an archive already exists.", zap.Error(err))
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.S3Bucket),
		Key:    aws.String(bucketPath),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		log.Error("Failed to store archive as object in S3.", zap.Error(err))
		return err
	}
	log.Debug("Finished uploading archive as object to S3.")
	return nil
}
