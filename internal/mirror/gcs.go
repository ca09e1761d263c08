package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Helcaraxan/borebin/internal/logger"
)

type GCS struct {
	log     *zap.Logger
	timeout time.Duration
	client  *storage.Client

	Config
}

func NewGCS(ctx context.Context, logBuilder *logger.Builder, c *Config) (*GCS, error) {
	log := logBuilder.Domain(logger.GCSDomain).With(zap.String("gcs-bucket", c.GCSBucket))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		log.Error("Unable to set up a GCS storage client.", zap.Error(err))
		return nil, err
	}

	return &GCS{
		log:     log,
		timeout: time.Minute,
		client:  client,
		Config:  *c,
	}, nil
}

func (s *GCS) String() string {
	return fmt.Sprintf("gs://%s/%s", s.GCSBucket, s.template())
}

func (s *GCS) Fetch(ctx context.Context, a Artefact) ([]byte, error) {
	bucketPath := s.path(a)
	log := s.log.With(zap.Stringer("artefact", a), zap.String("object-path", bucketPath))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	src, err := s.client.Bucket(s.GCSBucket).Object(bucketPath).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		log.Debug("Archive not found in mirror.")
		return nil, ErrNotFound
	} else if err != nil {
		log.Error("Unable to open reader on remote GCS object.", zap.Error(err))
		return nil, err
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		log.Error("Failed to download object content from GCS.", zap.Error(err))
		return nil, err
	}
	log.Debug("Finished downloading blob from GCS.")
	return raw, nil
}

func (s *GCS) Store(ctx context.Context, a Artefact, content []byte) (err error) {
	bucketPath := s.path(a)
	log := s.log.With(zap.Stringer("artefact", a), zap.String("object-path", bucketPath))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	obj := s.client.Bucket(s.GCSBucket).Object(bucketPath)
	if _, err = obj.Attrs(ctx); err == nil {
		log.Debug("Archive already present in mirror.")
		return ErrExists
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		log.Error("Can not check if an archive already exists.", zap.Error(err))
		return err
	}

	dst := obj.NewWriter(ctx)
	defer func() {
		closeErr := dst.Close()
		if err == nil && closeErr != nil {
			log.Error("Failed to correctly close remote object.", zap.Error(closeErr))
			err = closeErr
		}
	}()

	if _, err = io.Copy(dst, bytes.NewReader(content)); err != nil {
		log.Error("Failed to upload archive.", zap.Error(err))
		return err
	}
	log.Debug("Finished uploading archive as blob to GCS.")
	return nil
}
