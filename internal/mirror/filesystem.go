package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

type FileSystem struct {
	log     *zap.Logger
	storage billy.Filesystem

	Config
}

func NewFileSystem(logBuilder *logger.Builder, c *Config, inMem bool) *FileSystem {
	var fs billy.Filesystem
	if inMem {
		fs = memfs.New()
	} else {
		fs = osfs.New(c.PathPrefix)
	}

	return &FileSystem{
		log:     logBuilder.Domain(logger.FileSystemDomain).With(zap.String("path-prefix", c.PathPrefix)),
		storage: fs,
		Config:  *c,
	}
}

func (s *FileSystem) String() string {
	return filepath.Join(s.PathPrefix, s.template())
}

func (s *FileSystem) Fetch(_ context.Context, a Artefact) ([]byte, error) {
	p := s.path(a)
	log := s.log.With(zap.Stringer("artefact", a), zap.String("local-path", p))

	fd, err := s.storage.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("Archive not found in mirror.")
		return nil, ErrNotFound
	} else if err != nil {
		log.Error("Failed to open mirrored archive.", zap.Error(err))
		return nil, err
	}
	defer fd.Close()

	raw, err := io.ReadAll(fd)
	if err != nil {
		log.Error("Failed to read content of mirrored archive.", zap.Error(err))
		return nil, err
	}
	log.Debug("Read archive from mirror.", zap.Int("bytes", len(raw)))
	return raw, nil
}

func (s *FileSystem) Store(_ context.Context, a Artefact, content []byte) error {
	p := s.path(a)
	log := s.log.With(zap.Stringer("artefact", a), zap.String("local-path", p))

	if _, err := s.storage.Stat(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("Unable to check for a pre-existing archive.", zap.Error(err))
		return err
	} else if err == nil {
		log.Debug("Archive already present in mirror.")
		return ErrExists
	}

	if err := s.storage.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		log.Error("Failed to create mirror directory.", zap.Error(err))
		return err
	}

	w, err := s.storage.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		log.Error("Failed to create mirrored archive.", zap.Error(err))
		return err
	}
	if _, err = io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		log.Error("Failed to write mirrored archive.", zap.Error(err))
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	log.Debug("Stored archive in mirror.")
	return nil
}
