// Package archive unpacks downloaded release archives. The format is determined from the archive's
// content rather than from its file name as upstream names and formats have not always matched.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatZip     Format = "zip"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrNotFound          = errors.New("file not found in archive")
	ErrIllegalPath       = errors.New("archive entry escapes the extraction directory")
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicXZ   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZip  = []byte("PK\x03\x04")
	magicTar  = []byte("ustar")
)

const tarMagicOffset = 257

// Detect reads the start of the file at archivePath and reports the archive format it contains.
func Detect(archivePath string) (Format, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, tarMagicOffset+len(magicTar))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	return detect(head[:n]), nil
}

func detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicZip):
		return FormatZip
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGz
	case bytes.HasPrefix(head, magicXZ):
		return FormatTarXz
	case len(head) >= tarMagicOffset+len(magicTar) && bytes.Equal(head[tarMagicOffset:tarMagicOffset+len(magicTar)], magicTar):
		return FormatTar
	default:
		return FormatUnknown
	}
}

type Extractor struct {
	log *zap.Logger
}

func NewExtractor(logBuilder *logger.Builder) *Extractor {
	return &Extractor{log: logBuilder.Domain(logger.ArchiveDomain)}
}

// Extract writes the first regular file of the archive at archivePath whose base name is want into
// destDir and returns its path. Nothing else is written. The expected format is only used when the
// content can not be identified.
func (e *Extractor) Extract(archivePath string, expected Format, destDir string, want string) (string, error) {
	log := e.log.With(zap.String("archive", archivePath), zap.String("dest-dir", destDir))

	format, err := Detect(archivePath)
	if err != nil {
		log.Error("Unable to read archive header.", zap.Error(err))
		return "", err
	}
	switch {
	case format == FormatUnknown:
		log.Debug("Archive content not recognised. Falling back to expected format.", zap.String("format", string(expected)))
		format = expected
	case expected != FormatUnknown && format != expected:
		log.Debug(
			"Archive content does not match its expected format.",
			zap.String("expected", string(expected)),
			zap.String("detected", string(format)),
		)
	}
	log = log.With(zap.String("format", string(format)))

	var extracted string
	switch format {
	case FormatZip:
		extracted, err = e.extractZIP(log, archivePath, destDir, want)
	case FormatTar, FormatTarGz, FormatTarXz:
		extracted, err = e.extractTAR(log, archivePath, format, destDir, want)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}

	if extracted == "" {
		log.Error("Archive does not contain the expected file.", zap.String("want", want))
		return "", fmt.Errorf("%w: %s", ErrNotFound, want)
	}
	log.Debug("Extracted archive.", zap.String("executable", extracted))
	return extracted, nil
}

func (e *Extractor) extractZIP(log *zap.Logger, archivePath string, destDir string, want string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		log.Error("Failed to open archive with a ZIP reader.", zap.Error(err))
		return "", fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != want {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			log.Error("Failed to open archive entry.", zap.String("entry", f.Name), zap.Error(err))
			return "", err
		}
		p, err := writeEntry(destDir, f.Name, f.Mode().Perm(), rc)
		_ = rc.Close()
		if err != nil {
			log.Error("Failed to write archive entry.", zap.String("entry", f.Name), zap.Error(err))
			return "", err
		}
		return p, nil
	}
	return "", nil
}

func (e *Extractor) extractTAR(log *zap.Logger, archivePath string, format Format, destDir string, want string) (string, error) {
	fd, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer fd.Close()

	var rd io.Reader = fd
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(fd)
		if err != nil {
			log.Error("Failed to open archive with a GZIP reader.", zap.Error(err))
			return "", fmt.Errorf("failed to open gzip reader for archive: %w", err)
		}
		defer gz.Close()
		rd = gz
	case FormatTarXz:
		xr, err := xz.NewReader(fd)
		if err != nil {
			log.Error("Failed to open archive with an XZ reader.", zap.Error(err))
			return "", fmt.Errorf("failed to open xz reader for archive: %w", err)
		}
		rd = xr
	}

	tr := tar.NewReader(rd)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return "", nil
		} else if err != nil {
			log.Error("Failed to read archive entry header.", zap.Error(err))
			return "", fmt.Errorf("failed to read tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != want {
			continue
		}
		p, err := writeEntry(destDir, hdr.Name, os.FileMode(hdr.Mode).Perm(), tr)
		if err != nil {
			log.Error("Failed to write archive entry.", zap.String("entry", hdr.Name), zap.Error(err))
			return "", err
		}
		return p, nil
	}
}

// writeEntry places the entry directly in destDir, dropping any directories of its name so that
// none are left behind.
func writeEntry(destDir string, name string, perm os.FileMode, content io.Reader) (string, error) {
	if !withinDir(filepath.Join(destDir, filepath.FromSlash(name)), destDir) {
		return "", fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}
	target := filepath.Join(destDir, path.Base(name))
	if perm == 0 {
		perm = 0o644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(out, content); err != nil {
		_ = out.Close()
		return "", err
	}
	return target, out.Close()
}

func withinDir(target string, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
