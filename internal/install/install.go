// Package install places the bore executable at a chosen path by downloading and unpacking the
// matching upstream release archive.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/archive"
	"github.com/Helcaraxan/borebin/internal/fetch"
	"github.com/Helcaraxan/borebin/internal/flock"
	"github.com/Helcaraxan/borebin/internal/logger"
	"github.com/Helcaraxan/borebin/internal/mirror"
	"github.com/Helcaraxan/borebin/internal/platform"
	"github.com/Helcaraxan/borebin/internal/release"
)

const (
	DefaultVersion     = "v0.5.0"
	DefaultReleaseBase = "https://github.com/ekzhang/bore/releases/"
)

var (
	ErrFilesystem = fetch.ErrFilesystem

	ErrNoVersionResolver = errors.New("no version resolver configured")
)

// VersionResolver turns the "latest" alias into a concrete release tag.
type VersionResolver interface {
	LatestTag(ctx context.Context) (string, error)
}

type Options struct {
	// Platform selects the release variant. The zero value selects the running host.
	Platform platform.Key
	// ReleaseBase is the URL under which "download/<version>/<asset>" is requested.
	ReleaseBase string
	// DefaultVersion is used when Install is called without a version.
	DefaultVersion string

	Mirror   mirror.Mirror
	Versions VersionResolver
	Observer Observer
}

type Installer struct {
	log        *zap.Logger
	logBuilder *logger.Builder
	fetcher    *fetch.Fetcher
	extractor  *archive.Extractor

	Options
}

func New(logBuilder *logger.Builder, fetcher *fetch.Fetcher, opts Options) *Installer {
	if opts.Platform == (platform.Key{}) {
		opts.Platform = platform.Current()
	}
	if opts.ReleaseBase == "" {
		opts.ReleaseBase = DefaultReleaseBase
	}
	if opts.DefaultVersion == "" {
		opts.DefaultVersion = DefaultVersion
	}

	return &Installer{
		log:        logBuilder.Domain(logger.InstallDomain),
		logBuilder: logBuilder,
		fetcher:    fetcher,
		extractor:  archive.NewExtractor(logBuilder),
		Options:    opts,
	}
}

// ReleaseURL returns the download location of an asset. A missing trailing slash on base is added.
func ReleaseURL(base string, version string, asset string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "download/" + version + "/" + asset
}

// Install places the executable for the configured platform at dest and returns dest. An empty
// version selects the default version. No cleanup is attempted on failure so partial artefacts
// may remain next to dest.
func (i *Installer) Install(ctx context.Context, dest string, version string) (string, error) {
	t := &tracker{observer: i.Observer}
	if version == "" {
		version = i.DefaultVersion
	}
	log := i.log.With(zap.String("dest", dest), zap.Stringer("platform", i.Platform))

	t.moveTo(StateResolving)
	tmpl, err := platform.Lookup(i.Platform)
	if err != nil {
		log.Error("No release is published for this platform.", zap.Error(err))
		return "", t.fail(err)
	}
	variant, err := platform.VariantFor(i.Platform.OS)
	if err != nil {
		return "", t.fail(err)
	}

	if release.IsLatest(version) {
		if version, err = i.resolveLatest(ctx, log); err != nil {
			return "", t.fail(err)
		}
	}
	asset := platform.Instantiate(tmpl, version)
	log = log.With(zap.String("version", version), zap.String("asset", asset))

	if err = os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		log.Error("Failed to create destination directory.", zap.Error(err))
		return "", t.fail(fmt.Errorf("%w: %v", ErrFilesystem, err))
	}

	lock := flock.New(i.logBuilder, dest)
	if err = lock.Acquire(ctx); err != nil {
		log.Error("Failed to acquire the install lock.", zap.Error(err))
		return "", t.fail(err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			log.Warn("Failed to release the install lock.", zap.Error(releaseErr))
		}
	}()

	t.moveTo(StateDownloading)
	archivePath := dest + variant.ArchiveExt
	artefact := mirror.Artefact{Key: i.Platform, Version: version, Asset: asset}
	if err = i.download(ctx, log, artefact, archivePath); err != nil {
		return "", t.fail(err)
	}

	t.moveTo(StateExtracting)
	log.Debug("Extracting archive.", zap.String("archive", archivePath))
	extracted, err := i.extractor.Extract(archivePath, variant.Format, filepath.Dir(dest), variant.Executable)
	if err != nil {
		return "", t.fail(err)
	}
	if err = os.Remove(archivePath); err != nil {
		log.Error("Failed to remove downloaded archive.", zap.Error(err))
		return "", t.fail(fmt.Errorf("%w: %v", ErrFilesystem, err))
	}

	t.moveTo(StateFinalizing)
	if err = finalize(extracted, dest, variant); err != nil {
		log.Error("Failed to move executable into place.", zap.Error(err))
		return "", t.fail(err)
	}

	t.moveTo(StateDone)
	log.Debug("Installed bore.")
	return dest, nil
}

func (i *Installer) resolveLatest(ctx context.Context, log *zap.Logger) (string, error) {
	if i.Versions == nil {
		log.Error("Can not resolve the latest version without a version resolver.")
		return "", fmt.Errorf("%w: can not resolve %q", ErrNoVersionResolver, release.Latest)
	}
	tag, err := i.Versions.LatestTag(ctx)
	if err != nil {
		return "", err
	}
	log.Debug("Resolved latest version.", zap.String("tag", tag))
	return tag, nil
}

// download places the archive at archivePath, preferring the mirror when one is configured.
func (i *Installer) download(ctx context.Context, log *zap.Logger, a mirror.Artefact, archivePath string) error {
	if i.Mirror != nil {
		raw, err := i.Mirror.Fetch(ctx, a)
		switch {
		case err == nil:
			log.Debug("Using archive from mirror.", zap.Stringer("mirror", i.Mirror))
			if err = os.WriteFile(archivePath, raw, 0o644); err != nil {
				log.Error("Failed to write mirrored archive.", zap.Error(err))
				return fmt.Errorf("%w: %v", ErrFilesystem, err)
			}
			return nil
		case errors.Is(err, mirror.ErrNotFound):
			log.Debug("Archive not mirrored yet.", zap.Stringer("mirror", i.Mirror))
		default:
			log.Warn("Mirror lookup failed. Falling back to the release page.", zap.Error(err))
		}
	}

	if _, err := i.fetcher.Fetch(ctx, ReleaseURL(i.ReleaseBase, a.Version, a.Asset), archivePath); err != nil {
		return err
	}

	if i.Mirror != nil {
		i.storeInMirror(ctx, log, a, archivePath)
	}
	return nil
}

func (i *Installer) storeInMirror(ctx context.Context, log *zap.Logger, a mirror.Artefact, archivePath string) {
	raw, err := os.ReadFile(archivePath)
	if err != nil {
		log.Warn("Could not read archive for mirroring.", zap.Error(err))
		return
	}
	if err = i.Mirror.Store(ctx, a, raw); err != nil && !errors.Is(err, mirror.ErrExists) {
		log.Warn("Could not store archive in mirror.", zap.Error(err))
	}
}

func finalize(extracted string, dest string, v platform.Variant) error {
	if filepath.Clean(extracted) != filepath.Clean(dest) {
		if err := os.Rename(extracted, dest); err != nil {
			return fmt.Errorf("%w: %v", ErrFilesystem, err)
		}
	}
	if v.SetExecutable {
		if err := os.Chmod(dest, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrFilesystem, err)
		}
	}
	return nil
}
