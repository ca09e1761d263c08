package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Helcaraxan/borebin/internal/config"
	"github.com/Helcaraxan/borebin/internal/fetch"
	"github.com/Helcaraxan/borebin/internal/install"
	"github.com/Helcaraxan/borebin/internal/launch"
	"github.com/Helcaraxan/borebin/internal/logger"
	"github.com/Helcaraxan/borebin/internal/mirror"
	"github.com/Helcaraxan/borebin/internal/release"
)

// Version is stamped at build time.
var Version = "dev"

var (
	ErrInvalidMirrorConfig = errors.New("invalid mirror configuration")
	ErrMissingBinary       = errors.New("no bore binary installed")
)

// ExitCodeError carries the exit code of a launched child so that the driver can exit with it.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("bore exited with code %d", e.Code)
}

type CommonOpts struct {
	LogBuilder *logger.Builder
	Log        *zap.Logger
	Config     *config.Global
	Verbose    []string
	// Binary overrides the configured binary path when set.
	Binary string

	Stdout io.Writer
	Stderr io.Writer

	// Overridable for tests.
	loadConfig func(*zap.Logger, *config.Global) error
	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
}

func NewCommonOpts() *CommonOpts {
	return &CommonOpts{
		LogBuilder: logger.NewBuilder(zapcore.Lock(os.Stderr)),
		Config:     config.Default(),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		loadConfig: config.Parse,
		lookupEnv:  os.LookupEnv,
		isTerminal: stderrIsTerminal,
	}
}

// Parse finalises the configuration: files, then environment variables. Flags have been applied by
// cobra already and take precedence over both.
func (c *CommonOpts) Parse() error {
	verbose := c.Verbose
	if len(verbose) == 0 {
		// The environment is consulted early so that configuration parsing can be logged.
		probe := &config.Global{}
		probe.ApplyEnv(c.lookupEnv)
		if probe.Verbose {
			verbose = []string{"all"}
		}
	}
	for _, domain := range verbose {
		c.LogBuilder.SetDomainLevel(domain, zapcore.DebugLevel)
	}
	c.Log = c.LogBuilder.Domain(logger.CLIDomain)

	if err := c.loadConfig(c.LogBuilder.Domain(logger.InitDomain), c.Config); err != nil {
		return err
	}
	c.Config.ApplyEnv(c.lookupEnv)
	if c.Binary != "" {
		c.Config.Use(c.Binary)
	}
	if c.Config.Verbose && len(verbose) == 0 {
		c.LogBuilder.SetDomainLevel("all", zapcore.DebugLevel)
	}
	return nil
}

func (c *CommonOpts) versionResolver() (*release.Resolver, error) {
	return release.NewResolver(c.LogBuilder, nil, release.Config{
		Slug:    c.Config.GitHubSlug,
		BaseURL: c.Config.GitHubBaseURL,
		Token:   c.Config.GitHubToken,
	})
}

func (c *CommonOpts) installer(ctx context.Context) (*install.Installer, error) {
	opts := install.Options{
		ReleaseBase:    c.Config.ReleaseBase,
		DefaultVersion: c.Config.Version,
	}

	if c.Config.Mirror != nil {
		m, err := mirror.New(ctx, c.LogBuilder, c.Config.Mirror)
		if err != nil {
			c.Log.Error("Could not set up the archive mirror.", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrInvalidMirrorConfig, err)
		}
		opts.Mirror = m
	}

	versions, err := c.versionResolver()
	if err != nil {
		return nil, err
	}
	opts.Versions = versions

	f := fetch.New(c.LogBuilder, nil, c.Config.MaxRedirects)
	f.UserAgent = config.DriverName + "/" + Version
	if c.isTerminal() {
		p := newProgress(c.Stderr)
		f.Progress = p.update
		opts.Observer = func(from install.State, _ install.State) {
			if from == install.StateDownloading {
				p.finish()
			}
		}
	}

	return install.New(c.LogBuilder, f, opts), nil
}

func (c *CommonOpts) launcher() *launch.Launcher {
	return launch.New(c.LogBuilder, c.Config.Binary)
}
