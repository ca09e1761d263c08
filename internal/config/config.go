package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/fetch"
	"github.com/Helcaraxan/borebin/internal/install"
	"github.com/Helcaraxan/borebin/internal/mirror"
	"github.com/Helcaraxan/borebin/internal/platform"
)

const (
	DriverName = "borebin"

	configFileName = DriverName + "_conf.yaml"

	EnvBinary      = "BORE_BIN"
	EnvVersion     = "BORE_VERSION"
	EnvVerbose     = "VERBOSE"
	EnvReleaseBase = "BORE_RELEASE_BASE"
	EnvGitHubToken = "GITHUB_TOKEN"

	DefaultGitHubSlug = "ekzhang/bore"
)

// Global holds all settings shared by installs and launches. It is built once at start-up and
// handed to the components that need it.
type Global struct {
	// Binary is where bore is installed to and launched from.
	Binary       string `yaml:"binary"`
	Version      string `yaml:"version"`
	ReleaseBase  string `yaml:"release_base"`
	MaxRedirects int    `yaml:"max_redirects"`
	Verbose      bool   `yaml:"verbose"`

	GitHubSlug    string `yaml:"github_slug"`
	GitHubBaseURL string `yaml:"github_base_url"`
	// Only read from the environment to keep credentials out of configuration files.
	GitHubToken string `yaml:"-"`

	Mirror *mirror.Config `yaml:"mirror"`
}

// Default returns the configuration in use when nothing has been set.
func Default() *Global {
	return &Global{
		Binary:       DefaultBinaryPath(),
		Version:      install.DefaultVersion,
		ReleaseBase:  install.DefaultReleaseBase,
		MaxRedirects: fetch.DefaultMaxRedirects,
		GitHubSlug:   DefaultGitHubSlug,
	}
}

// Use overrides the binary path. It takes precedence over every other source.
func (g *Global) Use(binary string) {
	g.Binary = binary
}

// Parse loads the configuration files from all known configuration directories into conf.
func Parse(log *zap.Logger, conf *Global) error {
	var paths []string
	for _, p := range AllDirs() {
		paths = append(paths, filepath.Join(p, configFileName))
	}
	return ParseFiles(log, conf, paths...)
}

// ParseFiles decodes the given files in order into conf. Files that do not exist are skipped.
func ParseFiles(log *zap.Logger, conf *Global, paths ...string) error {
	if conf == nil {
		return errors.New("can not parse configuration into nil struct")
	}

	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return err
		}

		dec := yaml.NewDecoder(bytes.NewBuffer(raw), yaml.Strict())
		if err = dec.Decode(conf); err != nil {
			log.Error("Invalid configuration file.", zap.String("path", p), zap.Error(err))
			return fmt.Errorf("invalid configuration in %q: %w", p, err)
		}
		log.Debug("Loaded configuration file.", zap.String("path", p))
	}
	log.Sugar().Debugf("Parsed configuration:\n%+v", spew.Sdump(conf))
	return nil
}

// ApplyEnv overlays settings from environment variables. The lookup function is usually
// os.LookupEnv. Empty values are ignored.
func (g *Global) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBinary); ok && v != "" {
		g.Binary = v
	}
	if v, ok := lookup(EnvVersion); ok && v != "" {
		g.Version = v
	}
	if v, ok := lookup(EnvReleaseBase); ok && v != "" {
		g.ReleaseBase = v
	}
	if v, ok := lookup(EnvGitHubToken); ok && v != "" {
		g.GitHubToken = v
	}
	if v, ok := lookup(EnvVerbose); ok && v != "" {
		g.Verbose = isTruthy(v)
	}
}

// Any non-empty value enables a flag unless it is explicitly false.
func isTruthy(v string) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return true
}

// DefaultBinaryPath is the install location used when no other has been configured.
func DefaultBinaryPath() string {
	exe := "bore"
	if v, err := platform.VariantFor(platform.Current().OS); err == nil {
		exe = v.Executable
	}

	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, DriverName, "bin", exe)
}

func AllDirs() []string {
	// We need the config directories in reverse-order of priority such that we can safely unmarshal
	// them in order into the same target struct and guarantee the expected semantics.
	var dirs []string
	if p := UserDir(); p != "" {
		dirs = append(dirs, p)
	}
	if p := SystemDir(); p != "" {
		dirs = append(dirs, p)
	}
	return dirs
}

func SystemDir() string {
	switch runtime.GOOS {
	case "windows":
		if p := os.Getenv("PROGRAMDATA"); p != "" {
			return filepath.Join(p, DriverName)
		}
		return ""
	default:
		return filepath.Join("/etc", DriverName)
	}
}

func UserDir() string {
	switch runtime.GOOS {
	case "linux":
		if configPath, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
			return filepath.Join(configPath, DriverName)
		}
		fallthrough
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), ".config", DriverName)
	default:
		if p, err := os.UserConfigDir(); err == nil {
			return filepath.Join(p, DriverName)
		}
		return ""
	}
}
