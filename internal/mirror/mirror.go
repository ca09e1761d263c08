// Package mirror provides optional storage for release archives that is consulted before the
// upstream release page. Archives fetched from upstream can be stored back into it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Helcaraxan/borebin/internal/logger"
	"github.com/Helcaraxan/borebin/internal/platform"
)

type Mirror interface {
	fmt.Stringer
	Fetch(ctx context.Context, a Artefact) ([]byte, error)
	Store(ctx context.Context, a Artefact, content []byte) error
}

var (
	// To guarantee that implementations remain compatible with the interface.
	_ Mirror = &FileSystem{}
	_ Mirror = &GCS{}
	_ Mirror = &S3{}

	ErrNotFound      = errors.New("archive not present in mirror")
	ErrExists        = errors.New("archive already present in mirror")
	ErrInvalidConfig = errors.New("invalid mirror configuration")
)

// Artefact identifies a single release archive.
type Artefact struct {
	Key     platform.Key
	Version string
	Asset   string
}

func (a Artefact) String() string {
	return fmt.Sprintf("%s@%s", a.Asset, a.Version)
}

const DefaultPathTemplate = "{version}/{asset}"

type Config struct {
	// PathTemplate describes where an archive lives inside the mirror. It may reference {version},
	// {asset}, {os} and {arch}.
	PathTemplate string `yaml:"path_template"`

	PathPrefix string `yaml:"path_prefix"`
	GCSBucket  string `yaml:"gcs_bucket"`
	S3Bucket   string `yaml:"s3_bucket"`
}

type rawConfig Config

var knownFields = []string{"path_template", "path_prefix", "gcs_bucket", "s3_bucket"}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	all := map[string]interface{}{}
	if err := unmarshal(&all); err != nil {
		return fmt.Errorf("%w: can not unmarshal non-mapping yaml as a mirror definition", ErrInvalidConfig)
	}
	for _, k := range knownFields {
		delete(all, k)
	}
	if len(all) > 0 {
		unknown := make([]string, 0, len(all))
		for k := range all {
			unknown = append(unknown, k)
		}
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown fields %s", ErrInvalidConfig, strings.Join(unknown, ", "))
	}

	if err := unmarshal((*rawConfig)(c)); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks that exactly one storage backend is configured.
func (c *Config) Validate() error {
	var count int
	for _, h := range []string{c.PathPrefix, c.GCSBucket, c.S3Bucket} {
		if h != "" {
			count++
		}
	}
	switch count {
	case 0:
		return fmt.Errorf("%w: no storage backend specified", ErrInvalidConfig)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: multiple storage backends specified", ErrInvalidConfig)
	}
}

func (c *Config) template() string {
	if c.PathTemplate == "" {
		return DefaultPathTemplate
	}
	return c.PathTemplate
}

func (c *Config) path(a Artefact) string {
	return strings.NewReplacer(
		"{arch}", string(a.Key.Arch),
		"{asset}", a.Asset,
		"{os}", string(a.Key.OS),
		platform.VersionPlaceholder, a.Version,
	).Replace(c.template())
}

// New sets up the mirror selected by the configuration.
func New(ctx context.Context, logBuilder *logger.Builder, c *Config) (Mirror, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.GCSBucket != "":
		return NewGCS(ctx, logBuilder, c)
	case c.S3Bucket != "":
		return NewS3(ctx, logBuilder, c)
	default:
		return NewFileSystem(logBuilder, c, false), nil
	}
}
