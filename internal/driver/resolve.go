package driver

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/install"
	"github.com/Helcaraxan/borebin/internal/platform"
	"github.com/Helcaraxan/borebin/internal/release"
)

func Resolve(cOpts *CommonOpts) *cobra.Command {
	opts := &resolveOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "resolve [--os=<os>] [--arch=<arch>] [--version=<version>]",
		Short: "Print the download URL of a bore release archive.",
		Long: `Print the URL from which the bore release archive for the given platform would be downloaded. The
platform defaults to the current one. Nothing is downloaded, except for a release lookup when the
version is 'latest'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	registerResolveFlags(cmd, opts)

	return cmd
}

func registerResolveFlags(cmd *cobra.Command, opts *resolveOpts) {
	current := platform.Current()
	cmd.Flags().StringVar(&opts.os, "os", string(current.OS), "The operating system for which to resolve the archive.")
	cmd.Flags().StringVar(&opts.arch, "arch", string(current.Arch), "The architecture for which to resolve the archive.")
	cmd.Flags().StringVar(&opts.version, "version", "", "The release to resolve. Defaults to the configured version.")
}

type resolveOpts struct {
	*CommonOpts

	os      string
	arch    string
	version string
}

func (o *resolveOpts) resolve(cmd *cobra.Command) error {
	version := o.version
	if version == "" {
		version = o.Config.Version
	}

	key := platform.Key{OS: platform.OS(o.os), Arch: platform.Arch(o.arch)}
	tmpl, err := platform.Lookup(key)
	if err != nil {
		o.Log.Error("No release archive for this platform.", zap.Stringer("platform", key), zap.Error(err))
		return err
	}

	if release.IsLatest(version) {
		versions, err := o.versionResolver()
		if err != nil {
			return err
		}
		if version, err = versions.LatestTag(cmd.Context()); err != nil {
			o.Log.Error("Could not determine the latest release.", zap.Error(err))
			return err
		}
	}
	asset := platform.Instantiate(tmpl, version)
	_, _ = fmt.Fprintln(o.Stdout, install.ReleaseURL(o.Config.ReleaseBase, version, asset))
	return nil
}
