package driver

import (
	"fmt"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/Helcaraxan/borebin/internal/platform"
)

func Platforms(cOpts *CommonOpts) *cobra.Command {
	opts := &platformsOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "platforms [--version=<version>]",
		Short: "List the platforms for which bore releases are available.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.platforms()
		},
	}

	registerPlatformsFlags(cmd, opts)

	return cmd
}

func registerPlatformsFlags(cmd *cobra.Command, opts *platformsOpts) {
	cmd.Flags().StringVar(&opts.version, "version", "", "Show asset names for this version instead of the configured one.")
}

type platformsOpts struct {
	*CommonOpts

	version string
}

func (o *platformsOpts) platforms() error {
	version := o.version
	if version == "" {
		version = o.Config.Version
	}

	current := platform.Current()
	rows := []string{"OS | ARCH | ASSET | ", "-- | ---- | ----- | "}
	for _, a := range platform.Supported() {
		marker := ""
		if a.Key == current {
			marker = "*"
		}
		rows = append(rows, fmt.Sprintf("%s | %s | %s | %s", a.Key.OS, a.Key.Arch, platform.Instantiate(a.Template, version), marker))
	}
	_, _ = fmt.Fprintln(o.Stdout, columnize.SimpleFormat(rows))
	return nil
}
