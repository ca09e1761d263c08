package driver

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/config"
)

func Install(cOpts *CommonOpts) *cobra.Command {
	opts := &installOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "install [--to=<path>] [--version=<version>]",
		Short: "Download and install the bore binary.",
		Long: fmt.Sprintf(`Download the bore release archive matching the current platform and install the binary it
contains. Any existing binary at the target location is replaced. The target location defaults to
the value of %s or the '%s_conf.yaml' setting 'binary'. The version may be 'latest'.`, config.EnvBinary, config.DriverName),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.install(cmd)
		},
	}

	registerInstallFlags(cmd, opts)

	return cmd
}

func registerInstallFlags(cmd *cobra.Command, opts *installOpts) {
	cmd.Flags().StringVar(&opts.to, "to", "", "Path at which to install the binary. Defaults to the configured binary path.")
	cmd.Flags().StringVar(&opts.version, "version", "", "The release to install. Defaults to the configured version.")
}

type installOpts struct {
	*CommonOpts

	to      string
	version string
}

func (o *installOpts) install(cmd *cobra.Command) error {
	dest := o.to
	if dest == "" {
		dest = o.Config.Binary
	}

	inst, err := o.installer(cmd.Context())
	if err != nil {
		return err
	}

	path, err := inst.Install(cmd.Context(), dest, o.version)
	if err != nil {
		o.Log.Error("Could not install bore.", zap.String("destination", dest), zap.Error(err))
		return err
	}
	_, _ = fmt.Fprintln(o.Stdout, path)
	return nil
}
