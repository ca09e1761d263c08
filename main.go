package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Helcaraxan/borebin/internal/config"
	"github.com/Helcaraxan/borebin/internal/driver"
)

func main() {
	opts := driver.NewCommonOpts()

	rootCmd := &cobra.Command{
		Use: config.DriverName,
		Long: fmt.Sprintf(`Install and run bore, the TCP tunnel, on any supported platform.

The release archive matching the host is downloaded from GitHub, or from a configured mirror, and
the binary it contains is installed to a well-known location. Settings are read from
'%[1]s_conf.yaml' in the system and user configuration directories and can be overridden through
the environment:

  %[2]s      Path of the bore binary.
  %[3]s  Release to install, e.g. v0.5.0 or 'latest'.
  %[4]s       Enable debug logging for all components.
`, config.DriverName, config.EnvBinary, config.EnvVersion, config.EnvVerbose),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       driver.Version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.Parse()
		},
	}

	registerRootFlags(rootCmd, opts)

	rootCmd.AddCommand(
		driver.Install(opts),
		driver.Platforms(opts),
		driver.Resolve(opts),
		driver.Run(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *driver.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func registerRootFlags(cmd *cobra.Command, opts *driver.CommonOpts) {
	cmd.PersistentFlags().StringSliceVarP(
		&opts.Verbose,
		"verbose",
		"v",
		nil,
		fmt.Sprintf("Verbose output. Takes an optional comma-separated list of components. See '%s --help'.", config.DriverName),
	)
	cmd.Flag("verbose").NoOptDefVal = "all"

	cmd.PersistentFlags().StringVar(&opts.Binary, "bin", "", fmt.Sprintf("Path of the bore binary. Overrides %s.", config.EnvBinary))
}
