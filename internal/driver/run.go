package driver

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/config"
	"github.com/Helcaraxan/borebin/internal/launch"
)

// Used when the child's exit status can not be determined, e.g. when it was killed by a signal.
const runExitCode = 128

func Run(cOpts *CommonOpts) *cobra.Command {
	opts := &runOpts{
		CommonOpts:  cOpts,
		gracePeriod: 30 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "run [--] [<bore-args>]",
		Short: "Run bore with the given arguments, installing it first if needed.",
		Long: fmt.Sprintf(`Run the installed bore binary with the given arguments. The binary is installed at the configured
version first if it is not present. Output of bore is passed through and its exit code is the one
of '%s run'. Interrupts are forwarded to bore.`, config.DriverName),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.args = args
			return opts.run(cmd)
		},
	}

	registerRunFlags(cmd, opts)

	return cmd
}

func registerRunFlags(cmd *cobra.Command, opts *runOpts) {
	// Everything after the first argument belongs to bore.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&opts.noInstall, "no-install", false, "Fail instead of installing bore when it is missing.")
}

type runOpts struct {
	*CommonOpts

	noInstall   bool
	gracePeriod time.Duration

	args []string
}

func (o *runOpts) run(cmd *cobra.Command) error {
	ctx := cmd.Context()

	bin := o.Config.Binary
	if _, err := os.Stat(bin); errors.Is(err, os.ErrNotExist) {
		if o.noInstall {
			o.Log.Error("Bore is not installed.", zap.String("path", bin))
			return fmt.Errorf("%w at %q", ErrMissingBinary, bin)
		}
		o.Log.Debug("Bore is not installed yet.", zap.String("path", bin))

		inst, err := o.installer(ctx)
		if err != nil {
			return err
		}
		installed, err := inst.Install(ctx, bin, "")
		if err != nil {
			o.Log.Error("Could not install bore.", zap.String("destination", bin), zap.Error(err))
			return err
		}
		bin = installed
	} else if err != nil {
		o.Log.Error("Could not inspect the bore binary.", zap.String("path", bin), zap.Error(err))
		return err
	}

	p, err := launch.New(o.LogBuilder, bin).Launch(ctx, o.args, launch.Mirror(o.Stdout, o.Stderr), launch.WithNoColor())
	if err != nil {
		return err
	}
	// Output reaches the driver's streams through the subscribers.
	_ = p.Stdout.Close()
	_ = p.Stderr.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go o.forwardSignals(p, sigs)

	waitErr := p.Wait()
	code, err := p.ExitCode()
	if err != nil {
		return err
	}
	switch {
	case code < 0:
		o.Log.Error("Bore did not exit normally.", zap.Error(waitErr))
		return &ExitCodeError{Code: runExitCode}
	case code > 0:
		o.Log.Debug("Bore exited with a failure.", zap.Int("exit-code", code))
		return &ExitCodeError{Code: code}
	}
	return nil
}

func (o *runOpts) forwardSignals(p *launch.Process, sigs <-chan os.Signal) {
	for {
		select {
		case <-p.Done():
			return
		case sig := <-sigs:
			if sig == os.Interrupt {
				go o.timeBomb(p)

				if runtime.GOOS == "windows" {
					// Interrupts can not be delivered to another process on Windows.
					sig = os.Kill
				}
			}
			if err := p.Signal(sig); err != nil {
				o.Log.Debug("Could not forward signal to bore.", zap.Stringer("signal", sig), zap.Error(err))
			}
		}
	}
}

func (o *runOpts) timeBomb(p *launch.Process) {
	select {
	case <-p.Done():
	case <-time.After(o.gracePeriod):
		o.Log.Warn("Bore failed to exit after an interrupt. Killing it.", zap.Duration("grace-period", o.gracePeriod))
		if err := p.Kill(); err != nil {
			o.Log.Error("Could not kill bore.", zap.Error(err))
		}
	}
}
