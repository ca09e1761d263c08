// Package launch starts the installed bore executable as a child process and makes its output
// available to any number of subscribers.
package launch

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

var ErrNotWaited = errors.New("process has not exited yet")

// Subscriber receives a copy of everything the child writes. Nil writers are skipped. Writes to
// subscribers are serialised across both streams. A subscriber that fails a write is dropped.
type Subscriber struct {
	Stdout io.Writer
	Stderr io.Writer
}

type settings struct {
	subscribers []Subscriber
	env         []string
	dir         string
}

type Option func(*settings)

func WithSubscriber(s Subscriber) Option {
	return func(c *settings) { c.subscribers = append(c.subscribers, s) }
}

// Mirror forwards the child's output to the given writers as it is produced.
func Mirror(stdout io.Writer, stderr io.Writer) Option {
	return WithSubscriber(Subscriber{Stdout: stdout, Stderr: stderr})
}

// WithNoColor asks the child to not emit terminal color sequences.
func WithNoColor() Option {
	return WithEnv("NO_COLOR=true")
}

// WithEnv adds "KEY=value" entries to the environment inherited from the current process.
func WithEnv(kv ...string) Option {
	return func(c *settings) { c.env = append(c.env, kv...) }
}

func WithDir(dir string) Option {
	return func(c *settings) { c.dir = dir }
}

type Launcher struct {
	log    *zap.Logger
	binary string
}

func New(logBuilder *logger.Builder, binary string) *Launcher {
	return &Launcher{
		log:    logBuilder.Domain(logger.LaunchDomain).With(zap.String("binary", binary)),
		binary: binary,
	}
}

func (l *Launcher) Binary() string {
	return l.binary
}

// Launch starts the binary with the given arguments and returns without waiting for it to exit.
// The child's stdin is connected to the null device. Cancelling ctx kills the child.
func (l *Launcher) Launch(ctx context.Context, args []string, opts ...Option) (*Process, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	cmd := exec.CommandContext(ctx, l.binary, args...)
	cmd.Stdin = nil
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}

	outRead, outW := io.Pipe()
	errRead, errW := io.Pipe()

	var (
		mu      sync.Mutex
		outSubs []io.Writer
		errSubs []io.Writer
	)
	for _, sub := range s.subscribers {
		if sub.Stdout != nil {
			outSubs = append(outSubs, sub.Stdout)
		}
		if sub.Stderr != nil {
			errSubs = append(errSubs, sub.Stderr)
		}
	}
	cmd.Stdout = &fanout{primary: outW, subscribers: outSubs, mu: &mu}
	cmd.Stderr = &fanout{primary: errW, subscribers: errSubs, mu: &mu}

	log := l.log.With(zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		log.Error("Failed to start child process.", zap.Error(err))
		_ = outW.Close()
		_ = errW.Close()
		return nil, err
	}
	log.Debug("Started child process.", zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		Stdout: outRead,
		Stderr: errRead,
		log:    log,
		cmd:    cmd,
		done:   make(chan struct{}),
	}
	go p.wait(outW, errW)
	return p, nil
}

// Process is a running child. Stdout and Stderr must either be read until EOF or closed, otherwise
// the child blocks once it fills the pipe.
type Process struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	log  *zap.Logger
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *Process) wait(outW *io.PipeWriter, errW *io.PipeWriter) {
	p.err = p.cmd.Wait()
	_ = outW.Close()
	_ = errW.Close()
	p.log.Debug("Child process exited.", zap.Int("exit-code", p.cmd.ProcessState.ExitCode()), zap.Error(p.err))
	close(p.done)
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the child has exited and all of its output has been handed off. A non-zero exit
// status is reported as an *exec.ExitError.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Done is closed once the child has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code of the child or ErrNotWaited if it is still running.
func (p *Process) ExitCode() (int, error) {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode(), nil
	default:
		return -1, ErrNotWaited
	}
}

func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// fanout copies writes to a primary pipe and to subscribers. It never fails so that the child's
// output keeps flowing to the remaining destinations when one of them goes away.
type fanout struct {
	primary     io.Writer
	subscribers []io.Writer
	mu          *sync.Mutex
}

func (f *fanout) Write(b []byte) (int, error) {
	f.mu.Lock()
	kept := f.subscribers[:0]
	for _, w := range f.subscribers {
		if _, err := w.Write(b); err == nil {
			kept = append(kept, w)
		}
	}
	f.subscribers = kept
	f.mu.Unlock()

	if f.primary != nil {
		if _, err := f.primary.Write(b); err != nil {
			f.primary = nil
		}
	}
	return len(b), nil
}
