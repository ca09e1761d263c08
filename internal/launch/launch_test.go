//go:build unix

package launch

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/borebin/internal/logger"
)

const fakeBore = `#!/bin/sh
case "$1" in
	--version) echo "bore-cli 0.5.0" ;;
	--stderr) echo "to-stderr" >&2 ;;
	--both) echo "out-line"; echo "err-line" >&2 ;;
	--env) echo "NO_COLOR=${NO_COLOR}" ;;
	--exit) exit "$2" ;;
	--sleep) exec sleep 30 ;;
	*) echo "unknown argument $1" >&2; exit 1 ;;
esac
`

var fakeBorePath string

// The script is written before any test runs so that no concurrent fork can hold its file
// descriptor open while it gets executed.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "borebin-launch")
	if err != nil {
		panic(err)
	}
	fakeBorePath = filepath.Join(dir, "bore")
	if err = os.WriteFile(fakeBorePath, []byte(fakeBore), 0o755); err != nil {
		panic(err)
	}

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestLauncher() *Launcher {
	return New(logger.NewTestBuilder(), fakeBorePath)
}

func TestLaunchOutput(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		args   []string
		opts   []Option
		stdout string
		stderr string
	}{
		"Version": {
			args:   []string{"--version"},
			stdout: "bore-cli 0.5.0\n",
		},
		"Stderr": {
			args:   []string{"--stderr"},
			stderr: "to-stderr\n",
		},
		"NoColor": {
			args:   []string{"--env"},
			opts:   []Option{WithNoColor()},
			stdout: "NO_COLOR=true\n",
		},
	}

	for name := range testcases {
		tc := testcases[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := newTestLauncher().Launch(context.Background(), tc.args, tc.opts...)
			require.NoError(t, err)

			errCh := make(chan []byte, 1)
			go func() {
				raw, _ := io.ReadAll(p.Stderr)
				errCh <- raw
			}()
			stdout, err := io.ReadAll(p.Stdout)
			require.NoError(t, err)
			stderr := <-errCh

			require.NoError(t, p.Wait())
			assert.Equal(t, tc.stdout, string(stdout))
			assert.Equal(t, tc.stderr, string(stderr))

			code, err := p.ExitCode()
			require.NoError(t, err)
			assert.Zero(t, code)
		})
	}
}

func TestMirror(t *testing.T) {
	t.Parallel()

	var (
		out   = &bytes.Buffer{}
		errs  = &bytes.Buffer{}
		extra = &bytes.Buffer{}
	)
	p, err := newTestLauncher().Launch(
		context.Background(),
		[]string{"--both"},
		Mirror(out, errs),
		WithSubscriber(Subscriber{Stdout: extra}),
	)
	require.NoError(t, err)

	// Nobody reads the streams. Closing them must not stop the subscribers.
	require.NoError(t, p.Stdout.Close())
	require.NoError(t, p.Stderr.Close())
	require.NoError(t, p.Wait())

	assert.Equal(t, "out-line\n", out.String())
	assert.Equal(t, "err-line\n", errs.String())
	assert.Equal(t, "out-line\n", extra.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

func TestFailingSubscriberIsDropped(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	p, err := newTestLauncher().Launch(
		context.Background(),
		[]string{"--version"},
		WithSubscriber(Subscriber{Stdout: failingWriter{}}),
		Mirror(out, nil),
	)
	require.NoError(t, err)
	require.NoError(t, p.Stderr.Close())

	stdout, err := io.ReadAll(p.Stdout)
	require.NoError(t, err)
	require.NoError(t, p.Wait())
	assert.Equal(t, "bore-cli 0.5.0\n", string(stdout))
	assert.Equal(t, "bore-cli 0.5.0\n", out.String())
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	p, err := newTestLauncher().Launch(context.Background(), []string{"--exit", "3"})
	require.NoError(t, err)
	_ = p.Stdout.Close()
	_ = p.Stderr.Close()

	err = p.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)

	code, err := p.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestKill(t *testing.T) {
	t.Parallel()

	p, err := newTestLauncher().Launch(context.Background(), []string{"--sleep"})
	require.NoError(t, err)
	_ = p.Stdout.Close()
	_ = p.Stderr.Close()

	assert.Positive(t, p.Pid())
	_, err = p.ExitCode()
	assert.ErrorIs(t, err, ErrNotWaited)

	require.NoError(t, p.Kill())
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("Child did not exit after being killed.")
	}
	assert.Error(t, p.Wait())
}

func TestContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p, err := newTestLauncher().Launch(ctx, []string{"--sleep"})
	require.NoError(t, err)
	_ = p.Stdout.Close()
	_ = p.Stderr.Close()

	cancel()
	assert.Error(t, p.Wait())
}

func TestLaunchMissingBinary(t *testing.T) {
	t.Parallel()

	l := New(logger.NewTestBuilder(), filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := l.Launch(context.Background(), []string{"--version"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
