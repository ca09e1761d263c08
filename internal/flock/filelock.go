// Package flock serialises work on a file across processes through a sibling PID file.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

var (
	ErrNoLockRelease = errors.New("unable to release file lock")
	ErrNotHeld       = errors.New("file lock is not held")
)

const (
	pollInterval        = 100 * time.Millisecond
	pidWriteGracePeriod = 1 * time.Second
)

// Lock guards the file at Path. The lock itself is the file at Path with a ".pid" suffix, containing
// the PID of its owner. Locks held by processes that have exited are broken by waiters.
type Lock struct {
	log  *zap.Logger
	path string
	held bool
}

func New(logBuilder *logger.Builder, path string) *Lock {
	return &Lock{
		log:  logBuilder.Domain(logger.LockDomain).With(zap.String("lock-file", PIDFile(path))),
		path: path,
	}
}

// PIDFile returns the lock file used for the given path.
func PIDFile(path string) string {
	return path + ".pid"
}

// Acquire blocks until the lock is held or the context is done.
func (l *Lock) Acquire(ctx context.Context) error {
	for iterations := 1; ; iterations++ {
		acquired, err := l.tryAcquire()
		if err != nil {
			return err
		} else if acquired {
			l.held = true
			return nil
		}

		if iterations%100 == 0 {
			l.log.Info("Waiting for install lock to be released.")
		}
		if err = l.breakIfStale(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *Lock) tryAcquire() (bool, error) {
	sem, err := os.OpenFile(PIDFile(l.path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	} else if err != nil {
		l.log.Error("Could not create lock file.", zap.Error(err))
		return false, err
	}

	l.log.Debug("Acquired lock. Writing PID to file.")
	if _, err = fmt.Fprint(sem, os.Getpid()); err != nil {
		_ = sem.Close()
		return false, err
	}
	return true, sem.Close()
}

// breakIfStale removes the lock file when its owner has gone away.
func (l *Lock) breakIfStale() error {
	c, err := os.ReadFile(PIDFile(l.path))
	if errors.Is(err, os.ErrNotExist) {
		l.log.Debug("Lock has been released. PID file was deleted.")
		return nil
	} else if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(c)))
	if err != nil {
		// The owner may not have had the time to write its PID yet.
		fi, statErr := os.Stat(PIDFile(l.path))
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		} else if statErr != nil {
			return statErr
		}
		if time.Since(fi.ModTime()) < pidWriteGracePeriod {
			return nil
		}
		l.log.Debug("Forcing lock release after PID-write grace period expired.")
		return l.remove()
	}

	if !processIsRunning(pid) {
		l.log.Debug("Forcing lock release after owning process exited.", zap.Int("pid", pid))
		return l.remove()
	}
	return nil
}

// Release removes the lock file. It fails with ErrNotHeld when the lock was not acquired through
// this value.
func (l *Lock) Release() error {
	if !l.held {
		return ErrNotHeld
	}
	l.log.Debug("Deleting lock file.")
	if err := l.remove(); err != nil {
		return err
	}
	l.held = false
	return nil
}

func (l *Lock) remove() error {
	if err := os.Remove(PIDFile(l.path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Error("Could not delete lock file.", zap.Error(err))
		return fmt.Errorf("%w(%s): %w", ErrNoLockRelease, PIDFile(l.path), err)
	}
	return nil
}
