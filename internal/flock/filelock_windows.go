//go:build windows

package flock

import (
	"os"
)

// FindProcess opens a handle on Windows and fails when no process with the PID exists.
func processIsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}
