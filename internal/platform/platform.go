// Package platform maps the operating system and CPU architecture of a host onto the name of the
// release archive that upstream publishes for it.
package platform

import (
	"errors"
	"fmt"
	"runtime"
)

type OS string

const (
	OSDarwin  OS = "darwin"
	OSLinux   OS = "linux"
	OSWindows OS = "windows"
)

type Arch string

const (
	Arch386   Arch = "386"
	ArchAMD64 Arch = "amd64"
	ArchARM   Arch = "arm"
	ArchARM64 Arch = "arm64"
)

// Key identifies a host. Identifiers follow GOOS and GOARCH naming.
type Key struct {
	OS   OS
	Arch Arch
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.OS, k.Arch)
}

var current = Key{OS: OS(runtime.GOOS), Arch: Arch(runtime.GOARCH)}

// Current returns the key of the running process.
func Current() Key {
	return current
}

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// UnsupportedPlatformError reports either an operating system or an architecture for which no
// release asset is published.
type UnsupportedPlatformError struct {
	Kind  string
	Value string
}

const (
	KindPlatform     = "platform"
	KindArchitecture = "architecture"
)

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported %s: %s", e.Kind, e.Value)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}
