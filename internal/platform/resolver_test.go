package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/borebin/internal/archive"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		key      Key
		version  string
		expected string
	}{
		"LinuxARM64": {
			key:      Key{OS: OSLinux, Arch: ArchARM64},
			version:  "v0.5.0",
			expected: "bore-v0.5.0-armv7-unknown-linux-gnueabihf.tar.gz",
		},
		"LinuxARM": {
			key:      Key{OS: OSLinux, Arch: ArchARM},
			version:  "v0.5.0",
			expected: "bore-v0.5.0-arm-unknown-linux-gnueabi.tar.gz",
		},
		"LinuxAMD64": {
			key:      Key{OS: OSLinux, Arch: ArchAMD64},
			version:  "v0.5.0",
			expected: "bore-v0.5.0-x86_64-unknown-linux-musl.tar.gz",
		},
		"Linux386": {
			key:      Key{OS: OSLinux, Arch: Arch386},
			version:  "v0.4.1",
			expected: "bore-v0.4.1-i686-unknown-linux-musl.tar.gz",
		},
		"DarwinARM64": {
			key:      Key{OS: OSDarwin, Arch: ArchARM64},
			version:  "v0.5.0",
			expected: "bore-v0.5.0-aarch64-apple-darwin.tar.gz",
		},
		"DarwinAMD64": {
			key:      Key{OS: OSDarwin, Arch: ArchAMD64},
			version:  "v0.5.0",
			expected: "bore-v0.5.0-x86_64-apple-darwin.tar.gz",
		},
		"WindowsAMD64": {
			key:      Key{OS: OSWindows, Arch: ArchAMD64},
			version:  "v0.5.0",
			expected: "bore-v0.5.0-x86_64-pc-windows-msvc.zip",
		},
		"Windows386": {
			key:      Key{OS: OSWindows, Arch: Arch386},
			version:  "some-opaque-tag",
			expected: "bore-some-opaque-tag-i686-pc-windows-msvc.zip",
		},
	}

	for name := range testcases {
		tc := testcases[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			asset, err := Resolve(tc.key, tc.version)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, asset)
			assert.NotContains(t, asset, VersionPlaceholder)
		})
	}
}

func TestResolveAllSupported(t *testing.T) {
	t.Parallel()

	for _, a := range Supported() {
		asset, err := Resolve(a.Key, "v9.9.9")
		require.NoError(t, err, a.Key.String())
		assert.Contains(t, asset, "v9.9.9")
		assert.NotContains(t, asset, VersionPlaceholder)
	}
}

func TestResolveUnsupported(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		key  Key
		kind string
	}{
		"UnknownOS":            {key: Key{OS: "freebsd", Arch: ArchAMD64}, kind: KindPlatform},
		"DarwinARM":            {key: Key{OS: OSDarwin, Arch: ArchARM}, kind: KindArchitecture},
		"Darwin386":            {key: Key{OS: OSDarwin, Arch: Arch386}, kind: KindArchitecture},
		"WindowsARM64":         {key: Key{OS: OSWindows, Arch: ArchARM64}, kind: KindArchitecture},
		"LinuxUnknownArch":     {key: Key{OS: OSLinux, Arch: "riscv64"}, kind: KindArchitecture},
		"EmptyKey":             {key: Key{}, kind: KindPlatform},
		"WindowsUnknownArch":   {key: Key{OS: OSWindows, Arch: "mips"}, kind: KindArchitecture},
		"UnknownOSUnknownArch": {key: Key{OS: "plan9", Arch: "mips"}, kind: KindPlatform},
	}

	for name := range testcases {
		tc := testcases[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Resolve(tc.key, "v0.5.0")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupportedPlatform))

			var upErr *UnsupportedPlatformError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tc.kind, upErr.Kind)
		})
	}
}

func TestSupportedAsymmetry(t *testing.T) {
	t.Parallel()

	count := map[OS]int{}
	for _, a := range Supported() {
		count[a.Key.OS]++
	}
	assert.Equal(t, map[OS]int{OSLinux: 4, OSDarwin: 2, OSWindows: 2}, count)
}

func TestVariants(t *testing.T) {
	t.Parallel()

	v, err := VariantFor(OSLinux)
	require.NoError(t, err)
	assert.Equal(t, ".tar.gz", v.ArchiveExt)
	assert.Equal(t, archive.FormatTarGz, v.Format)
	assert.True(t, v.SetExecutable)

	v, err = VariantFor(OSDarwin)
	require.NoError(t, err)
	assert.Equal(t, "bore", v.Executable)
	assert.True(t, v.SetExecutable)

	v, err = VariantFor(OSWindows)
	require.NoError(t, err)
	assert.Equal(t, ".zip", v.ArchiveExt)
	assert.Equal(t, "bore.exe", v.Executable)
	assert.False(t, v.SetExecutable)

	_, err = VariantFor("solaris")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}
