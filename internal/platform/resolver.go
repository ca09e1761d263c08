package platform

import (
	"sort"
	"strings"

	"github.com/Helcaraxan/borebin/internal/archive"
)

const VersionPlaceholder = "{version}"

// The set of architectures differs per operating system. It mirrors what upstream publishes and
// is intentionally not generalised.
var assetTemplates = map[OS]map[Arch]string{
	OSLinux: {
		ArchARM64: "bore-{version}-armv7-unknown-linux-gnueabihf.tar.gz",
		ArchARM:   "bore-{version}-arm-unknown-linux-gnueabi.tar.gz",
		ArchAMD64: "bore-{version}-x86_64-unknown-linux-musl.tar.gz",
		Arch386:   "bore-{version}-i686-unknown-linux-musl.tar.gz",
	},
	OSDarwin: {
		ArchARM64: "bore-{version}-aarch64-apple-darwin.tar.gz",
		ArchAMD64: "bore-{version}-x86_64-apple-darwin.tar.gz",
	},
	OSWindows: {
		ArchAMD64: "bore-{version}-x86_64-pc-windows-msvc.zip",
		Arch386:   "bore-{version}-i686-pc-windows-msvc.zip",
	},
}

// Variant holds everything that differs between operating systems when installing a release.
type Variant struct {
	OS OS
	// ArchiveExt is appended to the destination path to name the downloaded archive.
	ArchiveExt string
	// Format is the archive format the release is expected in.
	Format archive.Format
	// Executable is the file name of the binary inside the archive.
	Executable string
	// SetExecutable indicates whether permission bits need to be set after extraction.
	SetExecutable bool
}

var variants = map[OS]Variant{
	OSLinux: {
		OS:            OSLinux,
		ArchiveExt:    ".tar.gz",
		Format:        archive.FormatTarGz,
		Executable:    "bore",
		SetExecutable: true,
	},
	OSDarwin: {
		OS:            OSDarwin,
		ArchiveExt:    ".tar.gz",
		Format:        archive.FormatTarGz,
		Executable:    "bore",
		SetExecutable: true,
	},
	OSWindows: {
		OS:         OSWindows,
		ArchiveExt: ".zip",
		Format:     archive.FormatZip,
		Executable: "bore.exe",
	},
}

// VariantFor returns the install variant for the given operating system.
func VariantFor(os OS) (Variant, error) {
	v, ok := variants[os]
	if !ok {
		return Variant{}, &UnsupportedPlatformError{Kind: KindPlatform, Value: string(os)}
	}
	return v, nil
}

// Lookup returns the asset template for the given key without instantiating it.
func Lookup(key Key) (string, error) {
	archs, ok := assetTemplates[key.OS]
	if !ok {
		return "", &UnsupportedPlatformError{Kind: KindPlatform, Value: string(key.OS)}
	}
	tmpl, ok := archs[key.Arch]
	if !ok {
		return "", &UnsupportedPlatformError{Kind: KindArchitecture, Value: string(key.Arch)}
	}
	return tmpl, nil
}

// Resolve returns the release asset filename for the given key and version.
func Resolve(key Key, version string) (string, error) {
	tmpl, err := Lookup(key)
	if err != nil {
		return "", err
	}
	return Instantiate(tmpl, version), nil
}

func Instantiate(tmpl string, version string) string {
	return strings.ReplaceAll(tmpl, VersionPlaceholder, version)
}

// Asset pairs a supported key with its template.
type Asset struct {
	Key      Key
	Template string
}

// Supported lists all known keys ordered by operating system and architecture.
func Supported() []Asset {
	var assets []Asset
	for os, archs := range assetTemplates {
		for arch, tmpl := range archs {
			assets = append(assets, Asset{Key: Key{OS: os, Arch: arch}, Template: tmpl})
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Key.OS != assets[j].Key.OS {
			return assets[i].Key.OS < assets[j].Key.OS
		}
		return assets[i].Key.Arch < assets[j].Key.Arch
	})
	return assets
}
