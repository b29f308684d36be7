// Package host describes the packages installed on the host and filters them
// down to catalog plugin candidates.
package host

import (
	"context"
	"fmt"
)

// PluginFeature is the feature tag a package must declare to be treated as a
// catalog plugin.
const PluginFeature = "catalogd.plugin"

// Metadata keys read from a package's application metadata.
const (
	MetadataSourceClass = "source.class"
	MetadataDescription = "source.description"
	MetadataNsfw        = "source.nsfw"
)

// DefaultDescription is used when a package declares no description.
const DefaultDescription = "Installed catalog description"

// PackageInfo is the host's view of one installed package.
type PackageInfo struct {
	Name        string
	Features    []string
	VersionCode int64
	VersionName string
	// Label is the application label shown by the host.
	Label string
	// Metadata is the application metadata dictionary.
	Metadata map[string]string
	// Artifact is the path of the package's code artifact.
	Artifact string
}

// HasFeature reports whether the package declares feature.
func (p PackageInfo) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// PackageSource enumerates the packages installed on the host.
type PackageSource interface {
	// Packages returns every installed package.
	Packages(ctx context.Context) ([]PackageInfo, error)
	// Package returns one package; catalog.ErrPackageVanished if it is not installed.
	Package(ctx context.Context, name string) (PackageInfo, error)
}

// EventKind identifies a package lifecycle change.
type EventKind int

const (
	// Installed means a package appeared on the host.
	Installed EventKind = iota + 1
	// Updated means an installed package was replaced by another version.
	Updated
	// Uninstalled means a package was removed from the host.
	Uninstalled
)

func (k EventKind) String() string {
	switch k {
	case Installed:
		return "installed"
	case Updated:
		return "updated"
	case Uninstalled:
		return "uninstalled"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a package change reported by the host observer.
type Event struct {
	Kind    EventKind
	PkgName string
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.PkgName)
}
