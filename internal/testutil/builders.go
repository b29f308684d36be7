package testutil

import (
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
)

// PackageBuilder builds host packages for tests. The zero configuration is a
// loadable plugin package.
type PackageBuilder struct {
	info host.PackageInfo
}

// NewPackage starts a plugin package named name with lib version 1.
func NewPackage(name string) *PackageBuilder {
	return &PackageBuilder{
		info: host.PackageInfo{
			Name:        name,
			Features:    []string{host.PluginFeature},
			VersionCode: 1,
			VersionName: "1.0",
			Label:       name,
			Metadata: map[string]string{
				host.MetadataSourceClass: ".Source",
			},
		},
	}
}

// WithVersion sets the version code and name.
func (b *PackageBuilder) WithVersion(code int64, name string) *PackageBuilder {
	b.info.VersionCode = code
	b.info.VersionName = name
	return b
}

// WithEntry sets the declared entry type.
func (b *PackageBuilder) WithEntry(entry string) *PackageBuilder {
	b.info.Metadata[host.MetadataSourceClass] = entry
	return b
}

// WithoutEntry removes the declared entry type.
func (b *PackageBuilder) WithoutEntry() *PackageBuilder {
	delete(b.info.Metadata, host.MetadataSourceClass)
	return b
}

// WithLabel sets the host label.
func (b *PackageBuilder) WithLabel(label string) *PackageBuilder {
	b.info.Label = label
	return b
}

// WithMetadata sets one metadata key.
func (b *PackageBuilder) WithMetadata(key, value string) *PackageBuilder {
	b.info.Metadata[key] = value
	return b
}

// WithArtifact sets the code artifact path.
func (b *PackageBuilder) WithArtifact(path string) *PackageBuilder {
	b.info.Artifact = path
	return b
}

// NotAPlugin drops the plugin feature.
func (b *PackageBuilder) NotAPlugin() *PackageBuilder {
	b.info.Features = nil
	return b
}

// Build returns the package.
func (b *PackageBuilder) Build() host.PackageInfo {
	return b.info
}

// Installed returns an installed catalog backed by a new Source.
func Installed(pkgName string, id int64, versionCode int64) catalog.Installed {
	return catalog.Installed{
		Name:        pkgName,
		Description: host.DefaultDescription,
		Source:      NewSource(id, pkgName, "en"),
		PkgName:     pkgName,
		VersionName: "1.0",
		VersionCode: versionCode,
	}
}

// Remote returns a remote manifest entry.
func Remote(pkgName string, versionCode int64) catalog.Remote {
	return catalog.Remote{
		PkgName:     pkgName,
		Name:        pkgName,
		Lang:        "en",
		VersionName: "1.0",
		VersionCode: versionCode,
	}
}
