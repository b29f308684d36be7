// Package catalog defines the catalog model shared by the loader, the registry
// and the remote sync: bundled (internal) catalogs, catalogs installed on the
// host as plugin packages, and entries of the remote manifest.
package catalog

import (
	"fmt"
	"io"
	"net/http"
)

// Source is the live object instantiated from a plugin package. Its ID is
// unique among the sources loaded by one process.
type Source interface {
	ID() int64
	Name() string
	Lang() string
}

// Release closes src if it holds resources. Sources that do not implement
// io.Closer are left alone.
func Release(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Local is a catalog whose source lives in this process: either an Internal
// or an Installed catalog.
type Local interface {
	CatalogSource() Source
	CatalogName() string
}

// Internal is a catalog bundled with the application. It exists for the
// lifetime of the process and is never compared against the remote manifest.
type Internal struct {
	Source      Source
	Description string
}

// CatalogSource returns the bundled source.
func (c Internal) CatalogSource() Source { return c.Source }

// CatalogName returns the source name.
func (c Internal) CatalogName() string { return c.Source.Name() }

// Installed is a catalog loaded from a host plugin package. Values are
// replaced wholesale, never modified in place once published.
type Installed struct {
	Name        string
	Description string
	Source      Source
	PkgName     string
	VersionName string
	VersionCode int64
	Nsfw        bool
	HasUpdate   bool
}

// CatalogSource returns the plugin instance.
func (c Installed) CatalogSource() Source { return c.Source }

// CatalogName returns the catalog display name.
func (c Installed) CatalogName() string { return c.Name }

// SourceID returns the id of the plugin instance, or 0 without one.
func (c Installed) SourceID() int64 {
	if c.Source == nil {
		return 0
	}
	return c.Source.ID()
}

// WithUpdate returns a copy of c with HasUpdate set to hasUpdate.
func (c Installed) WithUpdate(hasUpdate bool) Installed {
	c.HasUpdate = hasUpdate
	return c
}

// String returns a human-readable description.
func (c Installed) String() string {
	return fmt.Sprintf("%s@%s (%d)", c.PkgName, c.VersionName, c.VersionCode)
}

// Remote is one entry of the remote manifest.
type Remote struct {
	PkgName     string `json:"pkg_name" yaml:"pkg_name"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Lang        string `json:"lang" yaml:"lang"`
	VersionName string `json:"version_name" yaml:"version_name"`
	VersionCode int64  `json:"version_code" yaml:"version_code"`
	Nsfw        bool   `json:"nsfw,omitempty" yaml:"nsfw,omitempty"`
}

// Newer reports whether r is strictly newer than the installed catalog c.
// Entries for other packages are never newer.
func (r Remote) Newer(c Installed) bool {
	return r.PkgName == c.PkgName && r.VersionCode > c.VersionCode
}

var (
	_ Local = Internal{}
	_ Local = Installed{}
)

// Dependencies is the bundle handed to every plugin constructor.
type Dependencies struct {
	// HTTP is the client shared by all plugins.
	HTTP *http.Client
	// Prefs is the key-value store private to the plugin package.
	Prefs PreferenceStore
}
