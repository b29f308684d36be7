package host

import (
	"strconv"
	"strings"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
)

// Candidate is the metadata of a package that can be handed to the loader.
// It is immutable once read from the host.
type Candidate struct {
	PkgName     string
	VersionCode int64
	VersionName string
	// Entry is the declared entry-type name, possibly in ".Shorthand" form.
	Entry       string
	Description string
	Label       string
	Nsfw        bool
	Artifact    string
}

// Inspector turns host packages into loader candidates.
type Inspector struct {
	feature string
}

// NewInspector creates an inspector keyed on PluginFeature.
func NewInspector() *Inspector {
	return &Inspector{feature: PluginFeature}
}

// IsPlugin reports whether the package declares the plugin feature.
func (i *Inspector) IsPlugin(info PackageInfo) bool {
	return info.HasFeature(i.feature)
}

// Inspect extracts the candidate metadata of a plugin package.
// It returns catalog.ErrNotAPlugin or catalog.ErrMissingEntryPoint when the
// package cannot be loaded.
func (i *Inspector) Inspect(info PackageInfo) (Candidate, error) {
	if !i.IsPlugin(info) {
		return Candidate{}, catalog.ErrNotAPlugin
	}

	entry := strings.TrimSpace(info.Metadata[MetadataSourceClass])
	if entry == "" {
		return Candidate{}, catalog.ErrMissingEntryPoint
	}

	description := info.Metadata[MetadataDescription]
	if description == "" {
		description = DefaultDescription
	}

	nsfw, _ := strconv.ParseBool(strings.TrimSpace(info.Metadata[MetadataNsfw]))

	return Candidate{
		PkgName:     info.Name,
		VersionCode: info.VersionCode,
		VersionName: info.VersionName,
		Entry:       entry,
		Description: description,
		Label:       info.Label,
		Nsfw:        nsfw,
		Artifact:    info.Artifact,
	}, nil
}

// Candidates keeps the loadable plugin packages of infos, in input order.
func (i *Inspector) Candidates(infos []PackageInfo) []Candidate {
	candidates := make([]Candidate, 0, len(infos))
	for _, info := range infos {
		c, err := i.Inspect(info)
		if err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}
