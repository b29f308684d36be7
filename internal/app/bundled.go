package app

import "github.com/felixgeelhaar/catalogd/internal/domain/catalog"

// TestSourceID is the id of the test source bundled in debug mode. Plugin
// sources use positive ids.
const TestSourceID int64 = -1

// testSource is a source with no content, registered so the internal catalog
// path can be exercised without installing anything.
type testSource struct{}

func (testSource) ID() int64      { return TestSourceID }
func (testSource) Name() string   { return "Test source" }
func (testSource) Lang() string   { return catalog.MultiLang }
func (testSource) String() string { return "Test source (debug)" }

// bundledCatalogs returns the internal catalogs of this build.
func bundledCatalogs(debug bool) []catalog.Internal {
	if !debug {
		return nil
	}
	return []catalog.Internal{{
		Source:      testSource{},
		Description: "Bundled test catalog",
	}}
}
