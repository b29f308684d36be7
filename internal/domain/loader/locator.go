package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
)

// ErrEntryNotFound indicates no factory is registered under an entry name.
var ErrEntryNotFound = errors.New("entry type not found")

// Factory constructs a plugin instance. The returned value must implement
// catalog.Source to be accepted. ctx carries the load deadline.
type Factory func(ctx context.Context, deps catalog.Dependencies) (any, error)

// Scope is the execution context built for one package. Entry names are
// resolved against the package's own code first.
type Scope interface {
	// Lookup returns the factory for a fully qualified entry name.
	Lookup(entry string) (Factory, error)
	// Close releases the scope. The loader only closes scopes whose load
	// failed; a successful instance takes ownership of its scope's resources.
	Close() error
}

// Locator builds the isolated scope of a candidate package.
type Locator interface {
	Open(ctx context.Context, c host.Candidate) (Scope, error)
}

// Table is a registration table of Go factories. Plugins compiled into the
// binary register under their package name; the host registers entries every
// package may fall back to.
type Table struct {
	mu       sync.RWMutex
	host     map[string]Factory
	packages map[string]map[string]Factory
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		host:     make(map[string]Factory),
		packages: make(map[string]map[string]Factory),
	}
}

// Register adds a factory visible only to pkgName.
func (t *Table) Register(pkgName, entry string, f Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.packages[pkgName]
	if !ok {
		entries = make(map[string]Factory)
		t.packages[pkgName] = entries
	}
	entries[entry] = f
}

// RegisterHost adds a factory visible to every package.
func (t *Table) RegisterHost(entry string, f Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host[entry] = f
}

// Unregister drops every factory registered for pkgName.
func (t *Table) Unregister(pkgName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.packages, pkgName)
}

// Open returns a scope holding a copy of the package's and the host's
// registrations, so later registrations never leak into a loaded plugin.
func (t *Table) Open(ctx context.Context, c host.Candidate) (Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	own := make(map[string]Factory, len(t.packages[c.PkgName]))
	for k, f := range t.packages[c.PkgName] {
		own[k] = f
	}
	parent := make(map[string]Factory, len(t.host))
	for k, f := range t.host {
		parent[k] = f
	}

	return &tableScope{own: own, parent: parent}, nil
}

type tableScope struct {
	own    map[string]Factory
	parent map[string]Factory
}

func (s *tableScope) Lookup(entry string) (Factory, error) {
	if f, ok := s.own[entry]; ok {
		return f, nil
	}
	if f, ok := s.parent[entry]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entry)
}

func (s *tableScope) Close() error { return nil }

// ByArtifact dispatches on the candidate's code artifact: ".wasm" artifacts
// go to Wasm, everything else to Native.
type ByArtifact struct {
	Native Locator
	Wasm   Locator
}

// Open delegates to the locator matching the candidate's artifact.
func (b ByArtifact) Open(ctx context.Context, c host.Candidate) (Scope, error) {
	if strings.HasSuffix(strings.ToLower(c.Artifact), ".wasm") {
		if b.Wasm == nil {
			return nil, fmt.Errorf("no wasm runtime configured for %s", c.Artifact)
		}
		return b.Wasm.Open(ctx, c)
	}
	if b.Native == nil {
		return nil, fmt.Errorf("no native locator configured for %s", c.PkgName)
	}
	return b.Native.Open(ctx, c)
}

var (
	_ Locator = (*Table)(nil)
	_ Locator = ByArtifact{}
)
