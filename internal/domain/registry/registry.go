// Package registry holds the process-wide view of catalogs: bundled internal
// catalogs, catalogs installed on the host and the last remote manifest.
//
// Readers work on immutable snapshots swapped atomically and never block.
// Writers serialize on a single mutex that guards the installed list and the
// source id index together, and publish to the streams before releasing it,
// so every subscriber sees values in write order.
//
// Sources are compared by identity; implementations must be comparable,
// typically pointer types.
package registry

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

type snapshot struct {
	internal  []catalog.Internal
	installed []catalog.Installed
	remote    []catalog.Remote
	bySource  map[int64]catalog.Local
}

// Registry is the catalog registry. Create it with New; the zero value is not
// usable.
type Registry struct {
	mu    sync.Mutex
	state atomic.Pointer[snapshot]

	internalStream  *Broadcast[[]catalog.Internal]
	installedStream *Broadcast[[]catalog.Installed]
	remoteStream    *Broadcast[[]catalog.Remote]

	logger ports.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.OrNop(logger)
	}
}

// New creates a registry holding the bundled catalogs. Internal catalogs are
// fixed for the registry's lifetime.
func New(internal []catalog.Internal, opts ...Option) *Registry {
	internal = slices.Clone(internal)
	if internal == nil {
		internal = []catalog.Internal{}
	}

	s := &snapshot{
		internal:  internal,
		installed: []catalog.Installed{},
		remote:    []catalog.Remote{},
	}
	s.bySource = index(s.internal, s.installed)

	r := &Registry{
		internalStream:  NewBroadcast(s.internal),
		installedStream: NewBroadcast(s.installed),
		remoteStream:    NewBroadcast(s.remote),
		logger:          logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state.Store(s)
	return r
}

// Get returns the local catalog whose source has id.
func (r *Registry) Get(id int64) (catalog.Local, bool) {
	c, ok := r.state.Load().bySource[id]
	return c, ok
}

// Internal returns the bundled catalogs.
func (r *Registry) Internal() []catalog.Internal {
	return slices.Clone(r.state.Load().internal)
}

// Installed returns the installed catalogs.
func (r *Registry) Installed() []catalog.Installed {
	return slices.Clone(r.state.Load().installed)
}

// InstalledByPkg returns the installed catalog of pkgName.
func (r *Registry) InstalledByPkg(pkgName string) (catalog.Installed, bool) {
	s := r.state.Load()
	if i := findPkg(s.installed, pkgName); i >= 0 {
		return s.installed[i], true
	}
	return catalog.Installed{}, false
}

// Remote returns the last remote manifest.
func (r *Registry) Remote() []catalog.Remote {
	return slices.Clone(r.state.Load().remote)
}

// ObserveInternal streams the bundled catalogs.
func (r *Registry) ObserveInternal(ctx context.Context) <-chan []catalog.Internal {
	return r.internalStream.Subscribe(ctx)
}

// ObserveInstalled streams the installed catalogs. The current list is
// delivered first, then the latest list after each change.
func (r *Registry) ObserveInstalled(ctx context.Context) <-chan []catalog.Installed {
	return r.installedStream.Subscribe(ctx)
}

// ObserveRemote streams the remote manifest.
func (r *Registry) ObserveRemote(ctx context.Context) <-chan []catalog.Remote {
	return r.remoteStream.Subscribe(ctx)
}

// SetInstalled replaces the installed catalogs, typically with the startup
// load. Update flags are derived from the current remote manifest. When two
// entries share a package name the later one wins. Sources no longer
// referenced are released.
func (r *Registry) SetInstalled(list []catalog.Installed) {
	var released []catalog.Installed

	r.mu.Lock()
	s := r.state.Load()

	installed := make([]catalog.Installed, 0, len(list))
	for _, c := range list {
		c = c.WithUpdate(hasUpdate(c, s.remote))
		if i := findPkg(installed, c.PkgName); i >= 0 {
			released = append(released, installed[i])
			installed[i] = c
			continue
		}
		installed = append(installed, c)
	}
	for _, old := range s.installed {
		if !containsSource(installed, old.Source) {
			released = append(released, old)
		}
	}

	r.commit(s, installed, s.remote)
	r.installedStream.Publish(installed)
	r.mu.Unlock()

	r.release(released)
}

// SetRemote replaces the remote manifest and recomputes the update flag of
// every installed catalog. Installed catalogs are republished only when a
// flag actually changed.
func (r *Registry) SetRemote(list []catalog.Remote) {
	remote := slices.Clone(list)
	if remote == nil {
		remote = []catalog.Remote{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state.Load()

	installed := s.installed
	changed := false
	for i, c := range s.installed {
		flag := hasUpdate(c, remote)
		if flag == c.HasUpdate {
			continue
		}
		if !changed {
			installed = slices.Clone(s.installed)
			changed = true
		}
		installed[i] = c.WithUpdate(flag)
	}

	r.commit(s, installed, remote)
	r.remoteStream.Publish(remote)
	if changed {
		r.installedStream.Publish(installed)
	}
}

// ApplyInstall adds a freshly loaded catalog. A catalog already installed
// under the same package name is replaced, as by ApplyUpdate.
func (r *Registry) ApplyInstall(c catalog.Installed) {
	r.replace(c)
}

// ApplyUpdate replaces the catalog installed under c's package name. The
// previous entry is matched by package name because source ids may change
// across versions; its id is dropped from the index and its source released.
// It returns the replaced catalog, if any.
func (r *Registry) ApplyUpdate(c catalog.Installed) (catalog.Installed, bool) {
	return r.replace(c)
}

// ApplyUninstall removes the catalog installed under pkgName and releases its
// source. Removing an unknown package is a no-op.
func (r *Registry) ApplyUninstall(pkgName string) (catalog.Installed, bool) {
	r.mu.Lock()
	s := r.state.Load()

	i := findPkg(s.installed, pkgName)
	if i < 0 {
		r.mu.Unlock()
		return catalog.Installed{}, false
	}
	removed := s.installed[i]

	installed := slices.Delete(slices.Clone(s.installed), i, i+1)
	r.commit(s, installed, s.remote)
	r.installedStream.Publish(installed)
	r.mu.Unlock()

	r.release([]catalog.Installed{removed})
	return removed, true
}

// Close releases every installed source and closes all streams.
func (r *Registry) Close() error {
	r.mu.Lock()
	s := r.state.Load()
	r.internalStream.Close()
	r.installedStream.Close()
	r.remoteStream.Close()
	r.mu.Unlock()

	r.release(s.installed)
	return nil
}

func (r *Registry) replace(c catalog.Installed) (catalog.Installed, bool) {
	r.mu.Lock()
	s := r.state.Load()

	c = c.WithUpdate(hasUpdate(c, s.remote))

	installed := slices.Clone(s.installed)
	i := findPkg(installed, c.PkgName)
	var old catalog.Installed
	if i >= 0 {
		old = installed[i]
		installed = slices.Delete(installed, i, i+1)
	}
	installed = append(installed, c)

	r.commit(s, installed, s.remote)
	r.installedStream.Publish(installed)
	r.mu.Unlock()

	if i < 0 {
		return catalog.Installed{}, false
	}
	if old.Source != c.Source {
		r.release([]catalog.Installed{old})
	}
	return old, true
}

// commit swaps in a new snapshot. Callers hold r.mu.
func (r *Registry) commit(prev *snapshot, installed []catalog.Installed, remote []catalog.Remote) {
	next := &snapshot{
		internal:  prev.internal,
		installed: installed,
		remote:    remote,
		bySource:  index(prev.internal, installed),
	}
	r.state.Store(next)
}

func (r *Registry) release(list []catalog.Installed) {
	for _, c := range list {
		if c.Source == nil {
			continue
		}
		if err := catalog.Release(c.Source); err != nil {
			r.logger.Warn(context.Background(), "releasing catalog source failed",
				ports.F("pkg", c.PkgName), ports.Err(err))
		}
	}
}

func index(internal []catalog.Internal, installed []catalog.Installed) map[int64]catalog.Local {
	m := make(map[int64]catalog.Local, len(internal)+len(installed))
	for _, c := range internal {
		if c.Source != nil {
			m[c.Source.ID()] = c
		}
	}
	for _, c := range installed {
		if c.Source != nil {
			m[c.Source.ID()] = c
		}
	}
	return m
}

func hasUpdate(c catalog.Installed, remote []catalog.Remote) bool {
	for _, r := range remote {
		if r.Newer(c) {
			return true
		}
	}
	return false
}

func findPkg(list []catalog.Installed, pkgName string) int {
	return slices.IndexFunc(list, func(c catalog.Installed) bool {
		return c.PkgName == pkgName
	})
}

func containsSource(list []catalog.Installed, src catalog.Source) bool {
	return slices.ContainsFunc(list, func(c catalog.Installed) bool {
		return c.Source == src
	})
}
