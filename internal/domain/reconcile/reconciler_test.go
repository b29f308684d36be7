package reconcile

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/domain/registry"
	"github.com/felixgeelhaar/catalogd/internal/ports"
	"github.com/felixgeelhaar/catalogd/internal/testutil"
)

// scriptedLoader returns queued results per package.
type scriptedLoader struct {
	mu      sync.Mutex
	results map[string][]result
	calls   []string
}

type result struct {
	c   catalog.Installed
	err error
}

func (l *scriptedLoader) push(pkg string, c catalog.Installed, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.results == nil {
		l.results = make(map[string][]result)
	}
	l.results[pkg] = append(l.results[pkg], result{c: c, err: err})
}

func (l *scriptedLoader) LoadOne(_ context.Context, pkg string) (catalog.Installed, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, pkg)
	queue := l.results[pkg]
	if len(queue) == 0 {
		return catalog.Installed{}, catalog.NewLoadError(pkg, catalog.ErrPackageVanished, nil)
	}
	l.results[pkg] = queue[1:]
	return queue[0].c, queue[0].err
}

func TestReconciler_Installed(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	reg.SetRemote([]catalog.Remote{testutil.Remote("p", 9)})
	loader := &scriptedLoader{}
	loader.push("p", testutil.Installed("p", 10, 1), nil)

	require.NoError(t, New(loader, reg).Handle(context.Background(), host.Event{Kind: host.Installed, PkgName: "p"}))

	c, ok := reg.Get(10)
	require.True(t, ok)
	assert.True(t, c.(catalog.Installed).HasUpdate)
}

func TestReconciler_UpdateWithNewID(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	old := testutil.Installed("p", 10, 1)
	reg.SetInstalled([]catalog.Installed{old})

	loader := &scriptedLoader{}
	loader.push("p", testutil.Installed("p", 20, 2), nil)

	require.NoError(t, New(loader, reg).Handle(context.Background(), host.Event{Kind: host.Updated, PkgName: "p"}))

	_, ok := reg.Get(10)
	assert.False(t, ok, "old id unreachable")
	c, ok := reg.Get(20)
	require.True(t, ok)
	assert.Equal(t, int64(2), c.(catalog.Installed).VersionCode)
	assert.Len(t, reg.Installed(), 1)
	assert.Equal(t, 1, old.Source.(*testutil.Source).Closed())
}

func TestReconciler_UninstallIdempotent(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	reg.SetInstalled([]catalog.Installed{testutil.Installed("p", 10, 1)})
	r := New(&scriptedLoader{}, reg)

	ev := host.Event{Kind: host.Uninstalled, PkgName: "p"}
	require.NoError(t, r.Handle(context.Background(), ev))
	require.NoError(t, r.Handle(context.Background(), ev))

	assert.Empty(t, reg.Installed())
	_, ok := reg.Get(10)
	assert.False(t, ok)
}

func TestReconciler_LoadFailureWritesNothing(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	prior := testutil.Installed("p", 10, 1)
	reg.SetInstalled([]catalog.Installed{prior})

	loader := &scriptedLoader{}
	loader.push("p", catalog.Installed{}, catalog.NewLoadError("p", catalog.ErrIncompatibleVersion, errors.New("lib 2")))

	err := New(loader, reg).Handle(context.Background(), host.Event{Kind: host.Updated, PkgName: "p"})
	assert.ErrorIs(t, err, catalog.ErrIncompatibleVersion)

	c, ok := reg.Get(10)
	require.True(t, ok)
	assert.Equal(t, int64(1), c.(catalog.Installed).VersionCode)
}

func TestReconciler_RunKeepsOrderAndSurvivesFailures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewConsoleLogger(logging.WithOutput(&buf), logging.WithLevel(ports.LevelDebug))

	reg := registry.New(nil)
	loader := &scriptedLoader{}
	loader.push("a", testutil.Installed("a", 1, 1), nil)
	loader.push("a", testutil.Installed("a", 2, 2), nil)
	loader.push("c", testutil.Installed("c", 3, 1), nil)

	events := make(chan host.Event, 8)
	events <- host.Event{Kind: host.Installed, PkgName: "a"}
	events <- host.Event{Kind: host.Installed, PkgName: "broken"}
	events <- host.Event{Kind: host.Updated, PkgName: "a"}
	events <- host.Event{Kind: host.Installed, PkgName: "c"}
	events <- host.Event{Kind: host.Uninstalled, PkgName: "c"}
	events <- host.Event{Kind: host.Uninstalled, PkgName: "c"}
	close(events)

	err := New(loader, reg, WithLogger(logger)).Run(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "broken", "a", "c"}, loader.calls)

	installed := reg.Installed()
	require.Len(t, installed, 1)
	assert.Equal(t, int64(2), installed[0].SourceID())
	assert.Contains(t, buf.String(), "package event dropped")
	assert.Contains(t, buf.String(), "pkg=broken")
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(&scriptedLoader{}, registry.New(nil)).Run(ctx, make(chan host.Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconciler_UnknownEvent(t *testing.T) {
	t.Parallel()

	err := New(&scriptedLoader{}, registry.New(nil)).Handle(context.Background(), host.Event{Kind: 42, PkgName: "x"})
	assert.Error(t, err)
}
