package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
)

func constFactory(v any) Factory {
	return func(context.Context, catalog.Dependencies) (any, error) { return v, nil }
}

func TestTable_PackageShadowsHost(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.RegisterHost("shared.Entry", constFactory("host"))
	table.Register("com.a", "shared.Entry", constFactory("own"))
	table.RegisterHost("host.Only", constFactory("fallback"))

	scope, err := table.Open(context.Background(), host.Candidate{PkgName: "com.a"})
	require.NoError(t, err)

	f, err := scope.Lookup("shared.Entry")
	require.NoError(t, err)
	v, _ := f(context.Background(), catalog.Dependencies{})
	assert.Equal(t, "own", v)

	f, err = scope.Lookup("host.Only")
	require.NoError(t, err)
	v, _ = f(context.Background(), catalog.Dependencies{})
	assert.Equal(t, "fallback", v)

	_, err = scope.Lookup("missing.Entry")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestTable_ScopesAreIsolated(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Register("com.a", "com.a.Source", constFactory("a"))

	scope, err := table.Open(context.Background(), host.Candidate{PkgName: "com.b"})
	require.NoError(t, err)
	_, err = scope.Lookup("com.a.Source")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	scopeA, err := table.Open(context.Background(), host.Candidate{PkgName: "com.a"})
	require.NoError(t, err)
	table.Unregister("com.a")

	_, err = scopeA.Lookup("com.a.Source")
	assert.NoError(t, err, "open scope keeps its copy")
}

func TestTable_OpenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTable().Open(ctx, host.Candidate{PkgName: "com.a"})
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingLocator struct {
	opened []string
}

func (r *recordingLocator) Open(_ context.Context, c host.Candidate) (Scope, error) {
	r.opened = append(r.opened, c.PkgName)
	return &tableScope{}, nil
}

func TestByArtifact(t *testing.T) {
	t.Parallel()

	native := &recordingLocator{}
	wasm := &recordingLocator{}
	locator := ByArtifact{Native: native, Wasm: wasm}

	_, err := locator.Open(context.Background(), host.Candidate{PkgName: "n", Artifact: "/pkgs/n/lib.so"})
	require.NoError(t, err)
	_, err = locator.Open(context.Background(), host.Candidate{PkgName: "w", Artifact: "/pkgs/w/plugin.WASM"})
	require.NoError(t, err)

	assert.Equal(t, []string{"n"}, native.opened)
	assert.Equal(t, []string{"w"}, wasm.opened)

	_, err = ByArtifact{Native: native}.Open(context.Background(), host.Candidate{PkgName: "w", Artifact: "x.wasm"})
	assert.Error(t, err)
}
