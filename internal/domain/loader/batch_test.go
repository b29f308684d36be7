package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/testutil"
)

func TestBatchLoader_LoadAll(t *testing.T) {
	t.Parallel()

	const valid, invalid = 12, 5

	table := NewTable()
	hostPkgs := testutil.NewPackageSource()
	for i := 0; i < valid; i++ {
		pkg := fmt.Sprintf("com.valid%02d", i)
		table.Register(pkg, pkg+".Source", constFactory(testutil.NewSource(int64(i+1), pkg, "en")))
		hostPkgs.Install(testutil.NewPackage(pkg).Build())
	}
	for i := 0; i < invalid; i++ {
		pkg := fmt.Sprintf("com.invalid%02d", i)
		hostPkgs.Install(testutil.NewPackage(pkg).WithVersion(1, "9.0").Build())
	}
	hostPkgs.Install(testutil.NewPackage("com.app").NotAPlugin().Build())
	hostPkgs.Install(testutil.NewPackage("com.noentry").WithoutEntry().Build())

	batch := NewBatchLoader(hostPkgs, NewLoader(table), WithWorkers(3))

	results, err := batch.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, valid+invalid)

	installed := Successes(results)
	assert.Len(t, installed, valid)

	failures := 0
	for _, r := range results {
		if !r.OK() {
			failures++
			assert.ErrorIs(t, r.Err, catalog.ErrIncompatibleVersion)
		}
	}
	assert.Equal(t, invalid, failures)

	names := make([]string, 0, len(installed))
	for _, c := range installed {
		names = append(names, c.PkgName)
	}
	sort.Strings(names)
	assert.Equal(t, "com.valid00", names[0])
}

func TestBatchLoader_LoadAllEmpty(t *testing.T) {
	t.Parallel()

	results, err := NewBatchLoader(testutil.NewPackageSource(), NewLoader(NewTable())).LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBatchLoader_LoadAllHostFailure(t *testing.T) {
	t.Parallel()

	hostPkgs := testutil.NewPackageSource()
	hostPkgs.FailWith(errors.New("package manager down"))

	_, err := NewBatchLoader(hostPkgs, NewLoader(NewTable())).LoadAll(context.Background())
	assert.Error(t, err)
}

func TestBatchLoader_LoadOne(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Register("com.a", "com.a.Source", constFactory(testutil.NewSource(5, "A", "en")))

	hostPkgs := testutil.NewPackageSource(
		testutil.NewPackage("com.a").WithVersion(7, "1.7").Build(),
		testutil.NewPackage("com.app").NotAPlugin().Build(),
	)
	batch := NewBatchLoader(hostPkgs, NewLoader(table))

	got, err := batch.LoadOne(context.Background(), "com.a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.VersionCode)
	assert.Equal(t, int64(5), got.SourceID())

	tests := []struct {
		pkg  string
		want error
	}{
		{pkg: "com.gone", want: catalog.ErrPackageVanished},
		{pkg: "com.app", want: catalog.ErrNotAPlugin},
	}
	for _, tt := range tests {
		_, err := batch.LoadOne(context.Background(), tt.pkg)
		assert.ErrorIs(t, err, tt.want, tt.pkg)
		assert.True(t, catalog.IsLoadError(err))
	}
}

func TestBatchLoader_LoadOneHostFailure(t *testing.T) {
	t.Parallel()

	hostPkgs := testutil.NewPackageSource()
	hostPkgs.FailWith(errors.New("binder died"))

	_, err := NewBatchLoader(hostPkgs, NewLoader(NewTable())).LoadOne(context.Background(), "com.a")
	assert.ErrorIs(t, err, catalog.ErrInstantiationFailure)
}

var _ host.PackageSource = (*testutil.PackageSource)(nil)
