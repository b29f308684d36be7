package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/config"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/testutil"
)

type fakeFetcher struct {
	calls atomic.Int32
	list  []catalog.Remote
}

func (f *fakeFetcher) Fetch(context.Context) ([]catalog.Remote, error) {
	f.calls.Add(1)
	return append([]catalog.Remote(nil), f.list...), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PackagesDir = filepath.Join(dir, "packages")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Watch.Debounce = 50 * time.Millisecond
	return cfg
}

func installNative(t *testing.T, cfg *config.Config, pkg string, code int64) {
	t.Helper()
	testutil.WriteTempFile(t, cfg.PackagesDir, filepath.Join(pkg, "package.toml"), fmt.Sprintf(`name = %q
version_code = %d
version_name = "1.%d"
label = "Label"
features = ["catalogd.plugin"]

[metadata]
"source.class" = ".Source"
`, pkg, code, code))
}

func nativeSource(id int64, name string) func(context.Context, catalog.Dependencies) (any, error) {
	return func(context.Context, catalog.Dependencies) (any, error) {
		return testutil.NewSource(id, name, "en"), nil
	}
}

func TestApp_StartAndRefresh(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Debug = true
	installNative(t, cfg, "com.example.en", 2)
	installNative(t, cfg, "com.broken.en", 1)

	fetcher := &fakeFetcher{list: []catalog.Remote{
		{PkgName: "com.example.en", Name: "Example", Lang: "en", VersionCode: 3, VersionName: "1.3"},
	}}

	a, err := New(cfg,
		WithFetcher(fetcher),
		WithNativePlugin("com.example.en", "com.example.en.Source", nativeSource(7, "Example")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	reg := a.Registry()
	require.Len(t, reg.Installed(), 1, "the package without a factory is skipped")
	installed, ok := reg.InstalledByPkg("com.example.en")
	require.True(t, ok)
	assert.Equal(t, "Example", installed.Name)
	assert.False(t, installed.HasUpdate)

	require.Len(t, reg.Internal(), 1)
	local, ok := reg.Get(TestSourceID)
	require.True(t, ok)
	assert.Equal(t, "Test source", local.CatalogName())

	remote, err := a.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Len(t, remote, 1)

	installed, _ = reg.InstalledByPkg("com.example.en")
	assert.True(t, installed.HasUpdate)

	_, err = a.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "second refresh is throttled")
}

func TestApp_RestoresPersistedRemote(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetcher := &fakeFetcher{list: []catalog.Remote{{PkgName: "com.example.en", Name: "Example", Lang: "en", VersionCode: 1}}}

	first, err := New(cfg, WithFetcher(fetcher))
	require.NoError(t, err)
	_, err = first.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(cfg, WithFetcher(&fakeFetcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	require.NoError(t, second.Start(context.Background()))
	assert.Len(t, second.Registry().Remote(), 1)
}

func TestApp_Run(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetcher := &fakeFetcher{}

	a, err := New(cfg,
		WithFetcher(fetcher),
		WithNativePlugin("", "com.late.en.Source", nativeSource(9, "Late")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 },
		testutil.DefaultTimeout, 10*time.Millisecond, "sync on start")
	require.Eventually(t, func() bool { return a.Agent().Status().SyncCount == 1 },
		testutil.DefaultTimeout, 10*time.Millisecond)

	_, err = a.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 2, a.Agent().Status().SyncCount, "manual refresh runs through the agent")

	installNative(t, cfg, "com.late.en", 1)
	require.Eventually(t, func() bool {
		_, ok := a.Registry().InstalledByPkg("com.late.en")
		return ok
	}, testutil.DefaultTimeout, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("Run did not return")
	}
}

func TestApp_InstallBetweenStartAndRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(cfg,
		WithFetcher(&fakeFetcher{}),
		WithNativePlugin("", "com.gap.en.Source", nativeSource(11, "Gap")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	require.Empty(t, a.Registry().Installed())

	installNative(t, cfg, "com.gap.en", 1)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := a.Registry().InstalledByPkg("com.gap.en")
		return ok
	}, testutil.DefaultTimeout, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("Run did not return")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Log.Format = "xml"

	_, err := New(cfg)
	require.Error(t, err)
}
