// Package app wires the catalog components together from the configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/felixgeelhaar/catalogd/internal/adapters/hostdir"
	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/adapters/prefs"
	"github.com/felixgeelhaar/catalogd/internal/adapters/store"
	"github.com/felixgeelhaar/catalogd/internal/adapters/wasm"
	"github.com/felixgeelhaar/catalogd/internal/config"
	"github.com/felixgeelhaar/catalogd/internal/domain/agent"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/loader"
	"github.com/felixgeelhaar/catalogd/internal/domain/reconcile"
	"github.com/felixgeelhaar/catalogd/internal/domain/registry"
	"github.com/felixgeelhaar/catalogd/internal/domain/remote"
	"github.com/felixgeelhaar/catalogd/internal/domain/remotesync"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// App owns every long-lived component.
type App struct {
	cfg    *config.Config
	logger ports.Logger

	registry   *registry.Registry
	natives    *loader.Table
	wasm       *wasm.Locator
	packages   *hostdir.Source
	watcher    *hostdir.Watcher
	batch      *loader.BatchLoader
	syncer     *remotesync.Syncer
	agent      *agent.Agent
	reconciler *reconcile.Reconciler

	// baseline is the package set seen just before the first load.
	baseline  *hostdir.Baseline
	startOnce sync.Once
	startErr  error
	closeOnce sync.Once
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger  ports.Logger
	http    *http.Client
	fetcher remotesync.Fetcher
	natives []native
}

type native struct {
	pkgName string
	entry   string
	factory loader.Factory
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger ports.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient sets the client used for the manifest and handed to plugins.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.http = c
	}
}

// WithFetcher replaces the manifest client.
func WithFetcher(f remotesync.Fetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithNativePlugin registers a plugin compiled into the binary. An empty
// pkgName makes the entry visible to every package.
func WithNativePlugin(pkgName, entry string, f loader.Factory) Option {
	return func(o *options) {
		o.natives = append(o.natives, native{pkgName: pkgName, entry: entry, factory: f})
	}
}

// New builds the application. Nothing is loaded until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	httpClient := o.http
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	for _, dir := range []string{cfg.PackagesDir, cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	natives := loader.NewTable()
	for _, n := range o.natives {
		if n.pkgName == "" {
			natives.RegisterHost(n.entry, n.factory)
		} else {
			natives.Register(n.pkgName, n.entry, n.factory)
		}
	}

	wasmLocator := wasm.NewLocator(
		wasm.WithMemoryLimitPages(cfg.Loader.MemoryLimitPages),
		wasm.WithLogger(logger.With(ports.F("component", "wasm"))),
	)

	l := loader.NewLoader(
		loader.ByArtifact{Native: natives, Wasm: wasmLocator},
		loader.WithHTTPClient(httpClient),
		loader.WithLoadTimeout(cfg.Loader.Timeout),
		loader.WithPreferences(prefs.NewProvider(cfg.PreferencesDir())),
		loader.WithLogger(logger.With(ports.F("component", "loader"))),
	)

	packages := hostdir.NewSource(cfg.PackagesDir, hostdir.WithLogger(logger.With(ports.F("component", "hostdir"))))
	batch := loader.NewBatchLoader(packages, l,
		loader.WithWorkers(cfg.Loader.Workers),
		loader.WithBatchLogger(logger.With(ports.F("component", "batch"))),
	)

	reg := registry.New(bundledCatalogs(cfg.Debug), registry.WithLogger(logger.With(ports.F("component", "registry"))))

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = remote.NewClientWithHTTP(remote.ClientConfig{
			BaseURL:   cfg.ManifestURL,
			Timeout:   cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
		}, httpClient)
	}

	syncer := remotesync.NewSyncer(fetcher, store.NewRemoteTable(cfg.RemoteTablePath()), reg,
		remotesync.WithMinInterval(cfg.Sync.MinInterval),
		remotesync.WithLogger(logger.With(ports.F("component", "remotesync"))),
	)

	ag, err := agent.NewAgent(&agent.Config{
		Interval:    cfg.Sync.Interval,
		SyncOnStart: cfg.Sync.OnStart,
	}, agent.WithLogger(logger.With(ports.F("component", "agent"))))
	if err != nil {
		_ = wasmLocator.Close()
		return nil, err
	}
	ag.SetSyncHandler(func(ctx context.Context, force bool) (int, error) {
		list, err := syncer.Refresh(ctx, force)
		return len(list), err
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		natives:  natives,
		wasm:     wasmLocator,
		packages: packages,
		watcher: hostdir.NewWatcher(packages, cfg.Watch.Debounce,
			hostdir.WithLogger(logger.With(ports.F("component", "watcher")))),
		batch:      batch,
		syncer:     syncer,
		agent:      ag,
		reconciler: reconcile.New(batch, reg, reconcile.WithLogger(logger.With(ports.F("component", "reconcile")))),
	}, nil
}

// Registry returns the catalog registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Agent returns the sync agent.
func (a *App) Agent() *agent.Agent {
	return a.agent
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Start loads the installed plugins and the persisted remote table into the
// registry. Plugin failures are logged and skipped. It runs once; later calls
// return the first result.
func (a *App) Start(ctx context.Context) error {
	a.startOnce.Do(func() {
		a.startErr = a.start(ctx)
	})
	return a.startErr
}

func (a *App) start(ctx context.Context) error {
	if a.cfg.Watch.Enabled {
		base, err := a.watcher.Baseline(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", a.cfg.PackagesDir, err)
		}
		a.baseline = base
	}

	results, err := a.batch.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load installed catalogs: %w", err)
	}
	for _, r := range results {
		if !r.OK() {
			a.logger.Warn(ctx, "catalog not loaded", ports.F("pkg", r.PkgName), ports.Err(r.Err))
		}
	}
	installed := loader.Successes(results)
	a.registry.SetInstalled(installed)
	a.logger.Info(ctx, "installed catalogs loaded",
		ports.F("loaded", len(installed)), ports.F("failed", len(results)-len(installed)))

	if err := a.syncer.Init(ctx); err != nil {
		// A missing or corrupt table only means no remote entries until the next refresh.
		a.logger.Warn(ctx, "remote table not loaded", ports.Err(err))
	}
	return nil
}

// Refresh fetches the remote manifest unless a refresh succeeded recently;
// force skips that check. While Run is active the refresh goes through the
// sync agent and shows up in its status.
func (a *App) Refresh(ctx context.Context, force bool) ([]catalog.Remote, error) {
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	_, err := a.agent.SyncNow(ctx, force)
	switch {
	case errors.Is(err, agent.ErrNotRunning):
		return a.syncer.Refresh(ctx, force)
	case err != nil:
		return nil, err
	}
	return a.registry.Remote(), nil
}

// Run starts the app, follows package installs and drives periodic syncs
// until ctx is done. Packages changed after Start took its first look are
// reconciled as soon as watching begins.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if a.cfg.Watch.Enabled {
		events, err := a.watcher.WatchFrom(ctx, a.baseline)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", a.cfg.PackagesDir, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.reconciler.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error(ctx, "reconciler stopped", ports.Err(err))
			}
		}()
	}

	if err := a.agent.Start(ctx); err != nil {
		return err
	}
	a.logger.Info(ctx, "catalogd running", ports.F("packages_dir", a.cfg.PackagesDir))

	<-ctx.Done()

	stopErr := a.agent.Stop(context.WithoutCancel(ctx))
	wg.Wait()
	return stopErr
}

// Close releases every loaded plugin and the WASM runtime.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if err := a.registry.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.wasm.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
