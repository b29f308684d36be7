package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// Result is the outcome of loading one package.
type Result struct {
	PkgName string
	Catalog catalog.Installed
	Err     error
}

// OK reports whether the package loaded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Successes returns the catalogs of the successful results.
func Successes(results []Result) []catalog.Installed {
	out := make([]catalog.Installed, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Catalog)
		}
	}
	return out
}

// BatchLoader discovers plugin packages on the host and loads them.
type BatchLoader struct {
	source    host.PackageSource
	inspector *host.Inspector
	loader    *Loader
	workers   int
	logger    ports.Logger
}

// BatchOption configures a BatchLoader.
type BatchOption func(*BatchLoader)

// WithWorkers bounds the number of concurrent loads (default: GOMAXPROCS).
func WithWorkers(n int) BatchOption {
	return func(b *BatchLoader) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithBatchLogger sets the logger.
func WithBatchLogger(logger ports.Logger) BatchOption {
	return func(b *BatchLoader) {
		b.logger = logging.OrNop(logger)
	}
}

// NewBatchLoader creates a batch loader over the host's packages.
func NewBatchLoader(source host.PackageSource, loader *Loader, opts ...BatchOption) *BatchLoader {
	b := &BatchLoader{
		source:    source,
		inspector: host.NewInspector(),
		loader:    loader,
		workers:   runtime.GOMAXPROCS(0),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LoadAll loads every plugin candidate installed on the host. It returns one
// result per candidate in no particular order; a failing candidate never
// affects the others. The error is non-nil only when the host could not be
// enumerated.
func (b *BatchLoader) LoadAll(ctx context.Context) ([]Result, error) {
	infos, err := b.source.Packages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing host packages: %w", err)
	}

	candidates := b.inspector.Candidates(infos)
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(candidates))
	)

	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, c := range candidates {
		g.Go(func() error {
			installed, err := b.loader.Load(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, Result{PkgName: c.PkgName, Catalog: installed, Err: err})

			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	b.logger.Info(ctx, "catalog packages loaded",
		ports.F("candidates", len(candidates)), ports.F("failed", failed))

	return results, nil
}

// LoadOne re-reads pkgName from the host and runs it through the same
// pipeline as LoadAll.
func (b *BatchLoader) LoadOne(ctx context.Context, pkgName string) (catalog.Installed, error) {
	info, err := b.source.Package(ctx, pkgName)
	if err != nil {
		if errors.Is(err, catalog.ErrPackageVanished) {
			return catalog.Installed{}, catalog.NewLoadError(pkgName, catalog.ErrPackageVanished, nil)
		}
		return catalog.Installed{}, catalog.NewLoadError(pkgName, catalog.ErrInstantiationFailure,
			fmt.Errorf("querying host package: %w", err))
	}

	c, err := b.inspector.Inspect(info)
	if err != nil {
		return catalog.Installed{}, catalog.NewLoadError(pkgName, err, nil)
	}

	return b.loader.Load(ctx, c)
}
