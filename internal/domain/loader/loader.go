// Package loader turns host plugin packages into installed catalogs: it gates
// on the lib version, builds an isolated scope per package, instantiates the
// declared entry type and checks that it is a catalog source.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// PreferenceProvider opens the preference store private to one package.
type PreferenceProvider interface {
	Open(pkgName string) (catalog.PreferenceStore, error)
}

// PreferenceProviderFunc adapts a function to PreferenceProvider.
type PreferenceProviderFunc func(pkgName string) (catalog.PreferenceStore, error)

// Open calls f.
func (f PreferenceProviderFunc) Open(pkgName string) (catalog.PreferenceStore, error) {
	return f(pkgName)
}

// Loader loads single candidates. It is safe for concurrent use.
type Loader struct {
	locator Locator
	http    *http.Client
	prefs   PreferenceProvider
	logger  ports.Logger
	timeout time.Duration
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client shared by every plugin.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		l.http = c
	}
}

// WithPreferences sets the provider of per-package preference stores.
func WithPreferences(p PreferenceProvider) Option {
	return func(l *Loader) {
		l.prefs = p
	}
}

// WithLoadTimeout bounds each load, constructor included. Zero means the
// caller's context is the only bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(l *Loader) {
		l.logger = logging.OrNop(logger)
	}
}

// NewLoader creates a loader resolving entry types through locator.
// Without WithPreferences, plugins get in-memory preference stores.
func NewLoader(locator Locator, opts ...Option) *Loader {
	l := &Loader{
		locator: locator,
		http:    http.DefaultClient,
		prefs: PreferenceProviderFunc(func(string) (catalog.PreferenceStore, error) {
			return catalog.NewMemoryPreferenceStore(), nil
		}),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load instantiates the candidate's entry type. Every failure, including a
// panicking constructor, is returned as a *catalog.LoadError.
func (l *Loader) Load(ctx context.Context, c host.Candidate) (catalog.Installed, error) {
	if err := CheckLibVersion(c.VersionName); err != nil {
		return catalog.Installed{}, catalog.NewLoadError(c.PkgName, catalog.ErrIncompatibleVersion, err)
	}
	if c.Entry == "" {
		return catalog.Installed{}, catalog.NewLoadError(c.PkgName, catalog.ErrMissingEntryPoint, nil)
	}

	entry := ResolveEntry(c.PkgName, c.Entry)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	src, err := l.instantiate(ctx, c, entry)
	if err != nil {
		l.logger.Warn(ctx, "catalog load failed",
			ports.F("pkg", c.PkgName), ports.F("entry", entry), ports.Err(err))
		return catalog.Installed{}, err
	}

	name := src.Name()
	if name == "" {
		name = c.Label
	}

	l.logger.Debug(ctx, "catalog loaded",
		ports.F("pkg", c.PkgName), ports.F("source_id", src.ID()), ports.F("version", c.VersionName))

	return catalog.Installed{
		Name:        name,
		Description: c.Description,
		Source:      src,
		PkgName:     c.PkgName,
		VersionName: c.VersionName,
		VersionCode: c.VersionCode,
		Nsfw:        c.Nsfw,
	}, nil
}

func (l *Loader) instantiate(ctx context.Context, c host.Candidate, entry string) (_ catalog.Source, err error) {
	if err := ctx.Err(); err != nil {
		return nil, catalog.NewLoadError(c.PkgName, catalog.ErrInstantiationFailure, err)
	}

	scope, err := l.locator.Open(ctx, c)
	if err != nil {
		kind := catalog.ErrInstantiationFailure
		if errors.Is(err, fs.ErrNotExist) {
			kind = catalog.ErrPackageVanished
		}
		return nil, catalog.NewLoadError(c.PkgName, kind, err)
	}
	defer func() {
		if err != nil {
			_ = scope.Close()
		}
	}()

	factory, err := scope.Lookup(entry)
	if err != nil {
		return nil, catalog.NewLoadError(c.PkgName, catalog.ErrInstantiationFailure, err)
	}

	obj, err := construct(ctx, factory, l.dependencies(c.PkgName))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, catalog.NewLoadError(c.PkgName, catalog.ErrInstantiationFailure, err)
	}

	src, ok := obj.(catalog.Source)
	if !ok {
		if closer, ok := obj.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, catalog.NewLoadError(c.PkgName, catalog.ErrInvalidPluginType,
			fmt.Errorf("unknown source type %T", obj))
	}
	return src, nil
}

func (l *Loader) dependencies(pkgName string) catalog.Dependencies {
	return catalog.Dependencies{
		HTTP: l.http,
		Prefs: catalog.NewLazyPreferenceStore(func() (catalog.PreferenceStore, error) {
			return l.prefs.Open(pkgName)
		}),
	}
}

type constructed struct {
	obj any
	err error
}

// construct runs f, converting a panic into an error. When ctx ends first the
// constructor is abandoned and whatever it returns later is closed.
func construct(ctx context.Context, f Factory, deps catalog.Dependencies) (any, error) {
	done := make(chan constructed, 1)
	go func() {
		var r constructed
		defer func() {
			if p := recover(); p != nil {
				r = constructed{err: fmt.Errorf("constructor panicked: %v", p)}
			}
			done <- r
		}()
		r.obj, r.err = f(ctx, deps)
	}()

	select {
	case r := <-done:
		return r.obj, r.err
	case <-ctx.Done():
		go func() {
			if late := <-done; late.obj != nil {
				if closer, ok := late.obj.(io.Closer); ok {
					_ = closer.Close()
				}
			}
		}()
		return nil, fmt.Errorf("constructor abandoned: %w", ctx.Err())
	}
}
