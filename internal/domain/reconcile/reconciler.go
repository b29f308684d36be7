// Package reconcile applies host package events to the catalog registry.
package reconcile

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// PackageLoader loads a single package, as loader.BatchLoader does.
type PackageLoader interface {
	LoadOne(ctx context.Context, pkgName string) (catalog.Installed, error)
}

// Registry is the subset of the registry the reconciler writes to.
type Registry interface {
	ApplyInstall(c catalog.Installed)
	ApplyUpdate(c catalog.Installed) (catalog.Installed, bool)
	ApplyUninstall(pkgName string) (catalog.Installed, bool)
}

// Reconciler consumes host events one at a time, in delivery order.
type Reconciler struct {
	loader   PackageLoader
	registry Registry
	logger   ports.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logging.OrNop(logger)
	}
}

// New creates a reconciler.
func New(loader PackageLoader, registry Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		loader:   loader,
		registry: registry,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run handles events until ctx is done or events is closed. A failed event
// is logged and dropped; it never stops the loop.
func (r *Reconciler) Run(ctx context.Context, events <-chan host.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.logger.Warn(ctx, "package event dropped",
					ports.F("event", ev.Kind.String()), ports.F("pkg", ev.PkgName), ports.Err(err))
			}
		}
	}
}

// Handle applies one event. Nothing is written to the registry when the
// package fails to load.
func (r *Reconciler) Handle(ctx context.Context, ev host.Event) error {
	switch ev.Kind {
	case host.Installed, host.Updated:
		c, err := r.loader.LoadOne(ctx, ev.PkgName)
		if err != nil {
			return err
		}
		if ev.Kind == host.Installed {
			r.registry.ApplyInstall(c)
			r.logger.Info(ctx, "catalog installed",
				ports.F("pkg", c.PkgName), ports.F("version", c.VersionName))
			return nil
		}
		if old, ok := r.registry.ApplyUpdate(c); ok {
			r.logger.Info(ctx, "catalog updated",
				ports.F("pkg", c.PkgName), ports.F("from", old.VersionName), ports.F("to", c.VersionName))
		} else {
			r.logger.Info(ctx, "catalog installed on update",
				ports.F("pkg", c.PkgName), ports.F("version", c.VersionName))
		}
		return nil

	case host.Uninstalled:
		if _, ok := r.registry.ApplyUninstall(ev.PkgName); ok {
			r.logger.Info(ctx, "catalog uninstalled", ports.F("pkg", ev.PkgName))
		}
		return nil

	default:
		return fmt.Errorf("unknown package event kind %d", int(ev.Kind))
	}
}
