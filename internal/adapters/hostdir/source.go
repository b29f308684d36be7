// Package hostdir exposes a directory of package descriptors as the host's
// package manager: one subdirectory per package, each holding a
// package.toml and optionally a code artifact.
package hostdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// Source implements host.PackageSource over a directory.
type Source struct {
	root   string
	logger ports.Logger
}

// Option configures a Source or a Watcher.
type Option func(*options)

type options struct {
	logger ports.Logger
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(o *options) {
		o.logger = logging.OrNop(logger)
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSource creates a source reading root.
func NewSource(root string, opts ...Option) *Source {
	o := buildOptions(opts)
	return &Source{root: root, logger: o.logger}
}

// Root returns the packages directory.
func (s *Source) Root() string {
	return s.root
}

// Packages returns every package with a readable descriptor, ordered by
// directory name. Malformed descriptors are logged and skipped. A missing
// root holds no packages.
func (s *Source) Packages(ctx context.Context) ([]host.PackageInfo, error) {
	scanned, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]host.PackageInfo, 0, len(scanned))
	for _, p := range scanned {
		infos = append(infos, p.info)
	}
	return infos, nil
}

// Package returns the package named name, or catalog.ErrPackageVanished.
func (s *Source) Package(ctx context.Context, name string) (host.PackageInfo, error) {
	if info, _, err := readPackage(filepath.Join(s.root, filepath.Base(name))); err == nil && info.Name == name {
		return info, nil
	}

	infos, err := s.Packages(ctx)
	if err != nil {
		return host.PackageInfo{}, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return host.PackageInfo{}, fmt.Errorf("%w: %s", catalog.ErrPackageVanished, name)
}

type scannedPackage struct {
	dir  string
	info host.PackageInfo
	raw  []byte
}

// scan reads every package directory. When two directories declare the same
// package name, the first in directory order wins. Directories holding a
// descriptor that cannot be read or parsed are returned in unreadable.
func (s *Source) scan(ctx context.Context) (_ []scannedPackage, unreadable map[string]bool, _ error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading packages directory: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]scannedPackage, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if !e.IsDir() {
			continue
		}

		dir := filepath.Join(s.root, e.Name())
		info, raw, err := readPackage(dir)
		if err != nil {
			if !errors.Is(err, ErrNoDescriptor) {
				s.logger.Warn(ctx, "skipping package", ports.F("dir", dir), ports.Err(err))
				if unreadable == nil {
					unreadable = make(map[string]bool)
				}
				unreadable[dir] = true
			}
			continue
		}
		if seen[info.Name] {
			s.logger.Warn(ctx, "duplicate package name", ports.F("dir", dir), ports.F("pkg", info.Name))
			continue
		}
		seen[info.Name] = true
		out = append(out, scannedPackage{dir: dir, info: info, raw: raw})
	}
	return out, unreadable, nil
}

var _ host.PackageSource = (*Source)(nil)
