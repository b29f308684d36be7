package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
)

// Source is an in-memory catalog.Source that records whether it was closed.
type Source struct {
	id     int64
	name   string
	lang   string
	closed atomic.Int32
}

// NewSource creates a source.
func NewSource(id int64, name, lang string) *Source {
	return &Source{id: id, name: name, lang: lang}
}

// ID returns the source id.
func (s *Source) ID() int64 { return s.id }

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Lang returns the source language.
func (s *Source) Lang() string { return s.lang }

// Close records the close.
func (s *Source) Close() error {
	s.closed.Add(1)
	return nil
}

// Closed reports how many times Close was called.
func (s *Source) Closed() int {
	return int(s.closed.Load())
}

var _ catalog.Source = (*Source)(nil)

// PackageSource is an in-memory host.PackageSource.
type PackageSource struct {
	mu       sync.Mutex
	packages map[string]host.PackageInfo
	err      error
}

// NewPackageSource creates a host with infos installed.
func NewPackageSource(infos ...host.PackageInfo) *PackageSource {
	p := &PackageSource{packages: make(map[string]host.PackageInfo)}
	for _, info := range infos {
		p.packages[info.Name] = info
	}
	return p
}

// Install adds or replaces a package.
func (p *PackageSource) Install(info host.PackageInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packages[info.Name] = info
}

// Remove drops a package.
func (p *PackageSource) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.packages, name)
}

// FailWith makes every query fail with err.
func (p *PackageSource) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Packages returns the installed packages sorted by name.
func (p *PackageSource) Packages(ctx context.Context) ([]host.PackageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([]host.PackageInfo, 0, len(p.packages))
	for _, info := range p.packages {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Package returns one package.
func (p *PackageSource) Package(ctx context.Context, name string) (host.PackageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return host.PackageInfo{}, p.err
	}
	info, ok := p.packages[name]
	if !ok {
		return host.PackageInfo{}, catalog.ErrPackageVanished
	}
	return info, nil
}

var _ host.PackageSource = (*PackageSource)(nil)
