// Package prefs stores plugin preferences as one INI file per package.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
)

// ErrInvalidPackageName is returned for names that cannot be used as a file name.
var ErrInvalidPackageName = errors.New("invalid package name")

// Provider opens per-package stores under a directory. Stores are cached, so
// every load of a package shares the same store.
type Provider struct {
	dir string

	mu     sync.Mutex
	stores map[string]*File
}

// NewProvider creates a provider rooted at dir. The directory is created on
// the first write.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir, stores: make(map[string]*File)}
}

// Open returns the store of pkgName, reading its file if present.
func (p *Provider) Open(pkgName string) (catalog.PreferenceStore, error) {
	if err := validatePackageName(pkgName); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[pkgName]; ok {
		return s, nil
	}

	path := filepath.Join(p.dir, pkgName+".ini")
	cfg, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("reading preferences of %s: %w", pkgName, err)
	}

	s := &File{path: path, cfg: cfg}
	p.stores[pkgName] = s
	return s, nil
}

// File is a PreferenceStore persisted to an INI file. Keys live in the
// default section; every write rewrites the file.
type File struct {
	path string

	mu  sync.RWMutex
	cfg *ini.File
}

// Get returns the value of key.
func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	section := f.cfg.Section(ini.DefaultSection)
	if !section.HasKey(key) {
		return "", false
	}
	return section.Key(key).String(), true
}

// Set stores value under key.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cfg.Section(ini.DefaultSection).Key(key).SetValue(value)
	return f.save()
}

// Delete removes key.
func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	section := f.cfg.Section(ini.DefaultSection)
	if !section.HasKey(key) {
		return nil
	}
	section.DeleteKey(key)
	return f.save()
}

// Keys returns the stored keys in sorted order.
func (f *File) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := f.cfg.Section(ini.DefaultSection).KeyStrings()
	sort.Strings(keys)
	return keys
}

func (f *File) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating preference directory: %w", err)
	}
	if err := f.cfg.SaveTo(f.path); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	return nil
}

func validatePackageName(name string) error {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidPackageName, name)
	}
	return nil
}

var _ catalog.PreferenceStore = (*File)(nil)
