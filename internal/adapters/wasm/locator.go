// Package wasm loads catalog plugins compiled to WebAssembly. Each package
// artifact gets its own wazero runtime, so plugins share no memory, globals
// or imports with each other.
//
// A plugin module exports its linear memory as "memory", a constructor named
// after the fully qualified entry type, and the "name" and "lang"
// capabilities. The constructor returns the source id as an i64. Capabilities
// return a string packed as ptr<<32 | len into linear memory.
//
// Plugins may import from the "catalogd" module: log(ptr, len),
// pref_set(kptr, klen, vptr, vlen) i32 and pref_delete(kptr, klen) i32. The
// preference calls return 0 on success.
//
// Every call runs under the caller's context: a constructor that never
// returns is terminated when the load deadline passes.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/domain/loader"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// Exported names every plugin module provides besides its constructor.
const (
	ExportName = "name"
	ExportLang = "lang"
)

// HostModule is the import namespace offered to plugins.
const HostModule = "catalogd"

// DefaultMemoryLimitPages caps plugin memory at 16 MiB.
const DefaultMemoryLimitPages = 256

// Locator errors.
var (
	ErrBadSignature = errors.New("export has the wrong signature")
	ErrOutOfBounds  = errors.New("string outside linear memory")
)

// Locator opens one runtime per plugin artifact. Compiled code is cached
// across runtimes, so reloading an unchanged artifact skips compilation.
type Locator struct {
	cache      wazero.CompilationCache
	limitPages uint32
	logger     ports.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithMemoryLimitPages caps the linear memory of each plugin.
func WithMemoryLimitPages(pages uint32) Option {
	return func(l *Locator) {
		if pages > 0 {
			l.limitPages = pages
		}
	}
}

// WithLogger sets the logger receiving plugin log calls.
func WithLogger(logger ports.Logger) Option {
	return func(l *Locator) {
		l.logger = logging.OrNop(logger)
	}
}

// NewLocator creates a locator.
func NewLocator(opts ...Option) *Locator {
	l := &Locator{
		cache:      wazero.NewCompilationCache(),
		limitPages: DefaultMemoryLimitPages,
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close drops the compilation cache. Loaded plugins keep working.
func (l *Locator) Close() error {
	return l.cache.Close(context.Background())
}

// Open compiles and instantiates the candidate's artifact in a fresh runtime.
// A missing artifact is reported as fs.ErrNotExist.
func (l *Locator) Open(ctx context.Context, c host.Candidate) (loader.Scope, error) {
	code, err := os.ReadFile(c.Artifact)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	cfg := wazero.NewRuntimeConfig().
		WithCompilationCache(l.cache).
		WithMemoryLimitPages(l.limitPages).
		WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, cfg)

	s := &scope{runtime: r}
	if err := l.instantiate(ctx, r, c, code, s); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (l *Locator) instantiate(ctx context.Context, r wazero.Runtime, c host.Candidate, code []byte, s *scope) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	logger := l.logger.With(ports.F("pkg", c.PkgName))
	builder := r.NewHostModuleBuilder(HostModule)
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
			if msg, err := readString(m, ptr, length); err == nil {
				logger.Info(ctx, msg)
			}
		}).
		Export("log")
	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, kptr, klen, vptr, vlen uint32) uint32 {
			key, err := readString(m, kptr, klen)
			if err != nil {
				return 1
			}
			value, err := readString(m, vptr, vlen)
			if err != nil {
				return 1
			}
			if s.deps.Prefs == nil || s.deps.Prefs.Set(key, value) != nil {
				return 1
			}
			return 0
		}).
		Export("pref_set")
	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, kptr, klen uint32) uint32 {
			key, err := readString(m, kptr, klen)
			if err != nil {
				return 1
			}
			if s.deps.Prefs == nil || s.deps.Prefs.Delete(key) != nil {
				return 1
			}
			return 0
		}).
		Export("pref_delete")
	_, err := builder.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to register host functions: %w", err)
	}

	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to compile module: %w", err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(c.PkgName))
	if err != nil {
		return fmt.Errorf("failed to instantiate module: %w", err)
	}
	s.module = mod
	return nil
}

type scope struct {
	runtime wazero.Runtime
	module  api.Module
	// deps is set right before the constructor runs.
	deps catalog.Dependencies
	once sync.Once
	err  error
}

func (s *scope) Lookup(entry string) (loader.Factory, error) {
	ctor := s.module.ExportedFunction(entry)
	if ctor == nil {
		return nil, fmt.Errorf("%w: %s", loader.ErrEntryNotFound, entry)
	}
	if !returnsI64(ctor) {
		return nil, fmt.Errorf("%w: %s", ErrBadSignature, entry)
	}

	return func(ctx context.Context, deps catalog.Dependencies) (any, error) {
		s.deps = deps

		results, err := ctor.Call(ctx)
		if err != nil {
			return nil, fmt.Errorf("calling %s: %w", entry, err)
		}
		id := int64(results[0])

		name, okName := s.capability(ctx, ExportName)
		lang, okLang := s.capability(ctx, ExportLang)
		if !okName || !okLang {
			// Not a Source: the loader rejects it and closes it.
			return &module{scope: s}, nil
		}

		return &Source{
			id:    id,
			name:  name,
			lang:  catalog.NormalizeLang(lang),
			scope: s,
		}, nil
	}, nil
}

func (s *scope) Close() error {
	s.once.Do(func() {
		s.err = s.runtime.Close(context.Background())
	})
	return s.err
}

// capability calls a string export. It reports false when the export is
// missing, has the wrong signature or fails.
func (s *scope) capability(ctx context.Context, export string) (string, bool) {
	fn := s.module.ExportedFunction(export)
	if fn == nil || !returnsI64(fn) {
		return "", false
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return "", false
	}
	packed := results[0]
	str, err := readString(s.module, uint32(packed>>32), uint32(packed))
	if err != nil {
		return "", false
	}
	return str, true
}

// module is an instantiated plugin lacking the Source capabilities.
type module struct {
	scope *scope
}

func (m *module) Close() error { return m.scope.Close() }

// Source is a catalog source backed by a WASM module.
type Source struct {
	id    int64
	name  string
	lang  string
	scope *scope
}

// ID returns the id reported by the constructor.
func (s *Source) ID() int64 { return s.id }

// Name returns the plugin's name capability.
func (s *Source) Name() string { return s.name }

// Lang returns the plugin's normalized language.
func (s *Source) Lang() string { return s.lang }

// Call invokes another export of the plugin. A ctx that ends mid-call closes
// the plugin.
func (s *Source) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	fn := s.scope.module.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", loader.ErrEntryNotFound, export)
	}
	return fn.Call(ctx, params...)
}

// Close tears down the plugin's runtime.
func (s *Source) Close() error {
	return s.scope.Close()
}

func returnsI64(fn api.Function) bool {
	def := fn.Definition()
	results := def.ResultTypes()
	return len(def.ParamTypes()) == 0 && len(results) == 1 && results[0] == api.ValueTypeI64
}

func readString(m api.Module, ptr, length uint32) (string, error) {
	mem := m.Memory()
	if mem == nil {
		return "", ErrOutOfBounds
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return "", ErrOutOfBounds
	}
	return string(data), nil
}

var (
	_ loader.Locator = (*Locator)(nil)
	_ catalog.Source = (*Source)(nil)
)
