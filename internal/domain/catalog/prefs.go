package catalog

import (
	"sort"
	"sync"
	"sync/atomic"
)

// PreferenceStore is a string key-value store private to one plugin package.
type PreferenceStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Keys() []string
}

// LazyPreferenceStore defers building its backing store until the first call,
// so plugins that never touch preferences cause no host I/O.
type LazyPreferenceStore struct {
	open func() (PreferenceStore, error)

	once   sync.Once
	opened atomic.Bool
	store  PreferenceStore
	err    error
}

// NewLazyPreferenceStore wraps open, which is called at most once.
func NewLazyPreferenceStore(open func() (PreferenceStore, error)) *LazyPreferenceStore {
	return &LazyPreferenceStore{open: open}
}

func (s *LazyPreferenceStore) get() (PreferenceStore, error) {
	s.once.Do(func() {
		s.store, s.err = s.open()
		s.opened.Store(true)
	})
	return s.store, s.err
}

// Opened reports whether the backing store has been built.
func (s *LazyPreferenceStore) Opened() bool {
	return s.opened.Load()
}

// Get returns the value stored under key. A store that failed to open
// behaves as empty.
func (s *LazyPreferenceStore) Get(key string) (string, bool) {
	store, err := s.get()
	if err != nil {
		return "", false
	}
	return store.Get(key)
}

// Set stores value under key.
func (s *LazyPreferenceStore) Set(key, value string) error {
	store, err := s.get()
	if err != nil {
		return err
	}
	return store.Set(key, value)
}

// Delete removes key.
func (s *LazyPreferenceStore) Delete(key string) error {
	store, err := s.get()
	if err != nil {
		return err
	}
	return store.Delete(key)
}

// Keys returns the stored keys.
func (s *LazyPreferenceStore) Keys() []string {
	store, err := s.get()
	if err != nil {
		return nil
	}
	return store.Keys()
}

var _ PreferenceStore = (*LazyPreferenceStore)(nil)

// MemoryPreferenceStore is a PreferenceStore kept in memory.
type MemoryPreferenceStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPreferenceStore creates an empty in-memory store.
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *MemoryPreferenceStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *MemoryPreferenceStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes key.
func (s *MemoryPreferenceStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *MemoryPreferenceStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ PreferenceStore = (*MemoryPreferenceStore)(nil)
