// Package remotesync keeps the registry's remote manifest in step with the
// manifest server and with the persisted copy of the last successful sync.
package remotesync

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// DefaultMinInterval is the minimum time between two unforced fetches.
const DefaultMinInterval = 5 * time.Minute

// Fetcher retrieves the remote manifest.
type Fetcher interface {
	Fetch(ctx context.Context) ([]catalog.Remote, error)
}

// Store persists the last successful manifest.
type Store interface {
	// Load returns the persisted manifest, empty if none was saved yet.
	Load(ctx context.Context) ([]catalog.Remote, error)
	// ReplaceAll swaps the persisted manifest for list in one commit.
	ReplaceAll(ctx context.Context, list []catalog.Remote) error
}

// Target receives the synced manifest, usually the registry.
type Target interface {
	SetRemote(list []catalog.Remote)
	Remote() []catalog.Remote
}

// Syncer runs manifest refreshes. Refreshes are serialized; concurrent
// callers queue on one mutex that also guards the throttle state.
type Syncer struct {
	fetcher Fetcher
	store   Store
	target  Target

	minInterval time.Duration
	now         func() time.Time
	logger      ports.Logger

	mu          sync.Mutex
	lastSuccess time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithMinInterval overrides DefaultMinInterval.
func WithMinInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d >= 0 {
			s.minInterval = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(s *Syncer) {
		s.logger = logging.OrNop(logger)
	}
}

// NewSyncer creates a syncer.
func NewSyncer(fetcher Fetcher, store Store, target Target, opts ...Option) *Syncer {
	s := &Syncer{
		fetcher:     fetcher,
		store:       store,
		target:      target,
		minInterval: DefaultMinInterval,
		now:         time.Now,
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init publishes the persisted manifest, ordered by language then name, so
// update flags are available before the first network refresh.
func (s *Syncer) Init(ctx context.Context) error {
	list, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted remote catalogs: %w", err)
	}

	slices.SortStableFunc(list, func(a, b catalog.Remote) int {
		return cmp.Or(cmp.Compare(a.Lang, b.Lang), cmp.Compare(a.Name, b.Name))
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.SetRemote(list)

	s.logger.Debug(ctx, "persisted remote catalogs loaded", ports.F("count", len(list)))
	return nil
}

// Refresh fetches, persists and publishes the manifest. Unless force is set,
// a refresh within the minimum interval of the last success is skipped and
// the current manifest returned. On any failure, including cancellation,
// neither the store nor the target is modified.
func (s *Syncer) Refresh(ctx context.Context, force bool) ([]catalog.Remote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !s.lastSuccess.IsZero() && s.now().Sub(s.lastSuccess) < s.minInterval {
		s.logger.Debug(ctx, "remote refresh throttled", ports.F("last_success", s.lastSuccess))
		return s.target.Remote(), nil
	}

	list, err := s.fetcher.Fetch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", catalog.ErrFetchFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceAll(ctx, list); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", catalog.ErrPersistFailure, err)
	}

	s.target.SetRemote(list)
	s.lastSuccess = s.now()

	s.logger.Info(ctx, "remote catalogs refreshed",
		ports.F("count", len(list)), ports.F("forced", force))

	return slices.Clone(list), nil
}

// LastSuccess returns the time of the last successful refresh.
func (s *Syncer) LastSuccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}
