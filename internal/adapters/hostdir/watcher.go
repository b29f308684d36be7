package hostdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/catalogd/internal/domain/host"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// DefaultDebounce is how long the watcher waits for a burst of file system
// events to settle before rescanning.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports package changes under a Source's root as host events.
// Changes are detected by rescanning and comparing content fingerprints of
// every package, so partial writes collapse into one event.
type Watcher struct {
	source   *Source
	debounce time.Duration
	logger   ports.Logger
}

// NewWatcher creates a watcher over source.
func NewWatcher(source *Source, debounce time.Duration, opts ...Option) *Watcher {
	o := buildOptions(opts)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{source: source, debounce: debounce, logger: o.logger}
}

// Baseline is the set of packages a watch compares its first rescan
// against.
type Baseline struct {
	known map[string]fingerprint
	dirs  map[string]string
}

// Len reports how many packages the baseline holds.
func (b *Baseline) Len() int {
	return len(b.known)
}

// Baseline fingerprints the packages installed now.
func (w *Watcher) Baseline(ctx context.Context) (*Baseline, error) {
	return w.fingerprints(ctx, nil)
}

// Watch starts watching. Packages present when Watch is called produce no
// events. The returned channel delivers events in detection order and is
// closed when ctx is done.
func (w *Watcher) Watch(ctx context.Context) (<-chan host.Event, error) {
	return w.WatchFrom(ctx, nil)
}

// WatchFrom starts watching and reports every change made since base was
// taken, so nothing installed between the two calls is missed. A nil base
// behaves like Watch.
func (w *Watcher) WatchFrom(ctx context.Context, base *Baseline) (<-chan host.Event, error) {
	if err := os.MkdirAll(w.source.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating packages directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.source.root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch packages dir: %w", err)
	}
	w.watchPackageDirs(fsw)

	catchUp := base != nil
	if base == nil {
		base, err = w.fingerprints(ctx, nil)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	events := make(chan host.Event)
	go w.loop(ctx, fsw, events, base, catchUp)

	w.logger.Info(ctx, "watching packages", ports.F("path", w.source.root), ports.F("packages", base.Len()))
	return events, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- host.Event, known *Baseline, catchUp bool) {
	defer close(out)
	defer func() { _ = fsw.Close() }()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	if catchUp {
		timer.Reset(0)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = fsw.Add(ev.Name)
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", ports.Err(err))

		case <-timer.C:
			next, err := w.fingerprints(ctx, known)
			if err != nil {
				w.logger.Warn(ctx, "rescanning packages failed", ports.Err(err))
				continue
			}
			for _, ev := range diff(known.known, next.known) {
				w.logger.Debug(ctx, "package change detected", ports.F("event", ev.String()))
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			known = next
		}
	}
}

func (w *Watcher) watchPackageDirs(fsw *fsnotify.Watcher) {
	entries, err := os.ReadDir(w.source.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = fsw.Add(filepath.Join(w.source.root, e.Name()))
		}
	}
}

// fingerprints scans the packages. A package whose directory is still there
// but cannot be read right now, such as a descriptor caught mid-write, keeps
// its fingerprint from prev.
func (w *Watcher) fingerprints(ctx context.Context, prev *Baseline) (*Baseline, error) {
	scanned, unreadable, err := w.source.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := &Baseline{
		known: make(map[string]fingerprint, len(scanned)),
		dirs:  make(map[string]string, len(scanned)),
	}
	for _, p := range scanned {
		fp, err := fingerprintOf(p.info, p.raw)
		if err != nil {
			w.logger.Warn(ctx, "fingerprinting package failed", ports.F("pkg", p.info.Name), ports.Err(err))
			if prev == nil {
				continue
			}
			old, ok := prev.known[p.info.Name]
			if !ok {
				continue
			}
			fp = old
		}
		out.known[p.info.Name] = fp
		out.dirs[p.info.Name] = p.dir
	}

	if prev != nil {
		for name, dir := range prev.dirs {
			if _, ok := out.known[name]; ok || !unreadable[dir] {
				continue
			}
			out.known[name] = prev.known[name]
			out.dirs[name] = dir
		}
	}
	return out, nil
}

// diff lists the changes from prev to next: removals first, then installs
// and updates, each group ordered by package name.
func diff(prev, next map[string]fingerprint) []host.Event {
	var removed, changed []host.Event
	for name := range prev {
		if _, ok := next[name]; !ok {
			removed = append(removed, host.Event{Kind: host.Uninstalled, PkgName: name})
		}
	}
	for name, fp := range next {
		old, ok := prev[name]
		switch {
		case !ok:
			changed = append(changed, host.Event{Kind: host.Installed, PkgName: name})
		case old != fp:
			changed = append(changed, host.Event{Kind: host.Updated, PkgName: name})
		}
	}

	byName := func(events []host.Event) {
		sort.Slice(events, func(i, j int) bool { return events[i].PkgName < events[j].PkgName })
	}
	byName(removed)
	byName(changed)
	return append(removed, changed...)
}
