// Package agent runs the remote catalog sync in the background, driven by a
// state machine.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/catalogd/internal/adapters/logging"
	"github.com/felixgeelhaar/catalogd/internal/ports"
)

// State represents the agent's current state.
type State string

const (
	// StateStopped indicates the agent is not running.
	StateStopped State = "stopped"
	// StateStarting indicates the agent is initializing.
	StateStarting State = "starting"
	// StateRunning indicates the agent is waiting for the next sync.
	StateRunning State = "running"
	// StateSyncing indicates a sync is in progress.
	StateSyncing State = "syncing"
	// StateStopping indicates the agent is shutting down.
	StateStopping State = "stopping"
	// StateError indicates the last sync failed.
	StateError State = "error"
)

// Event types for the agent state machine.
const (
	EventStart        = "START"
	EventStarted      = "STARTED"
	EventStop         = "STOP"
	EventTick         = "TICK"
	EventSyncComplete = "SYNC_COMPLETE"
	EventError        = "ERROR"
	EventRecover      = "RECOVER"
)

// ErrNotRunning is returned by SyncNow when the agent cannot sync.
var ErrNotRunning = errors.New("agent is not running")

// SyncFunc performs one sync and returns the size of the resulting remote
// snapshot.
type SyncFunc func(ctx context.Context, force bool) (int, error)

// Context holds the runtime context for the agent state machine.
type Context struct {
	Config *Config

	StartedAt  time.Time
	LastSyncAt time.Time
	SyncCount  int
	ErrorCount int
	LastError  error
	LastRun    *SyncRun

	Health HealthStatus
}

// RuntimeContext wraps Context with thread-safe access.
type RuntimeContext struct {
	mu  sync.RWMutex
	ctx Context
}

// NewRuntimeContext creates a new runtime context with the given configuration.
func NewRuntimeContext(cfg *Config) *RuntimeContext {
	return &RuntimeContext{
		ctx: Context{
			Config: cfg,
			Health: HealthStatus{Status: HealthUnknown},
		},
	}
}

// RecordStart records the agent start time.
func (c *RuntimeContext) RecordStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx.StartedAt = time.Now()
}

// RecordSync records a finished sync run.
func (c *RuntimeContext) RecordSync(run *SyncRun) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx.LastRun = run
	c.ctx.Health.LastCheck = time.Now()
	if !run.Succeeded() {
		return
	}
	c.ctx.LastSyncAt = run.StartedAt
	c.ctx.SyncCount++
	c.ctx.Health.Status = HealthHealthy
	c.ctx.Health.Message = ""
}

// RecordError records a failed sync.
func (c *RuntimeContext) RecordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx.ErrorCount++
	c.ctx.LastError = err
	c.ctx.Health.Status = HealthDegraded
	c.ctx.Health.LastCheck = time.Now()
	c.ctx.Health.Message = err.Error()
}

// GetContext returns a copy of the current context.
func (c *RuntimeContext) GetContext() Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

// Status represents a snapshot of the agent's status.
type Status struct {
	State      State         `json:"state"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	LastSyncAt time.Time     `json:"last_sync_at,omitempty"`
	NextSyncAt time.Time     `json:"next_sync_at,omitempty"`
	SyncCount  int           `json:"sync_count"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	LastRun    *SyncRun      `json:"last_run,omitempty"`
	Health     HealthStatus  `json:"health"`
	Uptime     time.Duration `json:"uptime,omitempty"`
}

// Agent schedules remote syncs.
type Agent struct {
	config *Config
	interp *statekit.Interpreter[Context]
	rt     *RuntimeContext
	logger ports.Logger

	onSync        SyncFunc
	onStateChange func(from, to State)

	// syncMu serializes sync cycles.
	syncMu sync.Mutex

	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.RWMutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(a *Agent) {
		a.logger = logging.OrNop(logger)
	}
}

// NewAgent creates a new background agent with the given configuration.
func NewAgent(cfg *Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		config:    cfg,
		rt:        NewRuntimeContext(cfg),
		logger:    logging.NewNopLogger(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// buildAgentMachine constructs the agent state machine. Actions write through
// the captured runtime so status reads never touch the interpreter.
func buildAgentMachine(rt *RuntimeContext) (*statekit.Interpreter[Context], error) {
	machine, err := statekit.NewMachine[Context]("catalogd-agent").
		WithInitial("stopped").
		WithContext(rt.GetContext()).
		WithAction("recordStart", func(_ *Context, _ statekit.Event) {
			rt.RecordStart()
		}).
		WithAction("recordError", func(_ *Context, event statekit.Event) {
			if payload, ok := event.Payload.(map[string]interface{}); ok {
				if err, ok := payload["error"].(error); ok {
					rt.RecordError(err)
				}
			}
		}).
		State("stopped").
		On(EventStart).Target("starting").Done().
		State("starting").
		OnEntry("recordStart").
		On(EventStarted).Target("running").
		On(EventError).Target("error").Done().
		State("running").
		On(EventTick).Target("syncing").
		On(EventStop).Target("stopping").
		On(EventError).Target("error").Done().
		State("syncing").
		On(EventSyncComplete).Target("running").
		On(EventStop).Target("stopping").
		On(EventError).Target("error").Done().
		State("stopping").
		After(100 * time.Millisecond).Target("stopped").Done().
		State("error").
		OnEntry("recordError").
		On(EventRecover).Target("running").
		On(EventStop).Target("stopped").Done().
		Build()
	if err != nil {
		return nil, err
	}

	return statekit.NewInterpreter(machine), nil
}

// SetSyncHandler sets the function run on every sync.
func (a *Agent) SetSyncHandler(fn SyncFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSync = fn
}

// SetStateChangeHandler sets the callback for state changes.
func (a *Agent) SetStateChangeHandler(fn func(from, to State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStateChange = fn
}

// Start starts the agent. It returns once the agent is running; syncs happen
// in a background goroutine until Stop is called or ctx is done.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.interp != nil {
		a.mu.Unlock()
		return fmt.Errorf("agent already started")
	}

	interp, err := buildAgentMachine(a.rt)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to build state machine: %w", err)
	}
	a.interp = interp
	a.stopCh = make(chan struct{})
	a.stoppedCh = make(chan struct{})
	a.interp.Start()
	a.mu.Unlock()

	a.send(EventStart, nil)
	a.send(EventStarted, nil)

	a.logger.Info(ctx, "agent started", ports.F("interval", a.config.Interval.String()))

	go a.runScheduler(ctx)
	return nil
}

// Stop stops the agent and waits for an in-flight sync to finish.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	interp := a.interp
	stopCh := a.stopCh
	stoppedCh := a.stoppedCh

	if interp == nil {
		a.mu.Unlock()
		return nil
	}

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	a.mu.Unlock()

	a.send(EventStop, nil)

	select {
	case <-stoppedCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	interp.Stop()
	a.interp = nil
	a.mu.Unlock()

	a.logger.Info(ctx, "agent stopped")
	return nil
}

// State returns the current state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.interp == nil {
		return StateStopped
	}
	return State(a.interp.State().Value)
}

// Status returns the current agent status.
func (a *Agent) Status() Status {
	c := a.rt.GetContext()
	status := Status{
		State:      a.State(),
		StartedAt:  c.StartedAt,
		LastSyncAt: c.LastSyncAt,
		SyncCount:  c.SyncCount,
		ErrorCount: c.ErrorCount,
		LastRun:    c.LastRun,
		Health:     c.Health,
	}
	if c.LastError != nil {
		status.LastError = c.LastError.Error()
	}
	if !status.StartedAt.IsZero() {
		status.Uptime = time.Since(status.StartedAt)
	}
	if status.State == StateRunning || status.State == StateError {
		base := status.LastSyncAt
		if base.IsZero() {
			base = status.StartedAt
		}
		status.NextSyncAt = base.Add(a.config.Interval)
	}
	return status
}

// SyncNow runs a sync immediately, after any sync already in progress. It
// returns the run and the sync handler's error.
func (a *Agent) SyncNow(ctx context.Context, force bool) (*SyncRun, error) {
	switch a.State() {
	case StateRunning, StateSyncing, StateError:
	default:
		return nil, ErrNotRunning
	}
	run, err := a.sync(ctx, force)
	if run == nil {
		return nil, ErrNotRunning
	}
	return run, err
}

// Runtime returns the runtime context.
func (a *Agent) Runtime() *RuntimeContext {
	return a.rt
}

func (a *Agent) runScheduler(ctx context.Context) {
	defer close(a.stoppedCh)

	if a.config.SyncOnStart {
		_, _ = a.sync(ctx, false)
	}

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			_, _ = a.sync(ctx, false)
		}
	}
}

// sync runs one cycle. A failed previous cycle is recovered first, so the
// agent retries on every tick.
func (a *Agent) sync(ctx context.Context, force bool) (*SyncRun, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	switch a.State() {
	case StateError:
		a.send(EventRecover, nil)
	case StateRunning:
	default:
		return nil, nil
	}

	a.send(EventTick, nil)

	a.mu.RLock()
	handler := a.onSync
	a.mu.RUnlock()

	run := NewSyncRun()
	var (
		count int
		err   error
	)
	if handler != nil {
		count, err = handler(ctx, force)
	}
	run.Complete(count, err)
	a.rt.RecordSync(run)

	if err != nil {
		a.logger.Warn(ctx, "remote sync failed", ports.F("run", run.ID.String()), ports.Err(err))
		a.send(EventError, map[string]interface{}{"error": err})
		return run, err
	}

	a.logger.Debug(ctx, "remote sync finished",
		ports.F("run", run.ID.String()), ports.F("catalogs", count), ports.F("duration", run.Duration.String()))
	a.send(EventSyncComplete, nil)
	return run, nil
}

func (a *Agent) send(event string, payload map[string]interface{}) {
	a.mu.RLock()
	interp := a.interp
	handler := a.onStateChange
	a.mu.RUnlock()

	if interp == nil {
		return
	}

	from := State(interp.State().Value)
	if payload == nil {
		interp.Send(statekit.Event{Type: statekit.EventType(event)})
	} else {
		interp.Send(statekit.Event{Type: statekit.EventType(event), Payload: payload})
	}
	to := State(interp.State().Value)

	if handler != nil && from != to {
		handler(from, to)
	}
}
