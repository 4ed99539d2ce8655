// Package automation implements the task queue and session manager that
// drives the portal executors.
//
// Tasks are kept in one priority-ordered queue. A dispatch loop claims the
// first runnable task on every tick or wake-up, runs it on the portal worker
// pool and folds the outcome back into the queue and the per-system session.
// At most one task is in flight across the whole engine.
package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"regportal.io/automation/internal/domain"
	"regportal.io/automation/internal/pkg/crypto"
	apperrors "regportal.io/automation/internal/pkg/errors"
	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/pkg/metrics"
	"regportal.io/automation/internal/pkg/worker"
	"regportal.io/automation/internal/portal"
	"regportal.io/automation/internal/vault"
)

// Executor runs the actions of one external system.
type Executor interface {
	System() domain.System
	Supports(action string) bool
	RequiresCredential(action string) bool
	ValidatePayload(action string, payload domain.Payload) error
	Execute(ctx context.Context, req *portal.Request) (*domain.Result, error)
}

// CredentialSource resolves the vault credential a task logs in with.
type CredentialSource interface {
	Retrieve(id string) (*vault.Credential, error)
	List(system domain.System) []vault.Summary
}

// Config holds engine tunables.
type Config struct {
	TickInterval      time.Duration
	DefaultMaxRetries int
	DefaultTimeout    time.Duration
	SessionRetention  time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:      5 * time.Second,
		DefaultMaxRetries: domain.DefaultMaxRetries,
		DefaultTimeout:    domain.DefaultTimeout,
		SessionRetention:  24 * time.Hour,
	}
}

// Failure codes that a retry cannot fix.
var nonRetriable = map[string]bool{
	apperrors.CodeUnsupportedAction: true,
	apperrors.CodeCredentialUnavail: true,
	apperrors.CodeInvalidPayload:    true,
}

// Engine is the task queue and session manager.
type Engine struct {
	mu       sync.Mutex
	queue    []*domain.Task
	sessions map[string]*domain.Session
	current  map[domain.System]string // system → id of its open session
	busy     bool

	executors map[domain.System]Executor
	creds     CredentialSource
	bus       *domain.EventBus
	pool      *worker.Pool
	metrics   *metrics.Recorder
	cfg       Config
	now       func() time.Time
	log       *zap.Logger

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the engine defaults. Zero fields keep their default.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.TickInterval > 0 {
			e.cfg.TickInterval = cfg.TickInterval
		}
		if cfg.DefaultMaxRetries > 0 {
			e.cfg.DefaultMaxRetries = cfg.DefaultMaxRetries
		}
		if cfg.DefaultTimeout > 0 {
			e.cfg.DefaultTimeout = cfg.DefaultTimeout
		}
		if cfg.SessionRetention > 0 {
			e.cfg.SessionRetention = cfg.SessionRetention
		}
	}
}

// WithPool runs executions on pool instead of the dispatch goroutine.
func WithPool(pool *worker.Pool) Option {
	return func(e *Engine) { e.pool = pool }
}

// WithMetrics records queue and task metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over executors. Each system may be registered once.
func New(executors []Executor, creds CredentialSource, bus *domain.EventBus, opts ...Option) (*Engine, error) {
	if bus == nil {
		bus = domain.NewEventBus()
	}
	e := &Engine{
		sessions:  make(map[string]*domain.Session),
		current:   make(map[domain.System]string),
		executors: make(map[domain.System]Executor, len(executors)),
		creds:     creds,
		bus:       bus,
		cfg:       DefaultConfig(),
		now:       time.Now,
		log:       logger.Component("automation"),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	for _, ex := range executors {
		sys := ex.System()
		if _, dup := e.executors[sys]; dup {
			return nil, apperrors.Conflict(apperrors.CodeValidationFailed,
				"more than one executor registered for system "+string(sys))
		}
		e.executors[sys] = ex
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Systems lists the systems with a registered executor.
func (e *Engine) Systems() []domain.System {
	out := make([]domain.System, 0, len(e.executors))
	for sys := range e.executors {
		out = append(out, sys)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actions lists the actions system supports, when its executor can enumerate them.
func (e *Engine) Actions(system domain.System) []string {
	if lister, ok := e.executors[system].(interface{ Actions() []string }); ok {
		return lister.Actions()
	}
	return nil
}

// Subscribe registers handler for the given event types (all when none).
func (e *Engine) Subscribe(handler domain.EventHandler, types ...domain.EventType) (unsubscribe func()) {
	return e.bus.Subscribe(handler, types...)
}

// QueueTask validates task, applies defaults and queues it. The returned
// copy carries the assigned id and defaults.
func (e *Engine) QueueTask(ctx context.Context, task domain.Task) (*domain.Task, error) {
	ex, ok := e.executors[task.System]
	if !ok {
		return nil, apperrors.ErrUnknownSystemf(string(task.System))
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if !task.Priority.Valid() {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidPriority,
			"priority must be one of high, medium, low")
	}
	if task.MaxRetries < 0 || task.Timeout < 0 {
		return nil, apperrors.Validation("max retries and timeout must not be negative")
	}
	if !ex.Supports(task.Action) {
		return nil, apperrors.ErrUnsupportedActionf(string(task.System), task.Action)
	}
	if err := ex.ValidatePayload(task.Action, task.Payload); err != nil {
		return nil, err
	}
	if task.CredentialID != "" && !e.hasCredential(task.System, task.CredentialID) {
		return nil, apperrors.ErrCredentialNotFoundf(task.CredentialID)
	}

	if task.ID == "" {
		task.ID = crypto.RandomID()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = e.cfg.DefaultMaxRetries
	}
	if task.Timeout == 0 {
		task.Timeout = e.cfg.DefaultTimeout
	}
	task.RetryCount = 0
	task.QueuedAt = e.now()
	queued := task.Clone()

	e.mu.Lock()
	for _, q := range e.queue {
		if q.ID == queued.ID {
			e.mu.Unlock()
			return nil, apperrors.Conflict(apperrors.CodeValidationFailed, "task "+queued.ID+" is already queued")
		}
	}
	e.queue = append(e.queue, queued)
	sort.SliceStable(e.queue, func(i, j int) bool {
		return e.queue[i].Priority.Rank() < e.queue[j].Priority.Rank()
	})
	depth := len(e.queue)
	e.mu.Unlock()

	e.metrics.TaskQueued(string(queued.System), string(queued.Priority))
	e.metrics.SetQueueDepth(depth)
	e.log.Debug("Task queued",
		zap.String("task_id", queued.ID),
		zap.String("system", string(queued.System)),
		zap.String("action", queued.Action),
		zap.String("priority", string(queued.Priority)),
	)
	e.publish(ctx, domain.Event{Type: domain.EventTaskQueued, Task: queued.Clone()})
	e.signal()
	return queued.Clone(), nil
}

func (e *Engine) hasCredential(system domain.System, id string) bool {
	if e.creds == nil {
		return false
	}
	for _, s := range e.creds.List(system) {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Start runs the dispatch loop until Stop is called or ctx ends. The loop
// dispatches on every tick and whenever a task is queued or finishes.
// nolint:naked-goroutine // dispatch ticker loop; executions themselves run on the worker pool.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
			case <-e.wake:
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
			e.dispatch(ctx)
		}
	}()
	e.log.Info("Dispatch loop started", zap.Duration("tick_interval", e.cfg.TickInterval))
}

// Stop halts the dispatch loop. A task already running finishes normally.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

// ProcessNext claims the next runnable task and executes it on the calling
// goroutine. It returns false when nothing could be claimed, either because
// the queue has no runnable task or another task is in flight.
func (e *Engine) ProcessNext(ctx context.Context) bool {
	run := e.claim(ctx)
	if run == nil {
		return false
	}
	e.execute(ctx, run)
	return true
}

func (e *Engine) dispatch(ctx context.Context) {
	run := e.claim(ctx)
	if run == nil {
		return
	}
	if e.pool == nil {
		e.execute(ctx, run)
		return
	}
	err := e.pool.Submit(ctx, func(ctx context.Context) {
		e.execute(ctx, run)
	})
	if err != nil {
		e.log.Warn("Submit to portal pool failed, task requeued",
			zap.String("task_id", run.task.ID),
			zap.Error(err),
		)
		e.release(run)
	}
}

// signal wakes the dispatch loop without blocking.
func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) publish(ctx context.Context, events ...domain.Event) {
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = e.now()
		}
		e.metrics.EventEmitted(string(ev.Type))
		e.bus.Publish(ctx, ev)
	}
}
