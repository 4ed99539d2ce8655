// Package worker runs portal executions and background housekeeping on ants
// goroutine pools instead of naked goroutines.
//
// Two pools exist: "portal" for executor calls, which hold a browser session
// for up to the task timeout, and "general" for short housekeeping jobs.
// Submissions carry a context; a task whose context ends before a worker
// picks it up is dropped.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"regportal.io/automation/internal/pkg/logger"
)

// Pool names accepted by SubmitDetached.
const (
	PoolGeneral = "general"
	PoolPortal  = "portal"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrUnknownPool is returned by SubmitDetached for an unknown pool name.
	ErrUnknownPool = errors.New("unknown worker pool")
)

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool is one named ants pool.
type Pool struct {
	name string
	ants *ants.Pool

	submitted atomic.Uint64
	skipped   atomic.Uint64
	panics    atomic.Uint64
}

// Stats is a point-in-time view of a pool, served by the readiness probe.
type Stats struct {
	Running   int    `json:"running"`
	Free      int    `json:"free"`
	Cap       int    `json:"cap"`
	Submitted uint64 `json:"submitted"`
	Skipped   uint64 `json:"skipped"`
	Panics    uint64 `json:"panics"`
}

// Pools is the service's pool set.
type Pools struct {
	General *Pool
	Portal  *Pool

	drainTimeout  time.Duration
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
	shutdownOnce  sync.Once
}

// PoolConfig sizes the pools.
type PoolConfig struct {
	GeneralPoolSize int
	PortalPoolSize  int
	// DrainTimeout bounds how long Shutdown waits for running tasks.
	DrainTimeout time.Duration
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize: 16,
		PortalPoolSize:  4,
		DrainTimeout:    30 * time.Second,
	}
}

// NewPools creates the pool set. Detached tasks are bound to a child of ctx
// that Shutdown cancels.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultPoolConfig().DrainTimeout
	}

	general, err := newPool(PoolGeneral, cfg.GeneralPoolSize, 10*time.Second)
	if err != nil {
		return nil, err
	}
	// Idle portal workers linger longer; attempts are slow and bursty.
	portal, err := newPool(PoolPortal, cfg.PortalPoolSize, 2*time.Minute)
	if err != nil {
		general.ants.Release()
		return nil, err
	}

	serviceCtx, serviceCancel := context.WithCancel(ctx)
	return &Pools{
		General:       general,
		Portal:        portal,
		drainTimeout:  cfg.DrainTimeout,
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

func newPool(name string, size int, expiry time.Duration) (*Pool, error) {
	p := &Pool{name: name}
	a, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v interface{}) {
			p.panics.Add(1)
			logger.Error("Worker panic recovered",
				zap.String("pool", name),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(expiry),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", name, err)
	}
	p.ants = a
	return p, nil
}

// Submit queues task on the pool. It returns ctx.Err() without submitting
// when ctx is already done, and ErrPoolClosed after Shutdown.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := p.ants.Submit(func() {
		if ctx.Err() != nil {
			p.skipped.Add(1)
			logger.Debug("Task skipped: context done before start",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	if err == nil {
		p.submitted.Add(1)
	}
	return err
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string {
	return p.name
}

// Stats reports current occupancy and lifetime counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   p.ants.Running(),
		Free:      p.ants.Free(),
		Cap:       p.ants.Cap(),
		Submitted: p.submitted.Load(),
		Skipped:   p.skipped.Load(),
		Panics:    p.panics.Load(),
	}
}

// SubmitDetached runs task on the named pool under the service lifetime
// context rather than a caller's context.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	var pool *Pool
	switch poolName {
	case PoolGeneral:
		pool = p.General
	case PoolPortal:
		pool = p.Portal
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPool, poolName)
	}
	return pool.Submit(p.serviceCtx, task)
}

// Shutdown cancels the service context and waits up to the drain timeout
// for running tasks. Later calls do nothing.
func (p *Pools) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.serviceCancel()
		for _, pool := range []*Pool{p.General, p.Portal} {
			if err := pool.ants.ReleaseTimeout(p.drainTimeout); err != nil {
				logger.Warn("Worker pool did not drain in time",
					zap.String("pool", pool.name),
					zap.Duration("timeout", p.drainTimeout),
					zap.Error(err),
				)
			}
		}
	})
}

// Metrics returns per-pool stats for the readiness probe.
func (p *Pools) Metrics() map[string]Stats {
	return map[string]Stats{
		PoolGeneral: p.General.Stats(),
		PoolPortal:  p.Portal.Stats(),
	}
}
