package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"regportal.io/automation/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func newTestPools(t *testing.T, cfg PoolConfig) *Pools {
	t.Helper()
	pools, err := NewPools(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	t.Cleanup(pools.Shutdown)
	return pools
}

func TestNewPools(t *testing.T) {
	pools := newTestPools(t, DefaultPoolConfig())

	if pools.General.Name() != PoolGeneral || pools.Portal.Name() != PoolPortal {
		t.Errorf("pool names = %q, %q", pools.General.Name(), pools.Portal.Name())
	}
	if pools.drainTimeout != 30*time.Second {
		t.Errorf("drainTimeout = %v, want 30s", pools.drainTimeout)
	}
}

func TestNewPools_InvalidSize(t *testing.T) {
	if _, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 1, PortalPoolSize: 0}); err == nil {
		t.Error("NewPools() with a zero-size portal pool should fail")
	}
}

func TestPool_Submit(t *testing.T) {
	pools := newTestPools(t, PoolConfig{GeneralPoolSize: 2, PortalPoolSize: 1})

	done := make(chan struct{})
	if err := pools.Portal.Submit(context.Background(), func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not executed")
	}
	if got := pools.Portal.Stats().Submitted; got != 1 {
		t.Errorf("Submitted = %d, want 1", got)
	}
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pools := newTestPools(t, DefaultPoolConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pools.General.Submit(ctx, func(context.Context) {
		t.Error("task must not run with a cancelled context")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
}

func TestPool_SkipsTaskWhoseContextEndsWhileQueued(t *testing.T) {
	pools := newTestPools(t, PoolConfig{GeneralPoolSize: 1, PortalPoolSize: 1})

	release := make(chan struct{})
	if err := pools.Portal.Submit(context.Background(), func(context.Context) { <-release }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	submitted := make(chan error, 1)
	go func() { //nolint:naked-goroutine // test: Submit blocks while the single worker is busy
		submitted <- pools.Portal.Submit(ctx, func(context.Context) { ran.Store(true) })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)
	if err := <-submitted; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for pools.Portal.Stats().Skipped == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ran.Load() {
		t.Error("task ran although its context ended before a worker was free")
	}
	if got := pools.Portal.Stats().Skipped; got != 1 {
		t.Errorf("Skipped = %d, want 1", got)
	}
}

func TestPools_SubmitDetached(t *testing.T) {
	for _, name := range []string{PoolGeneral, PoolPortal} {
		t.Run(name, func(t *testing.T) {
			pools := newTestPools(t, DefaultPoolConfig())

			var wg sync.WaitGroup
			wg.Add(1)
			var gotCtx context.Context
			if err := pools.SubmitDetached(name, func(ctx context.Context) {
				gotCtx = ctx
				wg.Done()
			}); err != nil {
				t.Fatalf("SubmitDetached(%q) error = %v", name, err)
			}
			wg.Wait()

			pools.Shutdown()
			if gotCtx.Err() == nil {
				t.Error("detached context should end on Shutdown")
			}
		})
	}
}

func TestPools_SubmitDetached_UnknownPool(t *testing.T) {
	pools := newTestPools(t, DefaultPoolConfig())
	err := pools.SubmitDetached("gpu", func(context.Context) {})
	if !errors.Is(err, ErrUnknownPool) {
		t.Errorf("SubmitDetached(gpu) error = %v, want ErrUnknownPool", err)
	}
}

func TestPool_PanicIsCounted(t *testing.T) {
	pools := newTestPools(t, PoolConfig{GeneralPoolSize: 1, PortalPoolSize: 1})

	if err := pools.General.Submit(context.Background(), func(context.Context) { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for pools.General.Stats().Panics == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := pools.General.Stats().Panics; got != 1 {
		t.Errorf("Panics = %d, want 1", got)
	}
}

func TestPools_ShutdownIsIdempotent(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatal(err)
	}
	pools.Shutdown()
	pools.Shutdown()

	if err := pools.Portal.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Shutdown error = %v, want ErrPoolClosed", err)
	}
}

func TestPools_Metrics(t *testing.T) {
	pools := newTestPools(t, PoolConfig{GeneralPoolSize: 10, PortalPoolSize: 3})

	m := pools.Metrics()
	if m[PoolGeneral].Cap != 10 || m[PoolPortal].Cap != 3 {
		t.Errorf("Metrics() = %+v, want caps 10 and 3", m)
	}
}
