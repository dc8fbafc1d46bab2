package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/park285/cheese-challenge/internal/metrics"
	"github.com/park285/cheese-challenge/internal/obslog"
)

// Dispatcher runs fire-and-forget side effects with bounded concurrency and a rate limit.
// Failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	limiter *rate.Limiter
	sem     chan struct{}
	timeout time.Duration

	// mu orders Add against Close so Wait never races a new Add at zero.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher allows perSecond calls per second (burst = workers) with at most workers in flight.
func NewDispatcher(perSecond float64, workers int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		limiter: rate.NewLimiter(limit, workers),
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Go schedules fn. name labels logs and metrics; fields are attached to the failure log.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error, fields ...zap.Field) {
	if d == nil || fn == nil {
		return
	}
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		metrics.RecordSideEffect(name, "dropped")
		obslog.L().Warn("side_effect_dropped", append(fields, zap.String("name", name))...)
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()
	metrics.SideEffectQueued()
	go func() {
		defer d.wg.Done()
		defer metrics.SideEffectFinished()
		d.run(name, fn, fields)
	}()
}

func (d *Dispatcher) run(name string, fn func(ctx context.Context) error, fields []zap.Field) {
	select {
	case d.sem <- struct{}{}:
	case <-d.ctx.Done():
		metrics.RecordSideEffect(name, "cancelled")
		return
	}
	defer func() { <-d.sem }()

	if err := d.limiter.Wait(d.ctx); err != nil {
		metrics.RecordSideEffect(name, "cancelled")
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSideEffect(name, "panic")
			obslog.L().Error("side_effect_panic", append(fields, zap.String("name", name), zap.Any("panic", r))...)
		}
	}()
	if err := fn(ctx); err != nil {
		metrics.RecordSideEffect(name, "error")
		obslog.L().Warn("side_effect_failed", append(fields, zap.String("name", name), zap.Error(err))...)
		return
	}
	metrics.RecordSideEffect(name, "ok")
}

// Wait blocks until every scheduled side effect has finished.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// Close stops accepting work and drains in-flight calls until ctx expires,
// after which pending calls are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
