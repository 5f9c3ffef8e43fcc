// Package bridge serializes externally submitted work onto the host's one
// logical execution thread. Submitters enqueue from any goroutine; only the
// host thread drains, one unit at a time, via RunNext. Each queued unit
// yields exactly one WorkResult, including on timeout and panic.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/observability"
	"github.com/hostbridge/bridgectl/internal/protocol"
)

var (
	ErrQueueFull = errors.New("bridge: queue full")
	ErrClosed    = errors.New("bridge: closed")
)

// Work is one unit of host-thread work. The ctx is cancelled when the
// submitting caller stops waiting; work that can stop cooperatively should.
type Work func(ctx context.Context) protocol.WorkResult

type pending struct {
	id     string
	work   Work
	result chan protocol.WorkResult
	// abandoned flips when the caller's wait expires; the unit still runs,
	// its result is logged and discarded.
	abandoned atomic.Bool
	cancel    context.CancelFunc
	ctx       context.Context
}

// Bridge is a bounded FIFO handoff between request goroutines and the host
// thread. A full queue rejects new work rather than blocking the transport.
type Bridge struct {
	queue   chan *pending
	signal  func()
	timeout time.Duration

	dispatched atomic.Int64
	closed     atomic.Bool
}

// New builds a bridge with the given queue depth and caller-wait timeout.
// signal is the host's "work is waiting" trigger and must never block; the
// host calls RunNext at its own discretion.
func New(depth int, timeout time.Duration, signal func()) *Bridge {
	if depth < 1 {
		depth = 1
	}
	if signal == nil {
		signal = func() {}
	}
	return &Bridge{
		queue:   make(chan *pending, depth),
		signal:  signal,
		timeout: timeout,
	}
}

// Submit queues work and blocks until the host produces a result, the wait
// times out, or ctx is cancelled. The returned WorkResult is always
// populated unless err is non-nil (queue full or bridge closed).
func (b *Bridge) Submit(ctx context.Context, work Work) (protocol.WorkResult, error) {
	if b.closed.Load() {
		return protocol.WorkResult{}, ErrClosed
	}

	workCtx, cancel := context.WithCancel(context.Background())
	p := &pending{
		id:     uuid.NewString(),
		work:   work,
		result: make(chan protocol.WorkResult, 1),
		ctx:    workCtx,
		cancel: cancel,
	}

	select {
	case b.queue <- p:
		observability.SetBridgeDepth(len(b.queue))
	default:
		cancel()
		return protocol.WorkResult{}, ErrQueueFull
	}
	b.signal()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case result := <-p.result:
		cancel()
		return result, nil
	case <-timer.C:
		p.abandoned.Store(true)
		cancel()
		observability.BridgeWaitTimedOut()
		log.Warn().Str("work_id", p.id).Dur("timeout", b.timeout).Msg("caller wait timed out")
		return protocol.Timeout(b.timeout.String()), nil
	case <-ctx.Done():
		p.abandoned.Store(true)
		cancel()
		return protocol.Failuref("request cancelled: %v", ctx.Err()), nil
	}
}

// RunNext executes at most one queued unit on the calling goroutine, which
// must be the host thread, and reports whether anything was dequeued. The
// result is completed before RunNext returns.
func (b *Bridge) RunNext(ctx context.Context) bool {
	select {
	case p := <-b.queue:
		observability.SetBridgeDepth(len(b.queue))
		b.execute(ctx, p)
		return true
	default:
		return false
	}
}

// Dispatched reports how many units have executed; tests use it to assert
// that rejected or uncompiled work never reaches the host thread.
func (b *Bridge) Dispatched() int64 {
	return b.dispatched.Load()
}

// Depth reports the number of units currently queued.
func (b *Bridge) Depth() int {
	return len(b.queue)
}

// Close rejects all future submissions. Queued units still drain.
func (b *Bridge) Close() {
	b.closed.Store(true)
}

func (b *Bridge) execute(ctx context.Context, p *pending) {
	b.dispatched.Add(1)
	observability.BridgeDispatched()

	result := b.runGuarded(ctx, p)

	if p.abandoned.Load() {
		// The caller gave up; the work already ran (known hazard, the host
		// cannot be preempted), so the result is logged and dropped.
		log.Warn().
			Str("work_id", p.id).
			Bool("success", result.Success).
			Msg("discarding result computed after caller timeout")
		return
	}
	p.result <- result
}

// runGuarded keeps host-side panics out of the host application's own error
// handling and converts them into failure results.
func (b *Bridge) runGuarded(ctx context.Context, p *pending) (result protocol.WorkResult) {
	defer func() {
		if r := recover(); r != nil {
			result = protocol.Failuref("execution panic: %v", r)
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("stack: %s", debug.Stack()))
		}
	}()

	runCtx := p.ctx
	if ctx != nil {
		// Host shutdown also cancels in-flight work contexts.
		var cancel context.CancelFunc
		runCtx, cancel = mergeDone(p.ctx, ctx)
		defer cancel()
	}
	return p.work(runCtx)
}

// mergeDone derives a context cancelled when either input is done.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
