// Package sender runs outbound Bot API calls with retries. Calls whose
// result the caller needs go through Do; fire-and-forget calls such as
// callback answers go through the worker queue.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/core/telegram/netutil"
)

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")

	errNilCall = errors.New("telegram sender: nil call")
)

// Options tune the dispatcher. Zero values take defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one call including all of its retries.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// call is one Bot API request. run must be safe to repeat.
type call struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (c call) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", c.action)}
	if c.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", c.endpoint))
	}
	return attrs
}

// Dispatcher owns the worker pool and the retry policy.
type Dispatcher struct {
	opts  Options
	queue chan call
	wg    sync.WaitGroup
	fails atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queue: make(chan call, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for c := range d.queue {
				_ = d.execute(c)
			}
		}()
	}
	return d
}

// Do runs the call on the caller's goroutine. Message sends use it so the
// caller gets the message id and a batch keeps its order.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilCall
	}
	return d.execute(call{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// Enqueue hands the call to a worker without waiting for it.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilCall
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	// Workers outlive the update, so the request deadline must not cancel the call.
	if ctx != nil {
		ctx = context.WithoutCancel(ctx)
	}
	select {
	case d.queue <- call{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount is the number of calls that failed after all retries.
func (d *Dispatcher) ErrorCount() uint64 { return d.fails.Load() }

// Close drains the queue and waits for the workers. It is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) execute(c call) error {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	bounded, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.run(); err == nil {
			if logger.ShouldSampleDebug() {
				logger.Debug(ctx, "tg.sender", "send.ok", append(c.attrs(),
					slog.Int("attempts", attempt),
					slog.Duration("duration", time.Since(start)),
				)...)
			}
			return nil
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}
		wait := d.backoff(attempt, err)
		logger.Debug(ctx, "tg.sender", "send.retry", append(c.attrs(),
			slog.String("status", "retry"),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", wait),
			slog.String("cause", classifyError(err)),
		)...)
		if waitErr := sleep(bounded, wait); waitErr != nil {
			err = errors.Join(err, waitErr)
			break
		}
	}

	d.fails.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail", append(c.attrs(),
		slog.String("status", "fail"),
		slog.String("err", redactToken(err)),
		slog.String("cause", classifyError(err)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	)...)
	return err
}

// backoff grows linearly and honours Telegram's retry_after when longer.
func (d *Dispatcher) backoff(attempt int, err error) time.Duration {
	wait := d.opts.RetryBackoff * time.Duration(attempt)
	if hint := netutil.RetryAfter(err); hint > wait {
		wait = hint
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
