// Package async provides a transport wrapper with a bounded queue for
// high-throughput services. Events are queued and delivered in the
// background; the oldest events are dropped when the queue is full.
package async

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("async transport is closed")

// Option configures the async transport.
type Option func(*config)

type config struct {
	queueSize int
	onDropped func(count int)
	onError   func(err error)
}

// WithQueueSize sets the maximum number of queued events (default: 1000).
func WithQueueSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithOnDropped sets a callback invoked when events are dropped due to queue overflow.
func WithOnDropped(fn func(count int)) Option {
	return func(c *config) {
		c.onDropped = fn
	}
}

// WithOnError sets a callback for delivery errors from the inner transport.
func WithOnError(fn func(err error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// Transport wraps another transport with a bounded queue.
type Transport struct {
	inner     kuyo.Transport
	queue     chan kuyo.Event
	done      chan struct{}
	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	pending   atomic.Int64
	onDropped func(count int)
	onError   func(err error)
}

var (
	_ kuyo.Transport = (*Transport)(nil)
	_ kuyo.Flusher   = (*Transport)(nil)
	_ io.Closer      = (*Transport)(nil)
)

// New wraps inner with a bounded queue. Send returns immediately; events
// are delivered in order by a single background goroutine.
func New(inner kuyo.Transport, opts ...Option) *Transport {
	cfg := &config{queueSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}

	t := &Transport{
		inner:     inner,
		queue:     make(chan kuyo.Event, cfg.queueSize),
		done:      make(chan struct{}),
		onDropped: cfg.onDropped,
		onError:   cfg.onError,
	}

	t.wg.Add(1)
	go t.processLoop()

	return t
}

// Factory returns a TransportFactory that wraps every transport built by
// inner, so credential rotation keeps the queue in front of delivery.
func Factory(inner kuyo.TransportFactory, opts ...Option) kuyo.TransportFactory {
	return func(cfg kuyo.Config) kuyo.Transport {
		return New(inner(cfg), opts...)
	}
}

func (t *Transport) processLoop() {
	defer t.wg.Done()
	for {
		select {
		case event := <-t.queue:
			t.deliver(event)
		case <-t.done:
			for {
				select {
				case event := <-t.queue:
					t.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (t *Transport) deliver(event kuyo.Event) {
	defer t.pending.Add(-1)
	if err := t.inner.Send(context.Background(), event); err != nil && t.onError != nil {
		t.onError(err)
	}
}

// Send enqueues an event. If the queue is full, the oldest event is dropped.
func (t *Transport) Send(ctx context.Context, event kuyo.Event) error {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return ErrClosed
	}

	t.pending.Add(1)
	select {
	case t.queue <- event:
		return nil
	default:
		t.dropOldestAndEnqueue(event)
		return nil
	}
}

func (t *Transport) dropOldestAndEnqueue(event kuyo.Event) {
	select {
	case <-t.queue:
		t.pending.Add(-1)
		t.dropped(1)
	default:
		// Queue was drained by the processor, try again
	}

	select {
	case t.queue <- event:
	default:
		t.pending.Add(-1)
		t.dropped(1)
	}
}

func (t *Transport) dropped(n int) {
	if t.onDropped != nil {
		t.onDropped(n)
	}
}

// Pending reports queued and in-progress events.
func (t *Transport) Pending() int {
	return int(t.pending.Load())
}

// Flush blocks until every accepted event has been delivered or dropped,
// then flushes the inner transport.
func (t *Transport) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for t.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if f, ok := t.inner.(kuyo.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Close drains the queue, stops the processor and closes the inner transport.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeMu.Lock()
		t.closed = true
		t.closeMu.Unlock()

		close(t.done)
		t.wg.Wait()
	})

	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
