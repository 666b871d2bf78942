// Package notify delivers real-time events outside the request path.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the dispatcher cannot accept more events.
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("notification dispatcher closed")

// Publisher is what the dispatcher forwards to.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload map[string]any) error
}

type message struct {
	channel string
	event   string
	payload map[string]any
}

// Dispatcher queues events and forwards them to the wrapped publisher from
// a single background goroutine, so Publish never blocks on the network.
type Dispatcher struct {
	next    Publisher
	log     *slog.Logger
	timeout time.Duration

	queue chan message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker. queueSize <= 0 defaults to 256.
func NewDispatcher(next Publisher, queueSize int, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		next:    next,
		log:     log.With("component", "notify"),
		timeout: 5 * time.Second,
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues the event. It fails fast with ErrQueueFull instead of
// waiting for room.
func (d *Dispatcher) Publish(_ context.Context, channel, event string, payload map[string]any) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- message{channel: channel, event: event, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for m := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Publish(ctx, m.channel, m.event, m.payload); err != nil {
			d.log.Warn("deliver notification failed",
				"channel", m.channel, "event", m.event, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued ones are delivered
// or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
