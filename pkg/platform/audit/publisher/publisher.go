// Package publisher delivers audit events to a Store, synchronously or through
// a bounded in-process queue.
//
// Audit is best effort for the warehouse: a failed or dropped event never
// fails the business operation that produced it. A circuit breaker stops
// delivery attempts while the sink is down.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "freightdesk/pkg/platform/audit"
)

// ErrCircuitOpen is returned by synchronous Emit while the sink is considered down.
var ErrCircuitOpen = errors.New("audit circuit open")

const defaultDeliveryTimeout = 5 * time.Second

// Publisher emits audit events to a Store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *CircuitBreaker

	queue chan audit.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous delivery through a queue of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// NewPublisher creates a publisher. In async mode a delivery goroutine is
// started; Close drains it.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = NewCircuitBreaker(5, 30*time.Second)
	}
	if p.queue != nil {
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

// Emit delivers event. In async mode it only enqueues and never blocks; a
// full queue drops the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.incDropped("closed")
		return nil
	}

	if p.queue == nil {
		return p.deliver(ctx, event)
	}

	select {
	case p.queue <- event:
		p.metrics.setQueueDepth(len(p.queue))
	default:
		p.metrics.incDropped("queue_full")
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit queue full, dropping event", "action", event.Action)
		}
	}
	return nil
}

// Close stops accepting events and, in async mode, waits for the queue to drain.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.queue {
		p.metrics.setQueueDepth(len(p.queue))
		ctx, cancel := context.WithTimeout(context.Background(), defaultDeliveryTimeout)
		if err := p.deliver(ctx, event); err != nil && p.logger != nil {
			p.logger.Warn("audit delivery failed", "action", event.Action, "error", err)
		}
		cancel()
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if !p.breaker.Allow() {
		p.metrics.incDropped("circuit_open")
		return ErrCircuitOpen
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.breaker.RecordFailure()
		p.metrics.incDeliveryFailures()
		p.metrics.setCircuitBreakerState(p.breaker.IsOpen())
		return err
	}
	p.breaker.RecordSuccess()
	p.metrics.setCircuitBreakerState(false)
	p.metrics.incEmitted()
	return nil
}
