// Package service is the reconciliation coordinator: the only entry point
// callers use. Every mutating method is one atomic unit of work serialized on
// the owning container, and every error it returns carries a stable code from
// pkg/domain-errors.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"freightdesk/internal/warehouse/containers"
	"freightdesk/internal/warehouse/ledger"
	"freightdesk/internal/warehouse/membership"
	"freightdesk/internal/warehouse/metrics"
	"freightdesk/internal/warehouse/ports"
	"freightdesk/pkg/attrs"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
	"freightdesk/pkg/platform/audit"
	"freightdesk/pkg/platform/sentinel"
	"freightdesk/pkg/requestcontext"
)

const (
	defaultMaxAttempts = 3
	tracerName         = "freightdesk/warehouse"
)

// errScopeMoved reports that an invoice changed container between scope
// resolution and lock acquisition. The unit of work is retried.
var errScopeMoved = errors.New("invoice moved to another scope")

// Service coordinates the container state machine, the membership tracker
// and the item ledger.
type Service struct {
	tx          ports.Tx
	queries     ports.QueryStore
	catalog     ports.InvoiceCatalog
	machine     *containers.Machine
	tracker     *membership.Tracker
	ledger      *ledger.Ledger
	clock       ports.Clock
	logger      *slog.Logger
	publisher   ports.AuditPublisher
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	maxAttempts int
	lockTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock ports.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithMaxAttempts bounds how many times a unit of work is run when it loses
// an optimistic write. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLockTimeout bounds the wait for a container scope when the caller's
// context carries no deadline of its own.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.lockTimeout = d
	}
}

func New(tx ports.Tx, queries ports.QueryStore, catalog ports.InvoiceCatalog, opts ...Option) *Service {
	s := &Service{
		tx:          tx,
		queries:     queries,
		catalog:     catalog,
		machine:     containers.New(),
		tracker:     membership.New(),
		ledger:      ledger.New(),
		clock:       ports.SystemClock{},
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// guard re-checks, inside the unit of work, that the scope chosen before
// locking still owns the aggregate.
type guard func(ctx context.Context, st ports.Store) error

type resolver func(ctx context.Context) (ports.Scope, guard, error)

func containerScope(containerID id.ContainerID) resolver {
	return func(context.Context) (ports.Scope, guard, error) {
		return ports.ContainerScope(containerID), nil, nil
	}
}

// invoiceScope locks the container that currently holds the invoice, or the
// invoice itself when it is unassigned or not yet materialized.
func (s *Service) invoiceScope(invoiceID id.InvoiceID) resolver {
	return func(ctx context.Context) (ports.Scope, guard, error) {
		inv, err := s.queries.GetInvoice(ctx, invoiceID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return "", nil, err
		}
		if err != nil || inv.ContainerID == nil {
			return ports.InvoiceScope(invoiceID), expectContainer(invoiceID, nil), nil
		}
		owner := *inv.ContainerID
		return ports.ContainerScope(owner), expectContainer(invoiceID, &owner), nil
	}
}

func expectContainer(invoiceID id.InvoiceID, want *id.ContainerID) guard {
	return func(ctx context.Context, st ports.Store) error {
		inv, err := st.GetInvoice(ctx, invoiceID)
		if errors.Is(err, sentinel.ErrNotFound) {
			if want == nil {
				return nil
			}
			return errScopeMoved
		}
		if err != nil {
			return err
		}
		switch {
		case want == nil && inv.ContainerID == nil:
			return nil
		case want != nil && inv.ContainerID != nil && *inv.ContainerID == *want:
			return nil
		}
		return errScopeMoved
	}
}

// run executes fn as one unit of work. Lost optimistic writes and scope moves
// rerun the whole unit, so fn must only communicate results by assignment.
func (s *Service) run(ctx context.Context, op string, resolve resolver, fn func(ctx context.Context, st ports.Store) error) error {
	if s.lockTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
			defer cancel()
		}
	}

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		scope, check, rerr := resolve(ctx)
		if rerr != nil {
			return rerr
		}
		err = s.tx.RunInTx(ctx, scope, func(st ports.Store) error {
			if check != nil {
				if err := check(ctx, st); err != nil {
					return err
				}
			}
			return fn(ctx, st)
		})
		if !errors.Is(err, sentinel.ErrConflict) && !errors.Is(err, errScopeMoved) {
			return err
		}
		if attempt < s.maxAttempts {
			s.metrics.IncrementConflictRetry(op)
			s.logger.DebugContext(ctx, "retrying unit of work", "operation", op, "attempt", attempt, "error", err)
		}
	}
	return err
}

// begin opens the span for op and returns the matching finisher, which
// records the outcome in the span and the metrics.
func (s *Service) begin(ctx context.Context, op string, kv ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "warehouse."+op, trace.WithAttributes(kv...))
	return ctx, func(errp *error) {
		outcome := "ok"
		if err := *errp; err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveOperation(op, outcome, start)
		span.End()
	}
}

// translate maps store facts and infrastructure failures onto the error
// taxonomy. Domain errors pass through unchanged.
func (s *Service) translate(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if de, ok := dErrors.As(err); ok {
		if de.Code == dErrors.CodeInvariantViolation {
			de = dErrors.New(dErrors.CodeValidation, de.Message)
		}
		s.logger.DebugContext(ctx, "operation rejected", "operation", op, "code", de.Code, "error", de.Message)
		return de
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, strings.TrimSuffix(err.Error(), ": "+sentinel.ErrNotFound.Error())+" not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeDuplicateCode, "container code is already in use")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, errScopeMoved):
		s.logger.WarnContext(ctx, "unit of work kept conflicting", "operation", op, "error", err)
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, please retry")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for the container")
	}
	s.logger.ErrorContext(ctx, "operation failed", "operation", op, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+strings.ReplaceAll(op, "_", " "))
}

func (s *Service) now(ctx context.Context) time.Time {
	if t, ok := requestcontext.Time(ctx); ok {
		return t
	}
	return s.clock.Now()
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if device := requestcontext.Device(ctx); device != "" {
		attributes = append(attributes, "device", device)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)
	if s.publisher == nil {
		return
	}
	e := audit.Event{
		Category:    event.Category(),
		Action:      string(event),
		ContainerID: attrs.ExtractString(attributes, "container_id"),
		InvoiceID:   attrs.ExtractString(attributes, "invoice_id"),
		Reason:      attrs.ExtractString(attributes, "reason"),
		RequestID:   attrs.ExtractString(attributes, "request_id"),
		ActorID:     requestcontext.OperatorID(ctx),
		Attributes:  attrs.ToMap(attributes, "container_id", "invoice_id", "reason", "request_id"),
	}
	e.Subject = e.InvoiceID
	if e.Subject == "" {
		e.Subject = e.ContainerID
	}
	if err := s.publisher.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event", "event", string(event), "error", err)
	}
}
