package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/sentinel"
	txcontext "freightdesk/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore persists the warehouse in PostgreSQL. Inside RunInTx every
// statement runs on the unit's transaction (carried in the context).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the warehouse tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply warehouse schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) conn(ctx context.Context) txcontext.Querier {
	return txcontext.Conn(ctx, s.db)
}

const containerColumns = `id, code, state, created_at, closed_at, departed_at, received_at, worked_at,
	receipt_notes, force_closed, unrouted_acknowledged, member_seq`

func (s *PostgresStore) GetContainer(ctx context.Context, containerID id.ContainerID) (*models.Container, error) {
	query := `SELECT ` + containerColumns + ` FROM containers WHERE id = $1`
	c, err := scanContainer(s.conn(ctx).QueryRowContext(ctx, query, containerID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("container %s: %w", containerID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get container: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListContainers(ctx context.Context, states []models.ContainerState) ([]*models.Container, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	query := `SELECT ` + containerColumns + ` FROM containers WHERE state = ANY($1) ORDER BY created_at, code`
	rows, err := s.conn(ctx).QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Container, 0)
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertContainer(ctx context.Context, c *models.Container) error {
	query := `
		INSERT INTO containers (id, code, code_key, state, created_at, closed_at, departed_at, received_at,
			worked_at, receipt_notes, force_closed, unrouted_acknowledged, member_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		c.ID.String(), c.Code, models.CodeKey(c.Code), string(c.State), c.CreatedAt,
		c.ClosedAt, c.DepartedAt, c.ReceivedAt, c.WorkedAt,
		c.ReceiptNotes, c.ForceClosed, c.UnroutedAcknowledged, c.MemberSeq,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("container code %q: %w", c.Code, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert container: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateContainer(ctx context.Context, c *models.Container) error {
	query := `
		UPDATE containers SET
			state = $2, closed_at = $3, departed_at = $4, received_at = $5, worked_at = $6,
			receipt_notes = $7, force_closed = $8, unrouted_acknowledged = $9, member_seq = $10
		WHERE id = $1
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		c.ID.String(), string(c.State), c.ClosedAt, c.DepartedAt, c.ReceivedAt, c.WorkedAt,
		c.ReceiptNotes, c.ForceClosed, c.UnroutedAcknowledged, c.MemberSeq,
	)
	if err != nil {
		return fmt.Errorf("update container: %w", err)
	}
	return requireRow(res, "container "+c.ID.String())
}

func (s *PostgresStore) DeleteContainer(ctx context.Context, containerID id.ContainerID) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM containers WHERE id = $1`, containerID.String())
	if err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	return requireRow(res, "container "+containerID.String())
}

const invoiceColumns = `id, container_id, member_seq, declared_value, total, incomplete_at_close,
	route_id, route_assigned_at, route_reassign_reason, payment_status, payment_method, amount_paid,
	payment_reference, payment_updated_at, version, updated_at`

func (s *PostgresStore) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error) {
	q := s.conn(ctx)
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(q.QueryRowContext(ctx, query, invoiceID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := s.loadChildren(ctx, q, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, containerID id.ContainerID) ([]*models.Invoice, error) {
	q := s.conn(ctx)
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE container_id = $1 ORDER BY member_seq`
	rows, err := q.QueryContext(ctx, query, containerID.String())
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]*models.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	rows.Close()

	for _, inv := range out {
		if err := s.loadChildren(ctx, q, inv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveInvoice writes the invoice row conditionally on its version, then
// replaces its items and appends any new log entries.
func (s *PostgresStore) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	q := s.conn(ctx)

	var containerID *string
	if inv.ContainerID != nil {
		v := inv.ContainerID.String()
		containerID = &v
	}
	var routeID *string
	var routeAssignedAt *time.Time
	var reassignReason string
	if inv.Route != nil {
		v := inv.Route.RouteID.String()
		routeID = &v
		at := inv.Route.AssignedAt
		routeAssignedAt = &at
		reassignReason = inv.Route.ReassignReason
	}
	args := []any{
		inv.ID.String(), containerID, inv.MemberSeq, inv.DeclaredValue, inv.Total, inv.IncompleteAtClose,
		routeID, routeAssignedAt, reassignReason,
		string(inv.Payment.Status), string(inv.Payment.Method), inv.Payment.AmountPaid,
		inv.Payment.Reference, inv.Payment.UpdatedAt, inv.Version + 1, inv.UpdatedAt,
	}

	var query string
	if inv.Version == 0 {
		query = `
			INSERT INTO invoices (` + invoiceColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO NOTHING
		`
	} else {
		query = `
			UPDATE invoices SET
				container_id = $2, member_seq = $3, declared_value = $4, total = $5, incomplete_at_close = $6,
				route_id = $7, route_assigned_at = $8, route_reassign_reason = $9, payment_status = $10,
				payment_method = $11, amount_paid = $12, payment_reference = $13, payment_updated_at = $14,
				version = $15, updated_at = $16
			WHERE id = $1 AND version = $17
		`
		args = append(args, inv.Version)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("save invoice rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("invoice %s version %d: %w", inv.ID, inv.Version, sentinel.ErrConflict)
	}

	if err := s.saveChildren(ctx, q, inv); err != nil {
		return err
	}
	inv.Version++
	return nil
}

func (s *PostgresStore) saveChildren(ctx context.Context, q txcontext.Querier, inv *models.Invoice) error {
	key := inv.ID.String()
	if _, err := q.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, key); err != nil {
		return fmt.Errorf("clear invoice items: %w", err)
	}
	for _, it := range inv.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, idx, label, marked, marked_at, damaged, damage_notes, damaged_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, key, it.Index, it.Label, it.Marked, it.MarkedAt, it.Damaged, it.DamageNotes, it.DamagedAt)
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}

	// Logs are append-only: existing sequence numbers are never rewritten.
	for i, ev := range inv.RouteLog {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoice_route_events (invoice_id, seq, kind, route_id, previous_route_id, reason, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (invoice_id, seq) DO NOTHING
		`, key, i, string(ev.Kind), ev.RouteID.String(), ev.PreviousRouteID.String(), ev.Reason, ev.At)
		if err != nil {
			return fmt.Errorf("append route event: %w", err)
		}
	}
	for i, r := range inv.Reports {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoice_reports (invoice_id, seq, reason, missing_items, reported_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (invoice_id, seq) DO NOTHING
		`, key, i, r.Reason, pq.Array(r.MissingItems), r.ReportedAt)
		if err != nil {
			return fmt.Errorf("append incompleteness report: %w", err)
		}
	}
	for i, n := range inv.Payment.Notes {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoice_payment_notes (invoice_id, seq, text, at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (invoice_id, seq) DO NOTHING
		`, key, i, n.Text, n.At)
		if err != nil {
			return fmt.Errorf("append payment note: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, q txcontext.Querier, inv *models.Invoice) error {
	key := inv.ID.String()

	rows, err := q.QueryContext(ctx, `
		SELECT idx, label, marked, marked_at, damaged, damage_notes, damaged_at
		FROM invoice_items WHERE invoice_id = $1 ORDER BY idx
	`, key)
	if err != nil {
		return fmt.Errorf("load invoice items: %w", err)
	}
	inv.Items = make([]models.Item, 0)
	for rows.Next() {
		var it models.Item
		var markedAt, damagedAt sql.NullTime
		if err := rows.Scan(&it.Index, &it.Label, &it.Marked, &markedAt, &it.Damaged, &it.DamageNotes, &damagedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan invoice item: %w", err)
		}
		it.MarkedAt = nullTime(markedAt)
		it.DamagedAt = nullTime(damagedAt)
		inv.Items = append(inv.Items, it)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterate invoice items: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT kind, route_id, previous_route_id, reason, at
		FROM invoice_route_events WHERE invoice_id = $1 ORDER BY seq
	`, key)
	if err != nil {
		return fmt.Errorf("load route events: %w", err)
	}
	for rows.Next() {
		var ev models.RouteEvent
		var kind, routeID, previous string
		if err := rows.Scan(&kind, &routeID, &previous, &ev.Reason, &ev.At); err != nil {
			rows.Close()
			return fmt.Errorf("scan route event: %w", err)
		}
		ev.Kind = models.RouteEventKind(kind)
		ev.RouteID = id.RouteID(routeID)
		ev.PreviousRouteID = id.RouteID(previous)
		inv.RouteLog = append(inv.RouteLog, ev)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterate route events: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT reason, missing_items, reported_at
		FROM invoice_reports WHERE invoice_id = $1 ORDER BY seq
	`, key)
	if err != nil {
		return fmt.Errorf("load incompleteness reports: %w", err)
	}
	for rows.Next() {
		var r models.IncompletenessReport
		var missing []string
		if err := rows.Scan(&r.Reason, pq.Array(&missing), &r.ReportedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan incompleteness report: %w", err)
		}
		if len(missing) > 0 {
			r.MissingItems = missing
		}
		inv.Reports = append(inv.Reports, r)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterate incompleteness reports: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT text, at FROM invoice_payment_notes WHERE invoice_id = $1 ORDER BY seq
	`, key)
	if err != nil {
		return fmt.Errorf("load payment notes: %w", err)
	}
	for rows.Next() {
		var n models.PaymentNote
		if err := rows.Scan(&n.Text, &n.At); err != nil {
			rows.Close()
			return fmt.Errorf("scan payment note: %w", err)
		}
		inv.Payment.Notes = append(inv.Payment.Notes, n)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("iterate payment notes: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContainer(row rowScanner) (*models.Container, error) {
	var c models.Container
	var rawID, state string
	var closedAt, departedAt, receivedAt, workedAt sql.NullTime
	err := row.Scan(&rawID, &c.Code, &state, &c.CreatedAt, &closedAt, &departedAt, &receivedAt, &workedAt,
		&c.ReceiptNotes, &c.ForceClosed, &c.UnroutedAcknowledged, &c.MemberSeq)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse container id: %w", err)
	}
	c.ID = id.ContainerID(parsed)
	c.State = models.ContainerState(state)
	c.ClosedAt = nullTime(closedAt)
	c.DepartedAt = nullTime(departedAt)
	c.ReceivedAt = nullTime(receivedAt)
	c.WorkedAt = nullTime(workedAt)
	return &c, nil
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	var rawID, status, method string
	var containerID, routeID sql.NullString
	var routeAssignedAt, paymentUpdatedAt sql.NullTime
	var reassignReason string
	err := row.Scan(&rawID, &containerID, &inv.MemberSeq, &inv.DeclaredValue, &inv.Total, &inv.IncompleteAtClose,
		&routeID, &routeAssignedAt, &reassignReason, &status, &method, &inv.Payment.AmountPaid,
		&inv.Payment.Reference, &paymentUpdatedAt, &inv.Version, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.ID = id.InvoiceID(rawID)
	if containerID.Valid {
		parsed, err := uuid.Parse(containerID.String)
		if err != nil {
			return nil, fmt.Errorf("parse container id: %w", err)
		}
		cid := id.ContainerID(parsed)
		inv.ContainerID = &cid
	}
	if routeID.Valid {
		inv.Route = &models.RouteAssignment{
			RouteID:        id.RouteID(routeID.String),
			AssignedAt:     routeAssignedAt.Time,
			ReassignReason: reassignReason,
		}
	}
	inv.Payment.Status = models.PaymentStatus(status)
	inv.Payment.Method = models.PaymentMethod(method)
	inv.Payment.UpdatedAt = nullTime(paymentUpdatedAt)
	return &inv, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", strings.TrimSpace(what), sentinel.ErrNotFound)
	}
	return nil
}
