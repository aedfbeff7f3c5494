package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

type sqliteOutboxRepo struct {
	db dbtx
}

const outboxColumns = `id, event_type, aggregate_id, payload_json, status, attempt_count,
	next_attempt_at, lease_expires_at, last_error, processed_at, created_at`

func scanOutboxEvent(scan func(dest ...any) error) (*models.OutboxEvent, error) {
	e := &models.OutboxEvent{}
	var (
		nextAttemptAt, createdAt  int64
		leaseExpiresAt, processed sql.NullInt64
		lastError                 sql.NullString
	)
	err := scan(&e.ID, &e.EventType, &e.AggregateID, &e.Payload, &e.Status, &e.AttemptCount,
		&nextAttemptAt, &leaseExpiresAt, &lastError, &processed, &createdAt)
	if err != nil {
		return nil, err
	}
	e.NextAttemptAt = fromNanos(nextAttemptAt)
	e.LeaseExpiresAt = fromNullNanos(leaseExpiresAt)
	e.LastError = lastError.String
	e.ProcessedAt = fromNullNanos(processed)
	e.CreatedAt = fromNanos(createdAt)
	return e, nil
}

func (r *sqliteOutboxRepo) Enqueue(ctx context.Context, e *models.OutboxEvent) error {
	if e.Status == "" {
		e.Status = models.OutboxPending
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = e.CreatedAt
	}
	query := `
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload_json, status, attempt_count,
			next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.EventType, e.AggregateID, e.Payload, e.Status, e.AttemptCount,
		toNanos(e.NextAttemptAt), toNanos(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

func (r *sqliteOutboxRepo) GetByID(ctx context.Context, id string) (*models.OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = ?`, id)
	e, err := scanOutboxEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox event: %w", err)
	}
	return e, nil
}

// dueCondition matches pending events whose time has come and leases that expired.
const dueCondition = `(
	(status = 'pending' AND next_attempt_at <= ?)
	OR
	(status = 'leased' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)`

// Lease selects candidates and claims each with a conditional update, so
// concurrent workers never lease the same event twice.
func (r *sqliteOutboxRepo) Lease(ctx context.Context, limit int, now time.Time, ttl time.Duration) ([]*models.OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	nowNanos := toNanos(now)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM outbox_events
		WHERE `+dueCondition+`
		ORDER BY next_attempt_at ASC, created_at ASC, id ASC
		LIMIT ?
	`, nowNanos, nowNanos, limit)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}
	candidates := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lease candidate: %w", err)
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate lease candidates: %w", err)
	}
	rows.Close()

	leased := make([]*models.OutboxEvent, 0, len(candidates))
	for _, id := range candidates {
		result, err := r.db.ExecContext(ctx, `
			UPDATE outbox_events SET status = 'leased', lease_expires_at = ?
			WHERE id = ? AND `+dueCondition,
			toNanos(now.Add(ttl)), id, nowNanos, nowNanos,
		)
		if err != nil {
			return nil, fmt.Errorf("lease outbox event %s: %w", id, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			continue
		}
		e, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			leased = append(leased, e)
		}
	}
	return leased, nil
}

func (r *sqliteOutboxRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'processed', attempt_count = attempt_count + 1, processed_at = ?,
			lease_expires_at = NULL, last_error = NULL
		WHERE id = ?
	`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *sqliteOutboxRepo) MarkRetry(ctx context.Context, id string, lastErr string, next time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'pending', attempt_count = attempt_count + 1, next_attempt_at = ?,
			lease_expires_at = NULL, last_error = ?
		WHERE id = ?
	`, toNanos(next), lastErr, id)
	if err != nil {
		return fmt.Errorf("mark outbox event retry: %w", err)
	}
	return nil
}

func (r *sqliteOutboxRepo) MarkFailed(ctx context.Context, id string, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'failed', attempt_count = attempt_count + 1, lease_expires_at = NULL, last_error = ?
		WHERE id = ?
	`, lastErr, id)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}

func (r *sqliteOutboxRepo) Requeue(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'pending', attempt_count = 0, next_attempt_at = ?, lease_expires_at = NULL
		WHERE id = ? AND status = 'failed'
	`, toNanos(at), id)
	if err != nil {
		return false, fmt.Errorf("requeue outbox event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("requeue outbox event: %w", err)
	}
	return n > 0, nil
}

// List returns events with the given status, or all events when status is empty.
func (r *sqliteOutboxRepo) List(ctx context.Context, status models.OutboxStatus, limit int) ([]*models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + outboxColumns + ` FROM outbox_events`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox events: %w", err)
	}
	defer rows.Close()

	var list []*models.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *sqliteOutboxRepo) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OutboxStatus]int64)
	for rows.Next() {
		var status models.OutboxStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
