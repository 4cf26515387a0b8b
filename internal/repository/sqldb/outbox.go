package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
)

// outboxRow scans payload as text; json.RawMessage cannot receive a string column.
type outboxRow struct {
	ID          uuid.UUID          `db:"id"`
	EventType   string             `db:"event_type"`
	Payload     string             `db:"payload"`
	Status      model.OutboxStatus `db:"status"`
	Attempts    int                `db:"attempts"`
	LastError   *string            `db:"last_error"`
	CreatedAt   time.Time          `db:"created_at"`
	ProcessedAt *time.Time         `db:"processed_at"`
}

func (row *outboxRow) event() *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:          row.ID,
		EventType:   row.EventType,
		Payload:     []byte(row.Payload),
		Status:      row.Status,
		Attempts:    row.Attempts,
		LastError:   row.LastError,
		CreatedAt:   row.CreatedAt,
		ProcessedAt: row.ProcessedAt,
	}
}

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func insertOutboxEvent(ctx context.Context, db sqlx.ExtContext, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Status = model.OutboxStatusPending

	query := db.Rebind(`
		INSERT INTO outbox_events (id, event_type, payload, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		string(event.Payload),
		event.Status,
		event.Attempts,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// claimLease is how long a claimed event stays hidden from other relays. Events
// held by a relay that died mid-batch become visible again once it expires.
const claimLease = 5 * time.Minute

// ProcessPending claims up to limit pending events, hands each to fn with no
// transaction open, then records the outcome. Events fn fails on stay pending
// until maxAttempts is reached.
func (r *outboxRepository) ProcessPending(
	ctx context.Context,
	limit, maxAttempts int,
	fn func(context.Context, *model.OutboxEvent) error,
) (repository.BatchResult, error) {
	var result repository.BatchResult

	events, err := r.claim(ctx, limit)
	if err != nil {
		return result, err
	}

	// Outcomes are written even when ctx ends mid-batch so claims are released.
	recordCtx := context.WithoutCancel(ctx)
	for _, event := range events {
		if fnErr := fn(ctx, event); fnErr != nil {
			status := model.OutboxStatusPending
			if event.Attempts >= maxAttempts {
				status = model.OutboxStatusFailed
			}
			if err := r.recordFailure(recordCtx, event, status, fnErr); err != nil {
				return result, err
			}
			if status == model.OutboxStatusFailed {
				result.Failed++
			} else {
				result.Retried++
			}
			continue
		}

		if err := r.recordSuccess(recordCtx, event); err != nil {
			return result, err
		}
		result.Processed++
	}
	return result, nil
}

// claim leases a batch in one short transaction. The attempt is counted here so
// a relay crash still uses up one of the event's attempts.
func (r *outboxRepository) claim(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		query := tx.Rebind(`
			SELECT id, event_type, payload, status, attempts, last_error, created_at, processed_at
			FROM outbox_events
			WHERE status = ? AND (locked_until IS NULL OR locked_until < ?)
			ORDER BY created_at, id
			LIMIT ?` + r.dialect.skipLocked)

		var rows []outboxRow
		if err := tx.SelectContext(ctx, &rows, query, model.OutboxStatusPending, now, limit); err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		lockedUntil := now.Add(claimLease)
		update := tx.Rebind(`UPDATE outbox_events SET attempts = ?, locked_until = ? WHERE id = ?`)
		for i := range rows {
			event := rows[i].event()
			event.Attempts++
			if _, err := tx.ExecContext(ctx, update, event.Attempts, lockedUntil, event.ID); err != nil {
				return fmt.Errorf("failed to claim event %s: %w", event.ID, err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) recordFailure(ctx context.Context, event *model.OutboxEvent, status model.OutboxStatus, cause error) error {
	msg := cause.Error()
	event.Status = status
	event.LastError = &msg

	query := r.db.Rebind(`
		UPDATE outbox_events SET status = ?, last_error = ?, locked_until = NULL
		WHERE id = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, status, msg, event.ID); err != nil {
		return fmt.Errorf("failed to update event %s: %w", event.ID, err)
	}
	return nil
}

func (r *outboxRepository) recordSuccess(ctx context.Context, event *model.OutboxEvent) error {
	now := time.Now().UTC()
	event.Status = model.OutboxStatusProcessed
	event.LastError = nil
	event.ProcessedAt = &now

	query := r.db.Rebind(`
		UPDATE outbox_events SET status = ?, last_error = NULL, processed_at = ?, locked_until = NULL
		WHERE id = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, now, event.ID); err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
	}
	return nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM outbox_events WHERE status = ?`)
	if err := r.db.GetContext(ctx, &n, query, model.OutboxStatusPending); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM outbox_events WHERE status = ? AND processed_at < ?`)
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}
