// Package postgres provides the PostgreSQL implementation of the digest
// queue repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stafflink/shift-digest/internal/digest"
	"github.com/stafflink/shift-digest/internal/domain"
)

const defaultListLimit = 100

// Repository implements digest.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const entryColumns = `
	id::text,
	COALESCE(agency_id::text, ''),
	recipient_type,
	recipient_id,
	recipient_email,
	COALESCE(recipient_first_name, ''),
	COALESCE(recipient_phone, ''),
	notification_type,
	pending_items,
	item_count,
	scheduled_send_at,
	status,
	sent_at,
	COALESCE(email_message_id, ''),
	COALESCE(error_message, ''),
	retry_count,
	created_at,
	updated_at`

// UpsertAppend appends the item to the open pending entry for the
// (recipient_id, notification_type) pair, creating it if absent. The append
// and item_count increment happen in one statement; the partial unique index
// on open entries makes concurrent find-or-create race-free. A claimed entry
// (status processing) no longer matches the index, so late appends open a
// fresh entry instead of mutating one mid-send.
func (r *Repository) UpsertAppend(ctx context.Context, entry digest.NewEntry, item domain.ShiftItem) (*domain.QueueEntry, error) {
	itemJSON, err := json.Marshal([]domain.ShiftItem{item})
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	query := `
		INSERT INTO notification_queue (
			agency_id, recipient_type, recipient_id, recipient_email,
			recipient_first_name, recipient_phone, notification_type,
			pending_items, item_count, status, scheduled_send_at
		)
		VALUES (
			NULLIF($1, '')::uuid, $2, $3, $4,
			NULLIF($5, ''), NULLIF($6, ''), $7,
			$8::jsonb, 1, 'pending', $9
		)
		ON CONFLICT (recipient_id, notification_type) WHERE status = 'pending'
		DO UPDATE SET
			pending_items = notification_queue.pending_items || EXCLUDED.pending_items,
			item_count = notification_queue.item_count + 1,
			updated_at = NOW()
		RETURNING` + entryColumns

	row := r.db.QueryRow(ctx, query,
		entry.AgencyID,
		entry.RecipientType,
		entry.RecipientID,
		entry.RecipientEmail,
		entry.RecipientFirstName,
		entry.RecipientPhone,
		entry.NotificationType,
		itemJSON,
		entry.ScheduledSendAt,
	)

	result, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("upsert queue entry: %w", err)
	}
	return result, nil
}

// ClaimDue flips due pending entries to processing and returns them.
// FOR UPDATE SKIP LOCKED keeps concurrent invocations from claiming the
// same rows, so each entry transitions out of pending exactly once.
// Processing rows whose updated_at predates staleBefore lost their owner
// and are reclaimed alongside the pending ones.
func (r *Repository) ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*domain.QueueEntry, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM notification_queue
			WHERE (status = 'pending' AND scheduled_send_at <= $1)
			   OR (status = 'processing' AND updated_at <= $2)
			ORDER BY scheduled_send_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_queue q
		SET status = 'processing', updated_at = NOW()
		FROM due
		WHERE q.id = due.id
		RETURNING` + qualifyColumns("q")

	rows, err := r.db.Query(ctx, query, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}

	return entries, nil
}

// MarkSent finalizes a claimed entry after a successful send.
func (r *Repository) MarkSent(ctx context.Context, id string, sentAt time.Time, messageID string) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent',
		    sent_at = $2,
		    email_message_id = NULLIF($3, ''),
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $1::uuid AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, sentAt, messageID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return digest.ErrEntryNotFound
	}
	return nil
}

// MarkFailed terminally fails a claimed entry.
func (r *Repository) MarkFailed(ctx context.Context, id string, sendErr error) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed',
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $1::uuid AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, sendErr.Error())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return digest.ErrEntryNotFound
	}
	return nil
}

// MarkForRetry re-queues a claimed entry with an incremented attempt counter.
func (r *Repository) MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending',
		    retry_count = retry_count + 1,
		    scheduled_send_at = $3,
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $1::uuid AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, id, sendErr.Error(), nextAttempt)
	if err != nil {
		return fmt.Errorf("mark for retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return digest.ErrEntryNotFound
	}
	return nil
}

// ResetFailed re-queues a terminally failed entry with a fresh attempt budget.
func (r *Repository) ResetFailed(ctx context.Context, id string) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending',
		    retry_count = 0,
		    error_message = NULL,
		    scheduled_send_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1::uuid AND status = 'failed'
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reset failed entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing entry from one in the wrong state.
		var status string
		err := r.db.QueryRow(ctx, `SELECT status FROM notification_queue WHERE id = $1::uuid`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return digest.ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("reset failed entry: %w", err)
		}
		return digest.ErrEntryNotFailed
	}
	return nil
}

// GetEntry retrieves a queue entry by id.
func (r *Repository) GetEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	query := `SELECT` + entryColumns + ` FROM notification_queue WHERE id = $1::uuid`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, digest.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// ListEntries retrieves queue entries, newest first.
func (r *Repository) ListEntries(ctx context.Context, filter digest.EntryFilter) ([]*domain.QueueEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT` + entryColumns + `
		FROM notification_queue
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}

	return entries, nil
}

// GetQueueStats returns queue size by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*digest.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM notification_queue GROUP BY status`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	defer rows.Close()

	stats := &digest.QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch domain.QueueStatus(status) {
		case domain.QueueStatusPending:
			stats.Pending = count
		case domain.QueueStatusProcessing:
			stats.Processing = count
		case domain.QueueStatusSent:
			stats.Sent = count
		case domain.QueueStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}

	return stats, nil
}

// scanEntry scans one queue entry row in entryColumns order.
func scanEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var entry domain.QueueEntry
	var itemsJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.AgencyID,
		&entry.RecipientType,
		&entry.RecipientID,
		&entry.RecipientEmail,
		&entry.RecipientFirstName,
		&entry.RecipientPhone,
		&entry.NotificationType,
		&itemsJSON,
		&entry.ItemCount,
		&entry.ScheduledSendAt,
		&entry.Status,
		&entry.SentAt,
		&entry.EmailMessageID,
		&entry.ErrorMessage,
		&entry.RetryCount,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &entry.PendingItems); err != nil {
			return nil, fmt.Errorf("unmarshal pending items: %w", err)
		}
	}

	return &entry, nil
}

// qualifyColumns prefixes entryColumns with a table alias for queries that
// join against a CTE.
func qualifyColumns(alias string) string {
	return `
	` + alias + `.id::text,
	COALESCE(` + alias + `.agency_id::text, ''),
	` + alias + `.recipient_type,
	` + alias + `.recipient_id,
	` + alias + `.recipient_email,
	COALESCE(` + alias + `.recipient_first_name, ''),
	COALESCE(` + alias + `.recipient_phone, ''),
	` + alias + `.notification_type,
	` + alias + `.pending_items,
	` + alias + `.item_count,
	` + alias + `.scheduled_send_at,
	` + alias + `.status,
	` + alias + `.sent_at,
	COALESCE(` + alias + `.email_message_id, ''),
	COALESCE(` + alias + `.error_message, ''),
	` + alias + `.retry_count,
	` + alias + `.created_at,
	` + alias + `.updated_at`
}
