// Package digest implements the queued notification digest pipeline:
// business events are accumulated per (recipient, notification type) into
// pending queue entries and periodically flushed as one branded email each.
package digest

import (
	"context"
	"time"

	"github.com/stafflink/shift-digest/internal/domain"
)

// NewEntry describes the row created when no open entry exists for the
// (recipient, notification type) pair.
type NewEntry struct {
	AgencyID           string
	RecipientType      domain.RecipientType
	RecipientID        string
	RecipientEmail     string
	RecipientFirstName string
	RecipientPhone     string
	NotificationType   domain.NotificationType
	ScheduledSendAt    time.Time
}

// Repository defines data access for the digest queue.
type Repository interface {
	// UpsertAppend atomically appends item to the open pending entry for
	// (entry.RecipientID, entry.NotificationType), creating the entry with
	// entry.ScheduledSendAt if none is open. Returns the resulting row.
	UpsertAppend(ctx context.Context, entry NewEntry, item domain.ShiftItem) (*domain.QueueEntry, error)

	// ClaimDue atomically transitions up to limit due pending entries
	// (scheduled_send_at <= now) to processing and returns them. Entries
	// claimed by a concurrent invocation are skipped, never returned twice.
	// Processing entries untouched since staleBefore are reclaimed too:
	// they are leftovers of a run that died before recording an outcome.
	ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*domain.QueueEntry, error)

	// MarkSent finalizes a claimed entry after a successful send.
	MarkSent(ctx context.Context, id string, sentAt time.Time, messageID string) error

	// MarkFailed terminally fails a claimed entry.
	MarkFailed(ctx context.Context, id string, sendErr error) error

	// MarkForRetry re-queues a claimed entry: status back to pending,
	// retry_count incremented, scheduled_send_at moved to nextAttempt.
	MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error

	// ResetFailed re-queues a terminally failed entry for immediate dispatch.
	// Operator intervention path; returns ErrEntryNotFailed for other states.
	ResetFailed(ctx context.Context, id string) error

	GetEntry(ctx context.Context, id string) (*domain.QueueEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]*domain.QueueEntry, error)
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

// EntryFilter narrows ListEntries results.
type EntryFilter struct {
	Status domain.QueueStatus // empty matches all
	Limit  int                // <= 0 means repository default
}

// QueueStats holds queue size by status.
type QueueStats struct {
	Pending    int
	Processing int
	Sent       int
	Failed     int
}

// AgencyLookup resolves agency branding for dispatch. A miss must be
// reported as agency.ErrAgencyNotFound so the dispatcher can fall back to
// generic branding instead of failing the entry.
type AgencyLookup interface {
	GetAgency(ctx context.Context, id string) (*domain.Agency, error)
}
