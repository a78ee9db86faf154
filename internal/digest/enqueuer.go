package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stafflink/shift-digest/internal/domain"
)

// EnqueuerConfig contains enqueuer configuration.
type EnqueuerConfig struct {
	// DebounceWindow is how long a freshly opened entry collects further
	// events before it becomes eligible to send. Appends never extend it.
	DebounceWindow time.Duration
}

// DefaultEnqueuerConfig returns default enqueuer configuration.
func DefaultEnqueuerConfig() EnqueuerConfig {
	return EnqueuerConfig{DebounceWindow: 5 * time.Minute}
}

// Recipient identifies who receives a digest.
type Recipient struct {
	Type      domain.RecipientType
	ID        string
	Email     string
	FirstName string
	Phone     string
}

// EnqueueInput is one business event to fold into a digest.
type EnqueueInput struct {
	AgencyID         string
	Recipient        Recipient
	NotificationType domain.NotificationType
	Item             domain.ShiftItem
}

// Enqueuer appends business events onto digest queue entries. Events for the
// same recipient and type within the debounce window collapse into one entry;
// everything else gets its own. There is no retry here: a failed write
// surfaces to the caller of the triggering business action.
type Enqueuer struct {
	config EnqueuerConfig
	repo   Repository
	now    func() time.Time
}

// NewEnqueuer creates an enqueuer.
func NewEnqueuer(config EnqueuerConfig, repo Repository) *Enqueuer {
	if config.DebounceWindow <= 0 {
		config.DebounceWindow = DefaultEnqueuerConfig().DebounceWindow
	}
	return &Enqueuer{
		config: config,
		repo:   repo,
		now:    time.Now,
	}
}

// Enqueue folds one event into the queue and returns the affected entry.
func (e *Enqueuer) Enqueue(ctx context.Context, input EnqueueInput) (*domain.QueueEntry, error) {
	if !input.NotificationType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotificationType, input.NotificationType)
	}
	if input.Recipient.Email == "" {
		return nil, ErrNoRecipientEmail
	}

	entry := NewEntry{
		AgencyID:           input.AgencyID,
		RecipientType:      input.Recipient.Type,
		RecipientID:        input.Recipient.ID,
		RecipientEmail:     input.Recipient.Email,
		RecipientFirstName: input.Recipient.FirstName,
		RecipientPhone:     input.Recipient.Phone,
		NotificationType:   input.NotificationType,
		ScheduledSendAt:    e.now().Add(e.config.DebounceWindow),
	}

	result, err := e.repo.UpsertAppend(ctx, entry, input.Item)
	if err != nil {
		return nil, fmt.Errorf("append to queue: %w", err)
	}

	recordEnqueued(string(input.NotificationType))

	slog.Debug("event enqueued",
		"queue_id", result.ID,
		"notification_type", input.NotificationType,
		"recipient_id", input.Recipient.ID,
		"item_count", result.ItemCount,
		"scheduled_send_at", result.ScheduledSendAt,
	)

	return result, nil
}
