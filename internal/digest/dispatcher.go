package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stafflink/shift-digest/internal/domain"
)

// Email is the outbound transport payload.
type Email struct {
	To       string
	Subject  string
	HTML     string
	FromName string
}

// Transport sends digest emails. Implementations return the provider
// message id on success; errors may implement IsRetryable to steer the
// retry decision.
type Transport interface {
	Send(ctx context.Context, email Email) (messageID string, err error)
}

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	BatchSize         int
	SendTimeout       time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// StaleClaimAfter is how long a processing entry may sit untouched
	// before a later run reclaims it. Must comfortably exceed SendTimeout.
	StaleClaimAfter time.Duration
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:         100,
		SendTimeout:       15 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Minute,
		MaxBackoff:        30 * time.Minute,
		BackoffMultiplier: 2.0,
		StaleClaimAfter:   15 * time.Minute,
	}
}

// RunError records a single entry's failure within a run.
type RunError struct {
	QueueID string `json:"queue_id"`
	Error   string `json:"error"`
}

// RunResult summarizes one dispatch invocation.
// Processed == Sent + Failed always holds; entries re-queued for a later
// retry attempt are counted under Failed for the invocation that tried them.
type RunResult struct {
	Processed int        `json:"processed"`
	Sent      int        `json:"sent"`
	Failed    int        `json:"failed"`
	Errors    []RunError `json:"errors"`
}

// Dispatcher flushes due queue entries: claim, render, send, record.
// Entries are processed strictly sequentially within a run; a single
// entry's failure never aborts the batch.
type Dispatcher struct {
	config    DispatcherConfig
	repo      Repository
	agencies  AgencyLookup
	renderer  *Renderer
	transport Transport
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config DispatcherConfig, repo Repository, agencies AgencyLookup, renderer *Renderer, transport Transport) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = def.SendTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.BackoffMultiplier <= 1 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	if config.StaleClaimAfter <= 0 {
		config.StaleClaimAfter = def.StaleClaimAfter
	}
	return &Dispatcher{
		config:    config,
		repo:      repo,
		agencies:  agencies,
		renderer:  renderer,
		transport: transport,
		now:       time.Now,
	}
}

// Run claims all due entries and processes them once each. A store failure
// at claim time aborts the whole invocation; everything after that is
// recorded per entry.
func (d *Dispatcher) Run(ctx context.Context) (*RunResult, error) {
	start := d.now()

	entries, err := d.repo.ClaimDue(ctx, start, start.Add(-d.config.StaleClaimAfter), d.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim due entries: %w", err)
	}

	result := &RunResult{Errors: make([]RunError, 0)}
	if len(entries) == 0 {
		recordRun(d.now().Sub(start))
		return result, nil
	}

	slog.Info("dispatching digests", "due", len(entries))

	for _, entry := range entries {
		result.Processed++
		if err := d.processEntry(ctx, entry); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RunError{QueueID: entry.ID, Error: err.Error()})
			continue
		}
		result.Sent++
	}

	recordRun(d.now().Sub(start))

	slog.Info("dispatch run complete",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
	)

	return result, nil
}

// processEntry takes one claimed entry through render and send, and records
// the terminal outcome on the row. The returned error is the operator-visible
// reason for a non-sent entry.
func (d *Dispatcher) processEntry(ctx context.Context, entry *domain.QueueEntry) error {
	sendStart := d.now()

	// Once an entry is claimed its outcome write must land even if the
	// caller's context (an HTTP request deadline, typically) has expired,
	// otherwise the row stays in processing with no owner.
	writeCtx := context.WithoutCancel(ctx)

	agency := d.lookupAgency(ctx, entry.AgencyID)

	subject, body, err := d.renderer.Render(entry, agency)
	if err != nil {
		// Rendering can't be fixed by retrying.
		return d.fail(writeCtx, entry, string(entry.NotificationType), NewNonRetryableError(err))
	}

	fromName := d.renderer.defaults.AgencyName
	if agency != nil && agency.Name != "" {
		fromName = agency.Name
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	messageID, err := d.transport.Send(sendCtx, Email{
		To:       entry.RecipientEmail,
		Subject:  subject,
		HTML:     body,
		FromName: fromName,
	})
	cancel()

	if err != nil {
		return d.fail(writeCtx, entry, string(entry.NotificationType), err)
	}

	sentAt := d.now()
	if err := d.repo.MarkSent(writeCtx, entry.ID, sentAt, messageID); err != nil {
		slog.Error("failed to mark as sent", "queue_id", entry.ID, "error", err)
		return fmt.Errorf("mark sent: %w", err)
	}

	recordEntryOutcome(string(entry.NotificationType), "sent")
	recordSendDuration(string(entry.NotificationType), sentAt.Sub(sendStart))

	slog.Debug("digest sent",
		"queue_id", entry.ID,
		"recipient", entry.RecipientEmail,
		"items", entry.ItemCount,
		"message_id", messageID,
	)

	return nil
}

// fail records a send failure, either re-queuing the entry with backoff or
// failing it terminally once attempts are exhausted or the error is permanent.
func (d *Dispatcher) fail(ctx context.Context, entry *domain.QueueEntry, notificationType string, sendErr error) error {
	attempt := entry.RetryCount + 1

	slog.Warn("digest send failed",
		"queue_id", entry.ID,
		"attempt", attempt,
		"max_attempts", d.config.MaxAttempts,
		"error", sendErr,
	)

	if !isRetryable(sendErr) || attempt >= d.config.MaxAttempts {
		if markErr := d.repo.MarkFailed(ctx, entry.ID, sendErr); markErr != nil {
			slog.Error("failed to mark as failed", "queue_id", entry.ID, "error", markErr)
		}
		recordEntryOutcome(notificationType, "failed")
		return sendErr
	}

	nextAttempt := d.nextAttemptAt(attempt)
	if markErr := d.repo.MarkForRetry(ctx, entry.ID, sendErr, nextAttempt); markErr != nil {
		slog.Error("failed to mark for retry", "queue_id", entry.ID, "error", markErr)
	}
	recordEntryOutcome(notificationType, "retry")

	slog.Info("digest scheduled for retry",
		"queue_id", entry.ID,
		"next_attempt", nextAttempt,
	)

	return sendErr
}

func (d *Dispatcher) nextAttemptAt(attempt int) time.Time {
	backoff := float64(d.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.config.BackoffMultiplier
	}

	if backoff > float64(d.config.MaxBackoff) {
		backoff = float64(d.config.MaxBackoff)
	}

	return d.now().Add(time.Duration(backoff))
}

// lookupAgency resolves branding context. A missing or unreadable agency
// record never blocks a send; the renderer substitutes generic defaults.
func (d *Dispatcher) lookupAgency(ctx context.Context, agencyID string) *domain.Agency {
	if agencyID == "" || d.agencies == nil {
		return nil
	}

	agency, err := d.agencies.GetAgency(ctx, agencyID)
	if err != nil {
		slog.Warn("agency lookup failed, using default branding",
			"agency_id", agencyID,
			"error", err,
		)
		return nil
	}
	return agency
}
