package digest

import (
	"context"
	"testing"
	"time"

	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueInput(nt domain.NotificationType) EnqueueInput {
	return EnqueueInput{
		Recipient: Recipient{
			Type:      domain.RecipientStaff,
			ID:        "staff-42",
			Email:     "nurse@example.com",
			FirstName: "Amara",
		},
		NotificationType: nt,
		Item: domain.ShiftItem{
			Date:          "2026-03-16",
			StartTime:     "08:00",
			EndTime:       "16:00",
			DurationHours: 8,
			ClientName:    "Oakwood Care Home",
			Role:          "Registered Nurse",
			PayRate:       15,
		},
	}
}

func TestEnqueuer_CreatesEntry(t *testing.T) {
	repo := newFakeRepo()
	e := NewEnqueuer(EnqueuerConfig{DebounceWindow: 5 * time.Minute}, repo)

	before := time.Now()
	entry, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftAssignment))
	require.NoError(t, err)

	assert.Equal(t, domain.QueueStatusPending, entry.Status)
	assert.Equal(t, 1, entry.ItemCount)
	require.Len(t, entry.PendingItems, 1)
	assert.Equal(t, "Oakwood Care Home", entry.PendingItems[0].ClientName)

	// scheduled one debounce window out
	assert.WithinDuration(t, before.Add(5*time.Minute), entry.ScheduledSendAt, 2*time.Second)
}

func TestEnqueuer_AppendsWithinWindow(t *testing.T) {
	repo := newFakeRepo()
	e := NewEnqueuer(EnqueuerConfig{DebounceWindow: 5 * time.Minute}, repo)

	first, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftAssignment))
	require.NoError(t, err)

	in := enqueueInput(domain.NotificationShiftAssignment)
	in.Item.Date = "2026-03-17"
	second, err := e.Enqueue(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.ItemCount)
	require.Len(t, second.PendingItems, 2)
	assert.Equal(t, "2026-03-16", second.PendingItems[0].Date)
	assert.Equal(t, "2026-03-17", second.PendingItems[1].Date)

	// the append does not push the send time out
	assert.Equal(t, first.ScheduledSendAt, second.ScheduledSendAt)
}

func TestEnqueuer_SeparateEntriesPerType(t *testing.T) {
	repo := newFakeRepo()
	e := NewEnqueuer(EnqueuerConfig{}, repo)

	assignment, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftAssignment))
	require.NoError(t, err)

	confirmation, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftConfirmation))
	require.NoError(t, err)

	assert.NotEqual(t, assignment.ID, confirmation.ID)
	assert.Equal(t, 1, assignment.ItemCount)
	assert.Equal(t, 1, confirmation.ItemCount)
}

func TestEnqueuer_SeparateEntriesPerRecipient(t *testing.T) {
	repo := newFakeRepo()
	e := NewEnqueuer(EnqueuerConfig{}, repo)

	first, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftAssignment))
	require.NoError(t, err)

	in := enqueueInput(domain.NotificationShiftAssignment)
	in.Recipient.ID = "staff-43"
	in.Recipient.Email = "other@example.com"
	second, err := e.Enqueue(context.Background(), in)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestEnqueuer_NewEntryAfterClaim(t *testing.T) {
	repo := newFakeRepo()
	e := NewEnqueuer(EnqueuerConfig{DebounceWindow: time.Millisecond}, repo)

	first, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftAssignment))
	require.NoError(t, err)

	// Dispatcher claims the entry; it is no longer open for appends
	time.Sleep(5 * time.Millisecond)
	claimed, err := repo.ClaimDue(context.Background(), time.Now(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	second, err := e.Enqueue(context.Background(), enqueueInput(domain.NotificationShiftAssignment))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.ItemCount)
}

func TestEnqueuer_RejectsUnknownType(t *testing.T) {
	e := NewEnqueuer(EnqueuerConfig{}, newFakeRepo())

	in := enqueueInput("shift_cancelled")
	_, err := e.Enqueue(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNotificationType)
}

func TestEnqueuer_RejectsMissingEmail(t *testing.T) {
	e := NewEnqueuer(EnqueuerConfig{}, newFakeRepo())

	in := enqueueInput(domain.NotificationShiftAssignment)
	in.Recipient.Email = ""
	_, err := e.Enqueue(context.Background(), in)
	require.ErrorIs(t, err, ErrNoRecipientEmail)
}

func TestEnqueuer_DefaultWindow(t *testing.T) {
	e := NewEnqueuer(EnqueuerConfig{}, newFakeRepo())
	assert.Equal(t, 5*time.Minute, e.config.DebounceWindow)
}
