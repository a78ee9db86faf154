package digest

import (
	"testing"
	"time"

	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()

	r, err := NewRenderer(BrandingDefaults{
		AgencyName:     "Your Staffing Agency",
		ContactEmail:   "support@example.com",
		PreferencesURL: "https://app.example.com/preferences",
	})
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return r
}

func assignmentEntry() *domain.QueueEntry {
	return &domain.QueueEntry{
		ID:                 "q-1",
		RecipientType:      domain.RecipientStaff,
		RecipientID:        "staff-42",
		RecipientEmail:     "nurse@example.com",
		RecipientFirstName: "Amara",
		NotificationType:   domain.NotificationShiftAssignment,
		PendingItems: []domain.ShiftItem{
			{Date: "2026-03-16", StartTime: "08:00", EndTime: "16:00", DurationHours: 8, ClientName: "Oakwood Care Home", Location: "Leeds", Role: "Registered Nurse", PayRate: 15},
			{Date: "2026-03-17", StartTime: "08:00", EndTime: "20:00", DurationHours: 12, ClientName: "Oakwood Care Home", Location: "Leeds", Role: "Registered Nurse", PayRate: 18},
			{Date: "2026-03-18", StartTime: "08:00", EndTime: "12:00", DurationHours: 4, ClientName: "Riverside Clinic", Location: "York", Role: "Healthcare Assistant", PayRate: 15},
		},
		ItemCount: 3,
	}
}

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer(BrandingDefaults{AgencyName: "Agency"})
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Len(t, r.templates, 2)
}

func TestRenderer_ShiftAssignment_Totals(t *testing.T) {
	r := newTestRenderer(t)

	subject, body, err := r.Render(assignmentEntry(), nil)
	require.NoError(t, err)

	// 8 + 12 + 4 hours, 8*15 + 12*18 + 4*15 pounds
	assert.Equal(t, "3 New Shifts Assigned - Your Staffing Agency", subject)
	assert.Contains(t, body, "Dear Amara")
	assert.Contains(t, body, "24")
	assert.Contains(t, body, "396.00")
	assert.Contains(t, body, "Oakwood Care Home")
	assert.Contains(t, body, "Monday, 16 March")
	assert.Contains(t, body, "Registered Nurse")
	assert.Contains(t, body, "2026")
}

func TestRenderer_ShiftAssignment_SingleShiftSubject(t *testing.T) {
	r := newTestRenderer(t)

	entry := assignmentEntry()
	entry.PendingItems = entry.PendingItems[:1]
	entry.ItemCount = 1

	subject, _, err := r.Render(entry, nil)
	require.NoError(t, err)

	assert.Equal(t, "1 New Shift Assigned - Your Staffing Agency", subject)
}

func TestRenderer_ShiftConfirmation_UsesChargeRate(t *testing.T) {
	r := newTestRenderer(t)

	entry := &domain.QueueEntry{
		ID:               "q-2",
		RecipientType:    domain.RecipientClient,
		RecipientID:      "client-7",
		RecipientEmail:   "manager@oakwood.example.com",
		NotificationType: domain.NotificationShiftConfirmation,
		PendingItems: []domain.ShiftItem{
			{Date: "2026-03-16", StartTime: "08:00", EndTime: "16:00", DurationHours: 8, Role: "Registered Nurse", ChargeRate: 22.5, StaffName: "Amara Osei", StaffPhone: "07700 900123"},
			{Date: "2026-03-17", StartTime: "20:00", EndTime: "08:00", DurationHours: 12, Role: "Registered Nurse", ChargeRate: 25, StaffName: "Ben Clarke"},
		},
		ItemCount: 2,
	}

	subject, body, err := r.Render(entry, nil)
	require.NoError(t, err)

	assert.Equal(t, "2 Shifts Confirmed - Your Staffing Agency", subject)
	// no first name: client fallback greeting
	assert.Contains(t, body, "Dear Team")
	assert.Contains(t, body, "Amara Osei")
	assert.Contains(t, body, "07700 900123")
	// staff without a phone falls back to the agency contact line
	assert.Contains(t, body, "Contact via agency")
	// 8*22.50 + 12*25.00
	assert.Contains(t, body, "480.00")
}

func TestRenderer_UnknownType(t *testing.T) {
	r := newTestRenderer(t)

	entry := assignmentEntry()
	entry.NotificationType = "shift_cancelled"

	_, _, err := r.Render(entry, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNotificationType)
}

func TestRenderer_AgencyBranding(t *testing.T) {
	r := newTestRenderer(t)

	agency := &domain.Agency{
		ID:           "agency-1",
		Name:         "Northern Care Staffing",
		LogoURL:      "https://cdn.example.com/logo.png",
		ContactEmail: "hello@northerncare.example.com",
	}

	subject, body, err := r.Render(assignmentEntry(), agency)
	require.NoError(t, err)

	assert.Equal(t, "3 New Shifts Assigned - Northern Care Staffing", subject)
	assert.Contains(t, body, "Northern Care Staffing")
	assert.Contains(t, body, "https://cdn.example.com/logo.png")
	assert.Contains(t, body, "hello@northerncare.example.com")
	assert.NotContains(t, body, "Your Staffing Agency")
}

func TestRenderer_PartialBrandingFallsBack(t *testing.T) {
	r := newTestRenderer(t)

	// Name present, contact fields empty: contacts fall back to defaults
	agency := &domain.Agency{ID: "agency-1", Name: "Northern Care Staffing"}

	_, body, err := r.Render(assignmentEntry(), agency)
	require.NoError(t, err)

	assert.Contains(t, body, "Northern Care Staffing")
	assert.Contains(t, body, "support@example.com")
}

func TestRenderer_PreferencesURLEscapesEmail(t *testing.T) {
	r := newTestRenderer(t)

	entry := assignmentEntry()
	entry.RecipientEmail = "nurse+shifts@example.com"

	_, body, err := r.Render(entry, nil)
	require.NoError(t, err)

	assert.Contains(t, body, "https://app.example.com/preferences?email=nurse%2Bshifts%40example.com")
}

func TestRenderer_NoPendingItems(t *testing.T) {
	r := newTestRenderer(t)

	entry := assignmentEntry()
	entry.PendingItems = nil
	entry.ItemCount = 0

	subject, body, err := r.Render(entry, nil)
	require.NoError(t, err)

	assert.Equal(t, "0 New Shifts Assigned - Your Staffing Agency", subject)
	assert.Contains(t, body, "0.00")
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Monday, 16 March", formatDate("2026-03-16"))
	assert.Equal(t, "not-a-date", formatDate("not-a-date"))
}
