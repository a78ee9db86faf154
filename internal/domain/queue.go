// Package domain contains the core entities shared between modules.
package domain

import "time"

// QueueStatus represents the lifecycle state of a digest queue entry.
type QueueStatus string

// Queue statuses. Processing is the claim state: an entry is moved to it
// atomically before any send attempt so concurrent dispatch runs can never
// pick up the same entry.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusFailed     QueueStatus = "failed"
)

// NotificationType selects the digest template for a queue entry.
type NotificationType string

// Notification types.
const (
	NotificationShiftAssignment   NotificationType = "shift_assignment"
	NotificationShiftConfirmation NotificationType = "shift_confirmation"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationShiftAssignment, NotificationShiftConfirmation:
		return true
	}
	return false
}

// RecipientType describes who a digest is addressed to.
type RecipientType string

// Recipient types.
const (
	RecipientStaff  RecipientType = "staff"
	RecipientClient RecipientType = "client"
)

// ShiftItem is one batched event payload inside a queue entry.
// Assignment digests use ClientName/Role/PayRate; confirmation digests use
// StaffName/StaffPhone/ChargeRate. Date is an ISO date (2006-01-02), times
// are HH:MM strings as entered by schedulers.
type ShiftItem struct {
	Date          string  `json:"date"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	DurationHours float64 `json:"duration_hours"`
	ClientName    string  `json:"client_name,omitempty"`
	Location      string  `json:"location,omitempty"`
	Role          string  `json:"role,omitempty"`
	PayRate       float64 `json:"pay_rate,omitempty"`
	ChargeRate    float64 `json:"charge_rate,omitempty"`
	StaffName     string  `json:"staff_name,omitempty"`
	StaffPhone    string  `json:"staff_phone,omitempty"`
}

// QueueEntry is one accumulation window for a (recipient, notification type)
// pair. Items are appended in arrival order while the entry is pending;
// exactly one outbound email corresponds to the pending->sent transition.
type QueueEntry struct {
	ID                 string
	AgencyID           string
	RecipientType      RecipientType
	RecipientID        string
	RecipientEmail     string
	RecipientFirstName string
	RecipientPhone     string
	NotificationType   NotificationType
	PendingItems       []ShiftItem
	ItemCount          int
	ScheduledSendAt    time.Time
	Status             QueueStatus
	SentAt             *time.Time
	EmailMessageID     string
	ErrorMessage       string
	RetryCount         int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
