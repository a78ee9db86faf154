package domain

import "time"

// Agency is a staffing agency whose branding is injected into digests.
// All branding fields are optional; the renderer falls back to generic
// defaults when the record or a field is absent.
type Agency struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LogoURL      string    `json:"logo_url,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
