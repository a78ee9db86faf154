package digest

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stafflink/shift-digest/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// BrandingDefaults are the generic branding strings used when the owning
// agency record is absent or partially populated.
type BrandingDefaults struct {
	AgencyName     string
	ContactEmail   string
	ContactPhone   string
	PreferencesURL string // base URL; recipient email is appended as ?email=
}

// Renderer renders queue entries into digest emails. Pure apart from the
// injected clock, which only feeds the footer year.
type Renderer struct {
	templates map[domain.NotificationType]*template.Template
	defaults  BrandingDefaults
	now       func() time.Time
}

// NewRenderer creates a renderer and parses all digest templates.
func NewRenderer(defaults BrandingDefaults) (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"formatDate": formatDate,
		"plural":     pluralSuffix,
	}

	r := &Renderer{
		templates: make(map[domain.NotificationType]*template.Template),
		defaults:  defaults,
		now:       time.Now,
	}

	for _, nt := range []domain.NotificationType{
		domain.NotificationShiftAssignment,
		domain.NotificationShiftConfirmation,
	} {
		filename := fmt.Sprintf("templates/%s.tmpl", nt)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(string(nt)).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", nt, err)
		}

		r.templates[nt] = tmpl
	}

	return r, nil
}

// Render produces the digest subject and HTML body for a queue entry.
// agency may be nil; branding falls back to the configured defaults.
// An unrecognized notification type is a hard error, never a blank email.
func (r *Renderer) Render(entry *domain.QueueEntry, agency *domain.Agency) (subject, body string, err error) {
	tmpl, ok := r.templates[entry.NotificationType]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownNotificationType, entry.NotificationType)
	}

	view := r.buildView(entry, agency)
	subject = r.renderSubject(entry, view)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", entry.NotificationType, err)
	}

	return subject, buf.String(), nil
}

func (r *Renderer) renderSubject(entry *domain.QueueEntry, view digestView) string {
	switch entry.NotificationType {
	case domain.NotificationShiftAssignment:
		return fmt.Sprintf("%d New Shift%s Assigned - %s", view.ShiftCount, pluralSuffix(view.ShiftCount), view.Branding.Name)
	case domain.NotificationShiftConfirmation:
		return fmt.Sprintf("%d Shift%s Confirmed - %s", view.ShiftCount, pluralSuffix(view.ShiftCount), view.Branding.Name)
	default:
		return fmt.Sprintf("Notification - %s", view.Branding.Name)
	}
}

// digestView is the template data model.
type digestView struct {
	Greeting       string
	ShiftCount     int
	Items          []itemView
	TotalHours     string
	TotalAmount    string
	Branding       brandingView
	PreferencesURL string
	Year           int
}

type itemView struct {
	DateLong      string
	StartTime     string
	EndTime       string
	DurationHours string
	ClientName    string
	Location      string
	Role          string
	Rate          string
	LineAmount    string
	StaffName     string
	StaffPhone    string
}

type brandingView struct {
	Name         string
	LogoURL      string
	ContactEmail string
	ContactPhone string
}

func (r *Renderer) buildView(entry *domain.QueueEntry, agency *domain.Agency) digestView {
	branding := brandingView{
		Name:         r.defaults.AgencyName,
		ContactEmail: r.defaults.ContactEmail,
		ContactPhone: r.defaults.ContactPhone,
	}
	if agency != nil {
		if agency.Name != "" {
			branding.Name = agency.Name
		}
		branding.LogoURL = agency.LogoURL
		if agency.ContactEmail != "" {
			branding.ContactEmail = agency.ContactEmail
		}
		if agency.ContactPhone != "" {
			branding.ContactPhone = agency.ContactPhone
		}
	}

	totalHours := decimal.Zero
	totalAmount := decimal.Zero
	items := make([]itemView, 0, len(entry.PendingItems))

	for _, item := range entry.PendingItems {
		hours := decimal.NewFromFloat(item.DurationHours)
		rate := entryRate(entry.NotificationType, item)
		line := rate.Mul(hours)

		totalHours = totalHours.Add(hours)
		totalAmount = totalAmount.Add(line)

		items = append(items, itemView{
			DateLong:      formatDate(item.Date),
			StartTime:     item.StartTime,
			EndTime:       item.EndTime,
			DurationHours: hours.String(),
			ClientName:    item.ClientName,
			Location:      item.Location,
			Role:          item.Role,
			Rate:          rate.StringFixed(2),
			LineAmount:    line.StringFixed(2),
			StaffName:     item.StaffName,
			StaffPhone:    item.StaffPhone,
		})
	}

	return digestView{
		Greeting:       greeting(entry),
		ShiftCount:     len(entry.PendingItems),
		Items:          items,
		TotalHours:     totalHours.String(),
		TotalAmount:    totalAmount.StringFixed(2),
		Branding:       branding,
		PreferencesURL: r.preferencesURL(entry.RecipientEmail),
		Year:           r.now().Year(),
	}
}

// entryRate picks the money column for the entry's audience: staff digests
// show pay, client digests show charge. Missing rates count as zero.
func entryRate(nt domain.NotificationType, item domain.ShiftItem) decimal.Decimal {
	if nt == domain.NotificationShiftConfirmation {
		return decimal.NewFromFloat(item.ChargeRate)
	}
	return decimal.NewFromFloat(item.PayRate)
}

func greeting(entry *domain.QueueEntry) string {
	if entry.RecipientFirstName != "" {
		return entry.RecipientFirstName
	}
	if entry.RecipientType == domain.RecipientClient {
		return "Team"
	}
	return "Team Member"
}

func (r *Renderer) preferencesURL(email string) string {
	if r.defaults.PreferencesURL == "" {
		return ""
	}
	return fmt.Sprintf("%s?email=%s", r.defaults.PreferencesURL, url.QueryEscape(email))
}

// Template functions

var titleCaser = cases.Title(language.BritishEnglish)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// formatDate renders an ISO date as "Monday, 2 January". Unparseable input
// is passed through untouched.
func formatDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Monday, 2 January")
}

func pluralSuffix(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
