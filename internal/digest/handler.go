package digest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stafflink/shift-digest/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrEntryNotFound, Status: http.StatusNotFound, Message: "queue entry not found"},
	{Error: ErrEntryNotFailed, Status: http.StatusConflict, Message: "only failed entries can be retried"},
	{Error: ErrUnknownNotificationType, Status: http.StatusBadRequest},
	{Error: ErrNoRecipientEmail, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the digest module.
type Handler struct {
	enqueuer   *Enqueuer
	dispatcher *Dispatcher
	service    *Service
	validator  *validator.Validate
}

// NewHandler creates a digest handler.
func NewHandler(enqueuer *Enqueuer, dispatcher *Dispatcher, service *Service) *Handler {
	return &Handler{
		enqueuer:   enqueuer,
		dispatcher: dispatcher,
		service:    service,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers digest routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Post("/shift-assignments", h.EnqueueShiftAssignment)
		r.Post("/shift-confirmations", h.EnqueueShiftConfirmation)
		r.Get("/entries", h.ListEntries)
		r.Get("/entries/{id}", h.GetEntry)
		r.Post("/entries/{id}/retry", h.RetryEntry)
		r.Get("/stats", h.QueueStats)
	})

	r.Post("/digest/run", h.RunDigest)
}

// RecipientRequest identifies the digest recipient in enqueue requests.
type RecipientRequest struct {
	Type      string `json:"type" validate:"required,oneof=staff client"`
	ID        string `json:"id" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
}

// ShiftAssignmentItemRequest is the payload of one assignment event.
type ShiftAssignmentItemRequest struct {
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string  `json:"start_time" validate:"required"`
	EndTime       string  `json:"end_time" validate:"required"`
	DurationHours float64 `json:"duration_hours" validate:"gte=0"`
	ClientName    string  `json:"client_name" validate:"required"`
	Location      string  `json:"location"`
	Role          string  `json:"role" validate:"required"`
	PayRate       float64 `json:"pay_rate" validate:"gte=0"`
}

// ShiftConfirmationItemRequest is the payload of one confirmation event.
type ShiftConfirmationItemRequest struct {
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string  `json:"start_time" validate:"required"`
	EndTime       string  `json:"end_time" validate:"required"`
	DurationHours float64 `json:"duration_hours" validate:"gte=0"`
	StaffName     string  `json:"staff_name" validate:"required"`
	StaffPhone    string  `json:"staff_phone"`
	Role          string  `json:"role" validate:"required"`
	Location      string  `json:"location"`
	ChargeRate    float64 `json:"charge_rate" validate:"gte=0"`
}

// EnqueueShiftAssignmentRequest represents the request body for
// POST /queue/shift-assignments.
type EnqueueShiftAssignmentRequest struct {
	AgencyID  string                     `json:"agency_id"`
	Recipient RecipientRequest           `json:"recipient" validate:"required"`
	Item      ShiftAssignmentItemRequest `json:"item" validate:"required"`
}

// EnqueueShiftConfirmationRequest represents the request body for
// POST /queue/shift-confirmations.
type EnqueueShiftConfirmationRequest struct {
	AgencyID  string                       `json:"agency_id"`
	Recipient RecipientRequest             `json:"recipient" validate:"required"`
	Item      ShiftConfirmationItemRequest `json:"item" validate:"required"`
}

// EnqueueShiftAssignment handles POST /queue/shift-assignments.
func (h *Handler) EnqueueShiftAssignment(w http.ResponseWriter, r *http.Request) {
	var req EnqueueShiftAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	entry, err := h.enqueuer.Enqueue(r.Context(), EnqueueInput{
		AgencyID:         req.AgencyID,
		Recipient:        toRecipient(req.Recipient),
		NotificationType: domain.NotificationShiftAssignment,
		Item: domain.ShiftItem{
			Date:          req.Item.Date,
			StartTime:     req.Item.StartTime,
			EndTime:       req.Item.EndTime,
			DurationHours: req.Item.DurationHours,
			ClientName:    req.Item.ClientName,
			Location:      req.Item.Location,
			Role:          req.Item.Role,
			PayRate:       req.Item.PayRate,
		},
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, toEntryResponse(entry))
}

// EnqueueShiftConfirmation handles POST /queue/shift-confirmations.
func (h *Handler) EnqueueShiftConfirmation(w http.ResponseWriter, r *http.Request) {
	var req EnqueueShiftConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	entry, err := h.enqueuer.Enqueue(r.Context(), EnqueueInput{
		AgencyID:         req.AgencyID,
		Recipient:        toRecipient(req.Recipient),
		NotificationType: domain.NotificationShiftConfirmation,
		Item: domain.ShiftItem{
			Date:          req.Item.Date,
			StartTime:     req.Item.StartTime,
			EndTime:       req.Item.EndTime,
			DurationHours: req.Item.DurationHours,
			StaffName:     req.Item.StaffName,
			StaffPhone:    req.Item.StaffPhone,
			Role:          req.Item.Role,
			Location:      req.Item.Location,
			ChargeRate:    req.Item.ChargeRate,
		},
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, toEntryResponse(entry))
}

// RunDigestResponse is the trigger endpoint's response envelope. Individual
// entry failures still return HTTP 200; only a whole-invocation failure is
// a 500.
type RunDigestResponse struct {
	Success   bool       `json:"success"`
	Timestamp time.Time  `json:"timestamp"`
	Results   *RunResult `json:"results,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// RunDigest handles POST /digest/run.
func (h *Handler) RunDigest(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.Run(r.Context())
	if err != nil {
		httputil.JSON(w, http.StatusInternalServerError, RunDigestResponse{
			Success:   false,
			Timestamp: time.Now().UTC(),
			Error:     err.Error(),
		})
		return
	}

	httputil.JSON(w, http.StatusOK, RunDigestResponse{
		Success:   true,
		Timestamp: time.Now().UTC(),
		Results:   result,
	})
}

// ListEntries handles GET /queue/entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := EntryFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		switch domain.QueueStatus(status) {
		case domain.QueueStatusPending, domain.QueueStatusProcessing, domain.QueueStatusSent, domain.QueueStatusFailed:
			filter.Status = domain.QueueStatus(status)
		default:
			httputil.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}

	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	responses := make([]QueueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toEntryResponse(entry))
	}

	httputil.Success(w, http.StatusOK, responses)
}

// GetEntry handles GET /queue/entries/{id}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, toEntryResponse(entry))
}

// RetryEntry handles POST /queue/entries/{id}/retry.
func (h *Handler) RetryEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.RetryEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, toEntryResponse(entry))
}

// QueueStatsResponse represents queue size by status.
type QueueStatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// QueueStats handles GET /queue/stats.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetQueueStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, QueueStatsResponse{
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Sent:       stats.Sent,
		Failed:     stats.Failed,
	})
}

// QueueEntryResponse is the API shape of a queue entry.
type QueueEntryResponse struct {
	ID                 string             `json:"id"`
	AgencyID           string             `json:"agency_id,omitempty"`
	RecipientType      string             `json:"recipient_type"`
	RecipientID        string             `json:"recipient_id"`
	RecipientEmail     string             `json:"recipient_email"`
	RecipientFirstName string             `json:"recipient_first_name,omitempty"`
	RecipientPhone     string             `json:"recipient_phone,omitempty"`
	NotificationType   string             `json:"notification_type"`
	PendingItems       []domain.ShiftItem `json:"pending_items"`
	ItemCount          int                `json:"item_count"`
	ScheduledSendAt    time.Time          `json:"scheduled_send_at"`
	Status             string             `json:"status"`
	SentAt             *time.Time         `json:"sent_at,omitempty"`
	EmailMessageID     string             `json:"email_message_id,omitempty"`
	ErrorMessage       string             `json:"error_message,omitempty"`
	RetryCount         int                `json:"retry_count"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toEntryResponse(entry *domain.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:                 entry.ID,
		AgencyID:           entry.AgencyID,
		RecipientType:      string(entry.RecipientType),
		RecipientID:        entry.RecipientID,
		RecipientEmail:     entry.RecipientEmail,
		RecipientFirstName: entry.RecipientFirstName,
		RecipientPhone:     entry.RecipientPhone,
		NotificationType:   string(entry.NotificationType),
		PendingItems:       entry.PendingItems,
		ItemCount:          entry.ItemCount,
		ScheduledSendAt:    entry.ScheduledSendAt,
		Status:             string(entry.Status),
		SentAt:             entry.SentAt,
		EmailMessageID:     entry.EmailMessageID,
		ErrorMessage:       entry.ErrorMessage,
		RetryCount:         entry.RetryCount,
		CreatedAt:          entry.CreatedAt,
		UpdatedAt:          entry.UpdatedAt,
	}
}

func toRecipient(req RecipientRequest) Recipient {
	return Recipient{
		Type:      domain.RecipientType(req.Type),
		ID:        req.ID,
		Email:     req.Email,
		FirstName: req.FirstName,
		Phone:     req.Phone,
	}
}
