// Package agency provides HTTP handlers and business logic for managing
// staffing agencies and their digest branding.
package agency

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stafflink/shift-digest/internal/pkg/httputil"
)

// Handler handles HTTP requests for the agency module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new agency handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the agency module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/agencies", func(r chi.Router) {
		r.Get("/", h.ListAgencies)
		r.Post("/", h.CreateAgency)
		r.Get("/{id}", h.GetAgency)
		r.Patch("/{id}", h.UpdateAgency)
	})
}

// CreateAgencyRequest represents the request body for creating an agency.
type CreateAgencyRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=255"`
	LogoURL      string `json:"logo_url" validate:"omitempty,url"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string `json:"contact_phone" validate:"omitempty,max=32"`
}

// ToDomain converts the request to a domain model.
func (r *CreateAgencyRequest) ToDomain() *domain.Agency {
	return &domain.Agency{
		Name:         r.Name,
		LogoURL:      r.LogoURL,
		ContactEmail: r.ContactEmail,
		ContactPhone: r.ContactPhone,
	}
}

// UpdateAgencyRequest represents the request body for updating an agency.
// Absent fields are left unchanged.
type UpdateAgencyRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=255"`
	LogoURL      *string `json:"logo_url" validate:"omitempty,url"`
	ContactEmail *string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone *string `json:"contact_phone" validate:"omitempty,max=32"`
}

// CreateAgency handles POST /agencies request.
func (h *Handler) CreateAgency(w http.ResponseWriter, r *http.Request) {
	var req CreateAgencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	a := req.ToDomain()
	if err := h.service.CreateAgency(r.Context(), a); err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, a)
}

// GetAgency handles GET /agencies/{id} request.
func (h *Handler) GetAgency(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := h.service.GetAgency(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, a)
}

// ListAgencies handles GET /agencies request.
func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	agencies, err := h.service.ListAgencies(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, agencies)
}

// UpdateAgency handles PATCH /agencies/{id} request.
func (h *Handler) UpdateAgency(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateAgencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	a, err := h.service.UpdateAgency(r.Context(), id, AgencyUpdate{
		Name:         req.Name,
		LogoURL:      req.LogoURL,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	httputil.Success(w, http.StatusOK, a)
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrAgencyNotFound) {
		httputil.Error(w, http.StatusNotFound, "agency not found")
		return
	}

	slog.Error("agency service error", "error", err)
	httputil.Error(w, http.StatusInternalServerError, "internal server error")
}
