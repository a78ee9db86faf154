package agency

import (
	"context"
	"fmt"

	"github.com/stafflink/shift-digest/internal/domain"
)

// Service provides business logic for agency management. It also backs the
// dispatcher's branding lookup during digest rendering.
type Service struct {
	repo Repository
}

// NewService creates a new agency service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateAgency creates a new agency.
func (s *Service) CreateAgency(ctx context.Context, agency *domain.Agency) error {
	if err := s.repo.CreateAgency(ctx, agency); err != nil {
		return fmt.Errorf("create agency: %w", err)
	}
	return nil
}

// GetAgency retrieves an agency by id.
func (s *Service) GetAgency(ctx context.Context, id string) (*domain.Agency, error) {
	return s.repo.GetAgency(ctx, id)
}

// ListAgencies retrieves all agencies.
func (s *Service) ListAgencies(ctx context.Context) ([]domain.Agency, error) {
	return s.repo.ListAgencies(ctx)
}

// UpdateAgency applies partial updates to an agency's branding fields.
func (s *Service) UpdateAgency(ctx context.Context, id string, update AgencyUpdate) (*domain.Agency, error) {
	agency, err := s.repo.GetAgency(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		agency.Name = *update.Name
	}
	if update.LogoURL != nil {
		agency.LogoURL = *update.LogoURL
	}
	if update.ContactEmail != nil {
		agency.ContactEmail = *update.ContactEmail
	}
	if update.ContactPhone != nil {
		agency.ContactPhone = *update.ContactPhone
	}

	if err := s.repo.UpdateAgency(ctx, agency); err != nil {
		return nil, fmt.Errorf("update agency: %w", err)
	}
	return agency, nil
}

// AgencyUpdate holds optional branding field updates. Nil fields are left
// unchanged.
type AgencyUpdate struct {
	Name         *string
	LogoURL      *string
	ContactEmail *string
	ContactPhone *string
}
