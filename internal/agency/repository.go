package agency

import (
	"context"
	"errors"

	"github.com/stafflink/shift-digest/internal/domain"
)

// ErrAgencyNotFound is returned when an agency does not exist.
var ErrAgencyNotFound = errors.New("agency not found")

// Repository defines the interface for agency data operations.
type Repository interface {
	CreateAgency(ctx context.Context, agency *domain.Agency) error
	GetAgency(ctx context.Context, id string) (*domain.Agency, error)
	ListAgencies(ctx context.Context) ([]domain.Agency, error)
	UpdateAgency(ctx context.Context, agency *domain.Agency) error
}
