package digest

import (
	"context"
	"fmt"

	"github.com/stafflink/shift-digest/internal/domain"
)

// Service exposes operator-facing queue queries and interventions.
type Service struct {
	repo Repository
}

// NewService creates a digest service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetEntry returns a single queue entry.
func (s *Service) GetEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries returns queue entries, optionally filtered by status.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]*domain.QueueEntry, error) {
	return s.repo.ListEntries(ctx, filter)
}

// GetQueueStats returns queue size by status.
func (s *Service) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	return s.repo.GetQueueStats(ctx)
}

// RetryEntry re-queues a terminally failed entry for the next dispatch run.
// This is the operator path for rows the automatic retry policy gave up on.
func (s *Service) RetryEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	if err := s.repo.ResetFailed(ctx, id); err != nil {
		return nil, err
	}

	entry, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload entry: %w", err)
	}
	return entry, nil
}
