package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/intake"
	"github.com/telecare/telecare/internal/platform/auth"
)

// Service serves the review queue. It fails closed: a store error returns an
// error, never a partial queue that could hide breached work.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns one page of the queue. Ordering is applied by the store and
// re-asserted here so a projection bug cannot silently reorder the queue.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter, limit, offset int) ([]*intake.Intake, int, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, 0, intake.ErrForbidden
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("queue list failed")
		return nil, 0, fmt.Errorf("queue unavailable")
	}
	Sort(items)
	return items, total, nil
}

func (s *Service) Summary(ctx context.Context, actor auth.Actor) (*Summary, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, intake.ErrForbidden
	}
	sum, err := s.repo.Summary(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("queue summary failed")
		return nil, fmt.Errorf("queue unavailable")
	}
	return sum, nil
}
