package queue

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/intake"
	"github.com/telecare/telecare/internal/platform/auth"
)

// bulkWorkers bounds the concurrency of a bulk action so a large selection
// cannot saturate the connection pool.
const bulkWorkers = 4

// Reviewer is the subset of intake transitions a bulk action drives.
// *intake.Service satisfies it.
type Reviewer interface {
	Approve(ctx context.Context, actor auth.Actor, id uuid.UUID) (*intake.Intake, error)
	Decline(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*intake.Intake, error)
}

// BulkResult aggregates a bulk action. Each intake succeeds or fails on its
// own; one failure never aborts the rest. Callers get counts only; per-item
// failures go to the log.
type BulkResult struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
}

// Coordinator fans a bulk action out over individual intake transitions.
type Coordinator struct {
	reviewer Reviewer
	logger   zerolog.Logger
}

func NewCoordinator(reviewer Reviewer, logger zerolog.Logger) *Coordinator {
	return &Coordinator{reviewer: reviewer, logger: logger}
}

// BulkApprove approves each id independently and reports the aggregate.
func (b *Coordinator) BulkApprove(ctx context.Context, actor auth.Actor, ids []uuid.UUID) (*BulkResult, error) {
	if !auth.Can(actor.Role, auth.CapBulkReview) {
		return nil, intake.ErrForbidden
	}
	return b.run(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := b.reviewer.Approve(ctx, actor, id)
		return err
	})
}

// BulkDecline declines each id independently with the shared reason.
func (b *Coordinator) BulkDecline(ctx context.Context, actor auth.Actor, ids []uuid.UUID, reason string) (*BulkResult, error) {
	if !auth.Can(actor.Role, auth.CapBulkReview) {
		return nil, intake.ErrForbidden
	}
	if strings.TrimSpace(reason) == "" {
		return nil, intake.Preconditionf("a reason is required to decline intakes")
	}
	return b.run(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := b.reviewer.Decline(ctx, actor, id, reason)
		return err
	})
}

func (b *Coordinator) run(ctx context.Context, ids []uuid.UUID, op func(context.Context, uuid.UUID) error) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, intake.Preconditionf("no intake ids given")
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result BulkResult
	)
	sem := make(chan struct{}, bulkWorkers)

	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := op(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedCount++
				b.logger.Warn().Err(err).
					Str("intake_id", id.String()).
					Msg("bulk item failed")
				return
			}
			result.SuccessCount++
		}(id)
	}
	wg.Wait()
	return &result, nil
}
