package queue

import (
	"context"

	"github.com/telecare/telecare/internal/domain/intake"
)

// Repository is the read-only projection over the intake table that backs
// the review queue.
type Repository interface {
	List(ctx context.Context, f Filter, limit, offset int) ([]*intake.Intake, int, error)
	Summary(ctx context.Context) (*Summary, error)
}
