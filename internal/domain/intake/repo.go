package intake

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Update is the set of fields a transition may change. Nil pointers leave the
// column untouched. The repository applies an Update atomically, conditioned
// on the row's current status (and, for mark-sent, on the sent marker being
// unset) so that concurrent transitions cannot interleave.
type Update struct {
	Status *Status

	AssignedTo    *string
	ReviewedBy    *string
	ReviewedAt    *time.Time
	DeclineReason *string

	Answers       json.RawMessage
	InfoRequested json.RawMessage

	RiskTier    *RiskTier
	RiskScore   *int
	IsPriority  *bool
	SLADeadline *time.Time
	SubmittedAt *time.Time
	CompletedAt *time.Time

	PrescriptionSentAt      *time.Time
	PrescriptionSentBy      *string
	PrescriptionSentChannel *string
	// ClearPrescriptionSent nulls the prescription marker columns and
	// completed_at.
	ClearPrescriptionSent bool
	// ExpectScriptUnsent adds "prescription_sent_at IS NULL" to the update
	// guard, rejecting a concurrent double-send at the store.
	ExpectScriptUnsent bool
}

// Repository is the durable store boundary for intakes.
type Repository interface {
	Create(ctx context.Context, in *Intake) error
	GetByID(ctx context.Context, id uuid.UUID) (*Intake, error)
	GetByReference(ctx context.Context, reference string) (*Intake, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Intake, int, error)

	// Update applies u conditioned on the intake currently holding one of the
	// expected statuses. It returns the updated row, ErrNotFound when the id
	// does not resolve, or ErrConflict when the row exists but its status (or
	// sent marker, with ExpectScriptUnsent) no longer matches.
	Update(ctx context.Context, id uuid.UUID, expected []Status, u Update) (*Intake, error)
}
