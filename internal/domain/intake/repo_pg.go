package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a PostgreSQL-backed Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// slaBreachedExpr derives the breach flag at read time: deadline passed while
// the intake is still active.
const slaBreachedExpr = `(sla_deadline IS NOT NULL AND sla_deadline < NOW()
	AND status IN ('paid','in_review','pending_info'))`

const intakeCols = `id, reference, patient_id, service_type, status,
	risk_tier, risk_score, is_priority, answers, info_requested,
	assigned_to, reviewed_by, reviewed_at, decline_reason,
	sla_deadline, ` + slaBreachedExpr + ` AS sla_breached,
	prescription_sent_at, prescription_sent_by, prescription_sent_channel,
	submitted_at, completed_at, created_at, updated_at`

func scanIntake(row pgx.Row) (*Intake, error) {
	var in Intake
	err := row.Scan(&in.ID, &in.Reference, &in.PatientID, &in.ServiceType, &in.Status,
		&in.RiskTier, &in.RiskScore, &in.IsPriority, &in.Answers, &in.InfoRequested,
		&in.AssignedTo, &in.ReviewedBy, &in.ReviewedAt, &in.DeclineReason,
		&in.SLADeadline, &in.SLABreached,
		&in.PrescriptionSentAt, &in.PrescriptionSentBy, &in.PrescriptionSentChannel,
		&in.SubmittedAt, &in.CompletedAt, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &in, err
}

func (r *repoPG) Create(ctx context.Context, in *Intake) error {
	in.ID = uuid.New()
	if in.Reference == "" {
		in.Reference = NewReference()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO intake (id, reference, patient_id, service_type, status,
			risk_tier, risk_score, is_priority, answers)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		in.ID, in.Reference, in.PatientID, in.ServiceType, in.Status,
		in.RiskTier, in.RiskScore, in.IsPriority, in.Answers)
	return row.Scan(&in.CreatedAt, &in.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Intake, error) {
	return scanIntake(r.conn(ctx).QueryRow(ctx,
		`SELECT `+intakeCols+` FROM intake WHERE id = $1`, id))
}

func (r *repoPG) GetByReference(ctx context.Context, reference string) (*Intake, error) {
	return scanIntake(r.conn(ctx).QueryRow(ctx,
		`SELECT `+intakeCols+` FROM intake WHERE reference = $1`, reference))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Intake, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM intake WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+intakeCols+` FROM intake WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Intake
	for rows.Next() {
		in, err := scanIntake(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, in)
	}
	return items, total, rows.Err()
}

// Update builds a conditional UPDATE: the SET list from the non-nil fields of
// u, the WHERE from the expected statuses. The status guard is enforced by the
// store itself, not re-checked in application code after a read.
func (r *repoPG) Update(ctx context.Context, id uuid.UUID, expected []Status, u Update) (*Intake, error) {
	var (
		sets []string
		args []interface{}
	)
	args = append(args, id)

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.AssignedTo != nil {
		add("assigned_to", *u.AssignedTo)
	}
	if u.ReviewedBy != nil {
		add("reviewed_by", *u.ReviewedBy)
	}
	if u.ReviewedAt != nil {
		add("reviewed_at", *u.ReviewedAt)
	}
	if u.DeclineReason != nil {
		add("decline_reason", *u.DeclineReason)
	}
	if u.Answers != nil {
		add("answers", u.Answers)
	}
	if u.InfoRequested != nil {
		add("info_requested", u.InfoRequested)
	}
	if u.RiskTier != nil {
		add("risk_tier", *u.RiskTier)
	}
	if u.RiskScore != nil {
		add("risk_score", *u.RiskScore)
	}
	if u.IsPriority != nil {
		add("is_priority", *u.IsPriority)
	}
	if u.SLADeadline != nil {
		add("sla_deadline", *u.SLADeadline)
	}
	if u.SubmittedAt != nil {
		add("submitted_at", *u.SubmittedAt)
	}
	if u.CompletedAt != nil {
		add("completed_at", *u.CompletedAt)
	}
	if u.ClearPrescriptionSent {
		sets = append(sets,
			"prescription_sent_at = NULL",
			"prescription_sent_by = NULL",
			"prescription_sent_channel = NULL",
			"completed_at = NULL")
	} else {
		if u.PrescriptionSentAt != nil {
			add("prescription_sent_at", *u.PrescriptionSentAt)
		}
		if u.PrescriptionSentBy != nil {
			add("prescription_sent_by", *u.PrescriptionSentBy)
		}
		if u.PrescriptionSentChannel != nil {
			add("prescription_sent_channel", *u.PrescriptionSentChannel)
		}
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("update intake %s: no fields to set", id)
	}
	sets = append(sets, "updated_at = NOW()")

	where := "id = $1"
	if len(expected) > 0 {
		statuses := make([]string, len(expected))
		for i, s := range expected {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if u.ExpectScriptUnsent {
		where += " AND prescription_sent_at IS NULL"
	}

	query := fmt.Sprintf(`UPDATE intake SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), where, intakeCols)

	in, err := scanIntake(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, ErrNotFound) {
		// No row matched: distinguish a missing intake from a guard miss.
		var exists bool
		if checkErr := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM intake WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return nil, checkErr
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return in, err
}
