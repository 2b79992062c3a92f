package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/domain/intake"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a PostgreSQL-backed queue Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const slaBreachedExpr = `(sla_deadline IS NOT NULL AND sla_deadline < NOW()
	AND status IN ('paid','in_review','pending_info'))`

const queueCols = `id, reference, patient_id, service_type, status,
	risk_tier, risk_score, is_priority, answers, info_requested,
	assigned_to, reviewed_by, reviewed_at, decline_reason,
	sla_deadline, ` + slaBreachedExpr + ` AS sla_breached,
	prescription_sent_at, prescription_sent_by, prescription_sent_channel,
	submitted_at, completed_at, created_at, updated_at`

// queueOrder is the queue invariant: breached first, then priority, then
// earliest deadline with deadline-less entries last.
const queueOrder = slaBreachedExpr + ` DESC, is_priority DESC,
	sla_deadline ASC NULLS LAST, created_at ASC`

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*intake.Intake, int, error) {
	where := "status = ANY($1)"
	args := []interface{}{statusStrings(f.EffectiveStatuses())}

	if f.ServiceType != "" {
		args = append(args, f.ServiceType)
		where += fmt.Sprintf(" AND service_type = $%d", len(args))
	}
	if f.RiskTier != "" {
		args = append(args, f.RiskTier)
		where += fmt.Sprintf(" AND risk_tier = $%d", len(args))
	}
	if f.AssignedTo != "" {
		args = append(args, f.AssignedTo)
		where += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	if f.PriorityOnly {
		where += " AND is_priority"
	}
	if f.BreachedOnly {
		where += " AND " + slaBreachedExpr
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM intake WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM intake WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		queueCols, where, queueOrder, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var items []*intake.Intake
	for rows.Next() {
		var in intake.Intake
		if err := rows.Scan(&in.ID, &in.Reference, &in.PatientID, &in.ServiceType, &in.Status,
			&in.RiskTier, &in.RiskScore, &in.IsPriority, &in.Answers, &in.InfoRequested,
			&in.AssignedTo, &in.ReviewedBy, &in.ReviewedAt, &in.DeclineReason,
			&in.SLADeadline, &in.SLABreached,
			&in.PrescriptionSentAt, &in.PrescriptionSentBy, &in.PrescriptionSentChannel,
			&in.SubmittedAt, &in.CompletedAt, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan queue row: %w", err)
		}
		items = append(items, &in)
	}
	return items, total, rows.Err()
}

func statusStrings(statuses []intake.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *repoPG) Summary(ctx context.Context) (*Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*),
			COUNT(*) FILTER (WHERE is_priority),
			COUNT(*) FILTER (WHERE `+slaBreachedExpr+`)
		FROM intake
		WHERE status = ANY($1)
		GROUP BY status`, statusStrings(ActiveStatuses))
	if err != nil {
		return nil, fmt.Errorf("queue summary: %w", err)
	}
	defer rows.Close()

	s := &Summary{ByStatus: make(map[string]int)}
	for rows.Next() {
		var status string
		var count, priority, breached int
		if err := rows.Scan(&status, &count, &priority, &breached); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		s.ByStatus[status] = count
		s.Total += count
		s.Priority += priority
		s.SLABreached += breached
	}
	return s, rows.Err()
}
