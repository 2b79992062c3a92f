package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/audit"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/notify"
)

// Notifier is the best-effort notification boundary. Dispatch must never
// block or fail into the caller.
type Notifier interface {
	Dispatch(n *notify.Notification)
}

// Config carries the transition engine's tunable windows.
type Config struct {
	// UndoWindow is how long the original sender may undo a mark-sent action.
	UndoWindow time.Duration
	// StandardWindow and PriorityWindow are the SLA review windows passed to
	// the classifier.
	StandardWindow time.Duration
	PriorityWindow time.Duration
}

// Service is the sole authority for mutating intake lifecycle state. Every
// transition validates the actor and preconditions before touching the store,
// writes through a status-guarded conditional update, and emits exactly one
// audit event after the write is confirmed.
type Service struct {
	repo     Repository
	audit    audit.Recorder
	notifier Notifier
	logger   zerolog.Logger
	cfg      Config

	now func() time.Time
}

// NewService constructs the transition engine.
func NewService(repo Repository, rec audit.Recorder, notifier Notifier, logger zerolog.Logger, cfg Config) *Service {
	return &Service{
		repo:     repo,
		audit:    rec,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateInput is the payload for creating a draft intake.
type CreateInput struct {
	ServiceType ServiceType     `json:"service_type"`
	Answers     json.RawMessage `json:"answers"`
}

// Create opens a new draft intake owned by the acting patient.
func (s *Service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapSubmitIntake) {
		return nil, ErrForbidden
	}
	if !input.ServiceType.Valid() {
		return nil, Preconditionf("invalid service type: %s", input.ServiceType)
	}

	in := &Intake{
		Reference:   NewReference(),
		PatientID:   actor.ID,
		ServiceType: input.ServiceType,
		Status:      StatusDraft,
		RiskTier:    RiskLow,
		Answers:     input.Answers,
	}
	if err := s.repo.Create(ctx, in); err != nil {
		return nil, s.storeFailure("create", in.ID, err)
	}

	s.recordAudit(ctx, "intake.create", in, actor, "", StatusDraft, nil)
	return in, nil
}

// Submit moves a draft to pending_payment. Only the owning patient (or an
// admin) may submit.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	in, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Status != StatusDraft {
		return nil, Preconditionf("intake %s cannot be submitted from status %s", in.Reference, in.Status)
	}

	to := StatusPendingPayment
	updated, err := s.repo.Update(ctx, id, []Status{StatusDraft}, Update{Status: &to})
	if err != nil {
		return nil, s.updateFailure("submit", id, err)
	}

	s.recordAudit(ctx, "intake.submit", updated, actor, StatusDraft, to, nil)
	return updated, nil
}

// ConfirmPayment records an external payment confirmation, runs the risk/SLA
// classifier, and opens the review clock. This is the "submission time" of
// the SLA contract: the deadline is set here, once.
func (s *Service) ConfirmPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, history PatientHistory) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapConfirmPayment) {
		return nil, ErrForbidden
	}
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != StatusPendingPayment {
		return nil, Preconditionf("intake %s is not awaiting payment (status %s)", in.Reference, in.Status)
	}

	submittedAt := s.now().UTC()
	cls := Classify(ClassifyInput{
		Service:         in.ServiceType,
		Answers:         decodeAnswers(in.Answers),
		History:         history,
		AlreadyPriority: in.IsPriority,
		SubmittedAt:     submittedAt,
		Windows: ClassifierConfig{
			StandardWindow: s.cfg.StandardWindow,
			PriorityWindow: s.cfg.PriorityWindow,
		},
	})

	to := StatusPaid
	updated, err := s.repo.Update(ctx, id, []Status{StatusPendingPayment}, Update{
		Status:      &to,
		RiskTier:    &cls.RiskTier,
		RiskScore:   &cls.RiskScore,
		IsPriority:  &cls.IsPriority,
		SLADeadline: &cls.SLADeadline,
		SubmittedAt: &submittedAt,
	})
	if err != nil {
		return nil, s.updateFailure("confirm payment", id, err)
	}

	s.recordAudit(ctx, "intake.payment_confirmed", updated, actor, StatusPendingPayment, to, map[string]string{
		"risk_tier":   string(cls.RiskTier),
		"is_priority": fmt.Sprintf("%t", cls.IsPriority),
	})
	return updated, nil
}

// StartReview claims a paid intake for the acting clinician.
func (s *Service) StartReview(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, ErrForbidden
	}

	to := StatusInReview
	updated, err := s.repo.Update(ctx, id, []Status{StatusPaid}, Update{
		Status:     &to,
		AssignedTo: &actor.ID,
	})
	if err != nil {
		return nil, s.updateFailure("start review", id, err)
	}

	s.recordAudit(ctx, "intake.start_review", updated, actor, StatusPaid, to, nil)
	return updated, nil
}

// RequestInfo attaches clarification questions and parks the intake in
// pending_info. The SLA deadline value itself is not reset.
func (s *Service) RequestInfo(ctx context.Context, actor auth.Actor, id uuid.UUID, questions []string) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, ErrForbidden
	}
	var cleaned []string
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		return nil, Preconditionf("at least one non-empty question is required")
	}

	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != StatusPaid && in.Status != StatusInReview {
		return nil, Preconditionf("cannot request information for intake %s in status %s", in.Reference, in.Status)
	}

	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}

	to := StatusPendingInfo
	updated, err := s.repo.Update(ctx, id, []Status{StatusPaid, StatusInReview}, Update{
		Status:        &to,
		InfoRequested: encoded,
	})
	if err != nil {
		return nil, s.updateFailure("request info", id, err)
	}

	s.recordAudit(ctx, "intake.request_info", updated, actor, in.Status, to, map[string]string{
		"question_count": fmt.Sprintf("%d", len(cleaned)),
	})
	s.notifyPatient(updated, "intake-info-requested", nil)
	return updated, nil
}

// ProvideInfo records the patient's response to an information request and
// returns the intake to the review queue.
func (s *Service) ProvideInfo(ctx context.Context, actor auth.Actor, id uuid.UUID, answers map[string]any) (*Intake, error) {
	in, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Status != StatusPendingInfo {
		return nil, Preconditionf("intake %s has no open information request", in.Reference)
	}

	merged := decodeAnswers(in.Answers)
	for k, v := range answers {
		merged[k] = v
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	to := StatusInReview
	updated, err := s.repo.Update(ctx, id, []Status{StatusPendingInfo}, Update{
		Status:  &to,
		Answers: encoded,
	})
	if err != nil {
		return nil, s.updateFailure("provide info", id, err)
	}

	s.recordAudit(ctx, "intake.provide_info", updated, actor, StatusPendingInfo, to, nil)
	return updated, nil
}

// Approve marks the intake approved. Approving an already-approved intake is
// an idempotent success: reviewed_by/reviewed_at keep the values set by the
// first approval and no second audit event is emitted.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, ErrForbidden
	}
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status == StatusApproved {
		return in, nil
	}
	if in.Status != StatusPaid && in.Status != StatusInReview {
		return nil, Preconditionf("cannot approve intake %s in status %s", in.Reference, in.Status)
	}

	to := StatusApproved
	reviewedAt := s.now().UTC()
	updated, err := s.repo.Update(ctx, id, []Status{in.Status}, Update{
		Status:     &to,
		ReviewedBy: &actor.ID,
		ReviewedAt: &reviewedAt,
	})
	if errors.Is(err, ErrConflict) {
		// A concurrent transition won. If it was another approval the
		// operation is still an idempotent success.
		if current, getErr := s.get(ctx, id); getErr == nil && current.Status == StatusApproved {
			return current, nil
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, s.updateFailure("approve", id, err)
	}

	s.recordAudit(ctx, "intake.approve", updated, actor, in.Status, to, nil)
	s.notifyPatient(updated, "intake-approved", nil)
	return updated, nil
}

// Decline rejects the intake. A non-empty reason is mandatory and is stored
// on the intake, not in the audit metadata.
func (s *Service) Decline(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, Preconditionf("a reason is required to decline an intake")
	}

	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != StatusPaid && in.Status != StatusInReview {
		return nil, Preconditionf("cannot decline intake %s in status %s", in.Reference, in.Status)
	}

	to := StatusDeclined
	reviewedAt := s.now().UTC()
	updated, err := s.repo.Update(ctx, id, []Status{StatusPaid, StatusInReview}, Update{
		Status:        &to,
		ReviewedBy:    &actor.ID,
		ReviewedAt:    &reviewedAt,
		DeclineReason: &reason,
	})
	if err != nil {
		return nil, s.updateFailure("decline", id, err)
	}

	s.recordAudit(ctx, "intake.decline", updated, actor, in.Status, to, map[string]string{
		"reason_provided": "true",
	})
	s.notifyPatient(updated, "intake-declined", nil)
	return updated, nil
}

// Cancel withdraws an intake. Patients may cancel their own intake before
// review starts; admins may cancel any non-terminal intake.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	var allowed []Status
	switch {
	case actor.Role == auth.RoleAdmin:
		allowed = []Status{StatusDraft, StatusPendingPayment, StatusPaid, StatusInReview, StatusPendingInfo, StatusApproved}
	case in.PatientID == actor.ID:
		allowed = []Status{StatusDraft, StatusPendingPayment, StatusPaid}
	default:
		return nil, ErrForbidden
	}

	permitted := false
	for _, st := range allowed {
		if in.Status == st {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, Preconditionf("intake %s cannot be cancelled from status %s", in.Reference, in.Status)
	}

	to := StatusCancelled
	updated, err := s.repo.Update(ctx, id, allowed, Update{Status: &to})
	if err != nil {
		return nil, s.updateFailure("cancel", id, err)
	}

	s.recordAudit(ctx, "intake.cancel", updated, actor, in.Status, to, nil)
	return updated, nil
}

// MarkScriptSent records that a prescription was dispatched through an
// external channel and completes the intake. The operation is durable the
// moment the store write succeeds; the patient notification afterwards is
// best-effort and never reverts the transition.
func (s *Service) MarkScriptSent(ctx context.Context, actor auth.Actor, id uuid.UUID, channel string) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapReviewIntake) {
		return nil, ErrForbidden
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "email"
	}

	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ServiceType != ServiceRepeatPrescription {
		return nil, Preconditionf("intake %s is not a repeat prescription", in.Reference)
	}
	if in.ScriptSent() {
		return nil, Preconditionf("intake %s is already marked as sent", in.Reference)
	}
	if in.Status != StatusPaid && in.Status != StatusInReview && in.Status != StatusApproved {
		return nil, Preconditionf("cannot mark intake %s as sent in status %s", in.Reference, in.Status)
	}

	now := s.now().UTC()
	to := StatusCompleted
	u := Update{
		Status:                  &to,
		CompletedAt:             &now,
		PrescriptionSentAt:      &now,
		PrescriptionSentBy:      &actor.ID,
		PrescriptionSentChannel: &channel,
		// The store rejects a concurrent double-send even if both callers
		// passed the precondition check above.
		ExpectScriptUnsent: true,
	}
	// reviewed_by/reviewed_at belong to the approval decision; only set them
	// when the intake was completed straight from review.
	if in.Status != StatusApproved {
		u.ReviewedBy = &actor.ID
		u.ReviewedAt = &now
	}

	updated, err := s.repo.Update(ctx, id, []Status{in.Status}, u)
	if errors.Is(err, ErrConflict) {
		return nil, Preconditionf("intake %s is already marked as sent", in.Reference)
	}
	if err != nil {
		return nil, s.updateFailure("mark script sent", id, err)
	}

	s.recordAudit(ctx, "intake.script_sent", updated, actor, in.Status, to, map[string]string{
		"channel": channel,
	})
	s.notifyPatient(updated, "script-sent", map[string]string{"channel": channel})
	return updated, nil
}

// UndoScriptSent reverts a mark-sent action, clearing the outcome marker and
// returning the intake to approved. Admins may undo at any time; the original
// sender only within the undo window.
func (s *Service) UndoScriptSent(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !in.ScriptSent() || in.Status != StatusCompleted {
		return nil, Preconditionf("intake %s is not marked as sent", in.Reference)
	}

	if !auth.Can(actor.Role, auth.CapUndoAnySend) {
		if in.PrescriptionSentBy == nil || *in.PrescriptionSentBy != actor.ID {
			return nil, ErrForbidden
		}
		if elapsed := s.now().Sub(*in.PrescriptionSentAt); elapsed > s.cfg.UndoWindow {
			return nil, Preconditionf(
				"the undo window of %s has passed for intake %s; ask an administrator to undo",
				s.cfg.UndoWindow, in.Reference)
		}
	}

	to := StatusApproved
	updated, err := s.repo.Update(ctx, id, []Status{StatusCompleted}, Update{
		Status:                &to,
		ClearPrescriptionSent: true,
	})
	if err != nil {
		return nil, s.updateFailure("undo script sent", id, err)
	}

	s.recordAudit(ctx, "intake.script_unsent", updated, actor, StatusCompleted, to, map[string]string{
		"undo": "true",
	})
	return updated, nil
}

// MarkPriority grants or revokes priority. Granting shortens the SLA deadline
// to the priority window when that is earlier; revoking never lengthens an
// already-set deadline (priority is sticky in effect).
func (s *Service) MarkPriority(ctx context.Context, actor auth.Actor, id uuid.UUID, priority bool) (*Intake, error) {
	if !auth.Can(actor.Role, auth.CapEscalate) {
		return nil, ErrForbidden
	}
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status.Terminal() || in.Status == StatusCompleted {
		return nil, Preconditionf("cannot reprioritize intake %s in status %s", in.Reference, in.Status)
	}

	u := Update{IsPriority: &priority}
	if priority && in.SubmittedAt != nil {
		deadline := in.SubmittedAt.Add(s.cfg.PriorityWindow)
		if in.SLADeadline == nil || deadline.Before(*in.SLADeadline) {
			u.SLADeadline = &deadline
		}
	}

	updated, err := s.repo.Update(ctx, id, []Status{in.Status}, u)
	if err != nil {
		return nil, s.updateFailure("mark priority", id, err)
	}

	s.recordAudit(ctx, "intake.priority", updated, actor, in.Status, in.Status, map[string]string{
		"is_priority": fmt.Sprintf("%t", priority),
	})
	return updated, nil
}

// Get returns an intake visible to the actor: clinicians see all intakes,
// patients only their own.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsClinician() && in.PatientID != actor.ID {
		return nil, ErrNotFound
	}
	return in, nil
}

// ListMine returns the acting patient's intakes, newest first.
func (s *Service) ListMine(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Intake, int, error) {
	return s.repo.ListByPatient(ctx, actor.ID, limit, offset)
}

// -- internal helpers --

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Intake, error) {
	in, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storeFailure("get", id, err)
	}
	return in, nil
}

func (s *Service) getOwned(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Intake, error) {
	in, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleAdmin && in.PatientID != actor.ID {
		return nil, ErrForbidden
	}
	return in, nil
}

// updateFailure classifies a repo.Update error: guard misses pass through as
// ErrConflict, everything else is an infrastructure fault.
func (s *Service) updateFailure(op string, id uuid.UUID, err error) error {
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	return s.storeFailure(op, id, err)
}

func (s *Service) storeFailure(op string, id uuid.UUID, err error) error {
	s.logger.Error().Err(err).
		Str("intake_id", id.String()).
		Str("operation", op).
		Msg("intake store failure")
	return fmt.Errorf("intake store failure during %s", op)
}

// recordAudit emits the single audit event for a confirmed transition. Sink
// failures are logged, never surfaced: the transition already happened.
func (s *Service) recordAudit(ctx context.Context, action string, in *Intake, actor auth.Actor, from, to Status, metadata map[string]string) {
	ev := audit.NewTransitionEvent(action, in.ID, actor.ID, string(actor.Role), string(from), string(to))
	ev.Metadata = metadata
	if err := s.audit.Record(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("intake_id", in.ID.String()).
			Str("action", action).
			Msg("audit record failed")
	}
}

func (s *Service) notifyPatient(in *Intake, templateID string, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"reference": in.Reference,
		"service":   string(in.ServiceType),
	}
	for k, v := range extra {
		data[k] = v
	}
	s.notifier.Dispatch(&notify.Notification{
		Recipient:    in.PatientID,
		TemplateID:   templateID,
		TemplateData: data,
	})
}

func decodeAnswers(raw json.RawMessage) map[string]any {
	out := make(map[string]any)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}
