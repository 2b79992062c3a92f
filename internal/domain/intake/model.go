package intake

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an intake. Transitions are owned
// exclusively by Service; nothing else writes lifecycle state.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusInReview       Status = "in_review"
	StatusPendingInfo    Status = "pending_info"
	StatusApproved       Status = "approved"
	StatusDeclined       Status = "declined"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusDraft:          true,
	StatusPendingPayment: true,
	StatusPaid:           true,
	StatusInReview:       true,
	StatusPendingInfo:    true,
	StatusApproved:       true,
	StatusDeclined:       true,
	StatusCompleted:      true,
	StatusCancelled:      true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return validStatuses[s] }

// Active reports whether the intake is awaiting reviewer action. Active
// intakes are the ones visible on the review queue and counted against SLA.
func (s Status) Active() bool {
	return s == StatusPaid || s == StatusInReview || s == StatusPendingInfo
}

// Terminal reports whether the status admits no further transitions. Approved
// is not terminal: repeat prescriptions move approved -> completed when the
// script is sent, and completed reverts to approved on an authorized undo.
func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusCancelled
}

// ServiceType is the closed set of services an intake can request.
type ServiceType string

const (
	ServiceMedicalCertificate ServiceType = "medical_certificate"
	ServiceRepeatPrescription ServiceType = "repeat_prescription"
	ServiceConsult            ServiceType = "consult"
	ServiceReferral           ServiceType = "referral"
	ServicePathology          ServiceType = "pathology"
)

var validServiceTypes = map[ServiceType]bool{
	ServiceMedicalCertificate: true,
	ServiceRepeatPrescription: true,
	ServiceConsult:            true,
	ServiceReferral:           true,
	ServicePathology:          true,
}

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool { return validServiceTypes[t] }

// RiskTier is the coarse classification driving review prioritization.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskModerate RiskTier = "moderate"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

var validRiskTiers = map[RiskTier]bool{
	RiskLow:      true,
	RiskModerate: true,
	RiskHigh:     true,
	RiskCritical: true,
}

// Valid reports whether r is a known risk tier.
func (r RiskTier) Valid() bool { return validRiskTiers[r] }

// Intake is a single patient service request and its full lifecycle record.
type Intake struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Reference string    `db:"reference" json:"reference"`
	PatientID string    `db:"patient_id" json:"patient_id"`

	ServiceType ServiceType `db:"service_type" json:"service_type"`
	Status      Status      `db:"status" json:"status"`

	RiskTier   RiskTier `db:"risk_tier" json:"risk_tier"`
	RiskScore  int      `db:"risk_score" json:"risk_score"`
	IsPriority bool     `db:"is_priority" json:"is_priority"`

	// Answers is the service-specific question/answer payload. Its schema is
	// owned by the intake forms, not by this core.
	Answers json.RawMessage `db:"answers" json:"answers,omitempty"`

	// InfoRequested holds the clarification questions attached by a reviewer
	// when the intake was last moved to pending_info.
	InfoRequested json.RawMessage `db:"info_requested" json:"info_requested,omitempty"`

	AssignedTo    *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	DeclineReason *string    `db:"decline_reason" json:"decline_reason,omitempty"`

	SLADeadline *time.Time `db:"sla_deadline" json:"sla_deadline,omitempty"`
	// SLABreached is derived at read time: deadline in the past while the
	// intake is still active. It is never stored.
	SLABreached bool `db:"sla_breached" json:"sla_breached"`

	PrescriptionSentAt      *time.Time `db:"prescription_sent_at" json:"prescription_sent_at,omitempty"`
	PrescriptionSentBy      *string    `db:"prescription_sent_by" json:"prescription_sent_by,omitempty"`
	PrescriptionSentChannel *string    `db:"prescription_sent_channel" json:"prescription_sent_channel,omitempty"`

	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ScriptSent reports whether the prescription outcome marker is set.
func (i *Intake) ScriptSent() bool {
	return i.PrescriptionSentAt != nil
}

// BreachedAt reports whether the intake's SLA is breached as of now.
func (i *Intake) BreachedAt(now time.Time) bool {
	return i.Status.Active() && i.SLADeadline != nil && i.SLADeadline.Before(now)
}

// NewReference generates a human-readable reference number, e.g. INT-9F2C81D4.
func NewReference() string {
	id := uuid.New().String()
	return "INT-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}
