package intake

import (
	"strconv"
	"strings"
	"time"
)

// ClassifierConfig holds the review windows applied at classification time.
// The windows are deployment configuration, not per-service constants.
type ClassifierConfig struct {
	StandardWindow time.Duration
	PriorityWindow time.Duration
}

// PatientHistory carries the patient signals the classifier scores.
type PatientHistory struct {
	Age        int
	PriorFlags []string
}

// ClassifyInput is everything the classifier looks at. Classification is a
// pure function of this input, so identical inputs always produce identical
// output.
type ClassifyInput struct {
	Service ServiceType
	Answers map[string]any
	History PatientHistory
	// AlreadyPriority keeps the priority window sticky: once an intake is
	// priority it stays priority through reclassification until explicitly
	// revoked.
	AlreadyPriority bool
	SubmittedAt     time.Time
	Windows         ClassifierConfig
}

// Classification is the classifier's output, applied to the intake at
// payment confirmation (or reclassification).
type Classification struct {
	RiskScore   int
	RiskTier    RiskTier
	IsPriority  bool
	SLADeadline time.Time
}

var serviceBaseScore = map[ServiceType]int{
	ServiceMedicalCertificate: 10,
	ServiceReferral:           15,
	ServicePathology:          15,
	ServiceConsult:            20,
	ServiceRepeatPrescription: 25,
}

// Answer keys that indicate red-flag symptoms regardless of service type.
var redFlagAnswers = []string{"chest_pain", "breathing_difficulty", "suicidal_ideation"}

// Classify computes the risk score, tier, priority flag, and SLA deadline for
// an intake.
func Classify(in ClassifyInput) Classification {
	score := serviceBaseScore[in.Service]

	for _, key := range redFlagAnswers {
		if answerTruthy(in.Answers[key]) {
			score += 40
		}
	}
	if answerTruthy(in.Answers["pregnant"]) {
		score += 15
	}
	switch answerString(in.Answers["symptom_severity"]) {
	case "severe":
		score += 25
	case "moderate":
		score += 10
	}
	if days, ok := answerInt(in.Answers["duration_days"]); ok && days >= 14 {
		score += 10
	}

	if in.History.Age >= 65 {
		score += 15
	} else if in.History.Age > 0 && in.History.Age < 12 {
		score += 10
	}

	// Prior clinical flags add up, capped so history alone cannot dominate.
	flagScore := 10 * len(in.History.PriorFlags)
	if flagScore > 30 {
		flagScore = 30
	}
	score += flagScore

	if score > 100 {
		score = 100
	}

	tier := tierForScore(score)
	priority := in.AlreadyPriority || tier == RiskHigh || tier == RiskCritical

	window := in.Windows.StandardWindow
	if priority {
		window = in.Windows.PriorityWindow
	}

	return Classification{
		RiskScore:   score,
		RiskTier:    tier,
		IsPriority:  priority,
		SLADeadline: in.SubmittedAt.Add(window),
	}
}

func tierForScore(score int) RiskTier {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskModerate
	case score < 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func answerTruthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s == "true" || s == "yes" || s == "y"
	default:
		return false
	}
}

func answerString(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}

func answerInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		// JSON numbers decode as float64
		return int(val), true
	case int:
		return val, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
