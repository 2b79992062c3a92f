package intake

import (
	"testing"
	"time"
)

var testWindows = ClassifierConfig{
	StandardWindow: 24 * time.Hour,
	PriorityWindow: 4 * time.Hour,
}

func classify(t *testing.T, in ClassifyInput) Classification {
	t.Helper()
	if in.Windows == (ClassifierConfig{}) {
		in.Windows = testWindows
	}
	if in.SubmittedAt.IsZero() {
		in.SubmittedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	}
	return Classify(in)
}

func TestClassify_Deterministic(t *testing.T) {
	in := ClassifyInput{
		Service: ServiceConsult,
		Answers: map[string]any{
			"chest_pain":       true,
			"symptom_severity": "moderate",
		},
		History:     PatientHistory{Age: 70, PriorFlags: []string{"asthma"}},
		SubmittedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Windows:     testWindows,
	}
	a := Classify(in)
	b := Classify(in)
	if a != b {
		t.Errorf("identical inputs produced different output: %+v vs %+v", a, b)
	}
}

func TestClassify_Tiers(t *testing.T) {
	tests := []struct {
		name      string
		in        ClassifyInput
		wantScore int
		wantTier  RiskTier
	}{
		{
			name:      "plain medical certificate is low",
			in:        ClassifyInput{Service: ServiceMedicalCertificate, History: PatientHistory{Age: 30}},
			wantScore: 10,
			wantTier:  RiskLow,
		},
		{
			name:      "repeat prescription baseline is moderate",
			in:        ClassifyInput{Service: ServiceRepeatPrescription, History: PatientHistory{Age: 30}},
			wantScore: 25,
			wantTier:  RiskModerate,
		},
		{
			name: "consult with a red flag is high",
			in: ClassifyInput{
				Service: ServiceConsult,
				Answers: map[string]any{"chest_pain": true},
				History: PatientHistory{Age: 30},
			},
			wantScore: 60,
			wantTier:  RiskHigh,
		},
		{
			name: "elderly with red flag and severe symptoms is critical",
			in: ClassifyInput{
				Service: ServiceConsult,
				Answers: map[string]any{
					"breathing_difficulty": true,
					"symptom_severity":     "severe",
				},
				History: PatientHistory{Age: 72},
			},
			wantScore: 100,
			wantTier:  RiskCritical,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(t, tt.in)
			if got.RiskScore != tt.wantScore {
				t.Errorf("score = %d, want %d", got.RiskScore, tt.wantScore)
			}
			if got.RiskTier != tt.wantTier {
				t.Errorf("tier = %s, want %s", got.RiskTier, tt.wantTier)
			}
		})
	}
}

func TestClassify_AnswerShapes(t *testing.T) {
	// JSON decoding hands the classifier float64 numbers and string booleans.
	got := classify(t, ClassifyInput{
		Service: ServiceMedicalCertificate,
		Answers: map[string]any{
			"chest_pain":    "yes",
			"duration_days": float64(21),
		},
		History: PatientHistory{Age: 30},
	})
	if want := 10 + 40 + 10; got.RiskScore != want {
		t.Errorf("score = %d, want %d", got.RiskScore, want)
	}
}

func TestClassify_PriorFlagsCapped(t *testing.T) {
	got := classify(t, ClassifyInput{
		Service: ServiceMedicalCertificate,
		History: PatientHistory{
			Age:        30,
			PriorFlags: []string{"a", "b", "c", "d", "e"},
		},
	})
	if want := 10 + 30; got.RiskScore != want {
		t.Errorf("score = %d, want %d (flag contribution capped)", got.RiskScore, want)
	}
}

func TestClassify_PriorityDrivesWindow(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	low := classify(t, ClassifyInput{Service: ServiceMedicalCertificate, History: PatientHistory{Age: 30}, SubmittedAt: at})
	if low.IsPriority {
		t.Error("low tier should not be priority")
	}
	if !low.SLADeadline.Equal(at.Add(24 * time.Hour)) {
		t.Errorf("deadline = %v, want standard window", low.SLADeadline)
	}

	high := classify(t, ClassifyInput{
		Service:     ServiceConsult,
		Answers:     map[string]any{"suicidal_ideation": true},
		History:     PatientHistory{Age: 30},
		SubmittedAt: at,
	})
	if !high.IsPriority {
		t.Error("high tier should be priority")
	}
	if !high.SLADeadline.Equal(at.Add(4 * time.Hour)) {
		t.Errorf("deadline = %v, want priority window", high.SLADeadline)
	}
}

func TestClassify_PriorityIsSticky(t *testing.T) {
	got := classify(t, ClassifyInput{
		Service:         ServiceMedicalCertificate,
		History:         PatientHistory{Age: 30},
		AlreadyPriority: true,
	})
	if got.RiskTier != RiskLow {
		t.Errorf("tier = %s, want low", got.RiskTier)
	}
	if !got.IsPriority {
		t.Error("existing priority must survive reclassification")
	}
}
