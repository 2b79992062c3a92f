package queue

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/intake"
	"github.com/telecare/telecare/internal/platform/auth"
)

var (
	doctor = auth.Actor{ID: "doctor-1", Role: auth.RoleDoctor}
	admin  = auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

func entry(name string, breached, priority bool, deadline *time.Time, createdAt time.Time) *intake.Intake {
	return &intake.Intake{
		Reference:   name,
		Status:      intake.StatusPaid,
		SLABreached: breached,
		IsPriority:  priority,
		SLADeadline: deadline,
		CreatedAt:   createdAt,
	}
}

func TestSort_QueueOrdering(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	soon := base.Add(time.Hour)
	later := base.Add(6 * time.Hour)

	items := []*intake.Intake{
		entry("plain-later", false, false, &later, base),
		entry("priority", false, true, &later, base),
		entry("plain-soon", false, false, &soon, base),
		entry("breached", true, false, &soon, base),
		entry("no-deadline", false, false, nil, base),
	}
	Sort(items)

	want := []string{"breached", "priority", "plain-soon", "plain-later", "no-deadline"}
	for i, ref := range want {
		if items[i].Reference != ref {
			t.Errorf("position %d = %s, want %s", i, items[i].Reference, ref)
		}
	}
}

func TestSort_BreachedOutranksPriority(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	items := []*intake.Intake{
		entry("priority", false, true, &base, base),
		entry("breached", true, false, &base, base),
	}
	Sort(items)
	if items[0].Reference != "breached" {
		t.Error("a breached intake must outrank a priority one")
	}
}

func TestSort_StableForEqualKeys(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deadline := base.Add(time.Hour)
	a := entry("first", false, false, &deadline, base)
	b := entry("second", false, false, &deadline, base)
	items := []*intake.Intake{a, b}
	Sort(items)
	if items[0] != a || items[1] != b {
		t.Error("equal keys must keep their original order")
	}
}

func TestFilterFromContext_FailsOpen(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/queue?status=bogus,completed&service_type=nope", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	f := FilterFromContext(c)
	if len(f.Statuses) != 0 {
		t.Errorf("unknown statuses should be dropped, got %v", f.Statuses)
	}
	if got := f.EffectiveStatuses(); len(got) != len(ActiveStatuses) {
		t.Errorf("effective statuses = %v, want the full active set", got)
	}
	if f.ServiceType != "" {
		t.Errorf("invalid service type should be ignored, got %s", f.ServiceType)
	}
}

func TestFilterFromContext_ValidValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/queue?status=paid,in_review&priority=true&breached=true&assigned_to=doctor-1&risk_tier=high", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	f := FilterFromContext(c)
	if len(f.Statuses) != 2 {
		t.Errorf("statuses = %v", f.Statuses)
	}
	if !f.PriorityOnly || !f.BreachedOnly {
		t.Error("boolean filters not parsed")
	}
	if f.AssignedTo != "doctor-1" {
		t.Errorf("assigned_to = %q", f.AssignedTo)
	}
	if f.RiskTier != intake.RiskHigh {
		t.Errorf("risk_tier = %q", f.RiskTier)
	}
}

type stubRepo struct {
	items []*intake.Intake
	sum   *Summary
	err   error
}

func (s *stubRepo) List(context.Context, Filter, int, int) ([]*intake.Intake, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.items, len(s.items), nil
}

func (s *stubRepo) Summary(context.Context) (*Summary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sum, nil
}

func TestServiceList_FailsClosed(t *testing.T) {
	svc := NewService(&stubRepo{err: errors.New("connection reset")}, zerolog.Nop())

	_, _, err := svc.List(context.Background(), doctor, Filter{}, 20, 0)
	if err == nil {
		t.Fatal("a store error must surface, never an empty queue")
	}
	if err.Error() != "queue unavailable" {
		t.Errorf("error leaked internals: %q", err)
	}
}

func TestServiceList_ReassertsOrdering(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Repo returns the queue out of order.
	repo := &stubRepo{items: []*intake.Intake{
		entry("plain", false, false, nil, base),
		entry("breached", true, false, &base, base),
	}}
	svc := NewService(repo, zerolog.Nop())

	items, _, err := svc.List(context.Background(), doctor, Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].Reference != "breached" {
		t.Error("service must re-assert queue ordering")
	}
}

func TestServiceList_PatientForbidden(t *testing.T) {
	svc := NewService(&stubRepo{}, zerolog.Nop())
	p := auth.Actor{ID: "patient-1", Role: auth.RolePatient}

	if _, _, err := svc.List(context.Background(), p, Filter{}, 20, 0); !errors.Is(err, intake.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
