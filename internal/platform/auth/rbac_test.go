package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCan_PatientLimitedToSubmission(t *testing.T) {
	if !Can(RolePatient, CapSubmitIntake) {
		t.Error("patient should hold intake:submit")
	}
	for _, cap := range []Capability{CapReviewIntake, CapBulkReview, CapUndoAnySend, CapEscalate, CapConfirmPayment} {
		if Can(RolePatient, cap) {
			t.Errorf("patient should not hold %s", cap)
		}
	}
}

func TestCan_DoctorReviewsButCannotEscalate(t *testing.T) {
	if !Can(RoleDoctor, CapReviewIntake) {
		t.Error("doctor should hold intake:review")
	}
	if !Can(RoleDoctor, CapBulkReview) {
		t.Error("doctor should hold intake:bulk-review")
	}
	if Can(RoleDoctor, CapUndoAnySend) {
		t.Error("doctor should not hold intake:undo-any-send")
	}
	if Can(RoleDoctor, CapEscalate) {
		t.Error("doctor should not hold intake:escalate")
	}
}

func TestCan_AdminHoldsEverything(t *testing.T) {
	for _, cap := range []Capability{CapSubmitIntake, CapReviewIntake, CapBulkReview, CapUndoAnySend, CapEscalate, CapConfirmPayment} {
		if !Can(RoleAdmin, cap) {
			t.Errorf("admin should hold %s", cap)
		}
	}
}

func TestParseRole_UnknownDefaultsToPatient(t *testing.T) {
	if got := ParseRole("superuser"); got != RolePatient {
		t.Errorf("ParseRole(superuser) = %s, want patient", got)
	}
	if got := ParseRole("doctor"); got != RoleDoctor {
		t.Errorf("ParseRole(doctor) = %s, want doctor", got)
	}
	if got := ParseRole("admin"); got != RoleAdmin {
		t.Errorf("ParseRole(admin) = %s, want admin", got)
	}
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, actor Actor) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return he.Code
		}
		t.Fatalf("unexpected error type: %v", err)
	}
	return rec.Code
}

func TestRequireCapability(t *testing.T) {
	mw := RequireCapability(CapReviewIntake)

	if code := doRequest(t, mw, Actor{ID: "d1", Role: RoleDoctor}); code != http.StatusOK {
		t.Errorf("doctor status = %d, want 200", code)
	}
	if code := doRequest(t, mw, Actor{ID: "p1", Role: RolePatient}); code != http.StatusForbidden {
		t.Errorf("patient status = %d, want 403", code)
	}
}

func TestRequireRole_AdminAlwaysPasses(t *testing.T) {
	mw := RequireRole(RoleDoctor)

	if code := doRequest(t, mw, Actor{ID: "a1", Role: RoleAdmin}); code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", code)
	}
	if code := doRequest(t, mw, Actor{ID: "p1", Role: RolePatient}); code != http.StatusForbidden {
		t.Errorf("patient status = %d, want 403", code)
	}
}
