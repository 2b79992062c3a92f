package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, DefaultLimit)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestFromContext_CapsLimit(t *testing.T) {
	p := paramsFor(t, "limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, MaxLimit)
	}
}

func TestFromContext_ParsesValues(t *testing.T) {
	p := paramsFor(t, "limit=10&offset=30")
	if p.Limit != 10 || p.Offset != 30 {
		t.Errorf("got %+v", p)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := paramsFor(t, "offset=-5")
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore {
		t.Error("expected HasMore")
	}
	r = NewResponse([]int{1}, 10, 3, 9)
	if r.HasMore {
		t.Error("expected no more results")
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	if !p.HasNext(30) {
		t.Error("expected HasNext")
	}
	if p.HasNext(15) {
		t.Error("expected no next page")
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious")
	}
	if (Params{Limit: 10}).HasPrevious() {
		t.Error("offset 0 should have no previous page")
	}
}
