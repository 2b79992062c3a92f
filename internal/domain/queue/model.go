package queue

import (
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/domain/intake"
)

// ActiveStatuses is the default queue scope: intakes that are paid for and
// not yet resolved.
var ActiveStatuses = []intake.Status{
	intake.StatusPaid,
	intake.StatusInReview,
	intake.StatusPendingInfo,
}

// Filter narrows the review queue. The zero value means the full active
// queue.
type Filter struct {
	Statuses     []intake.Status
	ServiceType  intake.ServiceType
	RiskTier     intake.RiskTier
	AssignedTo   string
	PriorityOnly bool
	BreachedOnly bool
}

// FilterFromContext parses queue filters from query parameters. Unrecognized
// values fail open to the unfiltered active queue rather than hiding work
// from reviewers.
func FilterFromContext(c echo.Context) Filter {
	var f Filter

	if raw := c.QueryParam("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := intake.Status(strings.TrimSpace(part))
			if st.Valid() && st.Active() {
				f.Statuses = append(f.Statuses, st)
			}
		}
	}
	if st := intake.ServiceType(c.QueryParam("service_type")); st.Valid() {
		f.ServiceType = st
	}
	if rt := intake.RiskTier(c.QueryParam("risk_tier")); rt.Valid() {
		f.RiskTier = rt
	}
	f.AssignedTo = strings.TrimSpace(c.QueryParam("assigned_to"))
	f.PriorityOnly = c.QueryParam("priority") == "true"
	f.BreachedOnly = c.QueryParam("breached") == "true"
	return f
}

// EffectiveStatuses returns the status scope, defaulting to all active
// statuses.
func (f Filter) EffectiveStatuses() []intake.Status {
	if len(f.Statuses) == 0 {
		return ActiveStatuses
	}
	return f.Statuses
}

// Summary is the queue's aggregate view for dashboards.
type Summary struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	Priority    int            `json:"priority"`
	SLABreached int            `json:"sla_breached"`
}

// Less is the queue ordering: breached intakes first, then priority, then
// the earliest SLA deadline, deadline-less entries last, oldest submission
// as the final tiebreak.
func Less(a, b *intake.Intake) bool {
	if a.SLABreached != b.SLABreached {
		return a.SLABreached
	}
	if a.IsPriority != b.IsPriority {
		return a.IsPriority
	}
	switch {
	case a.SLADeadline == nil && b.SLADeadline == nil:
	case a.SLADeadline == nil:
		return false
	case b.SLADeadline == nil:
		return true
	case !a.SLADeadline.Equal(*b.SLADeadline):
		return a.SLADeadline.Before(*b.SLADeadline)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Sort orders items in place by the queue ordering.
func Sort(items []*intake.Intake) {
	sort.SliceStable(items, func(i, j int) bool { return Less(items[i], items[j]) })
}
