package auth

import "context"

// Role is the closed set of actor roles known to the platform.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a raw claim value onto a known Role. Unknown values map to
// RolePatient, the least-privileged role.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleDoctor:
		return RoleDoctor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RolePatient
	}
}

// Actor identifies the authenticated principal performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsClinician reports whether the actor reviews intakes (doctor or admin).
func (a Actor) IsClinician() bool {
	return a.Role == RoleDoctor || a.Role == RoleAdmin
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the authenticated actor attached to ctx. The zero
// Actor (empty ID) is returned when no authentication middleware ran.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}
