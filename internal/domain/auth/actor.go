package auth

import "context"

// Role names an actor's privilege level.
type Role string

const (
	// RoleCashier may ring up sales and read reports.
	RoleCashier Role = "cashier"
	// RoleAdmin may additionally read reports and manage committed sales.
	RoleAdmin Role = "admin"
)

// Actor is the authenticated identity recorded on a sale.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.ID != ""
}
