// Package authcontext carries the authenticated caller through request contexts.
package authcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Actor is the per-request identity supplied by the host application.
// AdminBypass callers skip all credit checks and are never charged.
type Actor struct {
	UserID      snowflake.ID
	AdminBypass bool
}

type actorContextKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor from context, if set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, false
	}
	return actor, true
}
