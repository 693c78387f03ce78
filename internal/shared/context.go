package shared

import (
	"context"
	"fmt"
	"strings"
)

// Actor identifies the user performing a mutation. It is passed explicitly
// into every mutating service call.
type Actor struct {
	ID   int64
	Name string
}

// String renders the actor for audit attribution.
func (a Actor) String() string {
	name := strings.TrimSpace(a.Name)
	switch {
	case name != "" && a.ID != 0:
		return fmt.Sprintf("%s (#%d)", name, a.ID)
	case name != "":
		return name
	case a.ID != 0:
		return fmt.Sprintf("user#%d", a.ID)
	default:
		return "system"
	}
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Name: "system"}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, falling back to SystemActor.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok {
		return SystemActor
	}
	return actor
}
