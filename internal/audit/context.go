package audit

import "context"

// Actor identifies who triggered an audited change.
type Actor struct {
	UserID    uint
	IPAddress string
	UserAgent string
}

type actorKey struct{}

// WithActor attaches the acting staff member to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, or the zero Actor.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
