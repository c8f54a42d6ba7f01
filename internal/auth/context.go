package auth

import (
	"context"
	"strings"

	"github.com/rpattn/rentalvc/internal/domain"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorHeader carries the acting user on HTTP requests.
const ActorHeader = "X-Actor"

// ContextWithActor returns a new context that carries the acting user.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, strings.TrimSpace(actor))
}

// ActorFromContext retrieves the acting user from the context, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorKey).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}

// ActorOrSystem returns the acting user or the system author when none is known.
func ActorOrSystem(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return domain.SystemAuthor
}
