package shared

import (
	"context"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

type actorContextKey struct{}

// ContextWithActor stores the calling actor in context.
func ContextWithActor(ctx context.Context, actor ledger.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, zero value when absent.
func ActorFromContext(ctx context.Context) ledger.Actor {
	actor, _ := ctx.Value(actorContextKey{}).(ledger.Actor)
	return actor
}
