package shared

import "context"

type privilegesContextKey struct{}

// ContextWithPrivileges stores the caller's privileges in context.
func ContextWithPrivileges(ctx context.Context, privs PrivilegeSet) context.Context {
	return context.WithValue(ctx, privilegesContextKey{}, privs)
}

// PrivilegesFromContext extracts the caller's privileges from context.
func PrivilegesFromContext(ctx context.Context) PrivilegeSet {
	privs, _ := ctx.Value(privilegesContextKey{}).(PrivilegeSet)
	return privs
}

type actorContextKey struct{}

// ContextWithActor stores the acting user name in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the acting user name, or empty.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
