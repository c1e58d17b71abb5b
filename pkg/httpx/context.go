package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID   ctxKey = "user_id"
	CtxKeyUsername ctxKey = "username"
	CtxKeyToken    ctxKey = "bearer_token"
	CtxKeyFields   ctxKey = "fields"
)

// Principal is the identity attached to a request by BearerAuthMiddleware.
type Principal struct {
	UserID   string
	Username string
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	id, ok := ctx.Value(CtxKeyUserID).(string)
	if !ok || id == "" {
		return Principal{}, false
	}
	name, _ := ctx.Value(CtxKeyUsername).(string)
	return Principal{UserID: id, Username: name}, true
}

// BearerTokenFromContext returns the raw token BearerAuthMiddleware accepted.
func BearerTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyToken).(string)
	return v
}

func contextWithPrincipal(ctx context.Context, p Principal, token string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, p.UserID)
	ctx = context.WithValue(ctx, CtxKeyUsername, p.Username)
	ctx = context.WithValue(ctx, CtxKeyToken, token)
	return ctx
}

func contextWithFields(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, CtxKeyFields, f)
}
