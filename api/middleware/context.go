package middleware

import "context"

type contextKey string

const (
	ctxUserID        contextKey = "user_id"
	ctxCartSessionID contextKey = "cart_session_id"
	ctxAccessID      contextKey = "access_id"
)

// UserIDFromContext returns the signed-in user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

// CartSessionIDFromContext returns the cart session id resolved for the request.
func CartSessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxCartSessionID)
}

// AccessIDFromContext returns the access token id (jti) of an authenticated request.
func AccessIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxAccessID)
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithCartSessionID injects the cart session identifier into the context.
func WithCartSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSessionID, sessionID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
