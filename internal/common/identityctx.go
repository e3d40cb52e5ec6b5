package common

import "context"

// IdentityContext holds the authenticated identity resolved from a bearer
// token by the server middleware. Absent (nil) means an anonymous request.
type IdentityContext struct {
	DisplayID string // human-readable identity name, e.g. "Teal-482"
	RecordID  string // store-assigned id of the identity record
	TokenID   string // id of the presented bearer token
}

type contextKey int

const identityContextKey contextKey = iota

// WithIdentityContext stores an IdentityContext in the request context.
func WithIdentityContext(ctx context.Context, ic *IdentityContext) context.Context {
	return context.WithValue(ctx, identityContextKey, ic)
}

// IdentityFromContext retrieves the IdentityContext from context, or nil if absent.
func IdentityFromContext(ctx context.Context) *IdentityContext {
	ic, _ := ctx.Value(identityContextKey).(*IdentityContext)
	return ic
}
