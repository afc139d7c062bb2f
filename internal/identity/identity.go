// Package identity carries the authenticated patient through request contexts.
package identity

import "context"

// User is the authenticated caller. A zero ID means anonymous.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Authenticated reports whether u identifies a signed-in user.
func (u *User) Authenticated() bool {
	return u != nil && u.ID != ""
}

type contextKey struct{}

// WithUser returns a child context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored in ctx, or nil when the caller is anonymous.
func FromContext(ctx context.Context) *User {
	u, ok := ctx.Value(contextKey{}).(User)
	if !ok || u.ID == "" {
		return nil
	}
	return &u
}
