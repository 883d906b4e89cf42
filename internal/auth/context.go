package auth

import (
	"context"
	"errors"
)

type contextKey struct{}

// userContextKey is the context key for authenticated user
var userContextKey = contextKey{}

var (
	// ErrNoUserInContext is returned when no user is found in context
	ErrNoUserInContext = errors.New("no authenticated user in context")
)

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext extracts authenticated user from request context
func GetUserFromContext(ctx context.Context) (*User, error) {
	user, ok := ctx.Value(userContextKey).(*User)
	if !ok || user == nil {
		return nil, ErrNoUserInContext
	}
	return user, nil
}

// MustGetUserFromContext panics if no user in context (use after auth middleware)
func MustGetUserFromContext(ctx context.Context) *User {
	user, err := GetUserFromContext(ctx)
	if err != nil {
		panic("expected authenticated user in context")
	}
	return user
}
