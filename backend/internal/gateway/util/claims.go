package util

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are issued by the external auth service and only verified here
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	SchoolID string `json:"school_id"`
	ClassID  string `json:"class_id,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// UserFromContext returns the verified caller, or nil on public routes
func UserFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKey{}).(*Claims)
	return c
}

// WithUser attaches verified claims to ctx
func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}
