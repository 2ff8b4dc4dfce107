package auth

import (
	"context"

	"github.com/google/uuid"

	webcontext "github.com/fieldledger/fieldledger/internal/web/context"
)

// RoleAdmin grants access to the admin surface
const RoleAdmin = "admin"

// WithClaims stores the authenticated account in the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = webcontext.SetAccountID(ctx, claims.AccountID)
	return webcontext.SetRole(ctx, claims.Role)
}

// AccountID returns the authenticated account, if any
func AccountID(ctx context.Context) (uuid.UUID, bool) {
	return webcontext.GetAccountID(ctx)
}

// IsAdmin reports whether the authenticated account is an administrator
func IsAdmin(ctx context.Context) bool {
	return webcontext.GetRole(ctx) == RoleAdmin
}
