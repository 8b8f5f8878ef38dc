package auth

import (
	"context"

	"github.com/fieldops/instalog/internal/models"
)

// Mode identifies which authentication path admitted a request.
type Mode int

const (
	// ModeNone marks exempt routes (health, preflight, login, bootstrap).
	ModeNone Mode = iota
	// ModeHMAC marks requests admitted by the machine-client signature.
	ModeHMAC
	// ModeSession marks requests admitted by a web session token.
	ModeSession
)

// RequestAuth is the per-request authentication context. User is set only
// for ModeSession.
type RequestAuth struct {
	Mode Mode
	User *models.WebUser
}

// IsWebSession reports whether the request carries an authenticated
// console user.
func (a *RequestAuth) IsWebSession() bool {
	return a != nil && a.Mode == ModeSession && a.User != nil
}

type contextKey int

const requestAuthKey contextKey = iota

// WithRequestAuth stores the authentication context in the request context.
func WithRequestAuth(ctx context.Context, ra *RequestAuth) context.Context {
	return context.WithValue(ctx, requestAuthKey, ra)
}

// RequestAuthFromContext retrieves the authentication context, or nil.
func RequestAuthFromContext(ctx context.Context) *RequestAuth {
	ra, _ := ctx.Value(requestAuthKey).(*RequestAuth)
	return ra
}
