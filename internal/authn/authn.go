// Package authn handles phone sign-in. A remote gateway sends and checks
// one-time codes; the verified identity is kept on disk so a daemon restart
// does not sign the user out.
package authn

import (
	"context"
	"errors"
)

// ErrCodeRejected is returned when the gateway refuses an OTP code.
var ErrCodeRejected = errors.New("authn: code rejected")

// ErrGatewayUnavailable wraps transport failures talking to the gateway.
var ErrGatewayUnavailable = errors.New("authn: gateway unavailable")

// Provider is the sign-in surface consumed by the rest of the daemon. The
// chat core only ever reads CurrentUserID.
type Provider interface {
	// CurrentUserID returns the signed-in user id, or "" when signed out.
	CurrentUserID() string
	SendOTP(ctx context.Context, phone string) error
	// VerifyOTP exchanges a code for the user id and signs the profile in.
	VerifyOTP(ctx context.Context, phone, code string) (string, error)
	SignOut(ctx context.Context) error
}
