package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthAPI is the remote authentication service the controller talks to.
type AuthAPI interface {
	Login(ctx context.Context, credentials Credentials) (TokenPair, error)
	Register(ctx context.Context, payload RegisterPayload) (*RegisterResult, error)
	Profile(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// PendingBookingChecker asks the booking service whether the current user
// left a checkout unfinished. A nil payload with a nil error means there is
// none. A summary-only answer is reported as a *PendingBookingConflict error.
type PendingBookingChecker interface {
	CheckPendingBooking(ctx context.Context, accessToken string) (*PendingBookingPayload, error)
}

// AssignmentLookup resolves the cinema a manager or staff member works at.
// A nil cinema id with a nil error means the user is not assigned.
type AssignmentLookup interface {
	LookupCinemaAssignment(ctx context.Context, accessToken string) (*int, error)
}

// Config holds runtime options
type Config interface {
	GetAccessTokenKey() string
	GetRefreshTokenKey() string
	GetPendingFlagKey() string
	GetBookingSessionPrefix() string
	GetRedirectKey() string
	GetSweepMarkers() []string
	GetPhoneRegion() string
	GetLoginPath() string
	GetHomePath() string
	GetAdminDashboardPath() string
	GetStaffLandingPath() string
	GetManagerFallbackPath() string
	GetStaffAllowedPrefixes() []string
	GetManagerEditPrefixes() []string
}

type defLogger struct{}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards everything. Useful in tests.
func NoopLogger() Logger { return noopLogger{} }

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
