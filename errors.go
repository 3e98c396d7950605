package auth

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodePasswordMismatch   = "AUTH_PASSWORD_MISMATCH"
	TextCodeInvalidPayload     = "AUTH_INVALID_PAYLOAD"
	TextCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	TextCodeSessionExpired     = "AUTH_SESSION_EXPIRED"
	TextCodeNoRefreshToken     = "AUTH_NO_REFRESH_TOKEN"
	TextCodeServiceUnavailable = "AUTH_SERVICE_UNAVAILABLE"
)

// ErrPasswordMismatch is returned by Register before any network call when
// the confirmation does not match.
var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned when the identity service rejects a login.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when the stored session can no longer be used.
var ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoRefreshToken is returned when a refresh is attempted without a token.
var ErrNoRefreshToken = goerrors.New("no refresh token available", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoRefreshToken).
	WithCode(goerrors.CodeUnauthorized)

// IsValidationError reports local input errors that never reached the network.
func IsValidationError(err error) bool {
	richErr, ok := asRich(err)
	if !ok {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return true
	default:
		return false
	}
}

// IsAuthError reports credential or session errors.
func IsAuthError(err error) bool {
	richErr, ok := asRich(err)
	if !ok {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return true
	default:
		return false
	}
}

// ErrorMessage returns the message suitable for Session.Error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if richErr, ok := asRich(err); ok && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

func asRich(err error) (*goerrors.Error, bool) {
	if err == nil {
		return nil, false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil, false
	}
	return richErr, true
}

// wrapRemote turns transport errors into rich errors, keeping rich errors
// produced further down untouched.
func wrapRemote(err error, message string) error {
	if err == nil {
		return nil
	}

	if richErr, ok := asRich(err); ok {
		return richErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, message)
	}

	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithTextCode(TextCodeServiceUnavailable)
}
