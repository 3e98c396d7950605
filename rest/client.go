// Package rest implements the identity, booking and assignment services over
// JSON/HTTP with bearer authentication.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	auth "github.com/goliatone/go-cinema-auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathProfile        = "/auth/profile"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
	PathRefresh        = "/auth/refresh"
	PathLogout         = "/auth/logout"
	PathPendingBooking = "/bookings/pending"
	PathManagerCinema  = "/managers/me/cinema"
)

var (
	_ auth.AuthAPI               = (*Client)(nil)
	_ auth.PendingBookingChecker = (*Client)(nil)
	_ auth.AssignmentLookup      = (*Client)(nil)
)

// Config configures the client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to the cinema backend.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		config:     cfg,
		httpClient: client,
	}
}

// Login implements auth.AuthAPI.
func (c *Client) Login(ctx context.Context, credentials auth.Credentials) (auth.TokenPair, error) {
	var pair auth.TokenPair
	status, body, err := c.do(ctx, http.MethodPost, PathLogin, "", credentials)
	if err != nil {
		return pair, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return pair, auth.ErrInvalidCredentials
	default:
		return pair, responseError("login", status, body)
	}

	if err := decode(body, &pair); err != nil {
		return pair, err
	}
	return pair, nil
}

// Register implements auth.AuthAPI.
func (c *Client) Register(ctx context.Context, payload auth.RegisterPayload) (*auth.RegisterResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, PathRegister, "", payload)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, responseError("register", status, body)
	}

	result := &auth.RegisterResult{}
	if err := decode(body, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Profile implements auth.AuthAPI.
func (c *Client) Profile(ctx context.Context, accessToken string) (*auth.User, error) {
	status, body, err := c.do(ctx, http.MethodGet, PathProfile, accessToken, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, auth.ErrSessionExpired
	default:
		return nil, responseError("profile", status, body)
	}

	user := &auth.User{}
	if err := decode(body, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh implements auth.AuthAPI.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	status, body, err := c.do(ctx, http.MethodPost, PathRefresh, "", map[string]string{
		"refreshToken": refreshToken,
	})
	if err != nil {
		return pair, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return pair, auth.ErrSessionExpired
	default:
		return pair, responseError("refresh", status, body)
	}

	if err := decode(body, &pair); err != nil {
		return pair, err
	}
	return pair, nil
}

// Logout implements auth.AuthAPI.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	status, body, err := c.do(ctx, http.MethodPost, PathLogout, accessToken, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return responseError("logout", status, body)
	}
	return nil
}

// ForgotPassword implements auth.AuthAPI.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	status, body, err := c.do(ctx, http.MethodPost, PathForgotPassword, "", map[string]string{
		"email": email,
	})
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return responseError("forgot password", status, body)
	}
	return nil
}

// ResetPassword implements auth.AuthAPI.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	status, body, err := c.do(ctx, http.MethodPost, PathResetPassword, "", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	})
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return responseError("reset password", status, body)
	}
	return nil
}

// CheckPendingBooking implements auth.PendingBookingChecker. 204 means no
// pending booking, 409 carries only a summary.
func (c *Client) CheckPendingBooking(ctx context.Context, accessToken string) (*auth.PendingBookingPayload, error) {
	status, body, err := c.do(ctx, http.MethodGet, PathPendingBooking, accessToken, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	case http.StatusConflict:
		summary := auth.PendingBookingSummary{}
		if err := decode(body, &summary); err != nil {
			return nil, err
		}
		return nil, &auth.PendingBookingConflict{Summary: summary}
	case http.StatusOK:
	default:
		return nil, responseError("pending booking", status, body)
	}

	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil, nil
	}

	payload := &auth.PendingBookingPayload{}
	if err := decode(body, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type assignmentResponse struct {
	CinemaID *int `json:"cinemaId"`
}

// LookupCinemaAssignment implements auth.AssignmentLookup. A 404 or a null
// cinema id means the user is not assigned.
func (c *Client) LookupCinemaAssignment(ctx context.Context, accessToken string) (*int, error) {
	status, body, err := c.do(ctx, http.MethodGet, PathManagerCinema, accessToken, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return nil, nil
	default:
		return nil, responseError("cinema assignment", status, body)
	}

	var res assignmentResponse
	if err := decode(body, &res); err != nil {
		return nil, err
	}
	return res.CinemaID, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "request failed").
			WithTextCode(auth.TextCodeServiceUnavailable).
			WithMetadata(map[string]any{"method": method, "path": path})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response")
	}

	return resp.StatusCode, body, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode response").
			WithTextCode(auth.TextCodeServiceUnavailable)
	}
	return nil
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func apiErrorMessage(body []byte, fallback string) string {
	var res apiError
	if err := json.Unmarshal(body, &res); err == nil {
		if res.Message != "" {
			return res.Message
		}
		if res.Error != "" {
			return res.Error
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" || strings.HasPrefix(msg, "{") {
		return fallback
	}
	return msg
}

func responseError(operation string, status int, body []byte) error {
	message := apiErrorMessage(body, operation+" request failed")

	category := goerrors.CategoryOperation
	switch {
	case status == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
	case status == http.StatusForbidden:
		category = goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		category = goerrors.CategoryNotFound
	case status == http.StatusConflict:
		category = goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		category = goerrors.CategoryBadInput
	}

	return goerrors.New(message, category).
		WithCode(status).
		WithMetadata(map[string]any{
			"operation": operation,
			"status":    status,
		})
}
