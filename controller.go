package auth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-cinema-auth/storage"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Controller owns the session lifecycle: it is the only writer of the
// persisted tokens and of the SessionStore.
type Controller struct {
	api          AuthAPI
	cfg          Config
	session      *SessionStore
	tokens       *TokenStore
	bookings     *BookingStore
	tab          storage.Store
	checker      PendingBookingChecker
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time

	initMu      sync.Mutex
	initialized atomic.Bool
	current     atomic.Pointer[User]

	closeMu sync.Mutex
	closers []func()
}

// NewController returns a controller persisting tokens in durable and
// checkout state in tab.
func NewController(api AuthAPI, durable, tab storage.Store, cfg Config) *Controller {
	return &Controller{
		api:          api,
		cfg:          cfg,
		session:      NewSessionStore(),
		tokens:       NewTokenStore(durable, cfg),
		bookings:     NewBookingStore(tab, cfg),
		tab:          tab,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (c *Controller) WithLogger(logger Logger) *Controller {
	c.logger = normalizeLogger(logger)
	return c
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (c *Controller) WithActivitySink(sink ActivitySink) *Controller {
	c.activitySink = normalizeActivitySink(sink)
	return c
}

// WithClock injects a custom clock (useful for tests).
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	if clock != nil {
		c.now = clock
	}
	return c
}

// WithPendingBookingChecker enables pending booking recovery after login.
func (c *Controller) WithPendingBookingChecker(checker PendingBookingChecker) *Controller {
	c.checker = checker
	return c
}

// Session returns the store views subscribe to.
func (c *Controller) Session() *SessionStore {
	return c.session
}

// Snapshot is a shortcut for Session().Snapshot().
func (c *Controller) Snapshot() Session {
	return c.session.Snapshot()
}

// Tokens returns the token store.
func (c *Controller) Tokens() *TokenStore {
	return c.tokens
}

// Bookings returns the typed pending booking store.
func (c *Controller) Bookings() *BookingStore {
	return c.bookings
}

// Config returns the runtime options.
func (c *Controller) Config() Config {
	return c.cfg
}

// CurrentUser returns the last known user, for consumers that cannot
// subscribe to the session.
func (c *Controller) CurrentUser() *User {
	return c.current.Load().Clone()
}

// Initialized reports whether Init ran since the last Invalidate.
func (c *Controller) Initialized() bool {
	return c.initialized.Load()
}

// Invalidate forces the next EnsureInitialized to run Init again.
func (c *Controller) Invalidate() {
	c.initialized.Store(false)
}

// EnsureInitialized runs Init unless it already ran. Concurrent callers
// share a single run.
func (c *Controller) EnsureInitialized(ctx context.Context) error {
	if c.initialized.Load() {
		return nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized.Load() {
		return nil
	}
	return c.Init(ctx)
}

// Init restores the session from the persisted tokens. A missing token
// results in an anonymous session without any network call. A token the
// identity service rejects is discarded. Only storage failures are returned.
func (c *Controller) Init(ctx context.Context) error {
	// set first so an Invalidate during the run schedules another one
	c.initialized.Store(true)

	c.session.setLoading(true)
	defer c.session.setLoading(false)

	pair, ok, err := c.tokens.Load(ctx)
	if err != nil {
		c.logger.Error("failed to read persisted tokens", "error", err)
		c.becomeAnonymous()
		return err
	}

	if !ok {
		c.becomeAnonymous()
		return nil
	}

	accessToken := pair.AccessToken
	if pair.RefreshToken != "" && TokenExpired(accessToken, c.now()) {
		refreshed, err := c.api.Refresh(ctx, pair.RefreshToken)
		if err != nil || refreshed.AccessToken == "" {
			c.record(ctx, ActivityEventRefreshFailure, nil, map[string]any{
				"phase": "init",
				"error": errorString(err),
			})
			return c.discardSession(ctx, "refresh", err)
		}
		if err := c.tokens.Save(ctx, refreshed); err != nil {
			c.discardSession(ctx, "refresh", err)
			return err
		}
		accessToken = refreshed.AccessToken
	}

	user, err := c.api.Profile(ctx, accessToken)
	if err != nil || user == nil {
		return c.discardSession(ctx, "profile", err)
	}

	user.normalize()
	c.publish(user)
	c.session.setAuthenticated(user)

	c.logger.Debug("session restored: %s", print.MaybePrettyJSON(user))
	c.record(ctx, ActivityEventSessionRestored, user, nil)

	return nil
}

// Login validates credentials locally, exchanges them for tokens and loads
// the full profile. Stale checkout keys are swept and pending booking
// recovery runs before Login returns; recovery never fails a login.
func (c *Controller) Login(ctx context.Context, credentials Credentials) error {
	credentials.Email = strings.TrimSpace(credentials.Email)
	if err := credentials.Validate(); err != nil {
		err = invalidPayload(err)
		c.session.setError(ErrorMessage(err))
		return err
	}

	c.session.setLoading(true)
	defer c.session.setLoading(false)
	c.session.setError("")

	pair, err := c.api.Login(ctx, credentials)
	if err != nil {
		return c.loginFailed(ctx, credentials.Email, wrapRemote(err, "login request failed"))
	}

	if pair.AccessToken == "" {
		return c.loginFailed(ctx, credentials.Email, ErrInvalidCredentials)
	}

	if err := c.tokens.Save(ctx, pair); err != nil {
		return c.loginFailed(ctx, credentials.Email, err)
	}

	user, err := c.api.Profile(ctx, pair.AccessToken)
	if err != nil || user == nil {
		if clearErr := c.tokens.Clear(ctx); clearErr != nil {
			c.logger.Error("failed to clear tokens", "error", clearErr)
		}
		if err == nil {
			err = ErrSessionExpired
		}
		return c.loginFailed(ctx, credentials.Email, wrapRemote(err, "profile request failed"))
	}
	user.normalize()

	swept, err := c.bookings.Sweep(ctx)
	if err != nil {
		c.logger.Warn("failed to sweep checkout keys", "error", err)
	}

	c.publish(user)
	c.session.setAuthenticated(user)
	c.initialized.Store(true)

	result := NewRecovery(
		c.checker,
		c.bookings,
		WithRecoveryClock(c.now),
		WithRecoveryLogger(c.logger),
		WithRecoveryActivitySink(c.activitySink),
	).Run(ctx, pair.AccessToken, user)

	c.record(ctx, ActivityEventLoginSuccess, user, map[string]any{
		"swept_keys": len(swept),
		"recovery":   string(result.Outcome),
	})

	return nil
}

func (c *Controller) loginFailed(ctx context.Context, email string, err error) error {
	c.logger.Error("login failed", "error", err)
	c.session.setError(ErrorMessage(err))
	c.record(ctx, ActivityEventLoginFailure, nil, map[string]any{
		"email": email,
		"error": err.Error(),
	})
	return err
}

// Register signs up a new account. A confirmation mismatch fails with
// ErrPasswordMismatch before any network call.
func (c *Controller) Register(ctx context.Context, payload RegisterPayload) error {
	payload.Email = strings.TrimSpace(payload.Email)
	if err := payload.validate(c.cfg.GetPhoneRegion()); err != nil {
		err = invalidPayload(err)
		c.session.setError(ErrorMessage(err))
		return err
	}

	c.session.setLoading(true)
	defer c.session.setLoading(false)
	c.session.setError("")

	result, err := c.api.Register(ctx, payload)
	if err != nil {
		err = wrapRemote(err, "register request failed")
		c.logger.Error("register failed", "error", err)
		c.session.setError(ErrorMessage(err))
		return err
	}

	if result == nil || result.User == nil {
		err = goerrors.New("registration returned no identity", goerrors.CategoryOperation).
			WithTextCode(TextCodeServiceUnavailable).
			WithCode(goerrors.CodeInternal)
		c.session.setError(ErrorMessage(err))
		return err
	}

	if result.Tokens.AccessToken != "" {
		if err := c.tokens.Save(ctx, result.Tokens); err != nil {
			c.session.setError(ErrorMessage(err))
			return err
		}
	}

	user := result.User
	user.normalize()
	c.publish(user)
	c.session.setAuthenticated(user)
	c.initialized.Store(true)

	c.record(ctx, ActivityEventRegisterSuccess, user, map[string]any{
		"email": user.Email,
	})

	return nil
}

// Logout clears the auth tokens and the session. Checkout keys are left in
// place; the next login sweeps them. Only storage failures are returned.
func (c *Controller) Logout(ctx context.Context) error {
	if pair, ok, err := c.tokens.Load(ctx); err == nil && ok {
		if err := c.api.Logout(ctx, pair.AccessToken); err != nil {
			c.logger.Debug("remote logout failed", "error", err)
		}
	}

	err := c.tokens.Clear(ctx)
	if err != nil {
		c.logger.Error("failed to clear tokens", "error", err)
	}

	user := c.current.Swap(nil)
	c.session.setAnonymous()
	c.record(ctx, ActivityEventLogout, user, nil)

	return err
}

// RefreshToken silently rotates the access token. Any failure logs the
// user out; it reports whether the session survived.
func (c *Controller) RefreshToken(ctx context.Context) bool {
	c.session.setLoading(true)
	defer c.session.setLoading(false)

	refreshToken, err := c.tokens.RefreshToken(ctx)
	if err == nil && refreshToken == "" {
		err = ErrNoRefreshToken
	}

	var pair TokenPair
	if err == nil {
		pair, err = c.api.Refresh(ctx, refreshToken)
		if err == nil && pair.AccessToken == "" {
			err = ErrSessionExpired
		}
	}

	if err == nil {
		err = c.tokens.Save(ctx, pair)
	}

	if err != nil {
		c.logger.Warn("token refresh failed, logging out", "error", err)
		c.record(ctx, ActivityEventRefreshFailure, c.current.Load(), map[string]any{
			"error": err.Error(),
		})
		if logoutErr := c.Logout(ctx); logoutErr != nil {
			c.logger.Error("logout after refresh failure", "error", logoutErr)
		}
		return false
	}

	return true
}

// ForgotPassword requests a reset link for email.
func (c *Controller) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		err = invalidPayload(err)
		c.session.setError(ErrorMessage(err))
		return err
	}

	if err := c.api.ForgotPassword(ctx, email); err != nil {
		err = wrapRemote(err, "forgot password request failed")
		c.session.setError(ErrorMessage(err))
		return err
	}

	c.session.setError("")
	c.record(ctx, ActivityEventPasswordResetStart, nil, map[string]any{
		"email": email,
	})
	return nil
}

// ResetPassword finalizes a reset with the token from the reset link.
func (c *Controller) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validateReset(token, newPassword); err != nil {
		err = invalidPayload(err)
		c.session.setError(ErrorMessage(err))
		return err
	}

	if err := c.api.ResetPassword(ctx, token, newPassword); err != nil {
		err = wrapRemote(err, "reset password request failed")
		c.session.setError(ErrorMessage(err))
		return err
	}

	c.session.setError("")
	c.record(ctx, ActivityEventPasswordReset, nil, nil)
	return nil
}

// RememberRedirect stores the path a guard bounced to login, so it can be
// restored afterwards.
func (c *Controller) RememberRedirect(ctx context.Context, path string) error {
	if !safeRedirect(path) || path == c.cfg.GetLoginPath() {
		return nil
	}
	return c.tab.Set(ctx, c.cfg.GetRedirectKey(), path)
}

// ConsumeRedirect returns the remembered path once, or fallback.
func (c *Controller) ConsumeRedirect(ctx context.Context, fallback string) string {
	key := c.cfg.GetRedirectKey()
	path, ok, err := c.tab.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}

	if err := c.tab.Remove(ctx, key); err != nil {
		c.logger.Warn("failed to remove redirect path", "error", err)
	}

	if !safeRedirect(path) {
		return fallback
	}
	return path
}

// Close releases the subscriptions attached to the controller.
func (c *Controller) Close() {
	c.closeMu.Lock()
	closers := c.closers
	c.closers = nil
	c.closeMu.Unlock()

	for _, fn := range closers {
		fn()
	}
}

func (c *Controller) onClose(fn func()) {
	c.closeMu.Lock()
	c.closers = append(c.closers, fn)
	c.closeMu.Unlock()
}

func (c *Controller) publish(user *User) {
	c.current.Store(user.Clone())
}

func (c *Controller) becomeAnonymous() {
	c.current.Store(nil)
	c.session.setAnonymous()
}

func (c *Controller) discardSession(ctx context.Context, reason string, cause error) error {
	c.logger.Warn("discarding stored session", "reason", reason, "error", cause)

	err := c.tokens.Clear(ctx)
	if err != nil {
		c.logger.Error("failed to clear tokens", "error", err)
	}

	c.becomeAnonymous()
	c.record(ctx, ActivityEventSessionDiscarded, nil, map[string]any{
		"reason": reason,
		"error":  errorString(cause),
	})
	return err
}

func (c *Controller) record(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: c.now(),
	}
	if user != nil {
		event.UserID = user.ID
		event.Role = user.Role
	}
	if err := normalizeActivitySink(c.activitySink).Record(ctx, event); err != nil {
		c.logger.Warn("activity sink record error: %v", err)
	}
}

func safeRedirect(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//")
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
