package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-cinema-auth"
	"github.com/goliatone/go-cinema-auth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestController_InitWithoutTokenMakesNoCalls(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.controller.Init(context.Background()))

	session := h.controller.Snapshot()
	assert.Nil(t, session.User)
	assert.False(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	assert.True(t, h.controller.Initialized())
	h.api.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
	h.api.AssertExpectations(t)
}

func TestController_InitRestoresSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.durable.Set(ctx, "accessToken", "tok"))

	h.api.On("Profile", mock.Anything, "tok").Return(&auth.User{ID: 1, Role: "customer", Email: "a@example.com"}, nil).Once()

	require.NoError(t, h.controller.Init(ctx))

	session := h.controller.Snapshot()
	require.NotNil(t, session.User)
	assert.True(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	assert.Equal(t, auth.RoleCustomer, session.User.Role)
	assert.Equal(t, 1, h.controller.CurrentUser().ID)
	assert.Contains(t, h.sink.types(), auth.ActivityEventSessionRestored)
}

func TestController_InitProfileFailureClearsTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.durable.Set(ctx, "accessToken", "stale"))
	require.NoError(t, h.durable.Set(ctx, "refreshToken", "r"))
	require.NoError(t, h.tab.Set(ctx, "booking_session_4", "{}"))

	h.api.On("Profile", mock.Anything, "stale").Return(nil, auth.ErrSessionExpired).Once()

	require.NoError(t, h.controller.Init(ctx))

	session := h.controller.Snapshot()
	assert.Nil(t, session.User)
	assert.False(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)

	_, ok := h.durableValue(t, "accessToken")
	assert.False(t, ok)
	_, ok = h.durableValue(t, "refreshToken")
	assert.False(t, ok)
	_, ok = h.tabValue(t, "booking_session_4")
	assert.True(t, ok, "booking keys survive a discarded session")
}

func TestController_InitRefreshesExpiredToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	expired := signedToken(t, testNow.Add(-time.Minute))
	require.NoError(t, h.durable.Set(ctx, "accessToken", expired))
	require.NoError(t, h.durable.Set(ctx, "refreshToken", "r1"))

	h.api.On("Refresh", mock.Anything, "r1").Return(auth.TokenPair{AccessToken: "fresh"}, nil).Once()
	h.api.On("Profile", mock.Anything, "fresh").Return(&auth.User{ID: 2, Role: auth.RoleStaff}, nil).Once()

	require.NoError(t, h.controller.Init(ctx))

	assert.True(t, h.controller.Snapshot().IsAuthenticated)
	access, _ := h.durableValue(t, "accessToken")
	assert.Equal(t, "fresh", access)
	refresh, _ := h.durableValue(t, "refreshToken")
	assert.Equal(t, "r1", refresh)
	h.api.AssertExpectations(t)
}

// failingStore rejects writes to one key once failSet is on.
type failingStore struct {
	storage.Store
	key     string
	failSet bool
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.failSet && key == s.key {
		return errors.New("quota exceeded")
	}
	return s.Store.Set(ctx, key, value)
}

func TestController_InitDiscardsSessionWhenRefreshCannotBeSaved(t *testing.T) {
	ctx := context.Background()
	api := &MockAuthAPI{}
	sink := &recordingSink{}
	durable := &failingStore{Store: storage.NewMemory(), key: "accessToken"}
	controller := auth.NewController(api, durable, storage.NewMemory(), auth.DefaultOptions()).
		WithLogger(auth.NoopLogger()).
		WithClock(fixedClock).
		WithActivitySink(sink)

	require.NoError(t, durable.Set(ctx, "accessToken", "tok"))
	api.On("Profile", mock.Anything, "tok").Return(&auth.User{ID: 4, Role: auth.RoleCustomer}, nil).Once()
	require.NoError(t, controller.Init(ctx))
	require.True(t, controller.Snapshot().IsAuthenticated)

	require.NoError(t, durable.Set(ctx, "accessToken", signedToken(t, testNow.Add(-time.Minute))))
	require.NoError(t, durable.Set(ctx, "refreshToken", "r1"))
	durable.failSet = true

	api.On("Refresh", mock.Anything, "r1").Return(auth.TokenPair{AccessToken: "fresh"}, nil).Once()

	controller.Invalidate()
	err := controller.Init(ctx)
	require.Error(t, err)

	session := controller.Snapshot()
	assert.False(t, session.IsAuthenticated)
	assert.Nil(t, session.User)
	assert.False(t, session.IsLoading)
	assert.Nil(t, controller.CurrentUser())

	_, ok, getErr := durable.Get(ctx, "refreshToken")
	require.NoError(t, getErr)
	assert.False(t, ok)

	assert.Contains(t, sink.types(), auth.ActivityEventSessionDiscarded)
	api.AssertNotCalled(t, "Profile", mock.Anything, "fresh")
	api.AssertExpectations(t)
}

func TestController_EnsureInitializedRunsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.durable.Set(ctx, "accessToken", "tok"))

	h.api.On("Profile", mock.Anything, "tok").
		Return(&auth.User{ID: 1, Role: auth.RoleCustomer}, nil).
		After(10 * time.Millisecond).
		Once()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.controller.EnsureInitialized(ctx))
		}()
	}
	wg.Wait()

	h.api.AssertNumberOfCalls(t, "Profile", 1)

	h.controller.Invalidate()
	h.api.On("Profile", mock.Anything, "tok").Return(&auth.User{ID: 1, Role: auth.RoleCustomer}, nil).Once()
	require.NoError(t, h.controller.EnsureInitialized(ctx))
	h.api.AssertNumberOfCalls(t, "Profile", 2)
}

func TestController_LoginSweepsCheckoutKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.tab.Set(ctx, "booking_session_9", "{}"))
	require.NoError(t, h.tab.Set(ctx, "payment_intent", "pi_1"))
	require.NoError(t, h.tab.Set(ctx, "has_pending_booking", `{"movieName":"Old"}`))
	require.NoError(t, h.tab.Set(ctx, "theme", "dark"))

	creds := auth.Credentials{Email: "ana@example.com", Password: "secret"}
	h.api.On("Login", mock.Anything, creds).Return(auth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, nil).Once()
	h.api.On("Profile", mock.Anything, "a1").Return(&auth.User{ID: 5, Role: auth.RoleCustomer}, nil).Once()
	h.checker.On("CheckPendingBooking", mock.Anything, "a1").Return(nil, nil).Once()

	require.NoError(t, h.controller.Login(ctx, creds))

	_, ok := h.tabValue(t, "booking_session_9")
	assert.False(t, ok)
	_, ok = h.tabValue(t, "payment_intent")
	assert.False(t, ok)
	_, ok = h.tabValue(t, "has_pending_booking")
	assert.True(t, ok)
	_, ok = h.tabValue(t, "theme")
	assert.True(t, ok)

	session := h.controller.Snapshot()
	assert.True(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	assert.Empty(t, session.Error)

	access, _ := h.durableValue(t, "accessToken")
	assert.Equal(t, "a1", access)
	assert.Equal(t, 5, h.controller.CurrentUser().ID)
	assert.Contains(t, h.sink.types(), auth.ActivityEventLoginSuccess)
}

func TestController_LoginRecoversPendingBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	creds := auth.Credentials{Email: "ana@example.com", Password: "secret"}
	h.api.On("Login", mock.Anything, creds).Return(auth.TokenPair{AccessToken: "a1"}, nil).Once()
	h.api.On("Profile", mock.Anything, "a1").Return(&auth.User{ID: 5, Role: auth.RoleCustomer}, nil).Once()
	h.checker.On("CheckPendingBooking", mock.Anything, "a1").Return(&auth.PendingBookingPayload{
		BookingID:       11,
		MovieID:         3,
		ShowtimeID:      22,
		MovieName:       "Dune",
		PaymentDeadline: testNow.Add(5 * time.Minute),
	}, nil).Once()

	require.NoError(t, h.controller.Login(ctx, creds))

	_, ok := h.tabValue(t, "booking_session_22")
	assert.True(t, ok)
	_, ok = h.tabValue(t, "booking_session_11")
	assert.True(t, ok)

	raw, ok := h.tabValue(t, "has_pending_booking")
	require.True(t, ok)
	var flag auth.PendingBookingFlag
	require.NoError(t, json.Unmarshal([]byte(raw), &flag))
	assert.Equal(t, "Dune", flag.MovieName)
	assert.Equal(t, 5, flag.RemainingMinutes)
}

func TestController_LoginSurvivesRecoveryFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	creds := auth.Credentials{Email: "ana@example.com", Password: "secret"}
	h.api.On("Login", mock.Anything, creds).Return(auth.TokenPair{AccessToken: "a1"}, nil).Once()
	h.api.On("Profile", mock.Anything, "a1").Return(&auth.User{ID: 5, Role: auth.RoleCustomer}, nil).Once()
	h.checker.On("CheckPendingBooking", mock.Anything, "a1").Return(nil, errors.New("booking service down")).Once()

	require.NoError(t, h.controller.Login(ctx, creds))
	assert.True(t, h.controller.Snapshot().IsAuthenticated)
}

func TestController_LoginFailureSetsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	creds := auth.Credentials{Email: "ana@example.com", Password: "wrong"}
	h.api.On("Login", mock.Anything, creds).Return(auth.TokenPair{}, auth.ErrInvalidCredentials).Once()

	err := h.controller.Login(ctx, creds)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))

	session := h.controller.Snapshot()
	assert.False(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	assert.Equal(t, "invalid email or password", session.Error)
	assert.Contains(t, h.sink.types(), auth.ActivityEventLoginFailure)
}

func TestController_LoginValidatesLocally(t *testing.T) {
	h := newHarness(t)

	err := h.controller.Login(context.Background(), auth.Credentials{Email: "not-an-email", Password: ""})
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	h.api.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestController_RegisterPasswordMismatchSkipsNetwork(t *testing.T) {
	h := newHarness(t)

	err := h.controller.Register(context.Background(), auth.RegisterPayload{
		FullName:        "Ana",
		Email:           "ana@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret2",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrPasswordMismatch))
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, "passwords do not match", h.controller.Snapshot().Error)
	h.api.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestController_RegisterAuthenticates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	payload := auth.RegisterPayload{
		FullName:        "Ana",
		Email:           "ana@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
	h.api.On("Register", mock.Anything, payload).Return(&auth.RegisterResult{
		User:   &auth.User{ID: 8, Role: auth.RoleCustomer, Email: "ana@example.com"},
		Tokens: auth.TokenPair{AccessToken: "a8", RefreshToken: "r8"},
	}, nil).Once()

	require.NoError(t, h.controller.Register(ctx, payload))

	session := h.controller.Snapshot()
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, 8, session.User.ID)
	access, _ := h.durableValue(t, "accessToken")
	assert.Equal(t, "a8", access)
}

func TestController_LogoutKeepsCheckoutKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.durable.Set(ctx, "accessToken", "tok"))
	require.NoError(t, h.durable.Set(ctx, "refreshToken", "r"))
	require.NoError(t, h.tab.Set(ctx, "booking_session_3", "{}"))

	h.api.On("Profile", mock.Anything, "tok").Return(&auth.User{ID: 1, Role: auth.RoleCustomer}, nil).Once()
	h.api.On("Logout", mock.Anything, "tok").Return(errors.New("offline")).Once()
	require.NoError(t, h.controller.Init(ctx))

	require.NoError(t, h.controller.Logout(ctx))

	session := h.controller.Snapshot()
	assert.Nil(t, session.User)
	assert.False(t, session.IsAuthenticated)
	assert.Nil(t, h.controller.CurrentUser())

	_, ok := h.durableValue(t, "accessToken")
	assert.False(t, ok)
	_, ok = h.tabValue(t, "booking_session_3")
	assert.True(t, ok)
}

func TestController_RefreshFailureLogsOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.durable.Set(ctx, "accessToken", "tok"))
	require.NoError(t, h.durable.Set(ctx, "refreshToken", "r"))

	h.api.On("Profile", mock.Anything, "tok").Return(&auth.User{ID: 1, Role: auth.RoleCustomer}, nil).Once()
	h.api.On("Refresh", mock.Anything, "r").Return(auth.TokenPair{}, errors.New("revoked")).Once()
	h.api.On("Logout", mock.Anything, "tok").Return(nil).Once()
	require.NoError(t, h.controller.Init(ctx))

	assert.False(t, h.controller.RefreshToken(ctx))

	session := h.controller.Snapshot()
	assert.False(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	_, ok := h.durableValue(t, "accessToken")
	assert.False(t, ok)
	assert.Contains(t, h.sink.types(), auth.ActivityEventRefreshFailure)
}

func TestController_RefreshRotatesAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.durable.Set(ctx, "accessToken", "old"))
	require.NoError(t, h.durable.Set(ctx, "refreshToken", "r"))

	h.api.On("Refresh", mock.Anything, "r").Return(auth.TokenPair{AccessToken: "new"}, nil).Once()

	assert.True(t, h.controller.RefreshToken(ctx))
	access, _ := h.durableValue(t, "accessToken")
	assert.Equal(t, "new", access)
}

func TestController_PasswordFlows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.api.On("ForgotPassword", mock.Anything, "ana@example.com").Return(nil).Once()
	require.NoError(t, h.controller.ForgotPassword(ctx, " ana@example.com "))

	h.api.On("ResetPassword", mock.Anything, "reset-token", "newsecret").Return(errors.New("token expired")).Once()
	err := h.controller.ResetPassword(ctx, "reset-token", "newsecret")
	require.Error(t, err)
	assert.NotEmpty(t, h.controller.Snapshot().Error)

	err = h.controller.ResetPassword(ctx, "", "x")
	assert.True(t, auth.IsValidationError(err))
	h.api.AssertExpectations(t)
}

func TestController_SessionInvariantHoldsOnEveryTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []auth.Session
	unsubscribe := h.controller.Session().Subscribe(func(s auth.Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsubscribe()

	creds := auth.Credentials{Email: "ana@example.com", Password: "secret"}
	h.api.On("Login", mock.Anything, creds).Return(auth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, nil).Once()
	h.api.On("Profile", mock.Anything, "a1").Return(&auth.User{ID: 5, Role: auth.RoleCustomer}, nil).Once()
	h.checker.On("CheckPendingBooking", mock.Anything, "a1").Return(nil, nil).Once()
	h.api.On("Logout", mock.Anything, "a1").Return(nil).Once()

	require.NoError(t, h.controller.Init(ctx))
	require.NoError(t, h.controller.Login(ctx, creds))
	require.NoError(t, h.controller.Logout(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, s := range seen {
		assert.True(t, s.Valid(), s.String())
	}
	assert.False(t, seen[len(seen)-1].IsLoading)
}

func TestController_RedirectMemory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.controller.RememberRedirect(ctx, "/admin/rooms?page=2"))
	assert.Equal(t, "/admin/rooms?page=2", h.controller.ConsumeRedirect(ctx, "/"))
	assert.Equal(t, "/", h.controller.ConsumeRedirect(ctx, "/"))

	require.NoError(t, h.controller.RememberRedirect(ctx, "//evil.example.com"))
	assert.Equal(t, "/", h.controller.ConsumeRedirect(ctx, "/"))
}
