package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-cinema-auth"
	"github.com/goliatone/go-cinema-auth/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuthAPI implements auth.AuthAPI
type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) Login(ctx context.Context, credentials auth.Credentials) (auth.TokenPair, error) {
	args := m.Called(ctx, credentials)
	return args.Get(0).(auth.TokenPair), args.Error(1)
}

func (m *MockAuthAPI) Register(ctx context.Context, payload auth.RegisterPayload) (*auth.RegisterResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RegisterResult), args.Error(1)
}

func (m *MockAuthAPI) Profile(ctx context.Context, accessToken string) (*auth.User, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockAuthAPI) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(auth.TokenPair), args.Error(1)
}

func (m *MockAuthAPI) Logout(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockAuthAPI) ForgotPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAuthAPI) ResetPassword(ctx context.Context, token, newPassword string) error {
	args := m.Called(ctx, token, newPassword)
	return args.Error(0)
}

// MockPendingBookingChecker implements auth.PendingBookingChecker
type MockPendingBookingChecker struct {
	mock.Mock
}

func (m *MockPendingBookingChecker) CheckPendingBooking(ctx context.Context, accessToken string) (*auth.PendingBookingPayload, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.PendingBookingPayload), args.Error(1)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

var testNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type harness struct {
	api        *MockAuthAPI
	checker    *MockPendingBookingChecker
	shared     *storage.Shared
	durable    *storage.Tab
	tab        *storage.Memory
	sink       *recordingSink
	controller *auth.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		api:     &MockAuthAPI{},
		checker: &MockPendingBookingChecker{},
		shared:  storage.NewShared(storage.WithClock(fixedClock)),
		tab:     storage.NewMemory(),
		sink:    &recordingSink{},
	}
	h.durable = h.shared.Tab()
	h.controller = auth.NewController(h.api, h.durable, h.tab, auth.DefaultOptions()).
		WithLogger(auth.NoopLogger()).
		WithClock(fixedClock).
		WithActivitySink(h.sink).
		WithPendingBookingChecker(h.checker)

	t.Cleanup(h.controller.Close)
	return h
}

func (h *harness) durableValue(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.durable.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func (h *harness) tabValue(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.tab.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func intPtr(v int) *int { return &v }
