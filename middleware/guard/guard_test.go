package guard_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	auth "github.com/goliatone/go-cinema-auth"
	"github.com/goliatone/go-cinema-auth/middleware/guard"
	"github.com/goliatone/go-cinema-auth/storage"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// routerContext aliases router.Context so embedding it does not clash
// with the Context method below.
type routerContext = router.Context

// MockContext implements the parts of router.Context the guard touches.
type MockContext struct {
	routerContext
	mock.Mock
	path       string
	ctx        context.Context
	NextCalled bool
}

func newMockContext(path string) *MockContext {
	return &MockContext{path: path, ctx: context.Background()}
}

func (m *MockContext) Path() string { return m.path }

func (m *MockContext) Context() context.Context { return m.ctx }

func (m *MockContext) SetContext(ctx context.Context) { m.ctx = ctx }

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

type stubAPI struct {
	auth.AuthAPI
	user *auth.User
}

func (s *stubAPI) Profile(ctx context.Context, token string) (*auth.User, error) {
	if s.user == nil {
		return nil, errors.New("unauthorized")
	}
	return s.user, nil
}

type lookupFunc func(ctx context.Context, token string) (*int, error)

func (f lookupFunc) LookupCinemaAssignment(ctx context.Context, token string) (*int, error) {
	return f(ctx, token)
}

func newController(t *testing.T, user *auth.User) *auth.Controller {
	t.Helper()
	shared := storage.NewShared()
	durable := shared.Tab()
	if user != nil {
		require.NoError(t, durable.Set(context.Background(), "accessToken", "opaque-token"))
	}
	return auth.NewController(&stubAPI{user: user}, durable, storage.NewMemory(), auth.DefaultOptions()).
		WithLogger(auth.NoopLogger())
}

func TestGuard_RedirectsAnonymousToLogin(t *testing.T) {
	controller := newController(t, nil)
	mw := guard.New(guard.Config{Controller: controller, Policy: auth.AdminAreaPolicy()})

	ctx := newMockContext("/admin/movies")
	ctx.On("Redirect", "/login").Return(nil)

	handlerCalled := false
	err := mw(func(c router.Context) error {
		handlerCalled = true
		return nil
	})(ctx)

	require.NoError(t, err)
	assert.False(t, handlerCalled)
	ctx.AssertExpectations(t)
	assert.Equal(t, "/admin/movies", controller.ConsumeRedirect(context.Background(), "/"))
}

func TestGuard_ThreadsReadOnlyCapabilities(t *testing.T) {
	cinemaID := 3
	controller := newController(t, &auth.User{ID: 7, Role: auth.RoleManager, CinemaID: &cinemaID})
	mw := guard.New(guard.Config{Controller: controller, Policy: auth.AdminAreaPolicy()})

	ctx := newMockContext("/admin/customers")
	ctx.On("Locals", "session", mock.AnythingOfType("auth.Session")).Return(nil)
	ctx.On("Locals", "capabilities", auth.Capabilities{CanEdit: false}).Return(nil)

	handlerCalled := false
	err := mw(func(c router.Context) error {
		handlerCalled = true
		caps, ok := auth.CapabilitiesFromContext(c.Context())
		assert.True(t, ok)
		assert.False(t, caps.CanEdit)

		user, ok := auth.UserFromContext(c.Context())
		require.True(t, ok)
		assert.Equal(t, 7, user.ID)
		return nil
	})(ctx)

	require.NoError(t, err)
	assert.True(t, handlerCalled)
	ctx.AssertExpectations(t)
}

func TestGuard_ManagerEditPrefixRendersFull(t *testing.T) {
	cinemaID := 3
	controller := newController(t, &auth.User{ID: 7, Role: auth.RoleManager, CinemaID: &cinemaID})
	mw := guard.New(guard.Config{Controller: controller, Policy: auth.AdminAreaPolicy()})

	ctx := newMockContext("/admin/showtimes/12")
	ctx.On("Locals", "session", mock.Anything).Return(nil)
	ctx.On("Locals", "capabilities", auth.Capabilities{CanEdit: true}).Return(nil)

	err := mw(nil)(ctx)

	require.NoError(t, err)
	assert.True(t, ctx.NextCalled)
	ctx.AssertExpectations(t)
}

func TestGuard_WaitsForCinemaAssignment(t *testing.T) {
	controller := newController(t, &auth.User{ID: 9, Role: auth.RoleManager})

	release := make(chan struct{})
	resolver := auth.NewAssignmentResolver(lookupFunc(func(ctx context.Context, token string) (*int, error) {
		<-release
		return nil, nil
	})).WithLogger(auth.NoopLogger())

	mw := guard.New(guard.Config{
		Controller: controller,
		Policy:     auth.AdminAreaPolicy(),
		Assignment: resolver,
	})

	ctx := newMockContext("/admin/showtimes")
	ctx.On("NoContent", http.StatusAccepted).Return(nil)

	require.NoError(t, mw(nil)(ctx))
	assert.False(t, ctx.NextCalled)

	close(release)
	state := resolver.Wait(context.Background())
	assert.Equal(t, auth.AssignmentUnassigned, state.Status)

	ctx = newMockContext("/admin/showtimes")
	ctx.On("Redirect", "/admin/dashboard").Return(nil)

	require.NoError(t, mw(nil)(ctx))
	ctx.AssertExpectations(t)
}

func TestGuard_UnassignedManagerWithoutResolver(t *testing.T) {
	controller := newController(t, &auth.User{ID: 9, Role: auth.RoleManager})
	mw := guard.New(guard.Config{Controller: controller, Policy: auth.AdminAreaPolicy()})

	for i := 0; i < 3; i++ {
		ctx := newMockContext("/admin/showtimes")
		ctx.On("Redirect", "/admin/dashboard").Return(nil)

		require.NoError(t, mw(nil)(ctx))
		assert.False(t, ctx.NextCalled)
		ctx.AssertExpectations(t)
		ctx.AssertNotCalled(t, "NoContent", mock.Anything)
	}
}

func TestGuard_UnassignedManagerWithoutLookup(t *testing.T) {
	controller := newController(t, &auth.User{ID: 9, Role: auth.RoleManager})
	mw := guard.New(guard.Config{
		Controller: controller,
		Policy:     auth.AdminAreaPolicy(),
		Assignment: auth.NewAssignmentResolver(nil),
	})

	for i := 0; i < 3; i++ {
		ctx := newMockContext("/admin/showtimes")
		ctx.On("Redirect", "/admin/dashboard").Return(nil)

		require.NoError(t, mw(nil)(ctx))
		ctx.AssertExpectations(t)
		ctx.AssertNotCalled(t, "NoContent", mock.Anything)
	}
}

func TestGuard_FilterSkips(t *testing.T) {
	controller := newController(t, nil)
	mw := guard.New(guard.Config{
		Controller: controller,
		Policy:     auth.AdminAreaPolicy(),
		Filter: func(c router.Context) bool {
			return c.Path() == "/public"
		},
	})

	ctx := newMockContext("/public")
	require.NoError(t, mw(nil)(ctx))
	assert.True(t, ctx.NextCalled)
	assert.False(t, controller.Initialized())
}
