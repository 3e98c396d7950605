package auth

import "context"

var controllerCtxKey = &contextKey{"controller"}
var capabilitiesCtxKey = &contextKey{"capabilities"}

type contextKey struct {
	name string
}

// WithController sets the Controller in the given context
func WithController(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerCtxKey, c)
}

// ControllerFromContext finds the Controller from the context.
func ControllerFromContext(ctx context.Context) (*Controller, bool) {
	raw, ok := ctx.Value(controllerCtxKey).(*Controller)
	return raw, ok && raw != nil
}

// UserFromContext returns the last known user of the controller stored in
// ctx. Consumers that cannot subscribe to the session, such as a realtime
// transport, use it to read the current identity.
func UserFromContext(ctx context.Context) (*User, bool) {
	c, ok := ControllerFromContext(ctx)
	if !ok {
		return nil, false
	}
	user := c.CurrentUser()
	return user, user != nil
}

// WithCapabilities sets the view capabilities resolved by a guard.
func WithCapabilities(ctx context.Context, caps Capabilities) context.Context {
	return context.WithValue(ctx, capabilitiesCtxKey, caps)
}

// CapabilitiesFromContext returns the capabilities resolved by a guard. Views
// rendered outside a guard get the zero value, which is read only.
func CapabilitiesFromContext(ctx context.Context) (Capabilities, bool) {
	caps, ok := ctx.Value(capabilitiesCtxKey).(Capabilities)
	return caps, ok
}
