package auth

import (
	"context"
	"sync"
)

// AssignmentResolver tracks the cinema assignment of the signed in manager.
// The lookup runs in the background; until it lands the state is Loading
// and the gate keeps the route in its loading state.
type AssignmentResolver struct {
	lookup AssignmentLookup
	logger Logger

	mu       sync.Mutex
	userID   int
	state    AssignmentState
	inflight bool
	waiters  []chan struct{}
}

// NewAssignmentResolver returns a resolver using lookup.
func NewAssignmentResolver(lookup AssignmentLookup) *AssignmentResolver {
	return &AssignmentResolver{
		lookup: lookup,
		logger: defLogger{},
		state:  AssignmentState{Status: AssignmentUnknown},
	}
}

func (r *AssignmentResolver) WithLogger(logger Logger) *AssignmentResolver {
	r.logger = normalizeLogger(logger)
	return r
}

// State returns the current state without triggering a lookup.
func (r *AssignmentResolver) State() AssignmentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyAssignment(r.state)
}

// Reset forgets the resolved assignment, e.g. after logout.
func (r *AssignmentResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = 0
	r.state = AssignmentState{Status: AssignmentUnknown}
}

// ProfileAssignment is the assignment known from the profile alone. A
// cinema-bound role without a cinema is Unassigned; roles that are not bound
// to a cinema get Unknown.
func ProfileAssignment(user *User) AssignmentState {
	switch {
	case user == nil || !user.Role.RequiresCinema():
		return AssignmentState{Status: AssignmentUnknown}
	case user.HasCinema():
		id := *user.CinemaID
		return AssignmentState{Status: AssignmentAssigned, CinemaID: &id}
	default:
		return AssignmentState{Status: AssignmentUnassigned}
	}
}

// Current returns the assignment for user and starts a lookup when none is
// known yet. Without a lookup the profile decides, see ProfileAssignment.
func (r *AssignmentResolver) Current(ctx context.Context, user *User, accessToken string) AssignmentState {
	if user == nil || !user.Role.RequiresCinema() || user.HasCinema() || r.lookup == nil {
		return ProfileAssignment(user)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.userID != user.ID {
		r.userID = user.ID
		r.state = AssignmentState{Status: AssignmentUnknown}
	}

	if r.state.Status == AssignmentUnknown && !r.inflight {
		r.inflight = true
		r.state = AssignmentState{Status: AssignmentLoading}
		go r.resolve(context.WithoutCancel(ctx), user.ID, accessToken)
	}

	return copyAssignment(r.state)
}

// Wait blocks until no lookup is in flight or ctx is done.
func (r *AssignmentResolver) Wait(ctx context.Context) AssignmentState {
	r.mu.Lock()
	if !r.inflight {
		state := copyAssignment(r.state)
		r.mu.Unlock()
		return state
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}
	return r.State()
}

func (r *AssignmentResolver) resolve(ctx context.Context, userID int, accessToken string) {
	cinemaID, err := r.lookup.LookupCinemaAssignment(ctx, accessToken)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.inflight = false
	for _, ch := range r.waiters {
		close(ch)
	}
	r.waiters = nil

	// the user changed while the lookup ran
	if r.userID != userID {
		return
	}

	switch {
	case err != nil:
		r.logger.Warn("cinema assignment lookup failed", "error", err)
		r.state = AssignmentState{Status: AssignmentUnknown}
	case cinemaID == nil:
		r.state = AssignmentState{Status: AssignmentUnassigned}
	default:
		id := *cinemaID
		r.state = AssignmentState{Status: AssignmentAssigned, CinemaID: &id}
	}
}

func copyAssignment(s AssignmentState) AssignmentState {
	if s.CinemaID != nil {
		id := *s.CinemaID
		s.CinemaID = &id
	}
	return s
}
