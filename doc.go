// Package auth provides the session runtime of the cinema ticketing front end:
// who is signed in, what each role may open, and how an unfinished checkout
// survives a login.
//
// Session lifecycle:
//   - Controller is the only writer of the persisted token pair and of the
//     SessionStore. Init restores a session from storage, Login/Register
//     create one, Logout and a failed RefreshToken end it. IsLoading is always
//     cleared when an operation returns, and IsAuthenticated always follows
//     the presence of a user.
//   - EnsureInitialized runs Init once; Invalidate schedules another run.
//     CrossTabSync calls Invalidate when another tab changes the tokens.
//
// Authorization:
//   - Gate.Evaluate is a pure function of a Policy, a Session and a Route.
//     Policies carry an allow list plus data variants (staff prefixes, manager
//     cinema assignment, read only views) and can be loaded from YAML.
//   - The guard middleware (middleware/guard) runs the gate for go-router
//     routes and hands Capabilities to the handler through the context.
//
// Pending bookings:
//   - After login, Recovery asks the booking service for an unfinished
//     checkout and writes it to tab storage under both its showtime and its
//     booking id, plus a one shot flag the booking page reads with TakeFlag.
//     Login sweeps older checkout keys first; logout leaves them in place.
//
// Activity sinks:
//   - ActivitySink receives login, logout, refresh, cross tab and recovery
//     events. Sinks run best-effort (errors are logged).
package auth
