package session

// State is the authentication state of the session.
type State int

const (
	// StateUnauthenticated is the initial state, and the state after logout
	// or a renewal that did not complete.
	StateUnauthenticated State = iota

	// StateAuthenticated holds while the stored token is valid.
	StateAuthenticated

	// StateRefreshing means a silent refresh is outstanding.
	StateRefreshing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}
