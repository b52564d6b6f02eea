package gateway

import "fmt"

// State is where a single logical request is in the refresh-and-retry cycle.
type State int

const (
	// StateUnattempted: no refresh yet for this request.
	StateUnattempted State = iota
	// StateRefreshing: a refresh ran, either because the token had expired
	// before the first send or because the first send got a 401.
	StateRefreshing
	// StateRetried: replayed with a fresh token; further 401s pass through.
	StateRetried
)

func (s State) String() string {
	switch s {
	case StateUnattempted:
		return "unattempted"
	case StateRefreshing:
		return "refreshing"
	case StateRetried:
		return "retried"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// exchange tracks one logical request across its original send and retry.
type exchange struct {
	id    string
	state State
}

// canRefresh reports whether a 401 may still trigger a refresh.
func (x *exchange) canRefresh() bool {
	return x.state == StateUnattempted
}

// advance moves to the next state. States only move forward.
func (x *exchange) advance(to State) {
	if to <= x.state {
		panic(fmt.Sprintf("gateway: invalid transition %s -> %s", x.state, to))
	}
	x.state = to
}
