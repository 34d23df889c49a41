package bayeux

import "sync/atomic"

// SessionState is the lifecycle state of a Session.
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type SessionState int32

const (
	// Disconnected is the state a Session starts in and returns to after an
	// explicit disconnect or a fatal error.
	Disconnected SessionState = iota
	// Handshaking is entered as soon as Connect is called and lasts until
	// the handshake reply arrives.
	Handshaking
	// Connecting is entered once the handshake succeeds and lasts until the
	// transport finishes opening (or, for the synchronous-handshake policy,
	// is equivalent to the handshake succeeding).
	Connecting
	// Connected is the steady state: keep-alive /meta/connect messages flow
	// and subscriptions/publishes are accepted.
	Connected
	// Disconnecting is entered when disconnect() is called while a clientId
	// is present, and lasts until the disconnect acknowledgement arrives.
	Disconnecting
)

var stateNames = [...]string{
	Disconnected:  "Disconnected",
	Handshaking:   "Handshaking",
	Connecting:    "Connecting",
	Connected:     "Connected",
	Disconnecting: "Disconnecting",
}

func (s SessionState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// isConnecting reports whether s is one of the two "in flight" states that
// share the fast is-connecting predicate called out in the data model:
// Handshaking and Connecting.
func (s SessionState) isConnecting() bool {
	return s == Handshaking || s == Connecting
}

// sessionState is a small atomic wrapper around SessionState so the worker
// queue's owner and any predicate callers (IsConnected, IsConnecting) agree
// on a single source of truth without taking a lock.
type sessionState struct {
	v atomic.Int32
}

func (s *sessionState) load() SessionState {
	return SessionState(s.v.Load())
}

func (s *sessionState) store(next SessionState) {
	s.v.Store(int32(next))
}

func (s *sessionState) compareAndSwap(from, to SessionState) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
