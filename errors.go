package bayeux

import "fmt"

// sentinel is a string-backed error, used the same way the teacher's v2
// package uses it: for fixed, comparable errors that never need to carry a
// cause.
type sentinel string

func (s sentinel) Error() string {
	return string(s)
}

const (
	// ErrSessionNotConnected is returned when a caller tries to subscribe or
	// publish while the session isn't Connected.
	ErrSessionNotConnected = sentinel("session is not connected")

	// ErrInvalidChannel is returned when a channel path doesn't begin with
	// "/" or has a malformed wildcard.
	ErrInvalidChannel = sentinel("invalid channel")

	// ErrNoChannels is returned when Subscribe/Unsubscribe is called with an
	// empty channel list.
	ErrNoChannels = sentinel("no channels provided")

	// ErrAlreadyRegistered is returned when the same MessageExtender is
	// registered twice.
	ErrAlreadyRegistered = sentinel("extension already registered")

	// ErrUnhandledMetaChannel is surfaced when an inbound message arrives on
	// a /meta/* channel this client doesn't recognize.
	ErrUnhandledMetaChannel = sentinel("unhandled meta channel message")

	// ErrUnexpectedMessage names the case of an inbound message whose
	// channel is neither a known meta-channel nor a locally subscribed
	// channel. The Session reports such messages through
	// Delegate.ReceivedUnexpectedMessage and does not surface this error.
	ErrUnexpectedMessage = sentinel("received unexpected message")

	// ErrNoCommonSupportedConnectionType is returned when a handshake reply
	// advertises no connection type this client supports.
	ErrNoCommonSupportedConnectionType = sentinel("no common supported connection type")

	// ErrSessionTerminated is surfaced when the server sends
	// advice={reconnect:"none"} on the connection's subscription.
	ErrSessionTerminated = sentinel("server terminated the session")
)

// SocketNotOpenError is returned when a send is attempted while the
// transport is not open.
type SocketNotOpenError struct{}

func (SocketNotOpenError) Error() string { return "socket is not open" }

// SocketClosedError wraps an unexpected (non-clean, or reasoned) transport
// closure.
type SocketClosedError struct {
	Code   int
	Reason string
}

func (e SocketClosedError) Error() string {
	return fmt.Sprintf("socket closed unexpectedly (code %d): %s", e.Code, e.Reason)
}

// HTTPUnexpectedStatusCodeError is returned when the async-handshake HTTP
// request doesn't come back with a 200.
type HTTPUnexpectedStatusCodeError struct {
	StatusCode int
	Status     string
}

func (e HTTPUnexpectedStatusCodeError) Error() string {
	return fmt.Sprintf("unexpected HTTP status from handshake: %d %s", e.StatusCode, e.Status)
}

// MalformedJSONDataError wraps a failure to decode an inbound payload, or an
// inbound payload that wasn't a JSON array.
type MalformedJSONDataError struct {
	Err error
}

func (e MalformedJSONDataError) Error() string {
	return fmt.Sprintf("malformed JSON data: %s", e.Err)
}

func (e MalformedJSONDataError) Unwrap() error { return e.Err }

// MalformedObjectDataError wraps a failure to encode an outbound value.
type MalformedObjectDataError struct {
	Err error
}

func (e MalformedObjectDataError) Error() string {
	return fmt.Sprintf("malformed object data: %s", e.Err)
}

func (e MalformedObjectDataError) Unwrap() error { return e.Err }

// HandshakeFailedError is returned (and delivered to the delegate) when a
// handshake reply is unsuccessful.
type HandshakeFailedError struct {
	Reason string
}

func (e HandshakeFailedError) Error() string {
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}

// ConnectFailedError is returned when a /meta/connect reply is unsuccessful
// after a handshake has already completed.
type ConnectFailedError struct {
	Reason string
}

func (e ConnectFailedError) Error() string {
	return fmt.Sprintf("connect failed: %s", e.Reason)
}

// SubscribeFailedError is returned when a /meta/subscribe reply is
// unsuccessful.
type SubscribeFailedError struct {
	Channels []Channel
	Reason   string
}

func (e SubscribeFailedError) Error() string {
	return fmt.Sprintf("subscribe to %v failed: %s", e.Channels, e.Reason)
}

// UnsubscribeFailedError is returned when a /meta/unsubscribe reply is
// unsuccessful.
type UnsubscribeFailedError struct {
	Channels []Channel
	Reason   string
}

func (e UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unsubscribe from %v failed: %s", e.Channels, e.Reason)
}

// ReceivedAdviceReconnectNoneError is surfaced when the server has
// terminated the session via advice={reconnect:"none"} on the connection
// subscription.
type ReceivedAdviceReconnectNoneError struct {
	Message string
}

func (e ReceivedAdviceReconnectNoneError) Error() string {
	if e.Message == "" {
		return ErrSessionTerminated.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSessionTerminated.Error(), e.Message)
}

// InvalidStateTransitionError describes a transition that isn't legal from
// the current state. The Session does not return it: calls made in a state
// that doesn't allow them are ignored, or rejected with
// ErrSessionNotConnected.
type InvalidStateTransitionError struct {
	From SessionState
	To   SessionState
}

func (e InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid session state transition from %s to %s", e.From, e.To)
}
