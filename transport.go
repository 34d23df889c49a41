package bayeux

import (
	"context"
	"net/url"
)

// TransportEventKind discriminates the four events a Transport can raise.
type TransportEventKind int

const (
	// TransportOpened fires once the transport has finished connecting.
	TransportOpened TransportEventKind = iota
	// TransportReceivedText fires once per inbound text frame.
	TransportReceivedText
	// TransportClosed fires when the transport closes, cleanly or not.
	TransportClosed
	// TransportFailed fires on a send/connect failure that isn't a normal
	// close, carrying a POSIX-classified error for the reconnect
	// controller.
	TransportFailed
)

// TransportEvent is a single notification raised by a Transport. Only the
// fields relevant to Kind are populated.
type TransportEvent struct {
	Kind     TransportEventKind
	Text     []byte
	Code     int
	Reason   string
	WasClean bool
	Err      error
}

// Transport is the bidirectional collaborator the session drives. The
// session never blocks on it: Open and SendText are expected to be
// non-blocking, and all events are delivered on the channel returned by
// Events, which the session drains on its worker queue.
//
// See also spec §6, "Transport collaborator contract".
type Transport interface {
	// Open begins connecting to target. Opening happens in the background;
	// completion (or failure) is reported via Events.
	Open(ctx context.Context, target *url.URL) error
	// SendText sends a single frame. It returns an error if the transport
	// isn't open yet; the default WebSocket transport reports that case with
	// its own error type, which is not a SocketNotOpenError.
	SendText(text []byte) error
	// Close shuts the transport down. Safe to call more than once.
	Close() error
	// Events returns the channel every Opened/ReceivedText/Closed/Failed
	// notification is delivered on. The channel is closed after the final
	// Closed or Failed event.
	Events() <-chan TransportEvent
}

// TransportFactory builds a fresh Transport for a session. The default,
// installed when no WithTransportFactory option is given, builds a
// WebSocket transport.
type TransportFactory func(logger Logger) Transport
