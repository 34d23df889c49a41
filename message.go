package bayeux

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"
)

// Message represents a single Bayeux envelope, inbound or outbound.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_message_fields
type Message struct {
	// Channel is the channel the message was sent on or is destined for.
	//
	// See also: https://docs.cometd.org/current/reference/#_channel
	Channel Channel `json:"channel"`
	// ClientID identifies the session via the identity the server assigned
	// at handshake time. Present on every envelope except /meta/handshake.
	//
	// See also: https://docs.cometd.org/current/reference/#_bayeux_clientid
	ClientID string `json:"clientId,omitempty"`
	// ID is an optional client-chosen correlation token.
	ID string `json:"id,omitempty"`
	// ConnectionType specifies the transport the client is using. It MUST
	// be included on /meta/connect requests.
	ConnectionType string `json:"connectionType,omitempty"`
	// Successful indicates whether a meta-channel request succeeded. It is
	// only meaningful on inbound acknowledgement messages.
	Successful bool `json:"successful,omitempty"`
	// Subscription carries the channel path(s) for subscribe/unsubscribe
	// requests and their acknowledgements. The wire form is a single string
	// when there is exactly one channel and a JSON array otherwise.
	Subscription Subscription `json:"subscription,omitempty"`
	// Data carries the published payload. It is kept as raw JSON so that
	// decoding never loses fidelity on its way back out to the wire.
	Data json.RawMessage `json:"data,omitempty"`
	// Advice carries the server's reconnection guidance. Like Ext, it is not
	// omitted when absent: a nil Advice marshals as "advice":null.
	//
	// See also: https://docs.cometd.org/current/reference/#_bayeux_advice
	Advice *Advice `json:"advice"`
	// Ext is an arbitrary JSON extension object, forwarded between client
	// and server for things like authentication tokens. Unlike most fields
	// here it is not omitted when absent: per the wire format, a message
	// with no extension data still carries "ext":null rather than dropping
	// the key.
	Ext map[string]interface{} `json:"ext"`
	// SupportedConnectionTypes is only present on /meta/handshake messages.
	SupportedConnectionTypes []string `json:"supportedConnectionTypes,omitempty"`
	// Error is a human-readable error string on unsuccessful responses.
	Error string `json:"error,omitempty"`
	// MinimumVersion and Version are only meaningful on /meta/handshake.
	MinimumVersion string `json:"minimumVersion,omitempty"`
	Version        string `json:"version,omitempty"`
}

// GetExt retrieves the Ext field map. If create is true it instantiates the
// map when nil, so callers (extensions, mostly) can always write into it.
func (m *Message) GetExt(create bool) map[string]interface{} {
	if m.Ext == nil && create {
		m.Ext = make(map[string]interface{})
	}
	return m.Ext
}

// Advice represents the server's guidance about reconnection behavior.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_advice
type Advice struct {
	// Reconnect is one of "retry", "handshake", or "none".
	Reconnect string `json:"reconnect,omitempty"`
	// Interval is the minimum delay, in milliseconds, the client should wait
	// before its next /meta/connect.
	Interval int `json:"interval,omitempty"`
	// Timeout is how long, in milliseconds, the server will hold a
	// /meta/connect open before responding.
	Timeout int `json:"timeout,omitempty"`
	// Hosts lists alternate hosts the client may retry against.
	Hosts []string `json:"hosts,omitempty"`
	// MultipleClients indicates the server detected more than one client
	// instance sharing this session.
	MultipleClients bool `json:"multiple-clients,omitempty"`
}

// ShouldRetry reports whether the advice asks the client to keep retrying
// /meta/connect without a fresh handshake.
func (a *Advice) ShouldRetry() bool {
	return a != nil && a.Reconnect == AdviceRetry
}

// ShouldHandshake reports whether the advice asks the client to re-handshake.
func (a *Advice) ShouldHandshake() bool {
	return a != nil && a.Reconnect == AdviceHandshake
}

// MustNotRetryOrHandshake reports whether the server has terminated the
// session and neither a retry nor a re-handshake is permitted.
func (a *Advice) MustNotRetryOrHandshake() bool {
	return a != nil && a.Reconnect == AdviceNone
}

// IntervalDuration returns Interval as a time.Duration.
func (a *Advice) IntervalDuration() time.Duration {
	if a == nil {
		return 0
	}
	return time.Duration(a.Interval) * time.Millisecond
}

const (
	// AdviceRetry tells the client to keep sending /meta/connect without a
	// fresh handshake.
	AdviceRetry = "retry"
	// AdviceHandshake tells the client to discard its clientId and
	// re-handshake.
	AdviceHandshake = "handshake"
	// AdviceNone tells the client the server will not allow it to reconnect.
	AdviceNone = "none"
)

const (
	// ConnectionTypeWebsocket is the only transport this client advertises
	// support for during handshake.
	ConnectionTypeWebsocket = "websocket"
	// ProtocolVersion is the Bayeux protocol version this client speaks.
	ProtocolVersion = "1.0"
	// ProtocolMinimumVersion is the oldest protocol version this client can
	// interoperate with.
	ProtocolMinimumVersion = "1.0beta"
)

var messageIDCounter uint64

// nextMessageID generates a monotonically increasing, opaque correlation
// token unique within this process. Uniqueness across sessions or processes
// is not required by the protocol.
func nextMessageID() string {
	n := atomic.AddUint64(&messageIDCounter, 1)
	seconds := float64(time.Now().UnixNano()) / float64(time.Second)
	return "msg_" + strconv.FormatFloat(seconds, 'f', 6, 64) + "_" + strconv.FormatUint(n, 10)
}
