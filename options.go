package bayeux

import (
	"net/http"
	"time"
)

// Options collects every constructor-time setting for a Session. Callers
// don't build this directly; they pass Option values to NewSession.
type Options struct {
	Logger Logger

	HTTPClient    *http.Client
	HTTPTransport http.RoundTripper

	TransportFactory     TransportFactory
	ReachabilityWatcher  ReachabilityWatcher
	SupportedConnectionTypes []string

	RetryInterval         time.Duration
	ReconnectInterval      time.Duration
	MaySendHandshakeAsync  bool
	AwaitOnlyHandshake     bool

	Delegate      Delegate
	DelegateQueue func(func())
	CallbackQueue func(func())
}

// Option configures a Session at construction time.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Logger:                   newNullLogger(),
		SupportedConnectionTypes: []string{ConnectionTypeWebsocket},
		RetryInterval:            defaultRetryInterval,
		ReconnectInterval:        1 * time.Second,
		MaySendHandshakeAsync:    true,
		AwaitOnlyHandshake:       false,
		DelegateQueue:            goroutineQueue,
		CallbackQueue:            goroutineQueue,
	}
}

// goroutineQueue runs f on its own goroutine, which is the default posture
// for both the delegate and callback queues: the core never assumes
// exclusive access to a queue a caller owns, so the safest default is "get
// off the worker queue immediately."
func goroutineQueue(f func()) {
	go f()
}

// WithLogger installs a Logger for session diagnostics. The default is a
// no-op logger.
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithHTTPClient installs the http.Client used for the async-handshake
// path.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithHTTPTransport installs the http.RoundTripper the async-handshake
// client's http.Client should use.
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(o *Options) {
		o.HTTPTransport = transport
	}
}

// WithTransportFactory overrides how the session builds its WebSocket
// transport. Tests use this to install a fake transport.
func WithTransportFactory(factory TransportFactory) Option {
	return func(o *Options) {
		o.TransportFactory = factory
	}
}

// WithReachabilityWatcher overrides the default polling reachability
// watcher. ReachabilityWatcher's method is unexported, so only watchers
// defined in this package can be passed.
func WithReachabilityWatcher(watcher ReachabilityWatcher) Option {
	return func(o *Options) {
		o.ReachabilityWatcher = watcher
	}
}

// WithSupportedConnectionTypes overrides the connection types advertised at
// handshake time. The default is just "websocket".
func WithSupportedConnectionTypes(types ...string) Option {
	return func(o *Options) {
		o.SupportedConnectionTypes = types
	}
}

// WithRetryInterval sets the initial keep-alive period, before any server
// advice overrides it.
func WithRetryInterval(d time.Duration) Option {
	return func(o *Options) {
		o.RetryInterval = d
	}
}

// WithReconnectInterval sets the delay before a reconnect attempt following
// a transport-level failure. A negative value disables automatic
// reconnection entirely.
func WithReconnectInterval(d time.Duration) Option {
	return func(o *Options) {
		o.ReconnectInterval = d
	}
}

// WithMaySendHandshakeAsync controls whether the handshake may be sent over
// HTTP in parallel with the WebSocket opening, or only after the socket is
// open.
func WithMaySendHandshakeAsync(v bool) Option {
	return func(o *Options) {
		o.MaySendHandshakeAsync = v
	}
}

// WithAwaitOnlyHandshake controls whether Connect's success callback fires
// once the handshake succeeds (true) or waits for the first /meta/connect
// acknowledgement (false, the default).
func WithAwaitOnlyHandshake(v bool) Option {
	return func(o *Options) {
		o.AwaitOnlyHandshake = v
	}
}

// WithDelegate installs the Delegate that receives lifecycle notifications.
func WithDelegate(d Delegate) Option {
	return func(o *Options) {
		o.Delegate = d
	}
}

// WithDelegateQueue overrides how delegate notifications are dispatched.
// The default runs each notification on its own goroutine.
func WithDelegateQueue(queue func(func())) Option {
	return func(o *Options) {
		if queue != nil {
			o.DelegateQueue = queue
		}
	}
}

// WithCallbackQueue overrides how subscription and connect-success
// callbacks are dispatched. The default runs each callback on its own
// goroutine.
func WithCallbackQueue(queue func(func())) Option {
	return func(o *Options) {
		if queue != nil {
			o.CallbackQueue = queue
		}
	}
}
