package bayeux

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Session is a single Bayeux client connection. Callers construct one with
// NewSession and must hold onto the returned pointer for as long as they
// want the connection to exist: this package does not implement a
// self-retention trick, so a Session with no remaining references is
// eligible for collection (and its background goroutine leaked) like any
// other Go value with no special lifetime magic.
type Session struct {
	opts    *Options
	baseURL *url.URL

	state    sessionState
	clientID clientIDHolder

	registry     *subscriptionRegistry
	dispatcher   *dispatcher
	reconnectCtl *reconnectController
	keepAlive    *keepAliveScheduler
	httpHandshake *httpHandshakeClient

	extMu sync.Mutex
	exts  []MessageExtender

	worker chan func()

	transportMu sync.Mutex
	transport   Transport

	socketOpen   atomic.Bool
	connectAcked atomic.Bool
	reconnecting atomic.Bool

	connectionExtension  map[string]interface{}
	pendingConnectSuccess func()
	pendingDisconnectErr error
}

// clientIDHolder guards the clientId assigned at handshake time behind an
// RWMutex, since it is read from arbitrary goroutines (the worker queue when
// building envelopes, transport callbacks when checking "do we have an
// identity yet").
type clientIDHolder struct {
	mu sync.RWMutex
	v  string
}

func (h *clientIDHolder) get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.v
}

func (h *clientIDHolder) set(v string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.v = v
}

func (h *clientIDHolder) clear() { h.set("") }

// NewSession parses serverAddress the way NewBayeuxClient does and builds a
// Session ready to Connect. The address's scheme determines both the
// WebSocket URL (http/https become ws/wss) and the URL the async handshake
// is POSTed to (ws/wss become http/https).
func NewSession(serverAddress string, opts ...Option) (*Session, error) {
	parsed, err := url.Parse(serverAddress)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	httpClient, err := newHTTPHandshakeClient(o.HTTPClient, o.HTTPTransport)
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:          o,
		baseURL:       parsed,
		registry:      newSubscriptionRegistry(),
		keepAlive:     newKeepAliveScheduler(),
		httpHandshake: httpClient,
		worker:        make(chan func(), 64),
	}

	s.dispatcher = newDispatcher(s.registry)
	s.dispatcher.onUnhandledMetaChannel = s.handleUnhandledMetaChannel
	s.dispatcher.onUnexpectedMessage = s.handleUnexpectedMessage
	s.dispatcher.deliverToSubscriber = s.deliverToSubscriber

	s.dispatcher.setHandler(MetaHandshake, s.handleHandshakeReply)
	s.dispatcher.setHandler(MetaConnect, s.handleConnectReply)
	s.dispatcher.setHandler(MetaDisconnect, s.handleDisconnectReply)
	s.dispatcher.setHandler(MetaSubscribe, s.handleSubscribeReply)
	s.dispatcher.setHandler(MetaUnsubscribe, s.handleUnsubscribeReply)

	s.reconnectCtl = newReconnectController(&reconnectHost{
		setRetryInterval:     func(d time.Duration) { s.opts.RetryInterval = d },
		retryInterval:        func() time.Duration { return s.opts.RetryInterval },
		setReconnectInterval: func(d time.Duration) { s.opts.ReconnectInterval = d },
		reconnectInterval:    func() time.Duration { return s.opts.ReconnectInterval },
		isReconnecting:       s.IsReconnecting,
		host:                 func() string { return s.baseURL.Hostname() },
		handshake:            func() { s.post(s.reconnect) },
		reconnect:            func() { s.post(s.reconnect) },
		disconnectToIdle:     func(err error) { s.disconnectWithErr(err) },
		scheduleAfter:        func(d time.Duration, fn func()) { time.AfterFunc(d, func() { s.post(fn) }) },
		delegate:             func() Delegate { return s.opts.Delegate },
		postToDelegateQueue:  s.postToDelegateQueue,
		logger:               func() Logger { return s.opts.Logger },
	}, o.ReachabilityWatcher)
	s.dispatcher.applyAdvice = s.reconnectCtl.handleAdvice

	go s.runWorker()
	return s, nil
}

func (s *Session) runWorker() {
	for fn := range s.worker {
		fn()
	}
}

// post enqueues fn to run on the worker goroutine. Every method that
// touches session state does this instead of taking a lock.
func (s *Session) post(fn func()) {
	s.worker <- fn
}

func (s *Session) postToDelegateQueue(fn func()) {
	if s.opts.Delegate == nil {
		return
	}
	s.opts.DelegateQueue(fn)
}

func (s *Session) notifyDelegate(fn func(Delegate)) {
	d := s.opts.Delegate
	if d == nil {
		return
	}
	s.opts.DelegateQueue(func() { fn(d) })
}

func (s *Session) notifyFailed(err error) {
	if err == nil {
		return
	}
	s.notifyDelegate(func(d Delegate) { d.Failed(err) })
}

// IsConnected reports whether the session is in the Connected state.
func (s *Session) IsConnected() bool { return s.state.load() == Connected }

// IsConnecting reports whether the session is handshaking or waiting for
// its transport to finish opening.
func (s *Session) IsConnecting() bool { return s.state.load().isConnecting() }

// IsReconnecting reports whether an automatic reconnect attempt, triggered
// by advice or a transport error, is currently under way.
func (s *Session) IsReconnecting() bool { return s.reconnecting.Load() }

// SubscribedChannels returns every channel with a locally registered
// subscription, connected or not.
func (s *Session) SubscribedChannels() []Channel { return s.registry.channels() }

// Connect begins a handshake and transitions the session toward Connected.
// It is idempotent: calling it while already connecting or connected does
// nothing. extension, if non-nil, is recorded as the connectionExtension
// sent on every subsequent /meta/connect. onSuccess, if non-nil, is
// installed as a one-shot handler on the meta-channel awaitOnlyHandshake
// selects; it fires exactly once, on the callback queue, the first time
// the session is truly Connected when that handler's reply arrives —
// otherwise the handler re-chains itself so a rejected or retried
// handshake doesn't lose it, until the session is connected or explicitly
// disconnected.
func (s *Session) Connect(extension map[string]interface{}, onSuccess func()) {
	s.post(func() { s.connectInternal(extension, onSuccess) })
}

// connectInternal is shared by Connect and reconnect.
func (s *Session) connectInternal(extension map[string]interface{}, onSuccess func()) {
	if s.state.load() != Disconnected {
		return
	}

	logger := s.opts.Logger.WithField("at", "connect")
	logger.Debug("starting")

	s.state.store(Handshaking)
	s.clientID.clear()
	s.socketOpen.Store(false)
	s.connectAcked.Store(false)
	s.reconnectCtl.setConnectionRequired(true)
	s.connectionExtension = extension

	if onSuccess != nil {
		s.installConnectSuccessHandler(onSuccess)
	}

	transport := s.newTransport()
	s.transportMu.Lock()
	s.transport = transport
	s.transportMu.Unlock()

	go s.pumpTransportEvents(transport)

	if err := transport.Open(context.Background(), s.wsURL()); err != nil {
		logger.WithError(err).Debug("transport failed to open")
		s.notifyFailed(err)
		s.reconnectCtl.handleTransportError(err)
		s.state.store(Disconnected)
		s.notifyDelegate(func(d Delegate) { d.Disconnected(nil, err) })
		return
	}

	if s.opts.MaySendHandshakeAsync {
		s.sendHandshakeAsyncHTTP()
	}
}

// installConnectSuccessHandler arms the one-shot success handler connect's
// onSuccess contract describes.
func (s *Session) installConnectSuccessHandler(onSuccess func()) {
	s.pendingConnectSuccess = onSuccess
	s.armConnectSuccessHandler()
}

func (s *Session) armConnectSuccessHandler() {
	channel := MetaConnect
	if s.opts.AwaitOnlyHandshake {
		channel = MetaHandshake
	}
	s.dispatcher.chainOnce(channel, func(m Message) { s.runConnectSuccessHandler(channel, m) })
}

// runConnectSuccessHandler runs the reply's normal handler (chainOnce
// replaces the permanent handler for this one message, so it has to be
// invoked explicitly here too) and then fires the pending onSuccess
// callback if that left the session Connected, re-chains itself if the
// session is still trying, or gives up once the session is Disconnected.
func (s *Session) runConnectSuccessHandler(channel Channel, m Message) {
	if channel == MetaHandshake {
		s.handleHandshakeReply(m)
	} else {
		s.handleConnectReply(m)
	}

	switch {
	case s.IsConnected():
		if cb := s.pendingConnectSuccess; cb != nil {
			s.pendingConnectSuccess = nil
			s.opts.CallbackQueue(cb)
		}
	case s.state.load() == Disconnected:
		s.pendingConnectSuccess = nil
	default:
		s.armConnectSuccessHandler()
	}
}

func (s *Session) newTransport() Transport {
	factory := s.opts.TransportFactory
	if factory == nil {
		factory = defaultTransportFactory
	}
	return factory(s.opts.Logger)
}

// wsURL derives the WebSocket endpoint from the session's base URL,
// upgrading http/https to ws/wss the way a caller configuring a single
// "https://example.com/bayeux" address expects.
func (s *Session) wsURL() *url.URL {
	u := *s.baseURL
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return &u
}

// pumpTransportEvents drains transport's event channel onto the worker
// queue. It exits once the channel closes, which every Transport
// implementation does after its final Closed/Failed event.
func (s *Session) pumpTransportEvents(transport Transport) {
	for ev := range transport.Events() {
		ev := ev
		s.post(func() { s.handleTransportEvent(transport, ev) })
	}
}

func (s *Session) handleTransportEvent(transport Transport, ev TransportEvent) {
	s.transportMu.Lock()
	current := s.transport
	s.transportMu.Unlock()
	if transport != current {
		// Events from a transport a prior reconnect already abandoned.
		return
	}

	switch ev.Kind {
	case TransportOpened:
		s.handleTransportOpened()
	case TransportReceivedText:
		s.handleTransportText(ev.Text)
	case TransportClosed:
		s.handleTransportClosed(ev)
	case TransportFailed:
		s.handleTransportFailed(ev)
	}
}

func (s *Session) handleTransportOpened() {
	s.socketOpen.Store(true)
	if !s.opts.MaySendHandshakeAsync {
		s.sendHandshakeOverSocket()
	}
	s.maybeTransitionToConnected()
}

func (s *Session) handleTransportText(text []byte) {
	messages, err := decodeBatch(text)
	if err != nil {
		s.notifyFailed(err)
		return
	}
	for _, m := range messages {
		s.applyIncomingExtensions(&m)
		s.dispatcher.dispatch(m)
	}
}

func (s *Session) handleTransportClosed(ev TransportEvent) {
	switch s.state.load() {
	case Disconnected:
		return
	case Disconnecting:
		s.finishDisconnect(s.pendingDisconnectErr)
		return
	}

	s.keepAlive.stop()
	err := ev.Err
	if err == nil {
		err = SocketClosedError{Code: ev.Code, Reason: ev.Reason}
	}
	s.opts.Logger.WithField("at", "transport").WithError(err).Debug("closed")
	s.notifyFailed(err)
	s.state.store(Disconnected)
	s.notifyDelegate(func(d Delegate) { d.Disconnected(nil, err) })
	s.reconnectCtl.handleTransportError(err)
}

func (s *Session) handleTransportFailed(ev TransportEvent) {
	if s.state.load() == Disconnected {
		return
	}
	s.keepAlive.stop()
	s.opts.Logger.WithField("at", "transport").WithError(ev.Err).Debug("failed")
	s.notifyFailed(ev.Err)
	s.state.store(Disconnected)
	s.notifyDelegate(func(d Delegate) { d.Disconnected(nil, ev.Err) })
	s.reconnectCtl.handleTransportError(ev.Err)
}

func (s *Session) sendHandshakeOverSocket() {
	msg := encodeHandshake(s.opts.SupportedConnectionTypes)
	s.applyOutgoingExtensions(&msg)
	data, err := encodeSingleForWebsocket(msg)
	if err != nil {
		s.notifyFailed(err)
		return
	}
	s.transportMu.Lock()
	transport := s.transport
	s.transportMu.Unlock()
	if err := transport.SendText(data); err != nil {
		s.notifyFailed(err)
	}
}

func (s *Session) sendHandshakeAsyncHTTP() {
	msg := encodeHandshake(s.opts.SupportedConnectionTypes)
	s.applyOutgoingExtensions(&msg)
	body, err := encodeBatchForHTTP(msg)
	if err != nil {
		s.notifyFailed(err)
		return
	}

	target := *s.baseURL
	switch target.Scheme {
	case "ws":
		target.Scheme = "http"
	case "wss":
		target.Scheme = "https"
	}
	go func() {
		resp, err := s.httpHandshake.post(context.Background(), &target, body)
		s.post(func() {
			if err != nil {
				s.notifyFailed(err)
				return
			}
			messages, err := decodeBatch(resp)
			if err != nil {
				s.notifyFailed(err)
				return
			}
			for _, m := range messages {
				s.applyIncomingExtensions(&m)
				s.dispatcher.dispatch(m)
			}
		})
	}()
}

func (s *Session) handleHandshakeReply(m Message) {
	logger := s.opts.Logger.WithField("at", "handshake")

	if !m.Successful {
		err := HandshakeFailedError{Reason: m.Error}
		logger.WithError(err).Debug("rejected")
		s.notifyFailed(err)
		s.disconnectWithErr(err)
		return
	}

	if !hasCommonConnectionType(m.SupportedConnectionTypes, s.opts.SupportedConnectionTypes) {
		logger.Debug("no common supported connection type")
		s.notifyFailed(ErrNoCommonSupportedConnectionType)
		s.disconnectWithErr(ErrNoCommonSupportedConnectionType)
		return
	}

	logger.WithField("clientId", m.ClientID).Debug("succeeded")
	s.clientID.set(m.ClientID)
	s.state.compareAndSwap(Handshaking, Connecting)
	s.maybeTransitionToConnected()
}

func hasCommonConnectionType(serverTypes, clientTypes []string) bool {
	for _, st := range serverTypes {
		for _, ct := range clientTypes {
			if st == ct {
				return true
			}
		}
	}
	return false
}

func (s *Session) maybeTransitionToConnected() {
	if s.state.load() != Connecting {
		return
	}
	if !s.socketOpen.Load() || s.clientID.get() == "" {
		return
	}

	s.state.store(Connected)
	s.reconnectCtl.setConnectionRequired(false)
	s.reconnecting.Store(false)
	s.opts.Logger.WithField("at", "connect").Debug("connected")

	s.notifyDelegate(func(d Delegate) { d.Connected() })

	// Never send the first /meta/connect synchronously on handshake
	// success: some servers read an immediate keep-alive as a retry
	// storm. The deferred send always goes through the keep-alive
	// scheduler, same as every subsequent one.
	s.keepAlive.schedule(s.opts.RetryInterval, func() { s.post(s.sendKeepAliveConnect) })
}

func (s *Session) sendConnect() {
	msg := encodeConnect(s.clientID.get(), ConnectionTypeWebsocket, s.connectionExtension)
	s.sendOverTransport(msg)
}

func (s *Session) handleConnectReply(m Message) {
	if !m.Successful {
		s.notifyFailed(ConnectFailedError{Reason: m.Error})
		return
	}

	s.connectAcked.Store(true)

	interval := s.opts.RetryInterval
	if m.Advice != nil && m.Advice.Interval > 0 {
		interval = m.Advice.IntervalDuration()
	}
	s.keepAlive.schedule(interval, func() { s.post(s.sendKeepAliveConnect) })
}

func (s *Session) sendKeepAliveConnect() {
	if s.state.load() != Connected {
		return
	}
	s.sendConnect()
}

// Disconnect asks the server to end the session and tears the transport
// down. It is idempotent.
func (s *Session) Disconnect() {
	s.post(func() { s.disconnectWithErr(nil) })
}

// disconnectWithErr is the shared teardown path for a caller-requested
// disconnect (err == nil) and a fatal condition forcing one (err != nil,
// e.g. a rejected handshake or advice={reconnect:"none"}).
func (s *Session) disconnectWithErr(err error) {
	switch s.state.load() {
	case Disconnected, Disconnecting:
		return
	}

	clientID := s.clientID.get()
	if clientID == "" && err != nil {
		// A fatal error before the server assigned a clientId (a rejected
		// handshake, for one): there is no server-side session to end, so
		// tear down locally.
		s.finishDisconnect(err)
		return
	}
	if clientID == "" {
		// Still handshaking with no clientId yet: shadow the permanent
		// handshake handler with a one-shot that captures it, then
		// re-enters this method so the /meta/disconnect still goes out
		// once the server has told us who we are.
		s.dispatcher.chainOnce(MetaHandshake, func(m Message) {
			if m.Successful {
				s.clientID.set(m.ClientID)
			}
			s.disconnectWithErr(err)
		})
		return
	}

	s.state.store(Disconnecting)
	s.pendingDisconnectErr = err
	s.keepAlive.stop()
	s.reconnectCtl.setConnectionRequired(false)
	s.opts.Logger.WithField("at", "disconnect").WithError(err).Debug("starting")
	s.sendOverTransport(encodeDisconnect(clientID))
}

func (s *Session) handleDisconnectReply(Message) {
	s.finishDisconnect(s.pendingDisconnectErr)
}

func (s *Session) finishDisconnect(err error) {
	s.transportMu.Lock()
	transport := s.transport
	s.transportMu.Unlock()
	if transport != nil {
		_ = transport.Close()
	}

	s.keepAlive.stop()
	s.clientID.clear()
	s.connectAcked.Store(false)
	s.pendingConnectSuccess = nil
	s.pendingDisconnectErr = nil
	s.state.store(Disconnected)
	s.opts.Logger.WithField("at", "disconnect").Debug("finished")
	s.notifyDelegate(func(d Delegate) { d.Disconnected(nil, err) })
}

// Reconnect forces an immediate reconnect attempt, as if a transport error
// had just been observed. From Disconnected it connects afresh; while
// connecting or connected (including an earlier reconnect still under way)
// it drops the current transport and starts over; while Disconnecting it
// does nothing.
func (s *Session) Reconnect() {
	s.post(s.reconnect)
}

// reconnect implements the reconnect() contract: it saves the current
// subscription registry, then calls connect with the session's
// connectionExtension and a success callback that re-issues /meta/subscribe
// for every preserved entry directly — bypassing Subscribe's normal
// registry-then-send dance, since the entries are already registered —
// before clearing reconnecting. reconnecting is set before connectInternal
// is called, not after it returns.
func (s *Session) reconnect() {
	switch {
	case s.state.load() == Disconnected:
		// already idle; fall through to the shared connect-with-preserved-
		// subscriptions path below
	case s.state.load() == Connected || s.state.load().isConnecting():
		s.transportMu.Lock()
		transport := s.transport
		s.transportMu.Unlock()
		if transport != nil {
			_ = transport.Close()
		}
		s.keepAlive.stop()
		s.state.store(Disconnected)
	default:
		return
	}

	s.reconnecting.Store(true)
	s.opts.Logger.WithField("at", "reconnect").Debug("starting")

	preserved := s.registry.snapshot()
	s.connectInternal(s.connectionExtension, func() {
		s.resendPreservedSubscriptions(preserved)
		s.reconnecting.Store(false)
	})
}

// resendPreservedSubscriptions re-announces entries captured by reconnect
// before the fresh handshake, one /meta/subscribe per shared entry rather
// than per channel.
func (s *Session) resendPreservedSubscriptions(entries []restoredEntry) {
	clientID := s.clientID.get()
	for _, entry := range entries {
		s.sendOverTransport(encodeSubscribe(clientID, entry.channels, entry.ext))
	}
}

// Subscribe registers cb for every channel in channels, sharing one
// registry entry across them, and asks the server to start delivering
// messages on them. The registration happens locally and synchronously;
// the /meta/subscribe request and its acknowledgement are asynchronous —
// watch Delegate.SubscriptionSucceeded or Delegate.Failed.
func (s *Session) Subscribe(channels []Channel, cb SubscriptionCallback, ext map[string]interface{}) error {
	if len(channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range channels {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	if !s.IsConnected() {
		return ErrSessionNotConnected
	}

	s.registry.add(channels, cb, ext)
	s.post(func() {
		s.sendOverTransport(encodeSubscribe(s.clientID.get(), channels, ext))
	})
	return nil
}

// Unsubscribe drops the local registration for each channel immediately
// and tells the server. Server acknowledgement is informational.
func (s *Session) Unsubscribe(channels ...Channel) error {
	if len(channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range channels {
		s.registry.remove(ch)
	}
	s.post(func() {
		s.sendOverTransport(encodeUnsubscribe(s.clientID.get(), channels))
	})
	return nil
}

// UnsubscribeAll tells the server to drop every currently registered
// entry. Unlike Unsubscribe, local removal is deferred to the
// /meta/unsubscribe acknowledgement, since the point is to preserve the
// registry if the request never lands.
func (s *Session) UnsubscribeAll() {
	s.post(func() {
		clientID := s.clientID.get()
		for _, entry := range s.registry.snapshot() {
			s.sendOverTransport(encodeUnsubscribe(clientID, entry.channels))
		}
	})
}

func (s *Session) handleSubscribeReply(m Message) {
	if !m.Successful {
		s.notifyFailed(SubscribeFailedError{Channels: []Channel(m.Subscription), Reason: m.Error})
		return
	}
	for _, ch := range m.Subscription {
		ch := ch
		s.notifyDelegate(func(d Delegate) { d.SubscriptionSucceeded(ch) })
	}
}

func (s *Session) handleUnsubscribeReply(m Message) {
	if !m.Successful {
		s.notifyFailed(UnsubscribeFailedError{Channels: []Channel(m.Subscription), Reason: m.Error})
		return
	}
	for _, ch := range m.Subscription {
		s.registry.remove(ch)
	}
}

// Publish sends data on channel. Channel validity is checked synchronously;
// encode failures and transport failures are reported to the delegate.
func (s *Session) Publish(channel Channel, data interface{}, ext map[string]interface{}) error {
	if !channel.IsValid() {
		return ErrInvalidChannel
	}
	if !s.IsConnected() {
		return ErrSessionNotConnected
	}

	s.post(func() {
		msg, err := encodePublish(s.clientID.get(), channel, data, ext)
		if err != nil {
			s.notifyFailed(err)
			return
		}
		s.sendOverTransport(msg)
	})
	return nil
}

func (s *Session) sendOverTransport(msg Message) {
	if s.state.load() == Disconnected {
		return
	}
	s.applyOutgoingExtensions(&msg)

	data, err := encodeSingleForWebsocket(msg)
	if err != nil {
		s.notifyFailed(err)
		return
	}

	s.transportMu.Lock()
	transport := s.transport
	s.transportMu.Unlock()
	if transport == nil {
		s.notifyFailed(SocketNotOpenError{})
		return
	}
	if err := transport.SendText(data); err != nil {
		s.notifyFailed(err)
		s.reconnectCtl.handleTransportError(err)
	}
}

func (s *Session) deliverToSubscriber(entry *subscriptionEntry, channel Channel, data []byte) {
	cb := entry.callback
	if cb == nil {
		return
	}
	s.opts.CallbackQueue(func() { cb(channel, data) })
}

func (s *Session) handleUnhandledMetaChannel(m Message) {
	s.notifyFailed(ErrUnhandledMetaChannel)
}

func (s *Session) handleUnexpectedMessage(m Message) {
	s.notifyDelegate(func(d Delegate) { d.ReceivedUnexpectedMessage(m) })
}
