package bayeux

import (
	"sync"
	"syscall"
	"testing"
	"time"
)

// testReconnectHost builds a reconnectHost backed by in-memory counters and
// recorders, letting these tests drive the controller without a Session.
type testReconnectHost struct {
	mu sync.Mutex

	retryInterval     time.Duration
	reconnectInterval time.Duration
	reconnecting      bool
	hostname          string

	handshakeCalls int
	reconnectCalls int
	disconnectErr  error
	disconnectSet  bool

	scheduledAfter []time.Duration
	scheduledFns   []func()

	delegate Delegate
}

func (h *testReconnectHost) toHost() *reconnectHost {
	return &reconnectHost{
		setRetryInterval: func(d time.Duration) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.retryInterval = d
		},
		retryInterval: func() time.Duration {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.retryInterval
		},
		setReconnectInterval: func(d time.Duration) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.reconnectInterval = d
		},
		reconnectInterval: func() time.Duration {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.reconnectInterval
		},
		isReconnecting: func() bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.reconnecting
		},
		host: func() string {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.hostname
		},
		handshake: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.handshakeCalls++
		},
		reconnect: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.reconnectCalls++
		},
		disconnectToIdle: func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.disconnectErr = err
			h.disconnectSet = true
		},
		scheduleAfter: func(d time.Duration, fn func()) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.scheduledAfter = append(h.scheduledAfter, d)
			h.scheduledFns = append(h.scheduledFns, fn)
		},
		delegate: func() Delegate {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.delegate
		},
		postToDelegateQueue: func(fn func()) { fn() },
	}
}

func TestReconnectControllerHandleRetryAdviceWithExplicitInterval(t *testing.T) {
	host := &testReconnectHost{retryInterval: defaultRetryInterval}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleAdvice(Message{
		Channel: MetaConnect,
		Advice:  &Advice{Reconnect: AdviceRetry, Interval: 5000},
	})

	host.mu.Lock()
	got := host.retryInterval
	host.mu.Unlock()
	if got != 5*time.Second {
		t.Errorf("expected retry interval to adopt the advised 5s, got %s", got)
	}
}

func TestReconnectControllerHandleRetryAdviceZeroRestoresDefault(t *testing.T) {
	host := &testReconnectHost{retryInterval: 10 * time.Second}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleAdvice(Message{
		Channel: MetaConnect,
		Advice:  &Advice{Reconnect: AdviceRetry, Interval: 0},
	})

	host.mu.Lock()
	got := host.retryInterval
	host.mu.Unlock()
	if got != defaultRetryInterval {
		t.Errorf("expected advice.interval=0 to restore the default retry interval, got %s", got)
	}
}

func TestReconnectControllerHandleHandshakeAdviceTriggersHandshake(t *testing.T) {
	host := &testReconnectHost{}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleAdvice(Message{Channel: MetaConnect, Advice: &Advice{Reconnect: AdviceHandshake}})

	host.mu.Lock()
	calls := host.handshakeCalls
	host.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly one handshake call, got %d", calls)
	}
}

func TestReconnectControllerHandleHandshakeAdviceDelegateCanRefuse(t *testing.T) {
	host := &testReconnectHost{delegate: refusingDelegate{}}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleAdvice(Message{Channel: MetaConnect, Advice: &Advice{Reconnect: AdviceHandshake}})

	host.mu.Lock()
	calls := host.handshakeCalls
	host.mu.Unlock()
	if calls != 0 {
		t.Errorf("expected the delegate's refusal to suppress the handshake, got %d calls", calls)
	}
}

func TestReconnectControllerHandleNoneAdviceOnConnectDisconnects(t *testing.T) {
	host := &testReconnectHost{}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleAdvice(Message{Channel: MetaConnect, Advice: &Advice{Reconnect: AdviceNone}, Error: "403::denied"})

	host.mu.Lock()
	defer host.mu.Unlock()
	if !host.disconnectSet {
		t.Fatal("expected advice=none on /meta/connect to force a disconnect")
	}
	if _, ok := host.disconnectErr.(ReceivedAdviceReconnectNoneError); !ok {
		t.Errorf("expected a ReceivedAdviceReconnectNoneError, got %T", host.disconnectErr)
	}
}

func TestReconnectControllerHandleTransportErrorSchedulesReconnect(t *testing.T) {
	host := &testReconnectHost{reconnectInterval: time.Second}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleTransportError(syscall.ECONNRESET)

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.scheduledAfter) != 1 || host.scheduledAfter[0] != time.Second {
		t.Fatalf("expected a single reconnect scheduled after 1s, got %v", host.scheduledAfter)
	}
}

func TestReconnectControllerHandleTransportErrorNegativeIntervalDisablesReconnect(t *testing.T) {
	host := &testReconnectHost{reconnectInterval: -1}
	c := newReconnectController(host.toHost(), &fakeReachabilityWatcher{})

	c.handleTransportError(syscall.ECONNRESET)

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.scheduledAfter) != 0 {
		t.Errorf("expected no scheduled reconnect when the interval is negative, got %v", host.scheduledAfter)
	}
}

func TestReconnectControllerHandleTransportErrorUnreachableAwaitsReachability(t *testing.T) {
	host := &testReconnectHost{reconnectInterval: time.Second, hostname: "example.com"}
	watcher := &fakeReachabilityWatcher{}
	c := newReconnectController(host.toHost(), watcher)

	c.handleTransportError(syscall.ENETUNREACH)

	if watcher.awaitedHost != "example.com" {
		t.Fatalf("expected the controller to await reachability of example.com, got %q", watcher.awaitedHost)
	}

	watcher.fire()

	host.mu.Lock()
	defer host.mu.Unlock()
	if host.reconnectCalls != 1 {
		t.Errorf("expected the reachability callback to trigger exactly one reconnect, got %d", host.reconnectCalls)
	}
}

func TestReconnectControllerAwaitReachabilitySkipsWhenConnectionRequired(t *testing.T) {
	host := &testReconnectHost{reconnectInterval: time.Second, hostname: "example.com"}
	watcher := &fakeReachabilityWatcher{}
	c := newReconnectController(host.toHost(), watcher)
	c.setConnectionRequired(true)

	c.handleTransportError(syscall.ENETUNREACH)
	watcher.fire()

	host.mu.Lock()
	defer host.mu.Unlock()
	if host.reconnectCalls != 0 {
		t.Errorf("expected no reconnect while a connection is already required, got %d", host.reconnectCalls)
	}
}

func TestIsNetworkUnreachableAndIsConnectionError(t *testing.T) {
	if !isNetworkUnreachable(syscall.ENETUNREACH) {
		t.Error("expected ENETUNREACH to classify as network-unreachable")
	}
	if isNetworkUnreachable(syscall.ECONNRESET) {
		t.Error("expected ECONNRESET to not classify as network-unreachable")
	}
	if !isConnectionError(syscall.ECONNRESET) {
		t.Error("expected ECONNRESET to classify as a connection error")
	}
	if isConnectionError(syscall.ENETUNREACH) {
		t.Error("expected ENETUNREACH to not classify as a connection error")
	}
}

// fakeReachabilityWatcher lets tests control exactly when a host is judged
// reachable, instead of racing the real dialer-backed watcher.
type fakeReachabilityWatcher struct {
	awaitedHost string
	onReachable func()
	canceled    bool
}

func (w *fakeReachabilityWatcher) awaitReachable(host string, onReachable func()) func() {
	w.awaitedHost = host
	w.onReachable = onReachable
	return func() { w.canceled = true }
}

func (w *fakeReachabilityWatcher) fire() {
	if w.onReachable != nil {
		w.onReachable()
	}
}

type refusingDelegate struct {
	BaseDelegate
}

func (refusingDelegate) AdvisedToHandshake(shouldRetry *bool) { *shouldRetry = false }
