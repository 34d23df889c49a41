package bayeux_test

import (
	"sync"
	"testing"
	"time"

	bayeux "github.com/shir/socketclient"
	"github.com/shir/socketclient/internal/gobayeuxtest"
)

// recordingDelegate collects every notification it receives behind a mutex,
// so scenario tests can poll for an expected event without racing the
// session's own goroutines.
type recordingDelegate struct {
	bayeux.BaseDelegate

	mu           sync.Mutex
	connected    int
	disconnected int
	lastErr      error
	failed       []error
	subscribed   []bayeux.Channel
	unexpected   []bayeux.Message
}

func (d *recordingDelegate) Connected() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected++
}

func (d *recordingDelegate) Disconnected(message *bayeux.Message, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected++
	d.lastErr = err
}

func (d *recordingDelegate) Failed(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, err)
}

func (d *recordingDelegate) SubscriptionSucceeded(channel bayeux.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribed = append(d.subscribed, channel)
}

func (d *recordingDelegate) ReceivedUnexpectedMessage(message bayeux.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unexpected = append(d.unexpected, message)
}

func (d *recordingDelegate) connectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *recordingDelegate) disconnectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnected
}

func (d *recordingDelegate) failedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.failed)
}

func (d *recordingDelegate) subscribedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribed)
}

// synchronousQueue runs delegate/callback notifications inline, so scenario
// tests don't need to poll for a goroutine to catch up.
func synchronousQueue(f func()) { f() }

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("timed out waiting for condition")
	}
}

const testRetryInterval = 150 * time.Millisecond

func newTestSession(t *testing.T, server *gobayeuxtest.Server, delegate bayeux.Delegate, extra ...bayeux.Option) *bayeux.Session {
	t.Helper()
	opts := append([]bayeux.Option{
		bayeux.WithTransportFactory(gobayeuxtest.NewFakeTransport(server)),
		bayeux.WithMaySendHandshakeAsync(false),
		bayeux.WithDelegate(delegate),
		bayeux.WithDelegateQueue(synchronousQueue),
		bayeux.WithCallbackQueue(synchronousQueue),
		bayeux.WithRetryInterval(testRetryInterval),
	}, extra...)

	session, err := bayeux.NewSession("https://example.com", opts...)
	if err != nil {
		t.Fatalf("unexpected error building session: %v", err)
	}
	return session
}

func TestSessionConnectSubscribePublishDisconnect(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	session.Connect(nil, nil)
	waitUntil(t, time.Second, func() bool { return session.IsConnected() })
	if delegate.connectedCount() != 1 {
		t.Fatalf("expected exactly one Connected notification, got %d", delegate.connectedCount())
	}

	received := make(chan []byte, 1)
	err := session.Subscribe([]bayeux.Channel{"/chat/general"}, func(ch bayeux.Channel, data []byte) {
		received <- data
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return delegate.subscribedCount() == 1 })

	if err := session.Publish("/chat/general", map[string]string{"text": "hi"}, nil); err != nil {
		t.Fatalf("unexpected error publishing: %v", err)
	}

	// The fake server only delivers subscribed data back on its next
	// /meta/connect cycle, driven here by the keep-alive schedule.
	select {
	case data := <-received:
		if len(data) == 0 {
			t.Error("expected the subscriber to receive non-empty data")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a subscription callback")
	}

	session.Disconnect()
	waitUntil(t, time.Second, func() bool { return delegate.disconnectedCount() == 1 })
	if delegate.lastErr != nil {
		t.Errorf("expected a clean disconnect, got err %v", delegate.lastErr)
	}
}

func TestSessionDefersFirstConnectUntilRetryInterval(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	session.Connect(nil, nil)
	waitUntil(t, time.Second, func() bool { return session.IsConnected() })

	if got := server.ConnectCount(); got != 0 {
		t.Errorf("expected no /meta/connect sent synchronously on handshake success, server saw %d", got)
	}

	waitUntil(t, time.Second, func() bool { return server.ConnectCount() >= 1 })
}

func TestSessionConnectOnSuccessFiresOnceTrulyConnected(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	var calls int
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	session.Connect(nil, func() {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onSuccess to fire")
	}

	if !session.IsConnected() {
		t.Error("expected the session to be Connected when onSuccess fires")
	}

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("expected onSuccess to run exactly once, ran %d times", got)
	}
}

func TestSessionHandshakeRejection(t *testing.T) {
	server := gobayeuxtest.NewServer(t, gobayeuxtest.WithHandshakeError(true))
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	session.Connect(nil, nil)
	waitUntil(t, time.Second, func() bool { return delegate.disconnectedCount() == 1 })

	if delegate.connectedCount() != 0 {
		t.Error("expected no Connected notification after a rejected handshake")
	}
	if delegate.lastErr == nil {
		t.Error("expected Disconnected to carry the handshake failure")
	}
}

func TestSessionDisconnectDuringHandshakeWaitsForClientID(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	session.Connect(nil, nil)
	session.Disconnect()

	waitUntil(t, time.Second, func() bool { return delegate.disconnectedCount() == 1 })
	if !session.IsConnected() && delegate.connectedCount() > 1 {
		t.Error("expected at most one Connected notification")
	}
}

func TestSessionReconnectResubscribesExistingChannels(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	session.Connect(nil, nil)
	waitUntil(t, time.Second, func() bool { return session.IsConnected() })

	if err := session.Subscribe([]bayeux.Channel{"/chat/general"}, func(bayeux.Channel, []byte) {}, nil); err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return delegate.subscribedCount() == 1 })

	session.Reconnect()
	waitUntil(t, time.Second, func() bool { return session.IsConnected() && delegate.subscribedCount() == 2 })

	channels := session.SubscribedChannels()
	if len(channels) != 1 || channels[0] != "/chat/general" {
		t.Errorf("expected the registry to still hold /chat/general after reconnect, got %v", channels)
	}
}

func TestSessionUnsubscribeAllPreservesRegistryUntilAck(t *testing.T) {
	server := gobayeuxtest.NewServer(t)
	delegate := &recordingDelegate{}
	session := newTestSession(t, server, delegate)

	session.Connect(nil, nil)
	waitUntil(t, time.Second, func() bool { return session.IsConnected() })

	if err := session.Subscribe([]bayeux.Channel{"/chat/general", "/chat/random"}, func(bayeux.Channel, []byte) {}, nil); err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return delegate.subscribedCount() == 2 })

	session.UnsubscribeAll()
	waitUntil(t, time.Second, func() bool { return len(session.SubscribedChannels()) == 0 })
}
