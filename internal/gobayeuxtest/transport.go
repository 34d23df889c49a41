package gobayeuxtest

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	bayeux "github.com/shir/socketclient"
)

// FakeTransport is an in-process bayeux.Transport backed by a Server: every
// SendText is decoded as a single bare-object envelope (the WebSocket wire
// form), run through the server synchronously, and any replies are
// delivered back as a single ReceivedText event carrying a JSON array (the
// inbound wire form), matching how a real connection behaves.
type FakeTransport struct {
	server *Server

	mu        sync.Mutex
	open      bool
	closeOnce sync.Once
	events    chan bayeux.TransportEvent
}

// NewFakeTransport returns a factory suitable for bayeux.WithTransportFactory,
// closing over a fresh FakeTransport per call the way the real
// defaultTransportFactory builds a fresh connection per Session.Connect.
func NewFakeTransport(server *Server) bayeux.TransportFactory {
	return func(bayeux.Logger) bayeux.Transport {
		return &FakeTransport{server: server, events: make(chan bayeux.TransportEvent, 16)}
	}
}

func (f *FakeTransport) Open(ctx context.Context, target *url.URL) error {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.emit(bayeux.TransportEvent{Kind: bayeux.TransportOpened})
	return nil
}

func (f *FakeTransport) SendText(text []byte) error {
	f.mu.Lock()
	open := f.open
	f.mu.Unlock()
	if !open {
		return bayeux.SocketNotOpenError{}
	}

	var msg bayeux.Message
	if err := json.Unmarshal(text, &msg); err != nil {
		return err
	}

	replies := f.server.Handle([]bayeux.Message{msg})
	if replies == nil {
		f.mu.Lock()
		f.open = false
		f.mu.Unlock()
		f.closeWith(bayeux.TransportEvent{Kind: bayeux.TransportClosed, Code: 400, Reason: "handshake rejected", WasClean: false})
		return nil
	}
	if len(replies) == 0 {
		return nil
	}

	encoded, err := json.Marshal(replies)
	if err != nil {
		return err
	}
	f.emit(bayeux.TransportEvent{Kind: bayeux.TransportReceivedText, Text: encoded})
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	wasOpen := f.open
	f.open = false
	f.mu.Unlock()
	if wasOpen {
		f.closeWith(bayeux.TransportEvent{Kind: bayeux.TransportClosed, WasClean: true})
	}
	return nil
}

func (f *FakeTransport) Events() <-chan bayeux.TransportEvent {
	return f.events
}

func (f *FakeTransport) emit(ev bayeux.TransportEvent) {
	f.events <- ev
}

// closeWith emits a final Closed event and closes the channel, matching the
// Transport contract that Events() closes after the last Closed/Failed
// notification.
func (f *FakeTransport) closeWith(ev bayeux.TransportEvent) {
	f.closeOnce.Do(func() {
		f.events <- ev
		close(f.events)
	})
}
