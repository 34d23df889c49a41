package bayeux

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shir/socketclient/transport/httphandshake"
	"github.com/shir/socketclient/transport/ws"
)

// defaultTransportFactory builds the WebSocket transport, wired whenever a
// Session isn't given a WithTransportFactory override.
func defaultTransportFactory(logger Logger) Transport {
	return newWSTransportAdapter(logger)
}

// wsTransportAdapter is the anti-corruption layer between the bayeux-agnostic
// transport/ws package and this package's Transport interface: it doesn't
// change behavior, only vocabulary.
type wsTransportAdapter struct {
	conn   *ws.Conn
	events chan TransportEvent
	logger Logger
}

func newWSTransportAdapter(logger Logger) *wsTransportAdapter {
	if logger == nil {
		logger = newNullLogger()
	}
	a := &wsTransportAdapter{conn: ws.New(), events: make(chan TransportEvent, 16), logger: logger}
	go a.translate()
	return a
}

func (a *wsTransportAdapter) Open(ctx context.Context, target *url.URL) error {
	a.logger.WithField("at", "transport").WithField("url", target.String()).Debug("opening")
	err := a.conn.Open(ctx, target)
	if err != nil {
		a.logger.WithField("at", "transport").WithError(err).Debug("open failed")
	}
	return err
}

func (a *wsTransportAdapter) SendText(text []byte) error {
	return a.conn.SendText(text)
}

func (a *wsTransportAdapter) Close() error {
	return a.conn.Close()
}

func (a *wsTransportAdapter) Events() <-chan TransportEvent {
	return a.events
}

func (a *wsTransportAdapter) translate() {
	defer close(a.events)
	for ev := range a.conn.Events() {
		kind, final := translateKind(ev.Kind)
		if kind == TransportClosed || kind == TransportFailed {
			a.logger.WithField("at", "transport").WithField("code", ev.Code).WithError(ev.Err).Debug("connection ended")
		}
		a.events <- TransportEvent{
			Kind:     kind,
			Text:     ev.Text,
			Code:     ev.Code,
			Reason:   ev.Reason,
			WasClean: ev.WasClean,
			Err:      ev.Err,
		}
		if final {
			return
		}
	}
}

func translateKind(k ws.EventKind) (TransportEventKind, bool) {
	switch k {
	case ws.Opened:
		return TransportOpened, false
	case ws.ReceivedText:
		return TransportReceivedText, false
	case ws.Closed:
		return TransportClosed, true
	case ws.Failed:
		return TransportFailed, true
	default:
		return TransportFailed, true
	}
}

// httpHandshakeClient wraps transport/httphandshake.Client, translating its
// status-code error into this package's HTTPUnexpectedStatusCodeError.
type httpHandshakeClient struct {
	client *httphandshake.Client
}

func newHTTPHandshakeClient(httpClient *http.Client, transport http.RoundTripper) (*httpHandshakeClient, error) {
	c, err := httphandshake.New(httpClient, transport)
	if err != nil {
		return nil, err
	}
	return &httpHandshakeClient{client: c}, nil
}

func (h *httpHandshakeClient) post(ctx context.Context, target *url.URL, body []byte) ([]byte, error) {
	resp, err := h.client.Post(ctx, target, body)
	if err != nil {
		if statusErr, ok := err.(httphandshake.UnexpectedStatusError); ok {
			return nil, HTTPUnexpectedStatusCodeError{StatusCode: statusErr.StatusCode, Status: statusErr.Status}
		}
		return nil, err
	}
	return resp, nil
}
