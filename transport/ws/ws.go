// Package ws is a WebSocket transport, built on nhooyr.io/websocket, that
// speaks raw text frames rather than a typed envelope. It has no knowledge
// of Bayeux; it only opens a connection, shuttles text frames, and reports
// close/failure the way the session's reconnect controller expects.
package ws

import (
	"context"
	"net/url"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// EventKind discriminates the four notifications a Conn can raise.
type EventKind int

const (
	Opened EventKind = iota
	ReceivedText
	Closed
	Failed
)

// Event is a single notification raised by a Conn.
type Event struct {
	Kind     EventKind
	Text     []byte
	Code     int
	Reason   string
	WasClean bool
	Err      error
}

// Conn is a WebSocket connection managed on its own read loop. The zero
// value isn't usable; construct one with New and call Open.
type Conn struct {
	events chan Event

	mu        sync.Mutex
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New returns an unopened Conn. Call Open to connect.
func New() *Conn {
	return &Conn{events: make(chan Event, 16)}
}

// Open dials target in the background and emits Opened, or Failed if the
// dial itself fails. Open returns as soon as the dial has been kicked off;
// it never blocks on the handshake.
func (c *Conn) Open(dialCtx context.Context, target *url.URL) error {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ctx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		conn, _, err := websocket.Dial(dialCtx, target.String(), nil)
		if err != nil {
			c.emit(Event{Kind: Failed, Err: err})
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.emit(Event{Kind: Opened})
		c.readLoop()
	}()
	return nil
}

// SendText writes a single text frame. It is safe to call concurrently with
// the read loop; nhooyr.io/websocket serializes writes internally.
func (c *Conn) SendText(text []byte) error {
	c.mu.Lock()
	conn, ctx := c.conn, c.ctx
	c.mu.Unlock()

	if conn == nil {
		return errSocketNotOpen{}
	}
	return wsjson.Write(ctx, conn, rawText(text))
}

// Close shuts the connection down with a normal closure. Safe to call more
// than once or before Open's dial has completed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn, cancel := c.conn, c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "closed")
		}
	})
	return err
}

// Events returns the channel every notification is delivered on.
func (c *Conn) Events() <-chan Event {
	return c.events
}

func (c *Conn) readLoop() {
	c.mu.Lock()
	conn, ctx := c.conn, c.ctx
	c.mu.Unlock()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.signalClosed(err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.emit(Event{Kind: ReceivedText, Text: data})
	}
}

// signalClosed classifies the read error the way the example's websocket
// adapter does: StatusNormalClosure and StatusGoingAway (and a closure we
// initiated ourselves) are clean; everything else is a network failure the
// reconnect controller needs to see.
func (c *Conn) signalClosed(err error) {
	status := websocket.CloseStatus(err)

	c.mu.Lock()
	selfClosed := c.ctx.Err() != nil
	c.mu.Unlock()

	switch {
	case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway, selfClosed:
		c.emit(Event{Kind: Closed, Code: int(status), WasClean: true})
	default:
		c.emit(Event{Kind: Closed, Code: int(status), Reason: err.Error(), WasClean: false, Err: err})
	}
}

func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// A slow consumer never blocks the read loop; dropping an event here
		// means the consumer already fell behind badly enough that the next
		// Closed/Failed notification matters more than this one.
	}
}

// rawText marshals to itself, letting wsjson.Write frame a pre-encoded JSON
// payload without re-parsing it.
type rawText []byte

func (r rawText) MarshalJSON() ([]byte, error) { return r, nil }

type errSocketNotOpen struct{}

func (errSocketNotOpen) Error() string { return "socket is not open" }
