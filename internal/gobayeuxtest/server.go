// Package gobayeuxtest is the fake Bayeux server the package's own tests
// drive, over both the WebSocket path (FakeTransport) and the async-HTTP
// handshake path (Server as an http.RoundTripper).
package gobayeuxtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	bayeux "github.com/shir/socketclient"
)

var defaultAdvice = &bayeux.Advice{
	Reconnect: bayeux.AdviceHandshake,
	Timeout:   int((30 * time.Second).Milliseconds()),
	Interval:  int((1 * time.Second).Milliseconds()),
}

// Logger is the subset of testing.TB the server needs to report problems a
// caller can't see any other way (a malformed subscription comparison, for
// instance).
type Logger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

// Server implements the Bayeux protocol handshake/connect/subscribe state
// machine entirely in memory, keyed by the clientId the fake handshake
// hands out. It has no transport opinions of its own: FakeTransport and the
// http.RoundTripper method below both call Handle.
type Server struct {
	log Logger

	mu   sync.Mutex
	subs map[string][]bayeux.Channel

	handshakeError bool
	connectCount   int
}

// NewServer builds a Server. logger may be nil.
func NewServer(logger Logger, opts ...ServerOpts) *Server {
	s := &Server{log: logger, subs: make(map[string][]bayeux.Channel)}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Handle processes one batch of inbound envelopes and returns the replies
// the real server would send back, in order.
func (s *Server) Handle(batch []bayeux.Message) []bayeux.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	replies := make([]bayeux.Message, 0, len(batch))
	for _, msg := range batch {
		switch msg.Channel {
		case bayeux.MetaHandshake:
			if reply, ok := s.handleHandshake(msg); ok {
				replies = append(replies, reply)
			} else {
				return nil
			}
		case bayeux.MetaConnect:
			replies = append(replies, s.handleConnect(msg)...)
		case bayeux.MetaSubscribe:
			replies = append(replies, s.handleSubscribe(msg))
		case bayeux.MetaUnsubscribe:
			replies = append(replies, s.handleUnsubscribe(msg))
		case bayeux.MetaDisconnect:
			delete(s.subs, msg.ClientID)
			replies = append(replies, bayeux.Message{
				Channel:    bayeux.MetaDisconnect,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			})
		default:
			if s.log != nil {
				s.log.Logf("gobayeuxtest: unhandled message: %+v", msg)
			}
		}
	}
	return replies
}

// HandshakeError controls whether handshake requests are rejected; once set,
// every handshake is rejected until it is called again with false. Used for
// scenario tests covering §8's rejection case.
func (s *Server) HandshakeError(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handshakeError = v
}

func (s *Server) handleHandshake(msg bayeux.Message) (bayeux.Message, bool) {
	if s.handshakeError {
		return bayeux.Message{}, false
	}
	return bayeux.Message{
		Channel:                  bayeux.MetaHandshake,
		Version:                  msg.Version,
		SupportedConnectionTypes: msg.SupportedConnectionTypes,
		ClientID:                 generateID(10),
		Successful:               true,
		Advice:                   defaultAdvice,
		ID:                       msg.ID,
	}, true
}

// ConnectCount reports how many /meta/connect requests the server has
// handled so far, for tests asserting on keep-alive timing.
func (s *Server) ConnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectCount
}

func (s *Server) handleConnect(msg bayeux.Message) []bayeux.Message {
	s.connectCount++
	var replies []bayeux.Message
	for _, ch := range s.subs[msg.ClientID] {
		replies = append(replies, bayeux.Message{
			Channel:    ch,
			ID:         generateID(5),
			ClientID:   msg.ClientID,
			Data:       json.RawMessage(`{}`),
			Successful: true,
		})
	}
	replies = append(replies, bayeux.Message{
		Channel:    bayeux.MetaConnect,
		Successful: true,
		ClientID:   msg.ClientID,
		Advice:     defaultAdvice,
		ID:         msg.ID,
	})
	return replies
}

func (s *Server) handleSubscribe(msg bayeux.Message) bayeux.Message {
	reply := bayeux.Message{
		Channel:      bayeux.MetaSubscribe,
		ID:           msg.ID,
		ClientID:     msg.ClientID,
		Successful:   true,
		Subscription: msg.Subscription,
	}

	existing := s.subs[msg.ClientID]
	for _, requested := range msg.Subscription {
		for _, already := range existing {
			if already == requested {
				reply.Successful = false
				reply.Error = fmt.Sprintf("403:%s:already subscribed", requested)
			}
		}
	}
	s.subs[msg.ClientID] = append(existing, msg.Subscription...)
	return reply
}

func (s *Server) handleUnsubscribe(msg bayeux.Message) bayeux.Message {
	reply := bayeux.Message{
		Channel:      bayeux.MetaUnsubscribe,
		ID:           msg.ID,
		ClientID:     msg.ClientID,
		Successful:   true,
		Subscription: msg.Subscription,
	}

	remaining := make([]bayeux.Channel, 0, len(s.subs[msg.ClientID]))
	foundAny := false
	for _, already := range s.subs[msg.ClientID] {
		drop := false
		for _, requested := range msg.Subscription {
			if already == requested {
				drop = true
				foundAny = true
			}
		}
		if !drop {
			remaining = append(remaining, already)
		}
	}
	s.subs[msg.ClientID] = remaining

	if !foundAny {
		reply.Successful = false
		reply.Error = "403::not subscribed"
	}
	return reply
}

// RoundTrip implements http.RoundTripper, for tests of the async-HTTP
// handshake path: it decodes the POSTed batch, runs it through Handle, and
// encodes the replies as the response body.
func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("gobayeuxtest: reading request body: %w", err)
	}

	var batch []bayeux.Message
	if err := json.Unmarshal(body, &batch); err != nil {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Status:     http.StatusText(http.StatusUnprocessableEntity),
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}

	replies := s.Handle(batch)
	if replies == nil {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Status:     http.StatusText(http.StatusBadRequest),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"invalid request"}`))),
		}, nil
	}

	encoded, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("gobayeuxtest: marshaling replies: %w", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     http.StatusText(http.StatusOK),
		Body:       io.NopCloser(bytes.NewReader(encoded)),
	}, nil
}

var (
	chars    = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmonpqrstuvwxyz0123456789")
	numChars = len(chars)
)

func generateID(length int) string {
	ret := make([]rune, length)
	for i := range ret {
		ret[i] = chars[rand.Intn(numChars)]
	}
	return string(ret)
}
