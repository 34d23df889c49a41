package bayeux

import "time"

// Delegate receives fire-and-forget notifications about session lifecycle
// events. Every method is delivered on the session's configured delegate
// queue, never synchronously from inside the worker queue.
//
// Embed BaseDelegate to implement only the events you care about.
type Delegate interface {
	// Connected fires once the session reaches the Connected state.
	Connected()
	// Disconnected fires when the session returns to Disconnected, either
	// because the caller asked for it or because of a fatal error. err is
	// nil on a clean, requested disconnect.
	Disconnected(message *Message, err error)
	// Failed fires for errors that don't have a more specific delegate
	// method (handshake/connect/subscribe/unsubscribe failures, malformed
	// data, unhandled meta-channel messages).
	Failed(err error)
	// SubscriptionSucceeded fires once per channel that a /meta/subscribe
	// request successfully confirmed.
	SubscriptionSucceeded(channel Channel)
	// ReceivedUnexpectedMessage fires when an inbound message's channel is
	// neither a known meta-channel nor a subscribed channel.
	ReceivedUnexpectedMessage(message Message)
	// AdvisedToRetry fires when an unsuccessful reply carries advice
	// reconnect=retry. interval is the value the session is about to adopt;
	// overwrite it to change that. The session waits for this method to
	// return before adopting the value.
	AdvisedToRetry(interval *time.Duration)
	// AdvisedToHandshake fires when an unsuccessful reply carries advice
	// reconnect=handshake. shouldRetry defaults to true; set it to false to
	// refuse the re-handshake. The session waits for this method to return
	// before acting on shouldRetry.
	AdvisedToHandshake(shouldRetry *bool)
}

// BaseDelegate is a no-op Delegate. Embed it in your own type and override
// only the methods you need.
type BaseDelegate struct{}

func (BaseDelegate) Connected()                               {}
func (BaseDelegate) Disconnected(message *Message, err error) {}
func (BaseDelegate) Failed(err error)                          {}
func (BaseDelegate) SubscriptionSucceeded(channel Channel)     {}
func (BaseDelegate) ReceivedUnexpectedMessage(message Message) {}
func (BaseDelegate) AdvisedToRetry(interval *time.Duration)    {}
func (BaseDelegate) AdvisedToHandshake(shouldRetry *bool)      {}
