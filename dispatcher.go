package bayeux

import (
	"bytes"
	"strings"
	"sync"
)

var jsonNull = []byte("null")

// metaHandlerFunc handles one inbound reply on a meta-channel.
type metaHandlerFunc func(Message)

// chainSlot is a single meta-channel's handler chain: a permanent head plus,
// optionally, a one-shot handler installed in front of it. The slot is its
// own mutex so chaining and invocation are atomic with respect to each
// other, per the spec's "one-shot installation takes effect for the next
// matching reply, never retroactively" rule.
type chainSlot struct {
	mu   sync.Mutex
	head metaHandlerFunc
}

func newChainSlot(permanent metaHandlerFunc) *chainSlot {
	return &chainSlot{head: permanent}
}

// chainOnce installs fn in front of the current head. fn runs exactly once;
// immediately before running it, the slot reverts to whatever was the head
// before chainOnce was called, so the installation never duplicates and the
// prior handler (built-in or a previous one-shot) is restored rather than
// lost.
func (c *chainSlot) chainOnce(fn metaHandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.head
	c.head = func(m Message) {
		c.mu.Lock()
		c.head = previous
		c.mu.Unlock()
		fn(m)
	}
}

// setPermanent replaces the chain's built-in handler. Used once, at session
// construction.
func (c *chainSlot) setPermanent(fn metaHandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = fn
}

// invoke runs the current head exactly once.
func (c *chainSlot) invoke(m Message) {
	c.mu.Lock()
	h := c.head
	c.mu.Unlock()
	h(m)
}

// metaChannels lists the five reserved channels that carry session-control
// replies, in the order the dispatcher was built to recognize them.
var metaChannels = [...]Channel{
	MetaHandshake,
	MetaConnect,
	MetaDisconnect,
	MetaSubscribe,
	MetaUnsubscribe,
}

// dispatcher routes inbound messages: advice first, then meta-channel
// handler chains, then subscription callbacks, then an unexpected-message
// fallback.
type dispatcher struct {
	chains   map[Channel]*chainSlot
	registry *subscriptionRegistry

	applyAdvice func(Message)
	onUnhandledMetaChannel func(Message)
	onUnexpectedMessage    func(Message)
	deliverToSubscriber    func(entry *subscriptionEntry, channel Channel, data []byte)
}

func newDispatcher(registry *subscriptionRegistry) *dispatcher {
	d := &dispatcher{
		chains:   make(map[Channel]*chainSlot, len(metaChannels)),
		registry: registry,
	}
	for _, ch := range metaChannels {
		d.chains[ch] = newChainSlot(func(Message) {})
	}
	return d
}

// setHandler installs the permanent built-in handler for a meta-channel.
func (d *dispatcher) setHandler(channel Channel, fn metaHandlerFunc) {
	d.chains[channel].setPermanent(fn)
}

// chainOnce installs a one-shot handler in front of channel's current head.
func (d *dispatcher) chainOnce(channel Channel, fn metaHandlerFunc) {
	d.chains[channel].chainOnce(fn)
}

// dispatch routes a single inbound message per the rules in the
// meta-channel dispatcher's routing table.
func (d *dispatcher) dispatch(m Message) {
	if m.Advice != nil && d.applyAdvice != nil {
		d.applyAdvice(m)
	}

	if slot, ok := d.chains[m.Channel]; ok {
		slot.invoke(m)
		return
	}

	if strings.HasPrefix(string(m.Channel), "/meta") {
		if d.onUnhandledMetaChannel != nil {
			d.onUnhandledMetaChannel(m)
		}
		return
	}

	if entry, ok := d.registry.get(m.Channel); ok {
		if len(m.Data) > 0 && !bytes.Equal(m.Data, jsonNull) && d.deliverToSubscriber != nil {
			d.deliverToSubscriber(entry, m.Channel, m.Data)
		}
		return
	}

	if d.onUnexpectedMessage != nil {
		d.onUnexpectedMessage(m)
	}
}
