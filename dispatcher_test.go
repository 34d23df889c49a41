package bayeux

import "testing"

func TestDispatcherRoutesMetaChannelToPermanentHandler(t *testing.T) {
	d := newDispatcher(newSubscriptionRegistry())

	var got Message
	d.setHandler(MetaConnect, func(m Message) { got = m })

	d.dispatch(Message{Channel: MetaConnect, ClientID: "abc"})
	if got.ClientID != "abc" {
		t.Errorf("expected the permanent handler to run, got %+v", got)
	}
}

func TestDispatcherChainOnceRunsOnceAndRestores(t *testing.T) {
	d := newDispatcher(newSubscriptionRegistry())

	var permanentCalls, oneShotCalls int
	d.setHandler(MetaHandshake, func(Message) { permanentCalls++ })
	d.chainOnce(MetaHandshake, func(Message) { oneShotCalls++ })

	d.dispatch(Message{Channel: MetaHandshake})
	d.dispatch(Message{Channel: MetaHandshake})

	if oneShotCalls != 1 {
		t.Errorf("expected the one-shot handler to run exactly once, ran %d times", oneShotCalls)
	}
	if permanentCalls != 1 {
		t.Errorf("expected the permanent handler to run on the second reply only, ran %d times", permanentCalls)
	}
}

func TestDispatcherChainOnceCanReinstallItself(t *testing.T) {
	d := newDispatcher(newSubscriptionRegistry())

	var calls int
	var install func()
	install = func() {
		d.chainOnce(MetaConnect, func(Message) {
			calls++
			if calls < 3 {
				install()
			}
		})
	}
	install()

	for i := 0; i < 3; i++ {
		d.dispatch(Message{Channel: MetaConnect})
	}

	if calls != 3 {
		t.Errorf("expected the self-reinstalling one-shot to run 3 times, ran %d", calls)
	}
}

func TestDispatcherUnhandledMetaChannel(t *testing.T) {
	d := newDispatcher(newSubscriptionRegistry())

	var got Message
	d.onUnhandledMetaChannel = func(m Message) { got = m }

	d.dispatch(Message{Channel: "/meta/unknown"})
	if got.Channel != "/meta/unknown" {
		t.Errorf("expected the unhandled-meta-channel callback to fire, got %+v", got)
	}
}

func TestDispatcherDeliversToSubscriberOnlyWithData(t *testing.T) {
	registry := newSubscriptionRegistry()
	var delivered bool
	registry.add([]Channel{"/chat/general"}, func(Channel, []byte) {}, nil)

	d := newDispatcher(registry)
	d.deliverToSubscriber = func(entry *subscriptionEntry, channel Channel, data []byte) { delivered = true }

	d.dispatch(Message{Channel: "/chat/general"})
	if delivered {
		t.Error("expected no delivery for a message with no Data")
	}

	d.dispatch(Message{Channel: "/chat/general", Data: []byte(`null`)})
	if delivered {
		t.Error("expected no delivery for a message with an explicit JSON null Data")
	}

	d.dispatch(Message{Channel: "/chat/general", Data: []byte(`{}`)})
	if !delivered {
		t.Error("expected delivery for a message carrying Data")
	}
}

func TestDispatcherDeliversToWildcardSubscription(t *testing.T) {
	registry := newSubscriptionRegistry()
	registry.add([]Channel{"/chat/*"}, func(Channel, []byte) {}, nil)

	d := newDispatcher(registry)
	var delivered Channel
	d.deliverToSubscriber = func(entry *subscriptionEntry, channel Channel, data []byte) { delivered = channel }

	d.dispatch(Message{Channel: "/chat/general", Data: []byte(`{}`)})
	if delivered != "/chat/general" {
		t.Errorf("expected the wildcard subscription /chat/* to match /chat/general, got delivered=%q", delivered)
	}
}

func TestDispatcherUnexpectedMessage(t *testing.T) {
	d := newDispatcher(newSubscriptionRegistry())

	var got Message
	d.onUnexpectedMessage = func(m Message) { got = m }

	d.dispatch(Message{Channel: "/not/subscribed", Data: []byte(`{}`)})
	if got.Channel != "/not/subscribed" {
		t.Errorf("expected the unexpected-message callback to fire, got %+v", got)
	}
}

func TestDispatcherAppliesAdviceBeforeMetaHandler(t *testing.T) {
	d := newDispatcher(newSubscriptionRegistry())

	var order []string
	d.applyAdvice = func(Message) { order = append(order, "advice") }
	d.setHandler(MetaConnect, func(Message) { order = append(order, "handler") })

	d.dispatch(Message{Channel: MetaConnect, Advice: &Advice{Reconnect: AdviceRetry}})

	if len(order) != 2 || order[0] != "advice" || order[1] != "handler" {
		t.Errorf("expected advice to apply before the meta-channel handler, got %v", order)
	}
}
