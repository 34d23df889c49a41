package bayeux

import "sync"

// SubscriptionCallback receives the payload of a published message on one
// of the channels it was registered for.
type SubscriptionCallback func(channel Channel, data []byte)

// subscriptionEntry is a single callback shared across one or more channels.
// The registry keeps one entry per distinct Subscribe call; unsubscribing
// the last channel on an entry drops it.
type subscriptionEntry struct {
	callback SubscriptionCallback
	ext      map[string]interface{}
	channels map[Channel]struct{}
}

// subscriptionRegistry tracks locally active channels, grounded on the
// teacher's subscriptionsMap but generalized so a single callback can cover
// several channels and so entries survive reconnects for restoration.
type subscriptionRegistry struct {
	mu      sync.Mutex
	entries map[Channel]*subscriptionEntry
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{entries: make(map[Channel]*subscriptionEntry)}
}

// add installs a single entry shared by every channel in channels. Any
// channel already registered is rebound to the new entry.
func (r *subscriptionRegistry) add(channels []Channel, cb SubscriptionCallback, ext map[string]interface{}) *subscriptionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &subscriptionEntry{
		callback: cb,
		ext:      ext,
		channels: make(map[Channel]struct{}, len(channels)),
	}
	for _, ch := range channels {
		entry.channels[ch] = struct{}{}
		r.entries[ch] = entry
	}
	return entry
}

// remove drops a single channel locally. If it was the last channel on its
// entry, the entry itself is dropped.
func (r *subscriptionRegistry) remove(channel Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[channel]
	if !ok {
		return
	}
	delete(entry.channels, channel)
	delete(r.entries, channel)
}

// get resolves channel against the registry: an exact match wins, otherwise
// every wildcard pattern currently registered (e.g. "/foo/*", "/foo/**") is
// tried, since a server may deliver on the concrete channel a wildcard
// subscription covers rather than replaying the pattern itself.
func (r *subscriptionRegistry) get(channel Channel) (*subscriptionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[channel]; ok {
		return entry, true
	}
	for pattern, entry := range r.entries {
		if pattern.HasWildcard() && pattern.Match(channel) {
			return entry, true
		}
	}
	return nil, false
}

// channels returns the current key set, the definition of
// SubscribedChannels in the public API.
func (r *subscriptionRegistry) channels() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Channel, 0, len(r.entries))
	for ch := range r.entries {
		out = append(out, ch)
	}
	return out
}

// snapshot captures every distinct entry currently registered, grouped by
// the channels that share it, used by reconnect() to restore subscriptions
// after a fresh handshake with one /meta/subscribe per entry rather than
// per channel. It does not mutate the registry.
func (r *subscriptionRegistry) snapshot() []restoredEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*subscriptionEntry]bool)
	out := make([]restoredEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if seen[entry] {
			continue
		}
		seen[entry] = true

		channels := make([]Channel, 0, len(entry.channels))
		for ch := range entry.channels {
			channels = append(channels, ch)
		}
		out = append(out, restoredEntry{channels: channels, ext: entry.ext, callback: entry.callback})
	}
	return out
}

type restoredEntry struct {
	channels []Channel
	ext      map[string]interface{}
	callback SubscriptionCallback
}
