// Package replay implements the replay-id extension: the server advertises
// support for it during handshake, the client echoes back the last replay
// id seen per channel on each /meta/subscribe, and drops the stored id once
// a channel is unsubscribed.
package replay

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	bayeux "github.com/shir/socketclient"
)

const (
	// ExtensionName is the ext key both sides use to negotiate replay
	// support and exchange replay ids.
	ExtensionName string = "replay"
	eventKey      string = "event"
	replayIDKey   string = "replayId"
)

const (
	unsupported int32 = iota
	supported
)

// Extension tracks per-channel replay ids and whether the server has
// confirmed support for the extension.
type Extension struct {
	supportedByServer int32
	replayStore       IDStorer
}

// IDStorer stores and manages the channels and replay IDs for a bayeux
// server that supports the replay extension.
type IDStorer interface {
	Set(channel string, replayID int)
	Get(channel string) (int, bool)
	Delete(channel string)
	AsMap() map[string]int
}

// New creates an extension instance. A nil store gets a fresh MapStorage.
func New(store IDStorer) *Extension {
	if store == nil {
		store = NewMapStorage()
	}
	return &Extension{replayStore: store}
}

// Outgoing attaches any additional metadata to a message
func (e *Extension) Outgoing(ms *bayeux.Message) {
	switch ms.Channel {
	case bayeux.MetaHandshake:
		ext := ms.GetExt(true)
		ext[ExtensionName] = true
	case bayeux.MetaSubscribe:
		if e.isSupported() {
			ext := ms.GetExt(true)
			ext[ExtensionName] = e.replayStore.AsMap()
		}
	}
}

// Incoming attaches any additional metadata to a message
func (e *Extension) Incoming(ms *bayeux.Message) {
	switch ms.Channel.Type() {
	case bayeux.MetaChannel:
		switch ms.Channel {
		case bayeux.MetaHandshake:
			ext := ms.GetExt(false)
			if ext != nil {
				isSupported, ok := ext[ExtensionName].(bool)
				if ok && isSupported {
					atomic.CompareAndSwapInt32(&e.supportedByServer, unsupported, supported)
				}
			}
		case bayeux.MetaUnsubscribe:
			for _, channel := range ms.Subscription {
				e.replayStore.Delete(string(channel))
			}
		}
	case bayeux.BroadcastChannel:
		e.updateReplayID(ms)
	}
}

// Registered is called after the extension has been registered with a
// Session.
func (e *Extension) Registered(extensionName string, session *bayeux.Session) {}

// Unregistered is called when the extension is unregistered.
func (e *Extension) Unregistered() {}

func (e *Extension) updateReplayID(ms *bayeux.Message) {
	var data map[string]interface{}
	if err := json.Unmarshal(ms.Data, &data); err != nil {
		return
	}
	event, ok := data[eventKey].(map[string]interface{})
	if !ok {
		return
	}
	replayID, ok := event[replayIDKey].(float64)
	if !ok {
		return
	}
	e.replayStore.Set(string(ms.Channel), int(replayID))
}

func (e *Extension) isSupported() bool {
	return atomic.LoadInt32(&e.supportedByServer) == supported
}

// MapStorage implements IDStorer over a plain map guarded by an RWMutex.
type MapStorage struct {
	store map[string]int
	lock  sync.RWMutex
}

// NewMapStorage creates a new MapStorage instance
func NewMapStorage() *MapStorage {
	return &MapStorage{store: make(map[string]int)}
}

// Set implements the IDStorer interface
func (s *MapStorage) Set(channel string, replayID int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.store[channel] = replayID
}

// Get implements the IDStorer interface
func (s *MapStorage) Get(channel string) (replayID int, ok bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	replayID, ok = s.store[channel]
	return
}

// Delete implements the IDStorer interface
func (s *MapStorage) Delete(channel string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.store, channel)
}

// AsMap implements the IDStorer interface
func (s *MapStorage) AsMap() map[string]int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	replay := make(map[string]int)
	for k, v := range s.store {
		replay[k] = v
	}
	return replay
}
