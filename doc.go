// Package bayeux is a client for the Bayeux 1.0 publish/subscribe protocol,
// connecting over WebSocket with an HTTP POST fallback for the handshake
// only.
//
// Construct a Session with a server address and connect it:
//
//	session, err := bayeux.NewSession("https://example.com/bayeux")
//	if err != nil {
//		// handle err
//	}
//	session.Connect(nil, nil)
//
// Subscribe a callback to one or more channels; the registry shares one
// entry across every channel passed to a single call:
//
//	session.Subscribe([]bayeux.Channel{"/chat/general"}, func(ch bayeux.Channel, data []byte) {
//		// handle data
//	}, nil)
//
// Extensions observe and mutate every outgoing and incoming envelope, used
// for things like authentication tokens riding in the ext field:
//
//	type Example struct{}
//	func (e *Example) Registered(name string, session *bayeux.Session) {}
//	func (e *Example) Unregistered()                                   {}
//	func (e *Example) Outgoing(m *bayeux.Message) {
//		if m.Channel == bayeux.MetaHandshake {
//			m.GetExt(true)["example"] = true
//		}
//	}
//	func (e *Example) Incoming(m *bayeux.Message) {}
//
//	session.RegisterExtension("example", &Example{})
package bayeux
