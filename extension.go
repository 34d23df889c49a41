package bayeux

// MessageExtender lets a caller observe and mutate every envelope a Session
// sends or receives, the pass-through extension point §4.6's ext field
// exists for (authentication tokens, replay ids, and similar).
type MessageExtender interface {
	Outgoing(*Message)
	Incoming(*Message)
	Registered(extensionName string, session *Session)
	Unregistered()
}

// RegisterExtension adds ext to the session's extension chain. Outgoing
// runs, in registration order, on every envelope just before it's encoded;
// Incoming runs on every envelope just after it's decoded, before
// dispatch.
func (s *Session) RegisterExtension(name string, ext MessageExtender) error {
	s.extMu.Lock()
	defer s.extMu.Unlock()

	for _, registered := range s.exts {
		if registered == ext {
			return ErrAlreadyRegistered
		}
	}
	s.exts = append(s.exts, ext)
	ext.Registered(name, s)
	return nil
}

// UnregisterExtension removes ext from the chain, if present.
func (s *Session) UnregisterExtension(ext MessageExtender) {
	s.extMu.Lock()
	defer s.extMu.Unlock()

	for i, registered := range s.exts {
		if registered == ext {
			s.exts = append(s.exts[:i], s.exts[i+1:]...)
			ext.Unregistered()
			return
		}
	}
}

func (s *Session) applyOutgoingExtensions(m *Message) {
	s.extMu.Lock()
	exts := s.exts
	s.extMu.Unlock()
	for _, ext := range exts {
		ext.Outgoing(m)
	}
}

func (s *Session) applyIncomingExtensions(m *Message) {
	s.extMu.Lock()
	exts := s.exts
	s.extMu.Unlock()
	for _, ext := range exts {
		ext.Incoming(m)
	}
}
