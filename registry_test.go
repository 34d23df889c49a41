package bayeux

import "testing"

func TestSubscriptionRegistryAddAndGet(t *testing.T) {
	r := newSubscriptionRegistry()
	called := make(chan Channel, 1)
	cb := func(ch Channel, data []byte) { called <- ch }

	r.add([]Channel{"/foo", "/bar"}, cb, nil)

	entry, ok := r.get("/foo")
	if !ok {
		t.Fatal("expected /foo to be registered")
	}
	entry.callback("/foo", nil)
	if got := <-called; got != "/foo" {
		t.Errorf("expected callback to receive /foo, got %s", got)
	}

	other, ok := r.get("/bar")
	if !ok {
		t.Fatal("expected /bar to be registered")
	}
	if other != entry {
		t.Error("expected /foo and /bar to share the same entry")
	}
}

func TestSubscriptionRegistryRemove(t *testing.T) {
	r := newSubscriptionRegistry()
	r.add([]Channel{"/foo"}, func(Channel, []byte) {}, nil)
	r.remove("/foo")

	if _, ok := r.get("/foo"); ok {
		t.Error("expected /foo to be gone after remove")
	}
}

func TestSubscriptionRegistryChannels(t *testing.T) {
	r := newSubscriptionRegistry()
	r.add([]Channel{"/foo", "/bar"}, func(Channel, []byte) {}, nil)

	got := r.channels()
	if len(got) != 2 {
		t.Fatalf("expected 2 channels, got %d: %v", len(got), got)
	}
}

func TestSubscriptionRegistryGetMatchesWildcardPattern(t *testing.T) {
	r := newSubscriptionRegistry()
	entry := r.add([]Channel{"/chat/*"}, func(Channel, []byte) {}, nil)

	got, ok := r.get("/chat/general")
	if !ok {
		t.Fatal("expected /chat/general to resolve against the /chat/* subscription")
	}
	if got != entry {
		t.Error("expected the wildcard lookup to return the registered entry")
	}

	if _, ok := r.get("/other/general"); ok {
		t.Error("expected a channel outside the wildcard's scope to not match")
	}
}

func TestSubscriptionRegistryGetPrefersExactMatchOverWildcard(t *testing.T) {
	r := newSubscriptionRegistry()
	wildcard := r.add([]Channel{"/chat/*"}, func(Channel, []byte) {}, nil)
	exact := r.add([]Channel{"/chat/general"}, func(Channel, []byte) {}, nil)

	got, ok := r.get("/chat/general")
	if !ok {
		t.Fatal("expected /chat/general to resolve")
	}
	if got != exact || got == wildcard {
		t.Error("expected an exact match to win over an overlapping wildcard")
	}
}

func TestSubscriptionRegistrySnapshotGroupsSharedEntries(t *testing.T) {
	r := newSubscriptionRegistry()
	r.add([]Channel{"/foo", "/bar"}, func(Channel, []byte) {}, nil)
	r.add([]Channel{"/baz"}, func(Channel, []byte) {}, nil)

	snapshot := r.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected one restored entry per distinct Subscribe call, got %d", len(snapshot))
	}

	var sawSharedEntry bool
	for _, entry := range snapshot {
		if len(entry.channels) == 2 {
			sawSharedEntry = true
		}
	}
	if !sawSharedEntry {
		t.Error("expected the /foo,/bar entry to be restored as a single two-channel entry, not two separate ones")
	}
}
