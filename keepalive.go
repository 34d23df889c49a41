package bayeux

import (
	"sync"
	"time"
)

// keepAliveScheduler arms the single deferred /meta/connect task described
// in spec §4.5. Only ever one timer is live: scheduling a new one always
// stops whatever was pending.
type keepAliveScheduler struct {
	mu    sync.Mutex
	timer *time.Timer
}

func newKeepAliveScheduler() *keepAliveScheduler {
	return &keepAliveScheduler{}
}

// schedule arms fn to run after d, replacing any pending task. fn always
// runs asynchronously — callers rely on this never firing synchronously,
// per the spec's warning against a too-fast retry looking like a timeout
// to some servers.
func (k *keepAliveScheduler) schedule(d time.Duration, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.timer != nil {
		k.timer.Stop()
	}
	k.timer = time.AfterFunc(d, fn)
}

func (k *keepAliveScheduler) stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
}
