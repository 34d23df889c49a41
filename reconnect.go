package bayeux

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// defaultRetryInterval is restored whenever the server sends
// advice={reconnect:"retry", interval:0}, per spec §4.4.A.
const defaultRetryInterval = 45 * time.Second

// reconnectController interprets server advice and transport-layer failures
// and schedules retries, handshakes, or full reconnects in response. It
// never runs on its own goroutine; every method it exposes is called from
// the session's worker queue.
type reconnectController struct {
	session *reconnectHost

	watcher ReachabilityWatcher

	mu                   sync.Mutex
	teardownReachability func()
	connectionRequired   atomic.Bool
}

// reconnectHost is the subset of Session the controller needs. It is a
// struct of closures so the controller's advice/error-handling logic can be
// tested without constructing a full Session.
type reconnectHost struct {
	setRetryInterval     func(time.Duration)
	retryInterval        func() time.Duration
	setReconnectInterval func(time.Duration)
	reconnectInterval    func() time.Duration
	isReconnecting       func() bool
	host                 func() string
	handshake            func()
	reconnect            func()
	disconnectToIdle     func(err error)
	scheduleAfter        func(d time.Duration, fn func())
	delegate             func() Delegate
	postToDelegateQueue  func(func())
	logger               func() Logger
}

func newReconnectController(host *reconnectHost, watcher ReachabilityWatcher) *reconnectController {
	if watcher == nil {
		watcher = newPollingReachabilityWatcher()
	}
	if host.logger == nil {
		host.logger = func() Logger { return newNullLogger() }
	}
	return &reconnectController{session: host, watcher: watcher}
}

// handleAdvice implements spec §4.4.A. It must run before the message's
// meta-channel handler, which the dispatcher guarantees. Only advice carried
// by an unsuccessful message is acted on; advice on a successful reply is
// ignored here.
func (c *reconnectController) handleAdvice(m Message) {
	advice := m.Advice
	if advice == nil || m.Successful {
		return
	}

	switch advice.Reconnect {
	case AdviceRetry:
		c.handleRetryAdvice(advice)
	case AdviceHandshake:
		c.handleHandshakeAdvice()
	case AdviceNone:
		c.handleNoneAdvice(m)
	}
}

func (c *reconnectController) handleRetryAdvice(advice *Advice) {
	interval := c.session.retryInterval()
	if advice.Interval > 0 {
		interval = advice.IntervalDuration()
	} else if advice.Interval == 0 {
		interval = defaultRetryInterval
	}
	c.session.logger().WithField("at", "advice").WithField("interval", interval).Debug("retry")

	if delegate := c.session.delegate(); delegate != nil {
		done := make(chan struct{})
		c.session.postToDelegateQueue(func() {
			defer close(done)
			delegate.AdvisedToRetry(&interval)
		})
		<-done
	}

	c.session.setRetryInterval(interval)
}

func (c *reconnectController) handleHandshakeAdvice() {
	shouldRetry := true
	delegate := c.session.delegate()
	if delegate != nil {
		done := make(chan struct{})
		c.session.postToDelegateQueue(func() {
			defer close(done)
			delegate.AdvisedToHandshake(&shouldRetry)
		})
		<-done
	}
	c.session.logger().WithField("at", "advice").WithField("shouldRetry", shouldRetry).Debug("handshake")
	if shouldRetry {
		c.session.handshake()
	}
}

func (c *reconnectController) handleNoneAdvice(m Message) {
	c.session.logger().WithField("at", "advice").Debug("none")
	if len(m.Subscription) != 0 && len(m.Subscription) == 1 && m.Subscription[0] == "connection" {
		c.session.disconnectToIdle(ReceivedAdviceReconnectNoneError{Message: m.Error})
		return
	}
	if m.Channel == MetaConnect {
		c.session.disconnectToIdle(ReceivedAdviceReconnectNoneError{Message: m.Error})
	}
}

// handleTransportError implements spec §4.4.B.
func (c *reconnectController) handleTransportError(err error) {
	logger := c.session.logger().WithField("at", "transportError").WithError(err)
	reconnectInterval := c.session.reconnectInterval()
	if reconnectInterval < 0 {
		logger.Debug("ignored, automatic reconnect disabled")
		return
	}

	switch {
	case isNetworkUnreachable(err):
		logger.Debug("network unreachable, awaiting reachability")
		c.awaitReachabilityThenReconnect()
	case isConnectionError(err):
		logger.WithField("reconnectInterval", reconnectInterval).Debug("scheduling reconnect")
		c.session.scheduleAfter(reconnectInterval, func() {
			c.session.reconnect()
		})
	}
}

func (c *reconnectController) awaitReachabilityThenReconnect() {
	c.mu.Lock()
	if c.teardownReachability != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	host := c.session.host()
	cancel := c.watcher.awaitReachable(host, func() {
		c.mu.Lock()
		c.teardownReachability = nil
		c.mu.Unlock()

		if c.connectionRequired.Load() {
			return
		}
		if c.session.isReconnecting() {
			return
		}
		if c.session.reconnectInterval() <= 0 {
			return
		}
		c.session.reconnect()
	})

	c.mu.Lock()
	c.teardownReachability = cancel
	c.mu.Unlock()
}

// setConnectionRequired toggles the transient flag spec §4.4.B calls out:
// while it is set, a reachability callback must not trigger a reconnect.
func (c *reconnectController) setConnectionRequired(v bool) {
	c.connectionRequired.Store(v)
}

func isNetworkUnreachable(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ENETDOWN, syscall.ENETUNREACH, syscall.EHOSTDOWN, syscall.EHOSTUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func isConnectionError(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ENOTCONN, syscall.ETIMEDOUT, syscall.ECONNREFUSED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
