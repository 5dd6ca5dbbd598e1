package notify

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig tunes CircuitBreakerNotifier. Zero values are
// replaced with sane defaults in NewCircuitBreakerNotifier.
type CircuitBreakerConfig struct {
	Timeout          time.Duration // hard timeout per notify call
	FailureThreshold int           // consecutive failures to open the circuit
	Cooldown         time.Duration // base time open before trying half-open
	HalfOpenMaxCalls int           // trial calls allowed while half-open
}

// CircuitBreakerNotifier wraps a Notifier (typically a webhook sender) and
// stops calling it once it starts failing, retrying occasionally rather
// than blocking every job completion on a dead endpoint.
type CircuitBreakerNotifier struct {
	inner Notifier
	cfg   CircuitBreakerConfig
	mu    sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewCircuitBreakerNotifier(inner Notifier, cfg CircuitBreakerConfig) *CircuitBreakerNotifier {
	//defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &CircuitBreakerNotifier{
		inner: inner,
		cfg:   cfg,
		state: "closed",
	}
}

func (n *CircuitBreakerNotifier) Notify(ctx context.Context, evt Event) error {
	// fail-fast gate

	if !n.allowRequest() {
		return ErrCircuitOpen
	}
	// enforce timeout

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.Notify(sendCtx, evt)

	n.afterRequest(err)

	return err
}

func (n *CircuitBreakerNotifier) allowRequest() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case "closed":
		return true
	case "open":
		// cooldown has passed? move to half open, jittered so a burst of
		// terminal jobs doesn't all probe the endpoint at the same instant

		cooldown := n.cfg.Cooldown + time.Duration(rand.Int63n(int64(n.cfg.Cooldown)/5+1))
		if time.Since(n.openedAt) >= cooldown {
			n.state = "half_open"
			// this call is the first half-open trial
			n.halfOpenInFlight = 1
			return true
		}
		return false
	case "half_open":
		if n.halfOpenInFlight >= n.cfg.HalfOpenMaxCalls {
			return false
		}
		n.halfOpenInFlight++
		return true

	default:
		// safe fallback
		return true
	}

}

func (n *CircuitBreakerNotifier) afterRequest(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// half-open call just finished
	if n.state == "half_open" && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}

	if err == nil {
		// success => close circuit and reset counters
		n.consecutiveFailures = 0
		n.state = "closed"
		return
	}

	// failure
	n.consecutiveFailures++

	// if half-open failed, reopen immediately
	if n.state == "half_open" {
		n.state = "open"
		n.openedAt = time.Now()
		return
	}

	// if failures reached threshold, open circuit
	if n.consecutiveFailures >= n.cfg.FailureThreshold {
		n.state = "open"
		n.openedAt = time.Now()
	}
}
