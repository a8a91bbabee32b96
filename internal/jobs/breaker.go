package jobs

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is refusing work.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker stops the inbox from hammering a database that is down:
// after maxFailures consecutive failures it refuses work until resetTimeout
// has passed, then lets one attempt through.
type CircuitBreaker struct {
	maxFailures  int32
	resetTimeout time.Duration
	failures     int32
	lastFailTime time.Time
	state        CircuitBreakerState
	mutex        sync.RWMutex
	now          func() time.Time
}

func NewCircuitBreaker(maxFailures int32, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Allow reports whether work may run now, moving an expired open breaker to
// half-open.
func (cb *CircuitBreaker) Allow() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) <= cb.resetTimeout {
			return ErrBreakerOpen
		}
		cb.state = StateHalfOpen
	}
	return nil
}

// Record feeds the outcome of one attempt back into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	cb.lastFailTime = cb.now()
	if cb.failures >= cb.maxFailures || cb.state == StateHalfOpen {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}
