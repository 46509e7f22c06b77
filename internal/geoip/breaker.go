package geoip

import (
	"sync"
	"time"
)

// State of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker stops calling the lookup service after consecutive failures and
// lets a single probe through once resetTimeout has passed.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	probing       bool
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(failThreshold int, resetTimeout time.Duration) *Breaker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &Breaker{
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

// Allow reports whether a call may proceed
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) > b.resetTimeout {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failure; a failed probe reopens immediately
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	b.probing = false

	if b.state == StateHalfOpen || b.failures >= b.failThreshold {
		b.state = StateOpen
	}
}

// State returns the current state without transitioning
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
