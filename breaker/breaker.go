// Package breaker implements the circuit-breaker state machine guarding
// provider calls. One Breaker instance is shared by every concurrent request
// targeting the same provider endpoint.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Call without invoking the operation while the
// breaker is open and the recovery window has not elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// State enumerates the breaker positions.
type State int

const (
	// Closed admits every call.
	Closed State = iota
	// Open rejects every call until the recovery timeout elapses.
	Open
	// HalfOpen admits exactly one trial call.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a mutex-linearized circuit breaker. Every error returned by the
// guarded operation counts as a failure; there is no error-type filtering.
type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	now func() time.Time
}

// New returns a closed breaker that opens after threshold consecutive
// failures and admits a single trial call once recovery has elapsed.
func New(name string, threshold int, recovery time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		recovery:  recovery,
		now:       time.Now,
	}
}

// Call runs op under the breaker. While the breaker is open it returns
// ErrOpen without invoking op. Any error from op is returned unchanged after
// the failure is recorded.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	if err := op(ctx); err != nil {
		b.recordFailure(trial)
		return err
	}

	b.recordSuccess()
	return nil
}

// admit decides under the lock whether a call may proceed, so two concurrent
// half-open attempts can never both be admitted.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return false, nil
	case Open:
		if b.now().Before(b.lastFailure.Add(b.recovery)) {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.trialInFlight = true
		slog.Info("circuit breaker half-open, admitting trial call", slog.String("breaker", b.name))
		return true, nil
	default: // HalfOpen
		if b.trialInFlight {
			return false, ErrOpen
		}
		b.trialInFlight = true
		return true, nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Closed {
		slog.Info("circuit breaker closed", slog.String("breaker", b.name))
	}
	b.state = Closed
	b.failures = 0
	b.trialInFlight = false
}

func (b *Breaker) recordFailure(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		// Failed trial reopens the breaker. The counter stays at threshold.
		b.state = Open
		b.lastFailure = b.now()
		b.trialInFlight = false
		slog.Warn("circuit breaker trial failed, reopening", slog.String("breaker", b.name))
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		if b.state != Open {
			slog.Warn("circuit breaker opened",
				slog.String("breaker", b.name),
				slog.Int("failures", b.failures))
		}
		b.state = Open
		b.lastFailure = b.now()
	}
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Name returns the breaker's endpoint name.
func (b *Breaker) Name() string {
	return b.name
}
