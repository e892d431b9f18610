// Package state holds the operational state of a running Oscar process.
//
// A single Store is created at process start and shared by every request
// handler that needs to know whether the service is online. Reads take a
// shared lock and writes take an exclusive one, so a Snapshot always pairs a
// state with the timestamp written by the same SetState call.
package state

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// State is the operational state of the service.
type State uint8

const (
	// Initialized is the state of a process that has not finished starting up.
	Initialized State = iota
	// Online indicates the service is ready to serve application traffic.
	Online
	// Maintenance indicates an operator has taken the service out of rotation.
	Maintenance
	// Stopping indicates shutdown has begun. It is terminal for the process.
	Stopping
)

// String returns the status label reported by the status endpoint.
func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Online:
		return "ok"
	case Maintenance:
		return "maintenance"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// States lists every State in declaration order.
func States() []State {
	return []State{Initialized, Online, Maintenance, Stopping}
}

// Snapshot is a consistent view of the store at one point in time.
type Snapshot struct {
	State State

	// StartedAt is the zero time until the first SetState call.
	StartedAt time.Time
}

// Started reports whether a start timestamp has been recorded.
func (s Snapshot) Started() bool {
	return !s.StartedAt.IsZero()
}

// Uptime returns the time elapsed between StartedAt and now. The boolean is
// false when no start timestamp has been recorded.
func (s Snapshot) Uptime(now time.Time) (time.Duration, bool) {
	if !s.Started() {
		return 0, false
	}
	return now.Sub(s.StartedAt), true
}

// Store guards the current Snapshot with a reader/writer lock.
type Store struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock clock.PassiveClock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp state transitions.
func WithClock(clk clock.PassiveClock) Option {
	return func(s *Store) {
		s.clock = clk
	}
}

// NewStore returns a store in the Initialized state with no start timestamp.
func NewStore(opts ...Option) *Store {
	s := &Store{
		snap:  Snapshot{State: Initialized},
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state and start timestamp.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetState replaces the current state and stamps it with the current time.
func (s *Store) SetState(state State) {
	s.SetStateAt(state, s.clock.Now())
}

// SetStateAt replaces the current state and start timestamp. Any state may
// follow any other; transitions are not validated.
func (s *Store) SetStateAt(state State, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{State: state, StartedAt: startedAt}
}

// Transition replaces the state while keeping the recorded start timestamp,
// stamping it only if none has been recorded yet. It returns the previous state.
func (s *Store) Transition(state State) State {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap.State
	startedAt := s.snap.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	s.snap = Snapshot{State: state, StartedAt: startedAt}
	return prev
}
