package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// State of a producer or consumer.
type State int

const (
	Created State = iota
	Connecting
	Ready
	Polling
	Stopped
	Closed
)

var stateNames = map[State]string{
	Created:    "CREATED",
	Connecting: "CONNECTING",
	Ready:      "READY",
	Polling:    "POLLING",
	Stopped:    "STOPPED",
	Closed:     "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrInvalidTransition is returned when a transition is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Machine guards state transitions.
type Machine struct {
	mu       sync.Mutex
	state    State
	previous State
}

// State ...
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin moves Created, Stopped or Closed into Connecting.
func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Created, Stopped, Closed:
		m.previous = m.state
		m.state = Connecting
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, Connecting)
	}
}

// Fail reverts a failed Connecting back to where it started.
func (m *Machine) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connecting {
		m.state = m.previous
	}
}

// Transition moves from one of the allowed states into next.
func (m *Machine) Transition(next State, from ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range from {
		if m.state == s {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// Close moves any state into Closed and reports whether it changed.
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Closed {
		return false
	}
	m.state = Closed
	return true
}
