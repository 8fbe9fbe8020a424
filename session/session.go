// Package session implements Session, the non-I/O policy bag attached to
// a Stream's socket: a three-valued usage state, a fixed set of three
// named boolean options, a heartbeat text, and two timers. Uses a
// sync.Once-guarded Stop and explicit timer fields, adapted from a
// cancellation-context session to a state/option/heartbeat bag.
package session

import (
	"sync"
	"time"

	"github.com/hermes-go/hermes/herrors"
)

// State is the three-valued socket usage state.
type State int

const (
	Unused State = iota
	Reading
	Writing
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	default:
		return "unused"
	}
}

// option names the closed enum of Session options: exactly {state,
// deadline, heartbeat}. An unknown name is a hard configuration error
// rather than a silent no-op.
type option int

const (
	optState option = iota
	optDeadline
	optHeartbeat
	numOptions
)

func parseOption(name string) (option, bool) {
	switch name {
	case "state":
		return optState, true
	case "deadline":
		return optDeadline, true
	case "heartbeat":
		return optHeartbeat, true
	default:
		return 0, false
	}
}

const defaultHeartbeat = "<3"

// Session is the policy bag attached to one Stream's socket. Session
// performs no I/O of its own.
type Session struct {
	mu        sync.Mutex
	state     State
	options   [numOptions]bool
	heartbeat string
	deadline  *time.Timer
	heartbeatTimer *time.Timer
	stopOnce  sync.Once
}

// New constructs a Session with state Unused, every option deactivated,
// heartbeat text "<3", and both timers created-but-stopped: exposed for
// future use, never armed by this implementation.
func New() *Session {
	s := &Session{heartbeat: defaultHeartbeat}
	s.deadline = time.NewTimer(0)
	s.deadline.Stop()
	s.heartbeatTimer = time.NewTimer(0)
	s.heartbeatTimer.Stop()
	return s
}

// SetState sets the socket usage state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// GetState returns the current socket usage state.
func (s *Session) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsUnused() bool  { return s.GetState() == Unused }
func (s *Session) IsReading() bool { return s.GetState() == Reading }
func (s *Session) IsWriting() bool { return s.GetState() == Writing }

// ActivateOption marks name active. name must be one of
// {"state","deadline","heartbeat"}; any other value fails with
// herrors.KindConfiguration.
func (s *Session) ActivateOption(name string) error {
	opt, ok := parseOption(name)
	if !ok {
		return herrors.New(herrors.KindConfiguration, "Session.ActivateOption", herrors.ErrInvalidOption)
	}
	s.mu.Lock()
	s.options[opt] = true
	s.mu.Unlock()
	return nil
}

// IsOptionActivated reports whether name is active. Unknown names report
// false rather than erroring.
func (s *Session) IsOptionActivated(name string) bool {
	opt, ok := parseOption(name)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options[opt]
}

// SetHeartbeatMessage replaces the heartbeat text.
func (s *Session) SetHeartbeatMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeat = msg
}

// HeartbeatMessage returns the current heartbeat text.
func (s *Session) HeartbeatMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeat
}

// Deadline returns the deadline timer. Never armed by this implementation.
func (s *Session) Deadline() *time.Timer { return s.deadline }

// Heartbeat returns the heartbeat timer. Never armed by this implementation.
func (s *Session) Heartbeat() *time.Timer { return s.heartbeatTimer }

// Stop cancels both timers and clears all three options to false.
// Idempotent: Stop();Stop() is indistinguishable from a single Stop().
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.options {
			s.options[i] = false
		}
		s.deadline.Stop()
		s.heartbeatTimer.Stop()
	})
}
