package tdauth

import (
	"sync"

	"github.com/rusq/tdauth/authflow"
	"github.com/rusq/tdauth/td"
)

// session is the worker record of a bound client.
type session struct {
	client  BoundClient
	handler authflow.Handler
	params  Parameters

	// fields below are guarded by Worker.mu.
	authState td.AuthorizationState
	state     ClientState
	seq       uint64 // event counter
	transSeq  uint64 // seq of the last transition
	failSeq   uint64 // seq of the last failure
	// failure is the pending dispatch failure.  It's cleared by the next
	// attempt or the transition to another state.
	failure *DispatchError
	// lastFailure is the failure recorded at failSeq.
	lastFailure *DispatchError
	// changed is closed and replaced on each event.
	changed chan struct{}
	waiters int

	// dispatchMu serializes the dispatches.
	dispatchMu sync.Mutex
	queue      chan td.AuthorizationState
	// quit is closed when the session is reaped.
	quit chan struct{}
}

func newSession(c BoundClient, h authflow.Handler, p Parameters, queueSize int) *session {
	return &session{
		client:  c,
		handler: h,
		params:  p,
		state:   ClientStateAuthorizing,
		changed: make(chan struct{}),
		queue:   make(chan td.AuthorizationState, queueSize),
		quit:    make(chan struct{}),
	}
}

func (s *session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// setLocked records the transition to st and wakes up the waiters.
func (s *session) setLocked(st td.AuthorizationState) {
	s.seq++
	s.transSeq = s.seq
	s.authState = st
	s.state = StateOf(st)
	if s.failure != nil && !sameType(s.failure.State, st) {
		s.failure = nil
	}
	s.notifyLocked()
}

// failLocked records the dispatch failure and wakes up the waiters.
func (s *session) failLocked(derr *DispatchError) {
	s.seq++
	s.failSeq = s.seq
	s.failure = derr
	s.lastFailure = derr
	s.notifyLocked()
}
