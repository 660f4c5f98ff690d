package gateway

import (
	"sync"
	"sync/atomic"
)

// Session holds the identity of one gateway session across reconnects.
// The controller goroutine is the only writer; the heartbeat monitor and
// outbound commands read the sequence concurrently.
type Session struct {
	rwlock           sync.RWMutex
	id               string
	resumeGatewayURL string
	canResume        bool
	sequence         atomic.Int64
}

func NewSession() *Session {
	return &Session{}
}

// Ready records the session identity delivered by the READY dispatch.
func (s *Session) Ready(id string, resumeGatewayURL string) {
	s.rwlock.Lock()
	defer s.rwlock.Unlock()
	s.id = id
	s.resumeGatewayURL = resumeGatewayURL
	s.canResume = true
}

// Invalidate is called on INVALID_SESSION. A non-resumable invalidation
// destroys the session id so the next connect performs a fresh identify.
func (s *Session) Invalidate(resumable bool) {
	s.rwlock.Lock()
	defer s.rwlock.Unlock()
	s.canResume = resumable
	if !resumable {
		s.id = ""
		s.sequence.Store(0)
	}
}

func (s *Session) ID() string {
	s.rwlock.RLock()
	defer s.rwlock.RUnlock()
	return s.id
}

func (s *Session) ResumeGatewayURL() string {
	s.rwlock.RLock()
	defer s.rwlock.RUnlock()
	return s.resumeGatewayURL
}

func (s *Session) CanResume() bool {
	s.rwlock.RLock()
	defer s.rwlock.RUnlock()
	return s.canResume && s.id != ""
}

// UpdateSequence keeps the highest sequence seen so a resume never replays
// from a stale position.
func (s *Session) UpdateSequence(seq int64) {
	for {
		old := s.sequence.Load()
		if seq <= old {
			return
		}
		if s.sequence.CompareAndSwap(old, seq) {
			return
		}
	}
}

func (s *Session) Sequence() int64 {
	return s.sequence.Load()
}
