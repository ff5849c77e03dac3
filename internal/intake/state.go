package intake

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultLoopGuardTTL is how long a path written by the pipeline is ignored.
	DefaultLoopGuardTTL = 20 * time.Second

	loopGuardCapacity = 4096
)

// Warning identifies a user-facing warning that fires at most once per session.
type Warning string

const (
	WarnConfigurationMissing Warning = "configuration_missing"
	WarnPresetInvalid        Warning = "preset_invalid"
	WarnPresetProvisioning   Warning = "preset_provisioning"
)

// SessionState holds the process-wide guards shared by all intake attempts.
// Nothing here is persisted; Reset restores a fresh session.
// It is safe for concurrent use.
type SessionState struct {
	created *expirable.LRU[string, struct{}]

	mu              sync.Mutex
	inFlight        map[string]struct{}
	warned          map[Warning]bool
	presetAttempted bool
}

// NewSessionState creates session guards whose created-by-plugin entries expire after ttl.
func NewSessionState(ttl time.Duration) *SessionState {
	if ttl <= 0 {
		ttl = DefaultLoopGuardTTL
	}
	return &SessionState{
		created:  expirable.NewLRU[string, struct{}](loopGuardCapacity, nil, ttl),
		inFlight: make(map[string]struct{}),
		warned:   make(map[Warning]bool),
	}
}

// MarkCreated registers a path the pipeline is about to write.
func (s *SessionState) MarkCreated(path string) {
	s.created.Add(NormalizePath(path), struct{}{})
}

// WasCreated reports whether path was written by the pipeline within the TTL.
func (s *SessionState) WasCreated(path string) bool {
	_, ok := s.created.Get(NormalizePath(path))
	return ok
}

// TryAcquire marks path as in flight. It returns false if it already was.
func (s *SessionState) TryAcquire(path string) bool {
	path = NormalizePath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[path]; busy {
		return false
	}
	s.inFlight[path] = struct{}{}
	return true
}

// Release clears the in-flight mark for path.
func (s *SessionState) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, NormalizePath(path))
}

// InFlight reports whether path is currently being processed.
func (s *SessionState) InFlight(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[NormalizePath(path)]
	return busy
}

// WarnOnce returns true the first time it is called for w in this session.
func (s *SessionState) WarnOnce(w Warning) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned[w] {
		return false
	}
	s.warned[w] = true
	return true
}

// claimPresetAttempt returns true only for the first provisioning attempt of the session.
func (s *SessionState) claimPresetAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presetAttempted {
		return false
	}
	s.presetAttempted = true
	return true
}

// Reset clears every guard, as a process restart would.
func (s *SessionState) Reset() {
	s.created.Purge()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = make(map[string]struct{})
	s.warned = make(map[Warning]bool)
	s.presetAttempted = false
}
