// Package flow implements the flow-pause store (C1): per-(session_id,
// flow_key) state blobs with inactivity expiry.
package flow

import (
	"encoding/json"
	"sync"
	"time"
)

// entry holds one paused flow's state alongside its expiry.
type entry struct {
	blob      json.RawMessage
	expiresAt time.Time
}

// sessionState tracks a session's paused flows and its last activity time.
type sessionState struct {
	flows        map[string]entry
	lastActivity time.Time
}

// Store is an in-process flow-pause store guarded by a single mutex, per
// spec §5's "single in-process mapping" shared-resource model.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	session map[string]*sessionState
}

// NewStore creates a Store with the given inactivity TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		session: make(map[string]*sessionState),
	}
}

// Pause atomically replaces any prior blob for (sessionID, flowKey) and sets
// a new expiry. state is marshaled to JSON; callers pass any JSON-able value.
func (s *Store) Pause(sessionID, flowKey string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(sessionID)
	sess.flows[flowKey] = entry{
		blob:      data,
		expiresAt: time.Now().Add(s.ttl),
	}
	sess.lastActivity = time.Now()
	return nil
}

// Resume returns the blob for (sessionID, flowKey) and deletes it, iff it is
// still live. It unmarshals into dst. Returns (found, error); found=false
// with err=nil means there was no live state — never an error into the
// orchestrator (spec §4.1).
func (s *Store) Resume(sessionID, flowKey string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanExpiredLocked(sessionID)

	sess, ok := s.session[sessionID]
	if !ok {
		return false, nil
	}
	e, ok := sess.flows[flowKey]
	if !ok {
		return false, nil
	}

	delete(sess.flows, flowKey)

	if err := json.Unmarshal(e.blob, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Has reports whether a live blob exists for (sessionID, flowKey).
func (s *Store) Has(sessionID, flowKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanExpiredLocked(sessionID)

	sess, ok := s.session[sessionID]
	if !ok {
		return false
	}
	_, ok = sess.flows[flowKey]
	return ok
}

// Clear removes the blob for (sessionID, flowKey) if present. Idempotent.
func (s *Store) Clear(sessionID, flowKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.session[sessionID]
	if !ok {
		return
	}
	delete(sess.flows, flowKey)
}

// UpdateActivity bumps the session's last-activity timestamp, used by the
// §5 inactivity-timeout detection.
func (s *Store) UpdateActivity(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(sessionID).lastActivity = time.Now()
}

// CheckSessionTimeout reports whether sessionID has been inactive longer
// than the TTL, and if so ends the session (clearing all paused flows).
func (s *Store) CheckSessionTimeout(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.session[sessionID]
	if !ok {
		return false
	}
	if time.Since(sess.lastActivity) <= s.ttl {
		return false
	}
	delete(s.session, sessionID)
	return true
}

// EndSession explicitly clears all paused flows and activity tracking for
// a session (explicit logout).
func (s *Store) EndSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.session, sessionID)
}

// Sweep removes every session whose last activity predates the TTL,
// returning the number of sessions cleared. It is the background
// counterpart to the lazy expiry performed on Resume/Has.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	now := time.Now()
	for id, sess := range s.session {
		if now.Sub(sess.lastActivity) > s.ttl {
			delete(s.session, id)
			cleared++
		}
	}
	return cleared
}

func (s *Store) getOrCreate(sessionID string) *sessionState {
	sess, ok := s.session[sessionID]
	if !ok {
		sess = &sessionState{flows: make(map[string]entry), lastActivity: time.Now()}
		s.session[sessionID] = sess
	}
	return sess
}

// cleanExpiredLocked removes expired flows for a session. Caller holds s.mu.
func (s *Store) cleanExpiredLocked(sessionID string) {
	sess, ok := s.session[sessionID]
	if !ok {
		return
	}
	now := time.Now()
	for key, e := range sess.flows {
		if now.After(e.expiresAt) || now.Equal(e.expiresAt) {
			delete(sess.flows, key)
		}
	}
}
