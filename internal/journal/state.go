package journal

import "sync"

// RecoveryState is the shared view of replication progress that the rest of
// the daemon reads. Each field is a TimelineID whose zero value means the
// subsystem has not established one yet; the zero sentinel is part of the
// collaborator contract and is translated to "absent" only at the reading
// edge, never stored differently here.
type RecoveryState struct {
	mu           sync.RWMutex
	current      TimelineID
	lastReplayed TimelineID
	lastReceived TimelineID
}

// Current returns the timeline the journal is writing on, or zero when the
// daemon has not opened a writable timeline (for example while in standby).
func (s *RecoveryState) Current() TimelineID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastReplayed returns the timeline of the last record applied to the local
// journal, or zero when nothing has been replayed.
func (s *RecoveryState) LastReplayed() TimelineID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReplayed
}

// LastReceived returns the timeline of the last record fetched from the
// upstream daemon, or zero when no record has been received.
func (s *RecoveryState) LastReceived() TimelineID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReceived
}

func (s *RecoveryState) setCurrent(tl TimelineID) {
	s.mu.Lock()
	s.current = tl
	s.mu.Unlock()
}

func (s *RecoveryState) setLastReplayed(tl TimelineID) {
	s.mu.Lock()
	s.lastReplayed = tl
	s.mu.Unlock()
}

// SetLastReceived publishes receipt progress. It is called by the follower
// as soon as a batch arrives, before the records are applied.
func (s *RecoveryState) SetLastReceived(tl TimelineID) {
	s.mu.Lock()
	s.lastReceived = tl
	s.mu.Unlock()
}
