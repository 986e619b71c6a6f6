package admin

import "github.com/wardenhq/warden/internal/journal"

// CurrentTimeline returns the timeline the daemon is writing on. The second
// return is false while no timeline has been established, which on a standby
// lasts until promotion.
func (s *Service) CurrentTimeline() (journal.TimelineID, bool) {
	return present(s.timelines.Current())
}

// LastReplayedTimeline returns the timeline of the newest record replayed
// from local segments or applied from upstream; false if none has been.
func (s *Service) LastReplayedTimeline() (journal.TimelineID, bool) {
	return present(s.timelines.LastReplayed())
}

// LastReceivedTimeline returns the timeline of the newest record received
// from upstream, which can run ahead of replay; false if none has been.
func (s *Service) LastReceivedTimeline() (journal.TimelineID, bool) {
	return present(s.timelines.LastReceived())
}

// The source hands out 0 for "not yet established". That sentinel stays
// inside its contract; callers of the accessors only ever see the explicit
// absent flag, never a literal zero timeline.
func present(tl journal.TimelineID) (journal.TimelineID, bool) {
	if tl == 0 {
		return 0, false
	}
	return tl, true
}
