package supervisor

import "time"

// EventType captures the lifecycle notifications emitted by worker loops.
type EventType string

const (
	EventStarting   EventType = "starting"
	EventStarted    EventType = "started"
	EventExited     EventType = "exited"
	EventRestarting EventType = "restarting"
	EventFailed     EventType = "failed"
	EventStopped    EventType = "stopped"
)

// Event is a single lifecycle notification. Err is set for exits and
// failures; Attempt counts restarts of the same worker.
type Event struct {
	At      time.Time
	Worker  string
	Type    EventType
	PID     int
	Attempt int
	Err     error
}
