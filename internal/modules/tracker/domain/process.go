package domain

import "time"

// Process is one running process as reported by a snapshot source.
type Process struct {
	Name string
	PID  int
}

// TrackedProcess correlates a pid across poll cycles with the session it
// opened. The game name is captured at start time, so a catalog reload
// never renames a session that is already open.
type TrackedProcess struct {
	PID       int
	GameName  string
	Category  string
	SessionID string
	StartedAt time.Time
}
