package domain

import "time"

// RemoteSession is a completed session as the remote service reports it.
// Category uses the remote vocabulary; duration may be absent, in which
// case it is recomputed from the timestamps on import.
type RemoteSession struct {
	ID          string
	GameName    string
	Category    string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMin *int
}
