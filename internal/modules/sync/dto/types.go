package dto

import "time"

// PushEvent mirrors a session transition handed over by the detector.
type PushEvent struct {
	SessionID   string
	SubjectID   string
	GameName    string
	Category    string
	DeviceID    string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMin *int
}

type StatusOutput struct {
	Bound           bool
	SubjectID       string
	Online          bool
	LastHeartbeatAt time.Time
	LastSweepAt     time.Time
	LastPullAt      time.Time
	PendingUnsynced int
}

type SweepOutput struct {
	Delivered int
	Failed    int
}

type PullOutput struct {
	Imported int
	Skipped  int
}
