package dto

import "time"

// SessionEvent describes a session transition produced by a poll cycle.
type SessionEvent struct {
	SessionID   string
	SubjectID   string
	GameName    string
	Category    string
	DeviceID    string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMin *int
}

type PollOutput struct {
	Started []SessionEvent
	Ended   []SessionEvent
}
