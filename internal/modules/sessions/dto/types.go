package dto

import "time"

type SessionOutput struct {
	ID          string
	SubjectID   string
	GameName    string
	Category    string
	DeviceID    string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMin *int
	SyncState   string
	RemoteID    string
}

type CreateActiveInput struct {
	SubjectID string
	GameName  string
	Category  string
	DeviceID  string
	StartedAt time.Time
}

type CloseInput struct {
	SessionID   string
	EndedAt     time.Time
	DurationMin int
}

// ImportInput carries a completed remote record pulled down into the
// local store. Category uses the remote vocabulary and is mapped locally.
type ImportInput struct {
	RemoteID    string
	SubjectID   string
	GameName    string
	Category    string
	DeviceID    string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMin *int
}

type ListUnsyncedInput struct {
	SubjectID string
	Limit     int
}
