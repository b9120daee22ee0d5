package domain

import "time"

// SchemaVersion is stamped into the store as sqlite's user_version, so
// a future migration can tell what shape an existing database has.
const SchemaVersion = 1

// Category is the local vocabulary for what kind of game a session was.
type Category string

const (
	CategoryCompetitive Category = "competitive"
	CategoryCreative    Category = "creative"
	CategoryCasual      Category = "casual"
	CategorySocial      Category = "social"
	CategoryUnknown     Category = "unknown"
)

// ParseCategory maps any vocabulary, local or remote, into the local enum.
// Unrecognized values fall back to unknown rather than failing.
func ParseCategory(raw string) Category {
	switch Category(raw) {
	case CategoryCompetitive, CategoryCreative, CategoryCasual, CategorySocial:
		return Category(raw)
	default:
		return CategoryUnknown
	}
}

// SyncState tracks where a session sits in the local/remote reconciliation.
// Transitions only move forward: active -> ended_unsynced -> synced.
type SyncState string

const (
	StateActive        SyncState = "active"
	StateEndedUnsynced SyncState = "ended_unsynced"
	StateSynced        SyncState = "synced"
)

func (s SyncState) rank() int {
	switch s {
	case StateActive:
		return 0
	case StateEndedUnsynced:
		return 1
	case StateSynced:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next is legal. A state
// never regresses; synced is terminal.
func (s SyncState) CanTransition(next SyncState) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to >= 0 && to > from
}

// Session is one continuous play interval on this machine.
type Session struct {
	ID          string
	SubjectID   string
	GameName    string
	Category    Category
	DeviceID    string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMin *int
	SyncState   SyncState
	RemoteID    string
}

func (s Session) IsActive() bool {
	return s.SyncState == StateActive
}

// DurationMinutes rounds the interval to whole minutes, half-up:
// 90s is 2 minutes, 89s is 1. Negative intervals clamp to zero.
func DurationMinutes(start, end time.Time) int {
	seconds := int(end.Sub(start).Seconds())
	if seconds < 0 {
		return 0
	}
	return (seconds + 30) / 60
}
