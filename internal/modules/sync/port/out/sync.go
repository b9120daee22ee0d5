package out

import (
	"context"
	"time"

	"gametrack/internal/modules/sync/domain"
)

type BeginRequest struct {
	SubjectID string
	GameName  string
	Category  string
	StartedAt time.Time
	DeviceID  string
	// ClientRef is the local session id; the service keys idempotent
	// merging on it, so redelivery never duplicates.
	ClientRef string
}

type BeginResponse struct {
	SessionID     string
	AlreadyActive bool
}

type EndRequest struct {
	SubjectID   string
	GameName    string
	Category    string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMin int
	DeviceID    string
	ClientRef   string
}

type EndResponse struct {
	SessionID string
}

type HeartbeatResponse struct {
	SyncedAt time.Time
}

// RemoteSessionService is the consumed wire contract. Begin and End are
// idempotent on the service side: a repeated begin returns the existing
// remote session, and an end with no matching active session creates the
// complete record directly.
type RemoteSessionService interface {
	Begin(ctx context.Context, req BeginRequest) (BeginResponse, error)
	End(ctx context.Context, req EndRequest) (EndResponse, error)
	Pull(ctx context.Context, subjectID string, limit int) ([]domain.RemoteSession, error)
	Heartbeat(ctx context.Context, subjectID string) (HeartbeatResponse, error)
}
