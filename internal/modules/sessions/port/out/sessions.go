package out

import (
	"context"

	"gametrack/internal/modules/sessions/domain"
)

// SessionStore is the durable table of sessions. Every write is atomic
// with respect to the lifecycle invariants: a crash between closing a
// session and marking it synced leaves the row ended_unsynced.
type SessionStore interface {
	CreateActive(ctx context.Context, session domain.Session) error
	Close(ctx context.Context, sessionID string, session domain.Session) error
	MarkSynced(ctx context.Context, sessionID, remoteID string) error
	SetRemoteID(ctx context.Context, sessionID, remoteID string) error
	InsertSynced(ctx context.Context, session domain.Session) error

	Get(ctx context.Context, sessionID string) (domain.Session, error)
	FindActiveByGame(ctx context.Context, subjectID, gameName string) (domain.Session, error)
	FindByRemoteID(ctx context.Context, remoteID string) (domain.Session, error)
	ListActive(ctx context.Context, subjectID string) ([]domain.Session, error)
	ListUnsynced(ctx context.Context, subjectID string, limit int) ([]domain.Session, error)
	ListRecent(ctx context.Context, subjectID string, limit int) ([]domain.Session, error)
	CountUnsynced(ctx context.Context, subjectID string) (int, error)

	PurgeSubject(ctx context.Context, subjectID string) (int, error)
	CloseDB() error
}
