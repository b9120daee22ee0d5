package out

import (
	"context"

	"gametrack/internal/modules/tracker/domain"
	"gametrack/internal/modules/tracker/dto"
)

// SnapshotSource enumerates running processes. Implementations are
// platform specific; a failing snapshot is treated by the detector as an
// empty one.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]domain.Process, error)
}

// SessionObserver is notified after a session transition has been made
// durable. Implementations must not block the poll loop.
type SessionObserver interface {
	OnStart(event dto.SessionEvent)
	OnEnd(event dto.SessionEvent)
}
