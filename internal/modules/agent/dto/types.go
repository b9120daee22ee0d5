package dto

import (
	"time"

	catalogdto "gametrack/internal/modules/catalog/dto"
	syncdto "gametrack/internal/modules/sync/dto"
)

// StatusOutput is the full agent picture: the process itself, the
// catalog it matches against, and the sync position.
type StatusOutput struct {
	Running    bool
	PID        int
	SocketPath string
	StartedAt  time.Time

	TrackedCount int
	Catalog      catalogdto.CatalogStatusOutput
	Sync         syncdto.StatusOutput
}

type SyncNowOutput struct {
	Sweep syncdto.SweepOutput
	Pull  syncdto.PullOutput
}
