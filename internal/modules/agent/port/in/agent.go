package in

import (
	"context"

	"gametrack/internal/modules/agent/dto"
	catalogdto "gametrack/internal/modules/catalog/dto"
	sessionsdto "gametrack/internal/modules/sessions/dto"
)

type Usecase interface {
	// Run executes the agent in the foreground: poll loop, catalog
	// refresh, sync timers, and the IPC socket. It blocks until ctx is
	// cancelled or a stop request arrives over IPC.
	Run(ctx context.Context) error

	// StartDaemon launches the agent as a detached background process
	// and waits for its socket to come up. Starting an already running
	// agent is a no-op.
	StartDaemon(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	Status(ctx context.Context) (dto.StatusOutput, error)

	SessionsRecent(ctx context.Context, limit int) ([]sessionsdto.SessionOutput, error)
	SyncNow(ctx context.Context) (dto.SyncNowOutput, error)
	CatalogReload(ctx context.Context) (catalogdto.CatalogStatusOutput, error)

	// ChangeSubject rebinds the agent to a different subject: unbind,
	// purge the previous subject's local rows, bind the new one.
	ChangeSubject(ctx context.Context, subjectID string) error
}
