package in

import (
	"context"

	agentdto "gametrack/internal/modules/agent/dto"
	agentin "gametrack/internal/modules/agent/port/in"
	catalogdto "gametrack/internal/modules/catalog/dto"
	sessionsdto "gametrack/internal/modules/sessions/dto"
)

type CLIHandler struct {
	usecase agentin.Usecase
}

func NewCLIHandler(usecase agentin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Run(ctx context.Context) error {
	return h.usecase.Run(ctx)
}

func (h CLIHandler) Start(ctx context.Context) error {
	return h.usecase.StartDaemon(ctx)
}

func (h CLIHandler) Stop(ctx context.Context) error {
	return h.usecase.StopDaemon(ctx)
}

func (h CLIHandler) Status(ctx context.Context) (agentdto.StatusOutput, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) SessionsRecent(ctx context.Context, limit int) ([]sessionsdto.SessionOutput, error) {
	return h.usecase.SessionsRecent(ctx, limit)
}

func (h CLIHandler) SyncNow(ctx context.Context) (agentdto.SyncNowOutput, error) {
	return h.usecase.SyncNow(ctx)
}

func (h CLIHandler) CatalogReload(ctx context.Context) (catalogdto.CatalogStatusOutput, error) {
	return h.usecase.CatalogReload(ctx)
}

func (h CLIHandler) ChangeSubject(ctx context.Context, subjectID string) error {
	return h.usecase.ChangeSubject(ctx, subjectID)
}
