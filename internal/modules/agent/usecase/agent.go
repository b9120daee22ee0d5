package usecase

import (
	"context"

	"gametrack/internal/modules/agent/dto"
	"gametrack/internal/modules/agent/service"
	catalogdto "gametrack/internal/modules/catalog/dto"
	sessionsdto "gametrack/internal/modules/sessions/dto"
)

type Interactor struct {
	agent *service.AgentService
}

func New(agent *service.AgentService) *Interactor {
	return &Interactor{agent: agent}
}

func (i *Interactor) Run(ctx context.Context) error {
	return i.agent.Run(ctx)
}

func (i *Interactor) StartDaemon(ctx context.Context) error {
	return i.agent.StartDaemon(ctx)
}

func (i *Interactor) StopDaemon(ctx context.Context) error {
	return i.agent.StopDaemon(ctx)
}

func (i *Interactor) Status(ctx context.Context) (dto.StatusOutput, error) {
	return i.agent.Status(ctx)
}

func (i *Interactor) SessionsRecent(ctx context.Context, limit int) ([]sessionsdto.SessionOutput, error) {
	return i.agent.SessionsRecent(ctx, limit)
}

func (i *Interactor) SyncNow(ctx context.Context) (dto.SyncNowOutput, error) {
	return i.agent.SyncNow(ctx)
}

func (i *Interactor) CatalogReload(ctx context.Context) (catalogdto.CatalogStatusOutput, error) {
	return i.agent.CatalogReload(ctx)
}

func (i *Interactor) ChangeSubject(ctx context.Context, subjectID string) error {
	return i.agent.ChangeSubject(ctx, subjectID)
}
