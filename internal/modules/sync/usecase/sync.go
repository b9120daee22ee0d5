package usecase

import (
	"context"

	"gametrack/internal/modules/sync/dto"
	"gametrack/internal/modules/sync/service"
)

type Interactor struct {
	reconciler *service.Reconciler
}

func New(reconciler *service.Reconciler) *Interactor {
	return &Interactor{reconciler: reconciler}
}

func (i *Interactor) Bind(ctx context.Context, subjectID string) error {
	return i.reconciler.Bind(ctx, subjectID)
}

func (i *Interactor) Unbind(ctx context.Context) error {
	return i.reconciler.Unbind(ctx)
}

func (i *Interactor) SweepNow(ctx context.Context) (dto.SweepOutput, error) {
	return i.reconciler.Sweep(ctx)
}

func (i *Interactor) PullNow(ctx context.Context) (dto.PullOutput, error) {
	return i.reconciler.Pull(ctx)
}

func (i *Interactor) Status(ctx context.Context) (dto.StatusOutput, error) {
	return i.reconciler.Status(ctx)
}

func (i *Interactor) NotifySessionStart(event dto.PushEvent) {
	i.reconciler.OnStart(event)
}

func (i *Interactor) NotifySessionEnd(event dto.PushEvent) {
	i.reconciler.OnEnd(event)
}

func (i *Interactor) Close(ctx context.Context) error {
	return i.reconciler.Close(ctx)
}
