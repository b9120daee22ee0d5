package in

import (
	"context"

	"gametrack/internal/modules/sync/dto"
)

type Usecase interface {
	// Bind attaches the reconciler to a subject: pull-down, an initial
	// sweep, then periodic timers. Calling it again is idempotent and
	// never doubles the timers.
	Bind(ctx context.Context, subjectID string) error
	Unbind(ctx context.Context) error

	SweepNow(ctx context.Context) (dto.SweepOutput, error)
	PullNow(ctx context.Context) (dto.PullOutput, error)
	Status(ctx context.Context) (dto.StatusOutput, error)

	// NotifySessionStart / NotifySessionEnd are the real-time push
	// hooks fired by the detector. They return immediately; delivery
	// happens in the background.
	NotifySessionStart(event dto.PushEvent)
	NotifySessionEnd(event dto.PushEvent)

	Close(ctx context.Context) error
}
