package usecase

import (
	"context"

	trackerdto "gametrack/internal/modules/tracker/dto"
	trackerin "gametrack/internal/modules/tracker/port/in"
	"gametrack/internal/modules/tracker/service"
)

type Interactor struct {
	detector *service.Detector
}

func NewInteractor(detector *service.Detector) trackerin.Usecase {
	return &Interactor{detector: detector}
}

func (i *Interactor) PollOnce(ctx context.Context) (trackerdto.PollOutput, error) {
	return i.detector.Poll(ctx)
}

func (i *Interactor) TrackedCount(_ context.Context) int {
	return i.detector.TrackedCount()
}
