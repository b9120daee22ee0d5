package in

import (
	"context"

	"gametrack/internal/modules/tracker/dto"
)

type Usecase interface {
	// PollOnce runs a single detection cycle: snapshot, diff against the
	// tracked set, open and close sessions accordingly.
	PollOnce(ctx context.Context) (dto.PollOutput, error)
	TrackedCount(ctx context.Context) int
}
