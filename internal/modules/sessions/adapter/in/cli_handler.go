package in

import (
	"context"

	sessionsdto "gametrack/internal/modules/sessions/dto"
	sessionsin "gametrack/internal/modules/sessions/port/in"
)

type CLIHandler struct {
	usecase sessionsin.Usecase
}

func NewCLIHandler(usecase sessionsin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) ListRecent(ctx context.Context, subjectID string, limit int) ([]sessionsdto.SessionOutput, error) {
	return h.usecase.ListRecent(ctx, subjectID, limit)
}

func (h CLIHandler) ListUnsynced(ctx context.Context, subjectID string, limit int) ([]sessionsdto.SessionOutput, error) {
	return h.usecase.ListUnsynced(ctx, sessionsdto.ListUnsyncedInput{SubjectID: subjectID, Limit: limit})
}

func (h CLIHandler) PurgeSubject(ctx context.Context, subjectID string) (int, error) {
	return h.usecase.PurgeSubject(ctx, subjectID)
}
