package in

import (
	"context"

	"gametrack/internal/modules/sessions/dto"
)

type Usecase interface {
	CreateActive(ctx context.Context, input dto.CreateActiveInput) (dto.SessionOutput, error)
	CloseSession(ctx context.Context, input dto.CloseInput) (dto.SessionOutput, error)
	MarkSynced(ctx context.Context, sessionID, remoteID string) error
	SetRemoteID(ctx context.Context, sessionID, remoteID string) error
	ImportRemote(ctx context.Context, input dto.ImportInput) (bool, error)

	FindActiveByGame(ctx context.Context, subjectID, gameName string) (dto.SessionOutput, error)
	ListActive(ctx context.Context, subjectID string) ([]dto.SessionOutput, error)
	ListUnsynced(ctx context.Context, input dto.ListUnsyncedInput) ([]dto.SessionOutput, error)
	ListRecent(ctx context.Context, subjectID string, limit int) ([]dto.SessionOutput, error)
	CountUnsynced(ctx context.Context, subjectID string) (int, error)
	PurgeSubject(ctx context.Context, subjectID string) (int, error)
}
