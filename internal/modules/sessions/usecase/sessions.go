package usecase

import (
	"context"

	"gametrack/internal/modules/sessions/domain"
	sessionsdto "gametrack/internal/modules/sessions/dto"
	sessionsin "gametrack/internal/modules/sessions/port/in"
	sessionsout "gametrack/internal/modules/sessions/port/out"
	"gametrack/internal/modules/sessions/service"
)

type Interactor struct {
	svc   *service.SessionService
	store sessionsout.SessionStore
}

func NewInteractor(svc *service.SessionService, store sessionsout.SessionStore) sessionsin.Usecase {
	return &Interactor{svc: svc, store: store}
}

func (i *Interactor) CreateActive(ctx context.Context, input sessionsdto.CreateActiveInput) (sessionsdto.SessionOutput, error) {
	session, err := i.svc.CreateActive(ctx, input.SubjectID, input.GameName, domain.ParseCategory(input.Category), input.DeviceID, input.StartedAt)
	if err != nil {
		return sessionsdto.SessionOutput{}, err
	}
	return toOutput(session), nil
}

func (i *Interactor) CloseSession(ctx context.Context, input sessionsdto.CloseInput) (sessionsdto.SessionOutput, error) {
	var duration *int
	if input.DurationMin > 0 {
		duration = &input.DurationMin
	}
	session, err := i.svc.Close(ctx, input.SessionID, input.EndedAt, duration)
	if err != nil {
		return sessionsdto.SessionOutput{}, err
	}
	return toOutput(session), nil
}

func (i *Interactor) MarkSynced(ctx context.Context, sessionID, remoteID string) error {
	return i.store.MarkSynced(ctx, sessionID, remoteID)
}

func (i *Interactor) SetRemoteID(ctx context.Context, sessionID, remoteID string) error {
	return i.store.SetRemoteID(ctx, sessionID, remoteID)
}

func (i *Interactor) ImportRemote(ctx context.Context, input sessionsdto.ImportInput) (bool, error) {
	session := domain.Session{
		RemoteID:    input.RemoteID,
		SubjectID:   input.SubjectID,
		GameName:    input.GameName,
		Category:    domain.ParseCategory(input.Category),
		DeviceID:    input.DeviceID,
		StartedAt:   input.StartedAt,
		EndedAt:     &input.EndedAt,
		DurationMin: input.DurationMin,
	}
	return i.svc.ImportRemote(ctx, session)
}

func (i *Interactor) FindActiveByGame(ctx context.Context, subjectID, gameName string) (sessionsdto.SessionOutput, error) {
	session, err := i.store.FindActiveByGame(ctx, subjectID, gameName)
	if err != nil {
		return sessionsdto.SessionOutput{}, err
	}
	return toOutput(session), nil
}

func (i *Interactor) ListActive(ctx context.Context, subjectID string) ([]sessionsdto.SessionOutput, error) {
	sessions, err := i.store.ListActive(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return toOutputs(sessions), nil
}

func (i *Interactor) ListUnsynced(ctx context.Context, input sessionsdto.ListUnsyncedInput) ([]sessionsdto.SessionOutput, error) {
	sessions, err := i.store.ListUnsynced(ctx, input.SubjectID, input.Limit)
	if err != nil {
		return nil, err
	}
	return toOutputs(sessions), nil
}

func (i *Interactor) ListRecent(ctx context.Context, subjectID string, limit int) ([]sessionsdto.SessionOutput, error) {
	sessions, err := i.store.ListRecent(ctx, subjectID, limit)
	if err != nil {
		return nil, err
	}
	return toOutputs(sessions), nil
}

func (i *Interactor) CountUnsynced(ctx context.Context, subjectID string) (int, error) {
	return i.store.CountUnsynced(ctx, subjectID)
}

func (i *Interactor) PurgeSubject(ctx context.Context, subjectID string) (int, error) {
	return i.store.PurgeSubject(ctx, subjectID)
}

func toOutput(session domain.Session) sessionsdto.SessionOutput {
	return sessionsdto.SessionOutput{
		ID:          session.ID,
		SubjectID:   session.SubjectID,
		GameName:    session.GameName,
		Category:    string(session.Category),
		DeviceID:    session.DeviceID,
		StartedAt:   session.StartedAt,
		EndedAt:     session.EndedAt,
		DurationMin: session.DurationMin,
		SyncState:   string(session.SyncState),
		RemoteID:    session.RemoteID,
	}
}

func toOutputs(sessions []domain.Session) []sessionsdto.SessionOutput {
	out := make([]sessionsdto.SessionOutput, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toOutput(session))
	}
	return out
}
