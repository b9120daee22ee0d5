package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gametrack/internal/modules/sessions/domain"
	sessionsout "gametrack/internal/modules/sessions/port/out"
	"gametrack/internal/platform/clock"
	apperrors "gametrack/internal/platform/errors"
	"gametrack/internal/platform/id"
)

type SessionService struct {
	clock clock.Clock
	idGen id.Generator
	store sessionsout.SessionStore
}

func NewSessionService(clock clock.Clock, idGen id.Generator, store sessionsout.SessionStore) *SessionService {
	return &SessionService{clock: clock, idGen: idGen, store: store}
}

// CreateActive opens a new session. At most one active session may exist
// per (subject, game); a second create for the same pair fails.
func (s *SessionService) CreateActive(ctx context.Context, subjectID, gameName string, category domain.Category, deviceID string, startedAt time.Time) (domain.Session, error) {
	if gameName == "" {
		return domain.Session{}, fmt.Errorf("%w: game name is required", apperrors.ErrInvalidInput)
	}
	if _, err := s.store.FindActiveByGame(ctx, subjectID, gameName); err == nil {
		return domain.Session{}, apperrors.ErrActiveSessionExists
	} else if !errors.Is(err, apperrors.ErrNoActiveSession) {
		return domain.Session{}, err
	}
	if startedAt.IsZero() {
		startedAt = s.clock.Now()
	}
	session := domain.Session{
		ID:        s.idGen.New(),
		SubjectID: subjectID,
		GameName:  gameName,
		Category:  category,
		DeviceID:  deviceID,
		StartedAt: startedAt,
		SyncState: domain.StateActive,
	}
	if err := s.store.CreateActive(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Close ends an active session, computing the rounded duration when the
// caller did not supply one.
func (s *SessionService) Close(ctx context.Context, sessionID string, endedAt time.Time, durationMin *int) (domain.Session, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.SyncState.CanTransition(domain.StateEndedUnsynced) {
		return domain.Session{}, fmt.Errorf("%w: %s -> %s", apperrors.ErrIllegalTransition, session.SyncState, domain.StateEndedUnsynced)
	}
	if endedAt.IsZero() {
		endedAt = s.clock.Now()
	}
	if endedAt.Before(session.StartedAt) {
		endedAt = session.StartedAt
	}
	duration := domain.DurationMinutes(session.StartedAt, endedAt)
	if durationMin != nil {
		duration = *durationMin
	}
	session.EndedAt = &endedAt
	session.DurationMin = &duration
	session.SyncState = domain.StateEndedUnsynced
	if err := s.store.Close(ctx, sessionID, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// ImportRemote inserts a completed remote record directly in synced state.
// Re-importing the same remote id is a no-op; the bool reports whether a
// row was actually created.
func (s *SessionService) ImportRemote(ctx context.Context, session domain.Session) (bool, error) {
	if session.RemoteID == "" {
		return false, fmt.Errorf("%w: remote id is required", apperrors.ErrInvalidInput)
	}
	if _, err := s.store.FindByRemoteID(ctx, session.RemoteID); err == nil {
		return false, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}
	if session.ID == "" {
		session.ID = s.idGen.New()
	}
	if session.DurationMin == nil && session.EndedAt != nil {
		minutes := domain.DurationMinutes(session.StartedAt, *session.EndedAt)
		session.DurationMin = &minutes
	}
	session.SyncState = domain.StateSynced
	if err := s.store.InsertSynced(ctx, session); err != nil {
		return false, err
	}
	return true, nil
}
