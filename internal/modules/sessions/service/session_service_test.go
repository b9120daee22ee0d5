package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gametrack/internal/modules/sessions/domain"
	apperrors "gametrack/internal/platform/errors"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

type fakeID struct {
	mu   sync.Mutex
	next int
}

func (f *fakeID) New() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("id-%d", f.next)
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: map[string]domain.Session{}}
}

func (m *memoryStore) CreateActive(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) Close(_ context.Context, sessionID string, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[sessionID]
	if !ok || existing.SyncState != domain.StateActive {
		return apperrors.ErrIllegalTransition
	}
	existing.EndedAt = session.EndedAt
	existing.DurationMin = session.DurationMin
	existing.SyncState = domain.StateEndedUnsynced
	m.sessions[sessionID] = existing
	return nil
}

func (m *memoryStore) MarkSynced(_ context.Context, sessionID, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[sessionID]
	if !ok || existing.SyncState != domain.StateEndedUnsynced {
		return apperrors.ErrIllegalTransition
	}
	existing.SyncState = domain.StateSynced
	if existing.RemoteID == "" {
		existing.RemoteID = remoteID
	}
	m.sessions[sessionID] = existing
	return nil
}

func (m *memoryStore) SetRemoteID(_ context.Context, sessionID, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if existing.RemoteID == "" {
		existing.RemoteID = remoteID
		m.sessions[sessionID] = existing
	}
	return nil
}

func (m *memoryStore) InsertSynced(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return domain.Session{}, apperrors.ErrNotFound
	}
	return session, nil
}

func (m *memoryStore) FindActiveByGame(_ context.Context, subjectID, gameName string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.SyncState == domain.StateActive && session.SubjectID == subjectID && session.GameName == gameName {
			return session, nil
		}
	}
	return domain.Session{}, apperrors.ErrNoActiveSession
}

func (m *memoryStore) FindByRemoteID(_ context.Context, remoteID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.RemoteID == remoteID {
			return session, nil
		}
	}
	return domain.Session{}, apperrors.ErrNotFound
}

func (m *memoryStore) ListActive(_ context.Context, subjectID string) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := []domain.Session{}
	for _, session := range m.sessions {
		if session.SyncState == domain.StateActive && session.SubjectID == subjectID {
			active = append(active, session)
		}
	}
	return active, nil
}

func (m *memoryStore) ListUnsynced(_ context.Context, subjectID string, limit int) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := []domain.Session{}
	for _, session := range m.sessions {
		if session.SyncState == domain.StateEndedUnsynced && session.SubjectID == subjectID {
			pending = append(pending, session)
		}
	}
	return pending, nil
}

func (m *memoryStore) ListRecent(_ context.Context, subjectID string, limit int) ([]domain.Session, error) {
	return m.ListUnsynced(context.Background(), subjectID, limit)
}

func (m *memoryStore) CountUnsynced(_ context.Context, subjectID string) (int, error) {
	pending, _ := m.ListUnsynced(context.Background(), subjectID, 0)
	return len(pending), nil
}

func (m *memoryStore) PurgeSubject(_ context.Context, subjectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if session.SubjectID == subjectID {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryStore) CloseDB() error { return nil }

func newTestService(store *memoryStore) *SessionService {
	clk := fakeClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
	return NewSessionService(clk, &fakeID{}, store)
}

func TestCreateActiveRejectsSecondSessionForSameGame(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.CreateActive(ctx, "subject-1", "Factorio", domain.CategoryCasual, "device-1", time.Time{})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.SyncState != domain.StateActive {
		t.Fatalf("state = %s, want active", first.SyncState)
	}

	_, err = svc.CreateActive(ctx, "subject-1", "Factorio", domain.CategoryCasual, "device-1", time.Time{})
	if !errors.Is(err, apperrors.ErrActiveSessionExists) {
		t.Fatalf("second create err = %v, want ErrActiveSessionExists", err)
	}

	// A different game or subject is fine.
	if _, err := svc.CreateActive(ctx, "subject-1", "Celeste", domain.CategoryCasual, "device-1", time.Time{}); err != nil {
		t.Fatalf("different game: %v", err)
	}
	if _, err := svc.CreateActive(ctx, "subject-2", "Factorio", domain.CategoryCasual, "device-1", time.Time{}); err != nil {
		t.Fatalf("different subject: %v", err)
	}
}

func TestCreateActiveRequiresGameName(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemoryStore())
	_, err := svc.CreateActive(context.Background(), "subject-1", "", domain.CategoryCasual, "", time.Time{})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCloseComputesRoundedDuration(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	startedAt := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	created, err := svc.CreateActive(ctx, "subject-1", "Factorio", domain.CategoryCasual, "", startedAt)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	closed, err := svc.Close(ctx, created.ID, startedAt.Add(90*time.Second), nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.DurationMin == nil || *closed.DurationMin != 2 {
		t.Fatalf("duration = %v, want 2", closed.DurationMin)
	}
	if closed.SyncState != domain.StateEndedUnsynced {
		t.Fatalf("state = %s, want ended_unsynced", closed.SyncState)
	}
}

func TestCloseClampsEndBeforeStart(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	startedAt := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	created, err := svc.CreateActive(ctx, "subject-1", "Factorio", domain.CategoryCasual, "", startedAt)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	closed, err := svc.Close(ctx, created.ID, startedAt.Add(-time.Hour), nil)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.EndedAt.Equal(startedAt) {
		t.Fatalf("ended_at = %v, want clamp to %v", closed.EndedAt, startedAt)
	}
	if *closed.DurationMin != 0 {
		t.Fatalf("duration = %d, want 0", *closed.DurationMin)
	}
}

func TestCloseRejectsAlreadyClosed(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	created, err := svc.CreateActive(ctx, "subject-1", "Factorio", domain.CategoryCasual, "", time.Time{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Close(ctx, created.ID, time.Time{}, nil); err != nil {
		t.Fatalf("first close: %v", err)
	}
	_, err = svc.Close(ctx, created.ID, time.Time{}, nil)
	if !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Fatalf("second close err = %v, want ErrIllegalTransition", err)
	}
}

func TestImportRemoteDeduplicatesByRemoteID(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	startedAt := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	endedAt := startedAt.Add(61 * time.Minute)

	record := domain.Session{
		SubjectID: "subject-1",
		GameName:  "Celeste",
		Category:  domain.CategoryCasual,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
		RemoteID:  "remote-1",
	}

	imported, err := svc.ImportRemote(ctx, record)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !imported {
		t.Fatal("first import should create a row")
	}

	stored, err := store.FindByRemoteID(ctx, "remote-1")
	if err != nil {
		t.Fatalf("find imported: %v", err)
	}
	if stored.SyncState != domain.StateSynced {
		t.Fatalf("state = %s, want synced", stored.SyncState)
	}
	if stored.DurationMin == nil || *stored.DurationMin != 61 {
		t.Fatalf("computed duration = %v, want 61", stored.DurationMin)
	}

	imported, err = svc.ImportRemote(ctx, record)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if imported {
		t.Fatal("re-import must be a no-op")
	}
}

func TestImportRemoteRequiresRemoteID(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemoryStore())
	_, err := svc.ImportRemote(context.Background(), domain.Session{GameName: "Celeste"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
