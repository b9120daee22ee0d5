package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sessionsdto "gametrack/internal/modules/sessions/dto"
	"gametrack/internal/modules/sync/domain"
	syncdto "gametrack/internal/modules/sync/dto"
	syncout "gametrack/internal/modules/sync/port/out"
	apperrors "gametrack/internal/platform/errors"
	"gametrack/internal/platform/logging"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]sessionsdto.SessionOutput
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]sessionsdto.SessionOutput{}}
}

func (f *fakeSessions) add(session sessionsdto.SessionOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
}

func (f *fakeSessions) get(id string) sessionsdto.SessionOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeSessions) CreateActive(_ context.Context, _ sessionsdto.CreateActiveInput) (sessionsdto.SessionOutput, error) {
	return sessionsdto.SessionOutput{}, nil
}

func (f *fakeSessions) CloseSession(_ context.Context, _ sessionsdto.CloseInput) (sessionsdto.SessionOutput, error) {
	return sessionsdto.SessionOutput{}, nil
}

func (f *fakeSessions) MarkSynced(_ context.Context, sessionID, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || session.SyncState != "ended_unsynced" {
		return apperrors.ErrIllegalTransition
	}
	session.SyncState = "synced"
	if session.RemoteID == "" {
		session.RemoteID = remoteID
	}
	f.sessions[sessionID] = session
	return nil
}

func (f *fakeSessions) SetRemoteID(_ context.Context, sessionID, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if session.RemoteID == "" {
		session.RemoteID = remoteID
		f.sessions[sessionID] = session
	}
	return nil
}

func (f *fakeSessions) ImportRemote(_ context.Context, input sessionsdto.ImportInput) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.RemoteID == input.RemoteID {
			return false, nil
		}
	}
	endedAt := input.EndedAt
	f.sessions["import-"+input.RemoteID] = sessionsdto.SessionOutput{
		ID:        "import-" + input.RemoteID,
		SubjectID: input.SubjectID,
		GameName:  input.GameName,
		StartedAt: input.StartedAt,
		EndedAt:   &endedAt,
		SyncState: "synced",
		RemoteID:  input.RemoteID,
	}
	return true, nil
}

func (f *fakeSessions) FindActiveByGame(_ context.Context, _, _ string) (sessionsdto.SessionOutput, error) {
	return sessionsdto.SessionOutput{}, apperrors.ErrNoActiveSession
}

func (f *fakeSessions) ListActive(_ context.Context, _ string) ([]sessionsdto.SessionOutput, error) {
	return nil, nil
}

func (f *fakeSessions) ListUnsynced(_ context.Context, input sessionsdto.ListUnsyncedInput) ([]sessionsdto.SessionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := []sessionsdto.SessionOutput{}
	for _, session := range f.sessions {
		if session.SyncState == "ended_unsynced" && session.SubjectID == input.SubjectID {
			pending = append(pending, session)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].StartedAt.Before(pending[j].StartedAt) })
	if input.Limit > 0 && len(pending) > input.Limit {
		pending = pending[:input.Limit]
	}
	return pending, nil
}

func (f *fakeSessions) ListRecent(_ context.Context, _ string, _ int) ([]sessionsdto.SessionOutput, error) {
	return nil, nil
}

func (f *fakeSessions) CountUnsynced(_ context.Context, subjectID string) (int, error) {
	pending, _ := f.ListUnsynced(context.Background(), sessionsdto.ListUnsyncedInput{SubjectID: subjectID})
	return len(pending), nil
}

func (f *fakeSessions) PurgeSubject(_ context.Context, _ string) (int, error) { return 0, nil }

type fakeRemote struct {
	mu            sync.Mutex
	beginCalls    []syncout.BeginRequest
	beginFailures int
	endCalls      []syncout.EndRequest
	endErr        map[string]error
	endFailures   map[string]int
	endAttempts   map[string]int
	pulled        []domain.RemoteSession
	pullErr       error
	hbErr         error
	hbCalls       int
	next          int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		endErr:      map[string]error{},
		endFailures: map[string]int{},
		endAttempts: map[string]int{},
	}
}

func (f *fakeRemote) Begin(_ context.Context, req syncout.BeginRequest) (syncout.BeginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginFailures > 0 {
		f.beginFailures--
		return syncout.BeginResponse{}, errors.New("temporarily unavailable")
	}
	f.beginCalls = append(f.beginCalls, req)
	f.next++
	return syncout.BeginResponse{SessionID: fmt.Sprintf("remote-%d", f.next)}, nil
}

func (f *fakeRemote) End(_ context.Context, req syncout.EndRequest) (syncout.EndResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endAttempts[req.ClientRef]++
	if n := f.endFailures[req.ClientRef]; n > 0 {
		f.endFailures[req.ClientRef] = n - 1
		return syncout.EndResponse{}, errors.New("temporarily unavailable")
	}
	if err, ok := f.endErr[req.ClientRef]; ok {
		return syncout.EndResponse{}, err
	}
	f.endCalls = append(f.endCalls, req)
	f.next++
	return syncout.EndResponse{SessionID: fmt.Sprintf("remote-%d", f.next)}, nil
}

func (f *fakeRemote) Pull(_ context.Context, _ string, _ int) ([]domain.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.pulled, nil
}

func (f *fakeRemote) Heartbeat(_ context.Context, _ string) (syncout.HeartbeatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hbCalls++
	if f.hbErr != nil {
		return syncout.HeartbeatResponse{}, f.hbErr
	}
	return syncout.HeartbeatResponse{SyncedAt: time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeRemote) heartbeats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hbCalls
}

func (f *fakeRemote) attempts(clientRef string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endAttempts[clientRef]
}

func (f *fakeRemote) endedOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := make([]string, 0, len(f.endCalls))
	for _, call := range f.endCalls {
		order = append(order, call.ClientRef)
	}
	return order
}

func newTestReconciler(sessions *fakeSessions, remote *fakeRemote) *Reconciler {
	clk := &fakeClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
	return NewReconciler(clk, logging.Discard(), sessions, remote, Options{})
}

func unsyncedSession(id, subject string, startedAt time.Time) sessionsdto.SessionOutput {
	endedAt := startedAt.Add(30 * time.Minute)
	duration := 30
	return sessionsdto.SessionOutput{
		ID:          id,
		SubjectID:   subject,
		GameName:    "Alpha Quest",
		Category:    "casual",
		DeviceID:    "device-1",
		StartedAt:   startedAt,
		EndedAt:     &endedAt,
		DurationMin: &duration,
		SyncState:   "ended_unsynced",
	}
}

func TestSweepDeliversOldestFirst(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	reconciler := newTestReconciler(sessions, remote)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sessions.add(unsyncedSession("s2", "subject-1", base.Add(time.Hour)))
	sessions.add(unsyncedSession("s1", "subject-1", base))
	sessions.add(unsyncedSession("s3", "subject-1", base.Add(2*time.Hour)))

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer reconciler.Close(ctx)

	// Bind already swept; all three must be delivered in start order.
	if got := remote.endedOrder(); len(got) != 3 || got[0] != "s1" || got[1] != "s2" || got[2] != "s3" {
		t.Fatalf("delivery order = %v, want s1,s2,s3", got)
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		if state := sessions.get(id).SyncState; state != "synced" {
			t.Fatalf("%s state = %s, want synced", id, state)
		}
	}

	// Nothing left: a second sweep delivers zero.
	out, err := reconciler.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if out.Delivered != 0 || out.Failed != 0 {
		t.Fatalf("second sweep = %+v, want empty", out)
	}
}

func TestSweepIsolatesFailedItems(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	remote.endErr["s2"] = errors.New("temporarily unavailable")
	reconciler := newTestReconciler(sessions, remote)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sessions.add(unsyncedSession("s1", "subject-1", base))
	sessions.add(unsyncedSession("s2", "subject-1", base.Add(time.Hour)))
	sessions.add(unsyncedSession("s3", "subject-1", base.Add(2*time.Hour)))

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer reconciler.Close(ctx)

	if sessions.get("s1").SyncState != "synced" || sessions.get("s3").SyncState != "synced" {
		t.Fatal("healthy items must deliver despite s2 failing")
	}
	if sessions.get("s2").SyncState != "ended_unsynced" {
		t.Fatal("failed item must stay pending")
	}
	// The sweep gives each item one attempt; the next tick is the retry.
	if got := remote.attempts("s2"); got != 1 {
		t.Fatalf("s2 attempts = %d, want 1", got)
	}

	// Once the remote recovers, the next sweep picks s2 up.
	remote.mu.Lock()
	delete(remote.endErr, "s2")
	remote.mu.Unlock()
	out, err := reconciler.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if out.Delivered != 1 || sessions.get("s2").SyncState != "synced" {
		t.Fatalf("retry sweep = %+v, s2 state = %s", out, sessions.get("s2").SyncState)
	}
}

func TestSweepAndPullRequireBinding(t *testing.T) {
	t.Parallel()
	reconciler := newTestReconciler(newFakeSessions(), newFakeRemote())
	if _, err := reconciler.Sweep(context.Background()); !errors.Is(err, apperrors.ErrNotBound) {
		t.Fatalf("sweep err = %v, want ErrNotBound", err)
	}
	if _, err := reconciler.Pull(context.Background()); !errors.Is(err, apperrors.ErrNotBound) {
		t.Fatalf("pull err = %v, want ErrNotBound", err)
	}
}

func TestBindSurfacesUnknownSubject(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.pullErr = apperrors.ErrSubjectNotFound
	reconciler := newTestReconciler(newFakeSessions(), remote)

	err := reconciler.Bind(context.Background(), "nobody")
	if !errors.Is(err, apperrors.ErrSubjectNotFound) {
		t.Fatalf("bind err = %v, want ErrSubjectNotFound", err)
	}
}

func TestPullImportsOnlyUnknownRecords(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	startedAt := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	remote.pulled = []domain.RemoteSession{
		{ID: "r1", GameName: "Alpha Quest", Category: "casual", StartedAt: startedAt, EndedAt: startedAt.Add(time.Hour)},
		{ID: "r2", GameName: "Beta Arena", Category: "competitive", StartedAt: startedAt, EndedAt: startedAt.Add(time.Hour)},
	}
	known := unsyncedSession("local-r1", "subject-1", startedAt)
	known.SyncState = "synced"
	known.RemoteID = "r1"
	sessions.add(known)

	reconciler := newTestReconciler(sessions, remote)
	if err := reconciler.Bind(context.Background(), "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer reconciler.Close(context.Background())

	out, err := reconciler.Pull(context.Background())
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if out.Imported != 0 || out.Skipped != 2 {
		// Bind already imported r2, so the explicit pull skips both.
		t.Fatalf("pull = %+v, want all skipped after bind", out)
	}
	if sessions.get("import-r2").RemoteID != "r2" {
		t.Fatal("r2 must have been imported during bind")
	}
}

func TestHeartbeatTogglesOnline(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	reconciler := newTestReconciler(sessions, remote)
	ctx := context.Background()

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer reconciler.Close(ctx)

	reconciler.Heartbeat(ctx)
	status, err := reconciler.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Online || status.LastHeartbeatAt.IsZero() {
		t.Fatalf("status = %+v, want online", status)
	}

	remote.mu.Lock()
	remote.hbErr = errors.New("connection refused")
	remote.mu.Unlock()
	reconciler.Heartbeat(ctx)
	status, err = reconciler.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Online {
		t.Fatal("failed heartbeat must flip the flag off")
	}
}

func TestOnEndPushMarksSynced(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	reconciler := newTestReconciler(sessions, remote)
	ctx := context.Background()

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	session := unsyncedSession("s1", "subject-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	sessions.add(session)
	reconciler.OnEnd(syncdto.PushEvent{
		SessionID:   session.ID,
		SubjectID:   session.SubjectID,
		GameName:    session.GameName,
		Category:    session.Category,
		DeviceID:    session.DeviceID,
		StartedAt:   session.StartedAt,
		EndedAt:     session.EndedAt,
		DurationMin: session.DurationMin,
	})
	if err := reconciler.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if state := sessions.get("s1").SyncState; state != "synced" {
		t.Fatalf("state after push = %s, want synced", state)
	}
}

func TestOnStartPushRecordsRemoteID(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	reconciler := newTestReconciler(sessions, remote)
	ctx := context.Background()

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	startedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sessions.add(sessionsdto.SessionOutput{
		ID:        "s1",
		SubjectID: "subject-1",
		GameName:  "Alpha Quest",
		StartedAt: startedAt,
		SyncState: "active",
	})
	reconciler.OnStart(syncdto.PushEvent{
		SessionID: "s1",
		SubjectID: "subject-1",
		GameName:  "Alpha Quest",
		Category:  "casual",
		DeviceID:  "device-1",
		StartedAt: startedAt,
	})
	if err := reconciler.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := sessions.get("s1")
	if got.RemoteID == "" {
		t.Fatal("begin push must record the remote id")
	}
	if got.SyncState != "active" {
		t.Fatalf("state = %s, begin push must not change sync state", got.SyncState)
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.beginCalls) != 1 || remote.beginCalls[0].ClientRef != "s1" {
		t.Fatalf("begin calls = %+v, want one with client ref s1", remote.beginCalls)
	}
}

func TestRebindKeepsSingleHeartbeatRate(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	clk := &fakeClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
	reconciler := NewReconciler(clk, logging.Discard(), sessions, remote, Options{
		HeartbeatInterval: 25 * time.Millisecond,
		SweepInterval:     time.Hour,
		PullInterval:      time.Hour,
	})
	ctx := context.Background()

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if err := reconciler.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	fired := remote.heartbeats()
	// 25ms schedule over 150ms yields about six beats; a leaked second
	// runner would double that.
	if fired > 9 {
		t.Fatalf("heartbeats = %d, rebind must not double the schedule", fired)
	}
	time.Sleep(120 * time.Millisecond)
	if got := remote.heartbeats(); got != fired {
		t.Fatalf("heartbeats after close = %d, want %d (runner leaked across rebind)", got, fired)
	}
}

func TestConcurrentBindSameSubjectLeavesOneRunner(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	clk := &fakeClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
	reconciler := NewReconciler(clk, logging.Discard(), sessions, remote, Options{
		HeartbeatInterval: 25 * time.Millisecond,
		SweepInterval:     time.Hour,
		PullInterval:      time.Hour,
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reconciler.Bind(ctx, "subject-1"); err != nil {
				t.Errorf("bind: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := reconciler.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	fired := remote.heartbeats()
	time.Sleep(120 * time.Millisecond)
	if got := remote.heartbeats(); got != fired {
		t.Fatalf("heartbeats after close = %d, want %d (runner leaked by concurrent bind)", got, fired)
	}
}

func TestOnEndRetriesTransientPushFailure(t *testing.T) {
	t.Parallel()
	sessions := newFakeSessions()
	remote := newFakeRemote()
	remote.endFailures["s1"] = 1
	reconciler := newTestReconciler(sessions, remote)
	ctx := context.Background()

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	session := unsyncedSession("s1", "subject-1", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	sessions.add(session)
	reconciler.OnEnd(syncdto.PushEvent{
		SessionID:   session.ID,
		SubjectID:   session.SubjectID,
		GameName:    session.GameName,
		Category:    session.Category,
		DeviceID:    session.DeviceID,
		StartedAt:   session.StartedAt,
		EndedAt:     session.EndedAt,
		DurationMin: session.DurationMin,
	})
	if err := reconciler.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if state := sessions.get("s1").SyncState; state != "synced" {
		t.Fatalf("state = %s, push must retry past a transient failure", state)
	}
	if got := remote.attempts("s1"); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestUnbindClearsSubject(t *testing.T) {
	t.Parallel()
	reconciler := newTestReconciler(newFakeSessions(), newFakeRemote())
	ctx := context.Background()

	if err := reconciler.Bind(ctx, "subject-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := reconciler.Unbind(ctx); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	status, err := reconciler.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Bound {
		t.Fatal("status must report unbound")
	}
	if _, err := reconciler.Sweep(ctx); !errors.Is(err, apperrors.ErrNotBound) {
		t.Fatalf("sweep after unbind err = %v, want ErrNotBound", err)
	}
}
