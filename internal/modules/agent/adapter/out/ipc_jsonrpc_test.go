package out

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gametrack/internal/modules/agent/dto"
	catalogdto "gametrack/internal/modules/catalog/dto"
	sessionsdto "gametrack/internal/modules/sessions/dto"
)

type stubHandler struct {
	mu      sync.Mutex
	subject string
	stopped bool
}

func (s *stubHandler) Status(_ context.Context) (dto.StatusOutput, error) {
	return dto.StatusOutput{Running: true, PID: 4242, TrackedCount: 2}, nil
}

func (s *stubHandler) SessionsRecent(_ context.Context, limit int) ([]sessionsdto.SessionOutput, error) {
	sessions := []sessionsdto.SessionOutput{
		{ID: "s1", GameName: "Alpha Quest", SyncState: "synced"},
		{ID: "s2", GameName: "Beta Arena", SyncState: "active"},
	}
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *stubHandler) SyncNow(_ context.Context) (dto.SyncNowOutput, error) {
	return dto.SyncNowOutput{}, nil
}

func (s *stubHandler) CatalogReload(_ context.Context) (catalogdto.CatalogStatusOutput, error) {
	return catalogdto.CatalogStatusOutput{Signatures: 12}, nil
}

func (s *stubHandler) ChangeSubject(_ context.Context, subjectID string) error {
	if subjectID == "" {
		return errors.New("subject id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = subjectID
	return nil
}

func (s *stubHandler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func startServer(t *testing.T, handler *stubHandler) (string, context.CancelFunc, chan error) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "agent.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewJSONRPCServer().Serve(ctx, socketPath, handler)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			return socketPath, cancel, done
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	t.Fatal("ipc socket never became reachable")
	return "", nil, nil
}

func TestIPCRoundTrip(t *testing.T) {
	handler := &stubHandler{}
	socketPath, cancel, done := startServer(t, handler)
	defer cancel()

	client := NewJSONRPCClient()
	ctx := context.Background()

	status, err := client.Status(ctx, socketPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running || status.PID != 4242 || status.TrackedCount != 2 {
		t.Fatalf("status = %+v", status)
	}

	sessions, err := client.SessionsRecent(ctx, socketPath, 1)
	if err != nil {
		t.Fatalf("sessions recent: %v", err)
	}
	if len(sessions) != 1 || sessions[0].GameName != "Alpha Quest" {
		t.Fatalf("sessions = %+v", sessions)
	}

	catalog, err := client.CatalogReload(ctx, socketPath)
	if err != nil {
		t.Fatalf("catalog reload: %v", err)
	}
	if catalog.Signatures != 12 {
		t.Fatalf("catalog = %+v", catalog)
	}

	if err := client.ChangeSubject(ctx, socketPath, "subject-9"); err != nil {
		t.Fatalf("change subject: %v", err)
	}
	handler.mu.Lock()
	subject := handler.subject
	handler.mu.Unlock()
	if subject != "subject-9" {
		t.Fatalf("subject = %q, want subject-9", subject)
	}

	if err := client.Stop(ctx, socketPath); err != nil {
		t.Fatalf("stop: %v", err)
	}
	handler.mu.Lock()
	stopped := handler.stopped
	handler.mu.Unlock()
	if !stopped {
		t.Fatal("stop must reach the handler")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v after cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}

func TestIPCHandlerErrorsCrossTheSocket(t *testing.T) {
	handler := &stubHandler{}
	socketPath, cancel, _ := startServer(t, handler)
	defer cancel()

	err := NewJSONRPCClient().ChangeSubject(context.Background(), socketPath, "")
	if err == nil || !strings.Contains(err.Error(), "subject id required") {
		t.Fatalf("err = %v, want handler error text", err)
	}
}

func TestIPCClientFailsFastWhenSocketIsGone(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(t.TempDir(), "missing.sock")
	if _, err := NewJSONRPCClient().Status(context.Background(), socketPath); err == nil {
		t.Fatal("dialing a missing socket must fail")
	}
}
