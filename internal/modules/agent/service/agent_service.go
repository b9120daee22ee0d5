package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gametrack/internal/modules/agent/dto"
	agentout "gametrack/internal/modules/agent/port/out"
	catalogdto "gametrack/internal/modules/catalog/dto"
	catalogin "gametrack/internal/modules/catalog/port/in"
	sessionsdto "gametrack/internal/modules/sessions/dto"
	sessionsin "gametrack/internal/modules/sessions/port/in"
	syncin "gametrack/internal/modules/sync/port/in"
	trackerin "gametrack/internal/modules/tracker/port/in"
	"gametrack/internal/platform/clock"
	apperrors "gametrack/internal/platform/errors"
)

const daemonStartTimeout = 5 * time.Second

type runtimeState struct {
	startedAt time.Time
	cancel    context.CancelFunc
}

// AgentService runs the monitoring loop and owns the daemon lifecycle.
// A CLI invocation and the daemon share this type: when the runtime is
// local the calls execute in process, otherwise they go over the IPC
// socket to the running agent.
type AgentService struct {
	homePath       string
	pollInterval   time.Duration
	catalogRefresh time.Duration

	clock    clock.Clock
	logger   *slog.Logger
	tracker  trackerin.Usecase
	catalog  catalogin.Usecase
	sessions sessionsin.Usecase
	sync     syncin.Usecase
	daemon   agentout.DaemonStore
	ipc      agentout.IPCServer
	client   agentout.IPCClient
	watcher  agentout.CatalogWatcher

	mu        sync.RWMutex
	subjectID string
	runtime   *runtimeState
}

func NewAgentService(
	homePath string,
	subjectID string,
	pollInterval time.Duration,
	catalogRefresh time.Duration,
	clock clock.Clock,
	logger *slog.Logger,
	tracker trackerin.Usecase,
	catalog catalogin.Usecase,
	sessions sessionsin.Usecase,
	sync syncin.Usecase,
	daemon agentout.DaemonStore,
	ipc agentout.IPCServer,
	client agentout.IPCClient,
	watcher agentout.CatalogWatcher,
) *AgentService {
	return &AgentService{
		homePath:       homePath,
		subjectID:      subjectID,
		pollInterval:   pollInterval,
		catalogRefresh: catalogRefresh,
		clock:          clock,
		logger:         logger,
		tracker:        tracker,
		catalog:        catalog,
		sessions:       sessions,
		sync:           sync,
		daemon:         daemon,
		ipc:            ipc,
		client:         client,
		watcher:        watcher,
	}
}

// Run executes the agent in the foreground until ctx is cancelled or a
// stop request arrives over IPC. The loops are independent: a failing
// poll or catalog refresh is logged and the next tick tries again.
func (s *AgentService) Run(ctx context.Context) error {
	if err := s.cleanupStaleArtifacts(ctx); err != nil {
		return err
	}
	if pid, err := s.daemon.ReadPID(ctx); err == nil && pid > 0 && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("%w: agent already running with pid %d", apperrors.ErrAgentStartFailed, pid)
	}

	if _, err := s.catalog.Reload(ctx); err != nil {
		s.logger.Warn("initial catalog load failed", "error", err)
	}

	if subject := s.currentSubject(); subject != "" {
		if err := s.sync.Bind(ctx, subject); err != nil {
			if errors.Is(err, apperrors.ErrSubjectNotFound) {
				return err
			}
			s.logger.Warn("subject bind failed, sync stays idle", "subject", subject, "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runtime = &runtimeState{startedAt: s.clock.Now(), cancel: cancel}
	s.mu.Unlock()

	if err := s.daemon.WritePID(runCtx, os.Getpid()); err != nil {
		s.clearRuntime()
		return err
	}
	s.logger.Info("agent started", "pid", os.Getpid(), "poll_interval", s.pollInterval.String())

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		s.pollLoop(groupCtx)
		return nil
	})
	group.Go(func() error {
		s.catalogRefreshLoop(groupCtx)
		return nil
	})
	if s.watcher != nil {
		group.Go(func() error {
			if err := s.watcher.Watch(groupCtx, func() {
				if _, err := s.catalog.Reload(context.Background()); err != nil {
					s.logger.Warn("catalog reload after file change failed", "error", err)
				}
			}); err != nil && groupCtx.Err() == nil {
				// A dead watcher degrades to timer-only refresh.
				s.logger.Warn("catalog watch stopped", "error", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		err := s.ipc.Serve(groupCtx, s.daemon.SocketPath(), s)
		if err != nil && groupCtx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	err := group.Wait()
	if closeErr := s.sync.Close(context.Background()); closeErr != nil {
		s.logger.Warn("sync shutdown failed", "error", closeErr)
	}
	s.clearRuntime()
	s.logger.Info("agent stopped")
	return err
}

func (s *AgentService) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.tracker.PollOnce(ctx); err != nil {
				s.logger.Warn("poll cycle failed", "error", err)
			}
		}
	}
}

func (s *AgentService) catalogRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.catalogRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.catalog.Reload(ctx); err != nil {
				s.logger.Warn("catalog refresh failed", "error", err)
			}
		}
	}
}

// StartDaemon launches the agent as a detached process and waits for
// the IPC socket. Starting while an agent is already running and
// reachable is a no-op.
func (s *AgentService) StartDaemon(ctx context.Context) error {
	if err := s.cleanupStaleArtifacts(ctx); err != nil {
		return err
	}
	if pid, err := s.daemon.ReadPID(ctx); err == nil && pid > 0 && processAlive(pid) {
		if socketReachable(s.daemon.SocketPath()) {
			return nil
		}
		return fmt.Errorf("%w: agent process is alive but socket is unavailable", apperrors.ErrAgentStartFailed)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.daemon.LogPath()), 0o755); err != nil {
		return fmt.Errorf("create agent log dir: %w", err)
	}
	if err := os.Remove(s.daemon.SocketPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale agent socket: %w", err)
	}

	logFile, err := os.OpenFile(s.daemon.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open agent log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, "agent", "run", "--home", s.homePath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	if err := waitForSocket(s.daemon.SocketPath(), daemonStartTimeout); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrAgentStartFailed, err)
	}
	s.logger.Info("agent launched", "pid", pid)
	return nil
}

// StopDaemon asks a running agent to shut down, first over IPC and then
// with SIGTERM. Stale artifacts from a crashed agent are cleared.
func (s *AgentService) StopDaemon(ctx context.Context) error {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil && rt.cancel != nil {
		rt.cancel()
		return nil
	}

	if s.client != nil && socketReachable(s.daemon.SocketPath()) {
		_ = s.client.Stop(ctx, s.daemon.SocketPath())
	}

	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(s.daemon.SocketPath())
			return apperrors.ErrAgentNotRunning
		}
		return err
	}
	if pid <= 0 || !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
		return apperrors.ErrAgentNotRunning
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("stop agent pid=%d: %w", pid, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	_ = s.daemon.ClearPID(ctx)
	_ = os.Remove(s.daemon.SocketPath())
	return nil
}

func (s *AgentService) Status(ctx context.Context) (dto.StatusOutput, error) {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil {
		return s.localStatus(ctx)
	}
	if s.client != nil && socketReachable(s.daemon.SocketPath()) {
		return s.client.Status(ctx, s.daemon.SocketPath())
	}

	out := dto.StatusOutput{SocketPath: s.daemon.SocketPath()}
	if pid, err := s.daemon.ReadPID(ctx); err == nil {
		out.PID = pid
		out.Running = processAlive(pid)
	}
	return out, nil
}

func (s *AgentService) localStatus(ctx context.Context) (dto.StatusOutput, error) {
	out := dto.StatusOutput{SocketPath: s.daemon.SocketPath()}

	s.mu.RLock()
	if s.runtime != nil {
		out.Running = true
		out.PID = os.Getpid()
		out.StartedAt = s.runtime.startedAt
	}
	s.mu.RUnlock()

	out.TrackedCount = s.tracker.TrackedCount(ctx)
	out.Catalog = s.catalog.Status(ctx)
	syncStatus, err := s.sync.Status(ctx)
	if err != nil {
		return dto.StatusOutput{}, err
	}
	out.Sync = syncStatus
	return out, nil
}

func (s *AgentService) SessionsRecent(ctx context.Context, limit int) ([]sessionsdto.SessionOutput, error) {
	if s.shouldForward() {
		return s.client.SessionsRecent(ctx, s.daemon.SocketPath(), limit)
	}
	return s.sessions.ListRecent(ctx, s.currentSubject(), limit)
}

func (s *AgentService) SyncNow(ctx context.Context) (dto.SyncNowOutput, error) {
	if s.shouldForward() {
		return s.client.SyncNow(ctx, s.daemon.SocketPath())
	}

	status, err := s.sync.Status(ctx)
	if err != nil {
		return dto.SyncNowOutput{}, err
	}
	if !status.Bound {
		subject := s.currentSubject()
		if subject == "" {
			return dto.SyncNowOutput{}, apperrors.ErrNotBound
		}
		if err := s.sync.Bind(ctx, subject); err != nil {
			return dto.SyncNowOutput{}, err
		}
	}

	out := dto.SyncNowOutput{}
	if out.Sweep, err = s.sync.SweepNow(ctx); err != nil {
		return dto.SyncNowOutput{}, err
	}
	if out.Pull, err = s.sync.PullNow(ctx); err != nil {
		return out, err
	}
	return out, nil
}

func (s *AgentService) CatalogReload(ctx context.Context) (catalogdto.CatalogStatusOutput, error) {
	if s.shouldForward() {
		return s.client.CatalogReload(ctx, s.daemon.SocketPath())
	}
	return s.catalog.Reload(ctx)
}

// ChangeSubject rebinds the agent to a different subject. The previous
// subject's local rows are purged so the store never mixes histories.
func (s *AgentService) ChangeSubject(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return fmt.Errorf("%w: subject id is required", apperrors.ErrInvalidInput)
	}
	if s.shouldForward() {
		return s.client.ChangeSubject(ctx, s.daemon.SocketPath(), subjectID)
	}

	previous := s.currentSubject()
	if previous == subjectID {
		return s.sync.Bind(ctx, subjectID)
	}
	if err := s.sync.Unbind(ctx); err != nil {
		return err
	}
	if previous != "" {
		removed, err := s.sessions.PurgeSubject(ctx, previous)
		if err != nil {
			return fmt.Errorf("purge previous subject: %w", err)
		}
		s.logger.Info("purged previous subject", "subject", previous, "sessions", removed)
	}
	if err := s.sync.Bind(ctx, subjectID); err != nil {
		return err
	}

	s.mu.Lock()
	s.subjectID = subjectID
	s.mu.Unlock()
	return nil
}

func (s *AgentService) Stop(_ context.Context) error {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt == nil {
		return apperrors.ErrAgentNotRunning
	}
	rt.cancel()
	return nil
}

// shouldForward reports whether the call belongs to a running agent in
// another process.
func (s *AgentService) shouldForward() bool {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	return rt == nil && s.client != nil && socketReachable(s.daemon.SocketPath())
}

func (s *AgentService) currentSubject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subjectID
}

func (s *AgentService) clearRuntime() {
	s.mu.Lock()
	s.runtime = nil
	s.mu.Unlock()
	_ = s.daemon.ClearPID(context.Background())
	_ = os.Remove(s.daemon.SocketPath())
}

// cleanupStaleArtifacts clears the pid file and socket a crashed agent
// left behind.
func (s *AgentService) cleanupStaleArtifacts(ctx context.Context) error {
	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	} else if pid > 0 && !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
	}

	if _, statErr := os.Stat(s.daemon.SocketPath()); statErr == nil {
		if !socketReachable(s.daemon.SocketPath()) {
			if removeErr := os.Remove(s.daemon.SocketPath()); removeErr != nil && !os.IsNotExist(removeErr) {
				return fmt.Errorf("remove stale agent socket: %w", removeErr)
			}
		}
	}
	return nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if socketReachable(path) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("agent socket not ready: %s", path)
}

func socketReachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 150*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
