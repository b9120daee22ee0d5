package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	sessionsdto "gametrack/internal/modules/sessions/dto"
	sessionsin "gametrack/internal/modules/sessions/port/in"
	syncdto "gametrack/internal/modules/sync/dto"
	syncout "gametrack/internal/modules/sync/port/out"
	"gametrack/internal/platform/clock"
	apperrors "gametrack/internal/platform/errors"
)

type Options struct {
	SweepInterval     time.Duration
	PullInterval      time.Duration
	HeartbeatInterval time.Duration
	BatchLimit        int
	PullPageSize      int
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = 60 * time.Second
	}
	if o.PullInterval <= 0 {
		o.PullInterval = 5 * time.Minute
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 60 * time.Second
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 50
	}
	if o.PullPageSize <= 0 {
		o.PullPageSize = 500
	}
	return o
}

// Reconciler keeps the local store and the remote service consistent:
// real-time pushes on session start and end, a periodic batch sweep for
// anything those missed, a periodic pull-down that repopulates local
// history, and a heartbeat. Each activity runs on its own timer and
// swallows its own failures; none of them can stop the others.
type Reconciler struct {
	clock    clock.Clock
	logger   *slog.Logger
	sessions sessionsin.Usecase
	remote   syncout.RemoteSessionService
	opts     Options

	mu            sync.Mutex
	subjectID     string
	runner        *cron.Cron
	online        bool
	lastHeartbeat time.Time
	lastSweep     time.Time
	lastPull      time.Time

	pushes sync.WaitGroup
}

func NewReconciler(clock clock.Clock, logger *slog.Logger, sessions sessionsin.Usecase, remote syncout.RemoteSessionService, opts Options) *Reconciler {
	return &Reconciler{
		clock:    clock,
		logger:   logger,
		sessions: sessions,
		remote:   remote,
		opts:     opts.withDefaults(),
	}
}

// Bind attaches the reconciler to a subject. Any previous timers stop
// first, so re-binding is idempotent and never doubles the push or
// heartbeat rate. A subject the remote does not know is surfaced as a
// configuration error; transient failures during the initial pull and
// sweep are only logged.
func (r *Reconciler) Bind(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return fmt.Errorf("%w: subject id is required", apperrors.ErrInvalidInput)
	}

	r.mu.Lock()
	r.stopRunnerLocked()
	r.subjectID = subjectID
	r.mu.Unlock()

	if _, err := r.Pull(ctx); err != nil {
		if errors.Is(err, apperrors.ErrSubjectNotFound) {
			return err
		}
		r.logger.Warn("initial pull-down failed", "subject", subjectID, "error", err)
	}
	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Warn("initial sweep failed", "subject", subjectID, "error", err)
	}

	runner := cron.New(cron.WithChain(cron.Recover(newCronLogger(r.logger))))
	if err := r.addJobs(runner); err != nil {
		return err
	}
	runner.Start()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subjectID != subjectID {
		// Unbound or re-bound while we were pulling; discard.
		runner.Stop()
		return nil
	}
	// A concurrent Bind for the same subject may have installed its own
	// runner while we were pulling; stop it before taking the slot.
	r.stopRunnerLocked()
	r.runner = runner
	return nil
}

func (r *Reconciler) addJobs(runner *cron.Cron) error {
	jobs := []struct {
		every time.Duration
		run   func()
	}{
		{r.opts.SweepInterval, func() {
			if _, err := r.Sweep(context.Background()); err != nil {
				r.logger.Warn("batch sweep failed", "error", err)
			}
		}},
		{r.opts.PullInterval, func() {
			if _, err := r.Pull(context.Background()); err != nil {
				r.logger.Warn("pull-down failed", "error", err)
			}
		}},
		{r.opts.HeartbeatInterval, func() {
			r.Heartbeat(context.Background())
		}},
	}
	for _, job := range jobs {
		if _, err := runner.AddFunc(fmt.Sprintf("@every %s", job.every), job.run); err != nil {
			return fmt.Errorf("schedule sync job: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) Unbind(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopRunnerLocked()
	r.subjectID = ""
	r.online = false
	return nil
}

// Close stops the timers and drains in-flight pushes so the store can be
// shut down safely afterwards.
func (r *Reconciler) Close(_ context.Context) error {
	r.mu.Lock()
	r.stopRunnerLocked()
	r.mu.Unlock()
	r.pushes.Wait()
	return nil
}

func (r *Reconciler) stopRunnerLocked() {
	if r.runner != nil {
		r.runner.Stop()
		r.runner = nil
	}
}

// OnStart pushes a begin record in the background. This push is fire and
// forget: a failure is only logged, because the end push and the batch
// sweep guarantee eventual delivery of the completed record anyway.
func (r *Reconciler) OnStart(event syncdto.PushEvent) {
	if event.SubjectID == "" {
		return
	}
	r.pushes.Add(1)
	go func() {
		defer r.pushes.Done()
		var resp syncout.BeginResponse
		err := r.pushWithRetry(func() error {
			var err error
			resp, err = r.remote.Begin(context.Background(), syncout.BeginRequest{
				SubjectID: event.SubjectID,
				GameName:  event.GameName,
				Category:  event.Category,
				StartedAt: event.StartedAt,
				DeviceID:  event.DeviceID,
				ClientRef: event.SessionID,
			})
			return err
		})
		if err != nil {
			r.logger.Warn("begin push failed", "session", event.SessionID, "error", err)
			return
		}
		// Sync state stays active; only the correlation id lands.
		if err := r.sessions.SetRemoteID(context.Background(), event.SessionID, resp.SessionID); err != nil {
			r.logger.Warn("store remote id failed", "session", event.SessionID, "error", err)
		}
	}()
}

// OnEnd pushes the completed record in the background. Success marks the
// session synced immediately; failure leaves it ended_unsynced for the
// next sweep.
func (r *Reconciler) OnEnd(event syncdto.PushEvent) {
	if event.SubjectID == "" || event.EndedAt == nil || event.DurationMin == nil {
		return
	}
	r.pushes.Add(1)
	go func() {
		defer r.pushes.Done()
		var resp syncout.EndResponse
		err := r.pushWithRetry(func() error {
			var err error
			resp, err = r.remote.End(context.Background(), syncout.EndRequest{
				SubjectID:   event.SubjectID,
				GameName:    event.GameName,
				Category:    event.Category,
				StartedAt:   event.StartedAt,
				EndedAt:     *event.EndedAt,
				DurationMin: *event.DurationMin,
				DeviceID:    event.DeviceID,
				ClientRef:   event.SessionID,
			})
			return err
		})
		if err != nil {
			r.logger.Warn("end push failed, sweep will retry", "session", event.SessionID, "error", err)
			return
		}
		if err := r.sessions.MarkSynced(context.Background(), event.SessionID, resp.SessionID); err != nil {
			r.logger.Warn("mark synced failed", "session", event.SessionID, "error", err)
		}
	}()
}

// pushWithRetry gives a real-time push three attempts with exponential
// backoff. Sweep deliveries stay single-attempt; the next tick is their
// retry.
func (r *Reconciler) pushWithRetry(op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		// An unknown subject is a configuration problem; retrying
		// cannot fix it.
		if errors.Is(err, apperrors.ErrSubjectNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// Sweep delivers ended sessions the real-time pushes missed, oldest
// first. One bad record never aborts the batch.
func (r *Reconciler) Sweep(ctx context.Context) (syncdto.SweepOutput, error) {
	subjectID, bound := r.boundSubject()
	if !bound {
		return syncdto.SweepOutput{}, apperrors.ErrNotBound
	}

	pending, err := r.sessions.ListUnsynced(ctx, sessionsdto.ListUnsyncedInput{SubjectID: subjectID, Limit: r.opts.BatchLimit})
	if err != nil {
		return syncdto.SweepOutput{}, fmt.Errorf("list unsynced: %w", err)
	}

	out := syncdto.SweepOutput{}
	for _, session := range pending {
		if session.EndedAt == nil || session.DurationMin == nil {
			continue
		}
		resp, err := r.remote.End(ctx, syncout.EndRequest{
			SubjectID:   session.SubjectID,
			GameName:    session.GameName,
			Category:    session.Category,
			StartedAt:   session.StartedAt,
			EndedAt:     *session.EndedAt,
			DurationMin: *session.DurationMin,
			DeviceID:    session.DeviceID,
			ClientRef:   session.ID,
		})
		if err != nil {
			out.Failed++
			r.logger.Warn("sweep item failed", "session", session.ID, "error", err)
			continue
		}
		if err := r.sessions.MarkSynced(ctx, session.ID, resp.SessionID); err != nil {
			out.Failed++
			r.logger.Warn("sweep mark synced failed", "session", session.ID, "error", err)
			continue
		}
		out.Delivered++
	}

	r.mu.Lock()
	r.lastSweep = r.clock.Now()
	r.mu.Unlock()
	return out, nil
}

// Pull fetches completed remote history and imports records the local
// store has never seen. This is the path that repopulates history after
// a reinstall wipes the local database.
func (r *Reconciler) Pull(ctx context.Context) (syncdto.PullOutput, error) {
	subjectID, bound := r.boundSubject()
	if !bound {
		return syncdto.PullOutput{}, apperrors.ErrNotBound
	}

	records, err := r.remote.Pull(ctx, subjectID, r.opts.PullPageSize)
	if err != nil {
		return syncdto.PullOutput{}, fmt.Errorf("pull remote sessions: %w", err)
	}

	out := syncdto.PullOutput{}
	for _, record := range records {
		imported, err := r.sessions.ImportRemote(ctx, sessionsdto.ImportInput{
			RemoteID:    record.ID,
			SubjectID:   subjectID,
			GameName:    record.GameName,
			Category:    record.Category,
			StartedAt:   record.StartedAt,
			EndedAt:     record.EndedAt,
			DurationMin: record.DurationMin,
		})
		if err != nil {
			r.logger.Warn("import remote session failed", "remote_id", record.ID, "error", err)
			continue
		}
		if imported {
			out.Imported++
		} else {
			out.Skipped++
		}
	}

	r.mu.Lock()
	r.lastPull = r.clock.Now()
	r.mu.Unlock()
	return out, nil
}

// Heartbeat flips the online flag. The flag is status only and never
// gates the push or pull paths.
func (r *Reconciler) Heartbeat(ctx context.Context) {
	subjectID, bound := r.boundSubject()
	if !bound {
		return
	}
	resp, err := r.remote.Heartbeat(ctx, subjectID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.online = false
		r.logger.Warn("heartbeat failed", "error", err)
		return
	}
	r.online = true
	r.lastHeartbeat = resp.SyncedAt
	if r.lastHeartbeat.IsZero() {
		r.lastHeartbeat = r.clock.Now()
	}
}

func (r *Reconciler) Status(ctx context.Context) (syncdto.StatusOutput, error) {
	r.mu.Lock()
	out := syncdto.StatusOutput{
		Bound:           r.subjectID != "",
		SubjectID:       r.subjectID,
		Online:          r.online,
		LastHeartbeatAt: r.lastHeartbeat,
		LastSweepAt:     r.lastSweep,
		LastPullAt:      r.lastPull,
	}
	r.mu.Unlock()

	if out.Bound {
		pending, err := r.sessions.CountUnsynced(ctx, out.SubjectID)
		if err != nil {
			return syncdto.StatusOutput{}, err
		}
		out.PendingUnsynced = pending
	}
	return out, nil
}

func (r *Reconciler) boundSubject() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subjectID, r.subjectID != ""
}

// cronLogger adapts slog to the cron logger contract so recovered job
// panics land in the structured log.
type cronLogger struct {
	logger *slog.Logger
}

func newCronLogger(logger *slog.Logger) cron.Logger {
	return cronLogger{logger: logger}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
