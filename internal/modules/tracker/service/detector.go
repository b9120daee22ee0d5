package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	catalogin "gametrack/internal/modules/catalog/port/in"
	sessionsdto "gametrack/internal/modules/sessions/dto"
	sessionsin "gametrack/internal/modules/sessions/port/in"
	"gametrack/internal/modules/tracker/domain"
	trackerdto "gametrack/internal/modules/tracker/dto"
	trackerout "gametrack/internal/modules/tracker/port/out"
	"gametrack/internal/platform/clock"
	apperrors "gametrack/internal/platform/errors"
)

// Detector diffs process snapshots against the pids it tracks and drives
// session lifecycle transitions in the store. It is the only writer that
// opens or closes sessions.
type Detector struct {
	clock     clock.Clock
	logger    *slog.Logger
	catalog   catalogin.Usecase
	sessions  sessionsin.Usecase
	source    trackerout.SnapshotSource
	observers []trackerout.SessionObserver

	subjectID string
	deviceID  string

	mu        sync.Mutex
	tracked   map[int]domain.TrackedProcess
	recovered bool
}

func NewDetector(
	clock clock.Clock,
	logger *slog.Logger,
	catalog catalogin.Usecase,
	sessions sessionsin.Usecase,
	source trackerout.SnapshotSource,
	subjectID, deviceID string,
	observers ...trackerout.SessionObserver,
) *Detector {
	return &Detector{
		clock:     clock,
		logger:    logger,
		catalog:   catalog,
		sessions:  sessions,
		source:    source,
		observers: observers,
		subjectID: subjectID,
		deviceID:  deviceID,
		tracked:   map[int]domain.TrackedProcess{},
	}
}

// Poll runs one detection cycle. A snapshot error is logged and treated
// as an empty snapshot: tracked processes are considered gone and their
// sessions close. Poll itself never returns a snapshot error.
func (d *Detector) Poll(ctx context.Context) (trackerdto.PollOutput, error) {
	snapshot, err := d.source.Snapshot(ctx)
	if err != nil {
		d.logger.Warn("process snapshot failed, treating as empty", "error", err)
		snapshot = nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := trackerdto.PollOutput{}
	if !d.recovered {
		d.recoverStartup(ctx, snapshot, &out)
	}

	alive := map[int]bool{}
	for _, proc := range snapshot {
		alive[proc.PID] = true
		if _, ok := d.tracked[proc.PID]; ok {
			continue
		}
		match, ok := d.catalog.Match(ctx, proc.Name)
		if !ok {
			continue
		}
		d.startSession(ctx, proc, match.GameName, match.Category, &out)
	}

	for pid, entry := range d.tracked {
		if alive[pid] {
			continue
		}
		d.endSession(ctx, pid, entry, &out)
	}
	return out, nil
}

func (d *Detector) TrackedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tracked)
}

// startSession opens (or re-adopts) the session for a newly matched pid.
// The tracked entry is only recorded once the store write succeeded, so a
// failed create leaves no phantom pid behind.
func (d *Detector) startSession(ctx context.Context, proc domain.Process, gameName, category string, out *trackerdto.PollOutput) {
	if existing, err := d.sessions.FindActiveByGame(ctx, d.subjectID, gameName); err == nil {
		if d.trackedSession(existing.ID) {
			// A second pid of an already tracked game never opens a
			// second session.
			return
		}
		d.tracked[proc.PID] = domain.TrackedProcess{
			PID:       proc.PID,
			GameName:  existing.GameName,
			Category:  existing.Category,
			SessionID: existing.ID,
			StartedAt: existing.StartedAt,
		}
		return
	} else if !errors.Is(err, apperrors.ErrNoActiveSession) {
		d.logger.Error("lookup active session failed", "game", gameName, "error", err)
		return
	}

	created, err := d.sessions.CreateActive(ctx, sessionsdto.CreateActiveInput{
		SubjectID: d.subjectID,
		GameName:  gameName,
		Category:  category,
		DeviceID:  d.deviceID,
		StartedAt: d.clock.Now(),
	})
	if err != nil {
		d.logger.Error("create session failed", "game", gameName, "pid", proc.PID, "error", err)
		return
	}
	d.tracked[proc.PID] = domain.TrackedProcess{
		PID:       proc.PID,
		GameName:  created.GameName,
		Category:  created.Category,
		SessionID: created.ID,
		StartedAt: created.StartedAt,
	}
	event := toEvent(created)
	out.Started = append(out.Started, event)
	for _, observer := range d.observers {
		observer.OnStart(event)
	}
}

// endSession closes the session for a pid that left the snapshot. On a
// store failure the pid stays tracked and the close is retried on the
// next cycle.
func (d *Detector) endSession(ctx context.Context, pid int, entry domain.TrackedProcess, out *trackerdto.PollOutput) {
	closed, err := d.sessions.CloseSession(ctx, sessionsdto.CloseInput{
		SessionID: entry.SessionID,
		EndedAt:   d.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrIllegalTransition) || errors.Is(err, apperrors.ErrNotFound) {
			// Already closed elsewhere; stop tracking.
			delete(d.tracked, pid)
			return
		}
		d.logger.Error("close session failed", "session", entry.SessionID, "error", err)
		return
	}
	delete(d.tracked, pid)
	event := toEvent(closed)
	out.Ended = append(out.Ended, event)
	for _, observer := range d.observers {
		observer.OnEnd(event)
	}
}

// recoverStartup reconciles sessions left active by a previous run. A
// session whose game still has a matching pid in the first snapshot is
// re-adopted; anything else closes now. Either way no session stays
// orphaned in the active state.
func (d *Detector) recoverStartup(ctx context.Context, snapshot []domain.Process, out *trackerdto.PollOutput) {
	active, err := d.sessions.ListActive(ctx, d.subjectID)
	if err != nil {
		d.logger.Error("startup recovery failed, retrying next poll", "error", err)
		return
	}
	d.recovered = true

	for _, session := range active {
		pid, found := d.findPIDForGame(ctx, snapshot, session.GameName)
		if found {
			d.tracked[pid] = domain.TrackedProcess{
				PID:       pid,
				GameName:  session.GameName,
				Category:  session.Category,
				SessionID: session.ID,
				StartedAt: session.StartedAt,
			}
			d.logger.Info("re-adopted active session", "session", session.ID, "game", session.GameName, "pid", pid)
			continue
		}
		closed, err := d.sessions.CloseSession(ctx, sessionsdto.CloseInput{
			SessionID: session.ID,
			EndedAt:   d.clock.Now(),
		})
		if err != nil {
			d.logger.Error("close orphaned session failed", "session", session.ID, "error", err)
			continue
		}
		event := toEvent(closed)
		out.Ended = append(out.Ended, event)
		for _, observer := range d.observers {
			observer.OnEnd(event)
		}
	}
}

func (d *Detector) findPIDForGame(ctx context.Context, snapshot []domain.Process, gameName string) (int, bool) {
	for _, proc := range snapshot {
		if _, taken := d.tracked[proc.PID]; taken {
			continue
		}
		match, ok := d.catalog.Match(ctx, proc.Name)
		if ok && match.GameName == gameName {
			return proc.PID, true
		}
	}
	return 0, false
}

func (d *Detector) trackedSession(sessionID string) bool {
	for _, entry := range d.tracked {
		if entry.SessionID == sessionID {
			return true
		}
	}
	return false
}

func toEvent(session sessionsdto.SessionOutput) trackerdto.SessionEvent {
	return trackerdto.SessionEvent{
		SessionID:   session.ID,
		SubjectID:   session.SubjectID,
		GameName:    session.GameName,
		Category:    session.Category,
		DeviceID:    session.DeviceID,
		StartedAt:   session.StartedAt,
		EndedAt:     session.EndedAt,
		DurationMin: session.DurationMin,
	}
}
