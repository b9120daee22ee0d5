package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gametrack/internal/modules/sessions/domain"
	sessionsout "gametrack/internal/modules/sessions/port/out"
	apperrors "gametrack/internal/platform/errors"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type SQLiteSessionStore struct {
	db *sql.DB
}

func NewSQLiteSessionStore(dbPath string) (sessionsout.SessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer keeps the composite state transitions serialized.
	db.SetMaxOpenConns(1)
	store := &SQLiteSessionStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteSessionStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  subject_id TEXT,
  game_name TEXT NOT NULL,
  category TEXT NOT NULL,
  device_id TEXT,
  started_at TEXT NOT NULL,
  ended_at TEXT,
  duration_min INTEGER,
  sync_state TEXT NOT NULL,
  remote_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_sync_state ON sessions(sync_state);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_remote_id ON sessions(remote_id) WHERE remote_id IS NOT NULL;
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", domain.SchemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) CreateActive(ctx context.Context, session domain.Session) error {
	const stmt = `
INSERT INTO sessions (id, subject_id, game_name, category, device_id, started_at, sync_state)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, stmt,
		session.ID,
		nullable(session.SubjectID),
		session.GameName,
		string(session.Category),
		nullable(session.DeviceID),
		session.StartedAt.UTC().Format(timeLayout),
		string(domain.StateActive),
	)
	if err != nil {
		return fmt.Errorf("insert active session: %w", err)
	}
	return nil
}

// Close transitions active -> ended_unsynced in one statement; the state
// predicate makes the write a no-op if the row already moved on.
func (s *SQLiteSessionStore) Close(ctx context.Context, sessionID string, session domain.Session) error {
	const stmt = `
UPDATE sessions
SET ended_at = ?, duration_min = ?, sync_state = ?
WHERE id = ? AND sync_state = ?;
`
	if session.EndedAt == nil || session.DurationMin == nil {
		return fmt.Errorf("%w: close requires ended_at and duration", apperrors.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, stmt,
		session.EndedAt.UTC().Format(timeLayout),
		*session.DurationMin,
		string(domain.StateEndedUnsynced),
		sessionID,
		string(domain.StateActive),
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return requireRow(res, sessionID)
}

// MarkSynced moves ended_unsynced -> synced and records the remote id if
// the row does not carry one yet. An existing remote id is never replaced.
func (s *SQLiteSessionStore) MarkSynced(ctx context.Context, sessionID, remoteID string) error {
	const stmt = `
UPDATE sessions
SET sync_state = ?, remote_id = COALESCE(remote_id, ?)
WHERE id = ? AND sync_state = ?;
`
	res, err := s.db.ExecContext(ctx, stmt,
		string(domain.StateSynced),
		nullable(remoteID),
		sessionID,
		string(domain.StateEndedUnsynced),
	)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return requireRow(res, sessionID)
}

// SetRemoteID is write-once: a second call with a different id leaves the
// first value in place.
func (s *SQLiteSessionStore) SetRemoteID(ctx context.Context, sessionID, remoteID string) error {
	const stmt = `
UPDATE sessions SET remote_id = ? WHERE id = ? AND remote_id IS NULL;
`
	if _, err := s.db.ExecContext(ctx, stmt, remoteID, sessionID); err != nil {
		return fmt.Errorf("set remote id: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) InsertSynced(ctx context.Context, session domain.Session) error {
	const stmt = `
INSERT INTO sessions (id, subject_id, game_name, category, device_id, started_at, ended_at, duration_min, sync_state, remote_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	var endedAt any
	if session.EndedAt != nil {
		endedAt = session.EndedAt.UTC().Format(timeLayout)
	}
	var duration any
	if session.DurationMin != nil {
		duration = *session.DurationMin
	}
	_, err := s.db.ExecContext(ctx, stmt,
		session.ID,
		nullable(session.SubjectID),
		session.GameName,
		string(session.Category),
		nullable(session.DeviceID),
		session.StartedAt.UTC().Format(timeLayout),
		endedAt,
		duration,
		string(domain.StateSynced),
		nullable(session.RemoteID),
	)
	if err != nil {
		return fmt.Errorf("insert synced session: %w", err)
	}
	return nil
}

const selectColumns = `id, subject_id, game_name, category, device_id, started_at, ended_at, duration_min, sync_state, remote_id`

func (s *SQLiteSessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

func (s *SQLiteSessionStore) FindActiveByGame(ctx context.Context, subjectID, gameName string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE sync_state = ? AND subject_id IS ? AND game_name = ? LIMIT 1`,
		string(domain.StateActive), nullable(subjectID), gameName,
	)
	session, err := scanSession(row)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.Session{}, apperrors.ErrNoActiveSession
	}
	return session, err
}

func (s *SQLiteSessionStore) FindByRemoteID(ctx context.Context, remoteID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE remote_id = ? LIMIT 1`, remoteID)
	return scanSession(row)
}

func (s *SQLiteSessionStore) ListActive(ctx context.Context, subjectID string) ([]domain.Session, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE sync_state = ? AND subject_id IS ? ORDER BY started_at ASC`,
		string(domain.StateActive), nullable(subjectID))
}

func (s *SQLiteSessionStore) ListUnsynced(ctx context.Context, subjectID string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE sync_state = ? AND subject_id IS ? ORDER BY started_at ASC LIMIT ?`,
		string(domain.StateEndedUnsynced), nullable(subjectID), limit)
}

func (s *SQLiteSessionStore) ListRecent(ctx context.Context, subjectID string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE subject_id IS ? ORDER BY started_at DESC LIMIT ?`,
		nullable(subjectID), limit)
}

func (s *SQLiteSessionStore) CountUnsynced(ctx context.Context, subjectID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE sync_state = ? AND subject_id IS ?`,
		string(domain.StateEndedUnsynced), nullable(subjectID))
	count := 0
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return count, nil
}

func (s *SQLiteSessionStore) PurgeSubject(ctx context.Context, subjectID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE subject_id IS ?`, nullable(subjectID))
	if err != nil {
		return 0, fmt.Errorf("purge subject sessions: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *SQLiteSessionStore) CloseDB() error {
	return s.db.Close()
}

func (s *SQLiteSessionStore) list(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session   domain.Session
		subject   sql.NullString
		device    sql.NullString
		startedAt string
		endedAt   sql.NullString
		duration  sql.NullInt64
		state     string
		category  string
		remoteID  sql.NullString
	)
	err := row.Scan(&session.ID, &subject, &session.GameName, &category, &device, &startedAt, &endedAt, &duration, &state, &remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.SubjectID = subject.String
	session.DeviceID = device.String
	session.Category = domain.Category(category)
	session.SyncState = domain.SyncState(state)
	session.RemoteID = remoteID.String
	session.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return domain.Session{}, err
	}
	if endedAt.Valid {
		end, err := parseTime(endedAt.String)
		if err != nil {
			return domain.Session{}, err
		}
		session.EndedAt = &end
	}
	if duration.Valid {
		minutes := int(duration.Int64)
		session.DurationMin = &minutes
	}
	return session, nil
}

func parseTime(raw string) (time.Time, error) {
	parsed, err := time.Parse(timeLayout, raw)
	if err != nil {
		// Older rows may have been written without fractional seconds.
		parsed, err = time.Parse(time.RFC3339, raw)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session time %q: %w", raw, err)
	}
	return parsed.UTC(), nil
}

func requireRow(res sql.Result, sessionID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s not in expected state", apperrors.ErrIllegalTransition, sessionID)
	}
	return nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
