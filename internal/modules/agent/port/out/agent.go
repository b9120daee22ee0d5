package out

import (
	"context"

	"gametrack/internal/modules/agent/dto"
	catalogdto "gametrack/internal/modules/catalog/dto"
	sessionsdto "gametrack/internal/modules/sessions/dto"
)

// CatalogWatcher fires onChange whenever the local catalog file is
// rewritten. Watch blocks until ctx is cancelled.
type CatalogWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// DaemonStore owns the on-disk artifacts of a running agent: the pid
// file, the IPC socket, and the log sink.
type DaemonStore interface {
	WritePID(ctx context.Context, pid int) error
	ReadPID(ctx context.Context) (int, error)
	ClearPID(ctx context.Context) error
	SocketPath() string
	LogPath() string
}

// IPCHandler is what the agent process exposes over the local socket.
type IPCHandler interface {
	Status(ctx context.Context) (dto.StatusOutput, error)
	SessionsRecent(ctx context.Context, limit int) ([]sessionsdto.SessionOutput, error)
	SyncNow(ctx context.Context) (dto.SyncNowOutput, error)
	CatalogReload(ctx context.Context) (catalogdto.CatalogStatusOutput, error)
	ChangeSubject(ctx context.Context, subjectID string) error
	Stop(ctx context.Context) error
}

type IPCServer interface {
	// Serve blocks until ctx is cancelled or the listener fails.
	Serve(ctx context.Context, socketPath string, handler IPCHandler) error
}

type IPCClient interface {
	Status(ctx context.Context, socketPath string) (dto.StatusOutput, error)
	SessionsRecent(ctx context.Context, socketPath string, limit int) ([]sessionsdto.SessionOutput, error)
	SyncNow(ctx context.Context, socketPath string) (dto.SyncNowOutput, error)
	CatalogReload(ctx context.Context, socketPath string) (catalogdto.CatalogStatusOutput, error)
	ChangeSubject(ctx context.Context, socketPath string, subjectID string) error
	Stop(ctx context.Context, socketPath string) error
}
