package bootstrap

import (
	"fmt"
	"io"
	"log/slog"

	agentinadapter "gametrack/internal/modules/agent/adapter/in"
	agentoutadapter "gametrack/internal/modules/agent/adapter/out"
	agentservice "gametrack/internal/modules/agent/service"
	agentusecase "gametrack/internal/modules/agent/usecase"
	cataloginadapter "gametrack/internal/modules/catalog/adapter/in"
	catalogoutadapter "gametrack/internal/modules/catalog/adapter/out"
	catalogout "gametrack/internal/modules/catalog/port/out"
	catalogservice "gametrack/internal/modules/catalog/service"
	catalogusecase "gametrack/internal/modules/catalog/usecase"
	sessionsinadapter "gametrack/internal/modules/sessions/adapter/in"
	sessionsoutadapter "gametrack/internal/modules/sessions/adapter/out"
	sessionsservice "gametrack/internal/modules/sessions/service"
	sessionsusecase "gametrack/internal/modules/sessions/usecase"
	syncoutadapter "gametrack/internal/modules/sync/adapter/out"
	syncservice "gametrack/internal/modules/sync/service"
	syncusecase "gametrack/internal/modules/sync/usecase"
	trackeroutadapter "gametrack/internal/modules/tracker/adapter/out"
	trackerout "gametrack/internal/modules/tracker/port/out"
	trackerservice "gametrack/internal/modules/tracker/service"
	trackerusecase "gametrack/internal/modules/tracker/usecase"
	"gametrack/internal/platform/clock"
	"gametrack/internal/platform/config"
	"gametrack/internal/platform/id"
	"gametrack/internal/platform/logging"
)

type App struct {
	AgentCLI    agentinadapter.CLIHandler
	SessionsCLI sessionsinadapter.CLIHandler
	CatalogCLI  cataloginadapter.CLIHandler

	// SubjectID is the configured subject, for commands that query the
	// store directly instead of going through the agent.
	SubjectID string

	closers []func() error
}

// New wires every module against cfg. logSink receives the structured
// log stream; the daemon points it at its log file, one-shot CLI
// commands at stderr.
func New(cfg config.Config, logSink io.Writer, level slog.Level) (*App, error) {
	clk := clock.SystemClock{}
	ids := id.NewULID()
	logger := logging.New(logSink, level)

	sessionStore, err := sessionsoutadapter.NewSQLiteSessionStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	sessionsUC := sessionsusecase.NewInteractor(
		sessionsservice.NewSessionService(clk, ids, sessionStore),
		sessionStore,
	)

	var signatureSource catalogout.SignatureSource
	if cfg.CatalogURL != "" {
		signatureSource = catalogoutadapter.NewHTTPSignatureSource(cfg.CatalogURL, cfg.APIToken)
	} else {
		signatureSource = catalogoutadapter.NewFileSignatureSource(cfg.CatalogFile)
	}
	catalogUC := catalogusecase.NewInteractor(catalogservice.NewCatalogService(clk, signatureSource))

	remote := syncoutadapter.NewHTTPRemote(cfg.RemoteURL, cfg.APIToken)
	reconciler := syncservice.NewReconciler(clk, logger, sessionsUC, remote, syncservice.Options{
		SweepInterval:     cfg.SyncInterval,
		PullInterval:      cfg.SyncInterval * 5,
		HeartbeatInterval: cfg.HeartbeatInterval,
		BatchLimit:        cfg.UnsyncedBatch,
		PullPageSize:      cfg.PullPageSize,
	})
	syncUC := syncusecase.New(reconciler)

	var snapshotSource trackerout.SnapshotSource
	if cfg.SnapshotProvider != "" {
		snapshotSource = trackeroutadapter.NewPluginSnapshotSource(cfg.SnapshotProvider)
	} else {
		snapshotSource = trackeroutadapter.NewProcfsSnapshotSource()
	}
	detector := trackerservice.NewDetector(
		clk,
		logger,
		catalogUC,
		sessionsUC,
		snapshotSource,
		cfg.SubjectID,
		cfg.DeviceID,
		trackeroutadapter.NewSyncObserverAdapter(syncUC),
	)
	trackerUC := trackerusecase.NewInteractor(detector)

	daemonStore := agentoutadapter.NewFileDaemonStore(cfg.PIDPath, cfg.SocketPath, cfg.LogPath)
	var watcher catalogout.SourceWatcher
	if cfg.CatalogURL == "" {
		watcher = catalogoutadapter.NewFsnotifyWatcher(cfg.CatalogFile)
	}
	agentUC := agentusecase.New(agentservice.NewAgentService(
		cfg.HomePath,
		cfg.SubjectID,
		cfg.PollInterval,
		cfg.CatalogRefresh,
		clk,
		logger,
		trackerUC,
		catalogUC,
		sessionsUC,
		syncUC,
		daemonStore,
		agentoutadapter.NewJSONRPCServer(),
		agentoutadapter.NewJSONRPCClient(),
		watcher,
	))

	app := &App{
		AgentCLI:    agentinadapter.NewCLIHandler(agentUC),
		SessionsCLI: sessionsinadapter.NewCLIHandler(sessionsUC),
		CatalogCLI:  cataloginadapter.NewCLIHandler(catalogUC),
		SubjectID:   cfg.SubjectID,
	}
	app.closers = append(app.closers, sessionStore.CloseDB)
	if closer, ok := snapshotSource.(interface{ Close() }); ok {
		app.closers = append(app.closers, func() error {
			closer.Close()
			return nil
		})
	}
	return app, nil
}

// Close releases the store and any plugin connection. One-shot CLI
// commands call it on exit; the daemon calls it after Run returns.
func (a *App) Close() error {
	var first error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
