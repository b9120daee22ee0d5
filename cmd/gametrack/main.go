package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gametrack/internal/bootstrap"
	syncdto "gametrack/internal/modules/sync/dto"
	"gametrack/internal/platform/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var homePath string

	root := &cobra.Command{
		Use:           "gametrack",
		Short:         "Game activity monitoring agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&homePath, "home", defaultHome(), "gametrack home directory")

	root.AddCommand(newAgentCmd(&homePath))
	root.AddCommand(newSessionsCmd(&homePath))
	root.AddCommand(newCatalogCmd(&homePath))
	root.AddCommand(newSyncCmd(&homePath))
	return root
}

func defaultHome() string {
	if env := os.Getenv("GAMETRACK_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gametrack"
	}
	return filepath.Join(home, ".gametrack")
}

func loadApp(homePath string) (*bootstrap.App, error) {
	if err := os.MkdirAll(homePath, 0o755); err != nil {
		return nil, fmt.Errorf("create home dir: %w", err)
	}
	cfg, err := config.New(homePath)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg, os.Stderr, slog.LevelInfo)
}

func newAgentCmd(homePath *string) *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Manage the monitoring agent"}

	agent.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.AgentCLI.Run(ctx)
		},
	})
	agent.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the agent in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.AgentCLI.Start(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "agent started")
			return nil
		},
	})
	agent.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the running agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.AgentCLI.Stop(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "agent stopped")
			return nil
		},
	})
	agent.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show agent status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			status, err := app.AgentCLI.Status(context.Background())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !status.Running {
				_, _ = fmt.Fprintln(out, "agent: not running")
				return nil
			}
			_, _ = fmt.Fprintf(out, "agent: running pid=%d since=%s\n", status.PID, status.StartedAt.Format(time.RFC3339))
			_, _ = fmt.Fprintf(out, "tracked processes: %d\n", status.TrackedCount)
			_, _ = fmt.Fprintf(out, "catalog: %d signatures (refreshed %s)\n", status.Catalog.Signatures, formatTime(status.Catalog.RefreshedAt))
			printSyncStatus(out, status.Sync)
			return nil
		},
	})
	return agent
}

func newSessionsCmd(homePath *string) *cobra.Command {
	sessions := &cobra.Command{Use: "sessions", Short: "Session query commands"}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			recent, err := app.AgentCLI.SessionsRecent(context.Background(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recent) == 0 {
				_, _ = fmt.Fprintln(out, "no sessions")
				return nil
			}
			for _, session := range recent {
				duration := "active"
				if session.DurationMin != nil {
					duration = fmt.Sprintf("%dm", *session.DurationMin)
				}
				_, _ = fmt.Fprintf(out, "%s  %-24s %-12s %s  %s  [%s]\n",
					session.StartedAt.Format("2006-01-02 15:04"),
					session.GameName, session.Category, duration, session.SyncState, session.ID)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to show")

	unsyncedCmd := &cobra.Command{
		Use:   "unsynced",
		Short: "List ended sessions awaiting delivery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			pending, err := app.SessionsCLI.ListUnsynced(context.Background(), app.SubjectID, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				_, _ = fmt.Fprintln(out, "nothing to deliver")
				return nil
			}
			for _, session := range pending {
				_, _ = fmt.Fprintf(out, "%s  %-24s %s\n",
					session.StartedAt.Format("2006-01-02 15:04"), session.GameName, session.ID)
			}
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge <subject-id>",
		Short: "Delete all local sessions of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			removed, err := app.SessionsCLI.PurgeSubject(context.Background(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", removed)
			return nil
		},
	}

	sessions.AddCommand(listCmd, unsyncedCmd, purgeCmd)
	return sessions
}

func newCatalogCmd(homePath *string) *cobra.Command {
	catalog := &cobra.Command{Use: "catalog", Short: "Signature catalog commands"}

	catalog.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Reload the signature catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			status, err := app.AgentCLI.CatalogReload(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "catalog: %d signatures\n", status.Signatures)
			return nil
		},
	})
	catalog.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known game signatures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := context.Background()
			if _, err := app.CatalogCLI.Refresh(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, signature := range app.CatalogCLI.List(ctx) {
				_, _ = fmt.Fprintf(out, "%-32s %-12s %v\n", signature.Name, signature.Category, signature.Executables)
			}
			return nil
		},
	})
	catalog.AddCommand(&cobra.Command{
		Use:   "match <process-name>",
		Short: "Resolve a process name against the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := context.Background()
			if _, err := app.CatalogCLI.Refresh(ctx); err != nil {
				return err
			}
			match, ok := app.CatalogCLI.Match(ctx, args[0])
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no match")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", match.GameName, match.Category)
			return nil
		},
	})
	return catalog
}

func newSyncCmd(homePath *string) *cobra.Command {
	syncCmd := &cobra.Command{Use: "sync", Short: "Remote synchronization commands"}

	syncCmd.AddCommand(&cobra.Command{
		Use:   "bind <subject-id>",
		Short: "Bind the agent to a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.AgentCLI.ChangeSubject(context.Background(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "bound to subject %s\n", args[0])
			return nil
		},
	})
	syncCmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Run a sweep and pull immediately",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.AgentCLI.SyncNow(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "delivered %d (failed %d), imported %d (skipped %d)\n",
				out.Sweep.Delivered, out.Sweep.Failed, out.Pull.Imported, out.Pull.Skipped)
			return nil
		},
	})
	syncCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show synchronization status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*homePath)
			if err != nil {
				return err
			}
			defer app.Close()
			status, err := app.AgentCLI.Status(context.Background())
			if err != nil {
				return err
			}
			printSyncStatus(cmd.OutOrStdout(), status.Sync)
			return nil
		},
	})
	return syncCmd
}

func printSyncStatus(out io.Writer, status syncdto.StatusOutput) {
	if !status.Bound {
		_, _ = fmt.Fprintln(out, "sync: not bound")
		return
	}
	state := "offline"
	if status.Online {
		state = "online"
	}
	_, _ = fmt.Fprintf(out, "sync: subject=%s %s pending=%d\n", status.SubjectID, state, status.PendingUnsynced)
	_, _ = fmt.Fprintf(out, "  last heartbeat %s, last sweep %s, last pull %s\n",
		formatTime(status.LastHeartbeatAt), formatTime(status.LastSweepAt), formatTime(status.LastPullAt))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
