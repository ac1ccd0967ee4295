package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/coolive/internal/backup"
	"github.com/dukerupert/coolive/internal/config"
	"github.com/dukerupert/coolive/internal/database"
	"github.com/dukerupert/coolive/internal/logging"
	"github.com/dukerupert/coolive/internal/push"
	"github.com/dukerupert/coolive/internal/server"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "coolive",
	Short:         "Shared flat chores backend",
	Long:          `coolive serves the HTTP and WebSocket API for flatmates sharing chores and points.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return serve(cmd.Context(), cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := database.Version(db)
		if err != nil {
			return err
		}
		fmt.Printf("%s is at schema version %d\n", cfg.DBPath, v)
		return nil
	},
}

var vapidCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for web push",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Printf("COOLIVE_VAPID_PUBLIC_KEY=%s\nCOOLIVE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage encrypted database backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload an encrypted snapshot of the database now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, true, func(m *backup.Manager, cfg *config.Config) error {
			obj, err := m.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("uploaded %s (%d bytes)\n", obj.Key, obj.Size)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, false, func(m *backup.Manager, cfg *config.Config) error {
			objects, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, o := range objects {
				fmt.Printf("%s\t%d\t%s\n", o.CreatedAt.Format(time.RFC3339), o.Size, o.Key)
			}
			return nil
		})
	},
}

var pruneOlderThan time.Duration

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, false, func(m *backup.Manager, cfg *config.Config) error {
			maxAge := pruneOlderThan
			if maxAge == 0 {
				maxAge = cfg.Backup.Retention
			}
			n, err := m.Prune(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d backups\n", n)
			return nil
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the database with a stored backup (stop the server first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, false, func(m *backup.Manager, cfg *config.Config) error {
			if err := m.Restore(cmd.Context(), args[0], cfg.DBPath); err != nil {
				return err
			}
			fmt.Printf("restored %s into %s\n", args[0], cfg.DBPath)
			return nil
		})
	},
}

// withBackups loads config and builds a backup manager. The database is
// opened only when needDB is set, so restore never holds the file open.
func withBackups(cmd *cobra.Command, needDB bool, fn func(*backup.Manager, *config.Config) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if !cfg.Backup.Configured() {
		return backup.ErrNotConfigured
	}

	var db *sql.DB
	if needDB {
		if db, err = database.Open(cfg.DBPath); err != nil {
			return err
		}
		defer db.Close()
	}
	return fn(backup.NewManager(cfg.Backup, db, logger.With("component", "backup")), cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file with COOLIVE_* settings")
	backupPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "maximum age to keep (default COOLIVE_BACKUP_RETENTION)")
	backupCmd.AddCommand(backupRunCmd, backupListCmd, backupPruneCmd, backupRestoreCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, vapidCmd, backupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		// Long-lived websocket requests end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go runCleanup(ctx, srv, cfg.SessionPurge, logger.With("component", "cleanup"))
	if cfg.Backup.Scheduled() {
		go backup.NewManager(cfg.Backup, db, logger.With("component", "backup")).Schedule(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coolive listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL,
			"avatars", cfg.Avatar.Configured(), "push", cfg.Push.Enabled(), "backups", cfg.Backup.Scheduled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runCleanup purges expired sessions and stale rate limiter entries until ctx ends.
func runCleanup(ctx context.Context, srv *server.Server, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := srv.SessionStore().DeleteExpired(ctx)
			if err != nil {
				logger.Error("purge sessions", "error", err)
			} else if n > 0 {
				logger.Info("purged expired sessions", "count", n)
			}
			if n := srv.RateLimiter().Sweep(); n > 0 {
				logger.Debug("swept rate limit windows", "count", n)
			}
		}
	}
}
