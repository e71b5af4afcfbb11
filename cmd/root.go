/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/seckatie/linkshelf/internal/auth"
	"github.com/seckatie/linkshelf/internal/config"
	"github.com/seckatie/linkshelf/internal/core"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/web"
	"github.com/seckatie/linkshelf/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// v holds flag, environment and config file settings for every command.
var v = config.NewViper()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkshelf",
	Short: "Self-hosted bookmark manager with page snapshots",
	Long: `linkshelf stores bookmarks per user, lets them be archived and
unarchived one at a time or in bulk, and keeps a self-contained snapshot
of every bookmarked page.

Running linkshelf without a subcommand starts the web server together with
the snapshot workers. Settings come from flags, LINKSHELF_* environment
variables or the file given with --config.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("db", "d", "linkshelf.db", "Path to the SQLite database file")
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("allow-private-hosts", false, "Allow snapshots of loopback, private and link-local addresses")

	rootCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.Flags().String("host", "localhost", "Host to listen on")
	rootCmd.Flags().String("secret-key", "", "Key used to sign session cookies (random per process when empty)")
	rootCmd.Flags().IntP("snapshot-workers", "w", 1, "Number of snapshot workers to run (0 disables capturing)")
	rootCmd.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable")

	for key, flag := range map[string]string{
		config.KeyDB:         "db",
		config.KeyConfigFile: "config",
		config.KeyLogLevel:   "log-level",

		config.KeyAllowPrivateHosts: "allow-private-hosts",
	} {
		_ = v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
	for key, flag := range map[string]string{
		config.KeyPort:            "port",
		config.KeyHost:            "host",
		config.KeySecretKey:       "secret-key",
		config.KeySnapshotWorkers: "snapshot-workers",
		config.KeyChromePath:      "chrome-path",
	} {
		_ = v.BindPFlag(key, rootCmd.Flags().Lookup(flag))
	}
}

// setup loads the configuration and builds the process logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func initDB(ctx context.Context, path string, log *zap.Logger) (*db.DB, error) {
	database, err := db.NewSQLiteDB(path, log.Named("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Debug("database migrated", zap.String("path", path))
	return database, nil
}

func runServe(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.EphemeralSecret {
		log.Warn("no secret key configured, sessions will not survive a restart")
	}

	database, err := initDB(ctx, cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	if cfg.SnapshotWorkers > 0 {
		snapshotter := core.NewSnapshotter(database, log.Named("snapshot"), core.SnapshotOptions{
			ChromePath:        cfg.ChromePath,
			Headless:          true,
			AllowPrivateHosts: cfg.AllowPrivateHosts,
		})
		pool := core.NewSnapshotPool(snapshotter, log.Named("snapshot"), cfg.SnapshotWorkers*10)
		registerSnapshotListeners(database, pool, log)
		pool.Start(ctx, cfg.SnapshotWorkers)
		defer pool.Close()

		go func() {
			if _, err := pool.EnqueuePending(ctx, database); err != nil {
				log.Warn("failed to queue pending snapshots", zap.Error(err))
			}
		}()
	} else {
		log.Info("snapshot workers disabled")
	}

	return web.StartServer(ctx, cfg.Addr(), database, auth.New(cfg.SecretKey), log.Named("web"))
}

// snapshotQueue accepts bookmarks for capture without blocking.
type snapshotQueue interface {
	Enqueue(b db.Bookmark) bool
}

// registerSnapshotListeners queues new bookmarks and bookmarks whose snapshot
// was cleared for recapture.
func registerSnapshotListeners(database *db.DB, queue snapshotQueue, log *zap.Logger) {
	database.RegisterEventListener(db.OnBookmarkCreatedEvent, func(event db.Event) error {
		ev := event.(db.BookmarkCreatedEvent)
		if queue.Enqueue(ev.Bookmark) {
			log.Debug("bookmark queued for snapshot", zap.Int64("bookmark_id", ev.Bookmark.ID))
		}
		return nil
	})

	database.RegisterEventListener(db.OnSnapshotClearedEvent, func(event db.Event) error {
		ev := event.(db.SnapshotClearedEvent)
		bookmark, err := database.GetBookmark(context.Background(), ev.BookmarkID)
		if err != nil {
			return fmt.Errorf("failed to load bookmark %d for recapture: %w", ev.BookmarkID, err)
		}
		if queue.Enqueue(bookmark) {
			log.Debug("bookmark queued for recapture", zap.Int64("bookmark_id", bookmark.ID))
		}
		return nil
	})
}
