/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The snapshot command captures bookmarked pages and stores them in the database.
//
// Features:
//   - Capture a single bookmark by specifying its ID.
//   - Capture the bookmarks without a snapshot, optionally limited in number.
//   - Customize the Chrome/Chromium executable path used for rendering.
//   - Choose between headless or headful Chrome execution.
//   - Configure a timeout for each capture.
//   - Wait for a specified CSS selector before capturing, helpful for dynamic JS-rendered pages.
//
// Example usage:
//
//	linkshelf snapshot --id=123 --timeout=30s --wait-selector=".content" --chrome-path="/path/to/chrome" --headful
//	linkshelf snapshot --limit=10
package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/seckatie/linkshelf/internal/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultSnapshotTimeout = 40 * time.Second

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture snapshots of bookmarked pages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSnapshot(cmd)
	},
}

func runSnapshot(cmd *cobra.Command) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return fmt.Errorf("failed to read --id: %w", err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to read --timeout: %w", err)
	}
	waitSelector, err := cmd.Flags().GetString("wait-selector")
	if err != nil {
		return fmt.Errorf("failed to read --wait-selector: %w", err)
	}
	chromePath, err := cmd.Flags().GetString("chrome-path")
	if err != nil {
		return fmt.Errorf("failed to read --chrome-path: %w", err)
	}
	headful, err := cmd.Flags().GetBool("headful")
	if err != nil {
		return fmt.Errorf("failed to read --headful: %w", err)
	}

	if chromePath == "" {
		chromePath = cfg.ChromePath
	}
	if chromePath == "" && runtime.GOOS == "darwin" {
		// Best-effort default for macOS.
		chromePath = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	}

	ctx := cmd.Context()
	database, err := initDB(ctx, cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	snapshotter := core.NewSnapshotter(database, log, core.SnapshotOptions{
		ChromePath:   chromePath,
		Headless:     !headful,
		Timeout:      timeout,
		WaitSelector: waitSelector,

		AllowPrivateHosts: cfg.AllowPrivateHosts,
	})
	res, err := snapshotter.Run(ctx, core.SnapshotRunOptions{ID: id, Limit: limit})
	if err != nil {
		return err
	}

	log.Info("snapshot run finished", zap.Int("attempted", res.Attempted), zap.Int("succeeded", res.Succeeded))
	return nil
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().Int64("id", 0, "Capture a specific bookmark id")
	snapshotCmd.Flags().Int("limit", 0, "Limit the number of bookmarks to capture (0 = all without a snapshot)")
	snapshotCmd.Flags().Duration("timeout", defaultSnapshotTimeout, "Per-bookmark capture timeout")
	snapshotCmd.Flags().String("wait-selector", "", "Optional CSS selector to wait for (useful for JS-heavy pages)")
	snapshotCmd.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	snapshotCmd.Flags().Bool("headful", false, "Run Chrome with a visible window (not headless)")
}
