/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/seckatie/linkshelf/internal/core"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/spf13/cobra"
)

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Manage bookmarks from the command line",
}

var bookmarksArchiveCmd = &cobra.Command{
	Use:   "archive <id>...",
	Short: "Archive bookmarks of a user",
	Long: `Archive the given bookmarks of the user named by --user.

Ids that do not exist or belong to another user are ignored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setArchivedFromCLI(cmd, args, true)
	},
}

var bookmarksUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <id>...",
	Short: "Unarchive bookmarks of a user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setArchivedFromCLI(cmd, args, false)
	},
}

func setArchivedFromCLI(cmd *cobra.Command, args []string, archived bool) error {
	username, err := cmd.Flags().GetString("user")
	if err != nil {
		return fmt.Errorf("failed to read --user: %w", err)
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	database, err := initDB(cmd.Context(), cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer database.Close()

	return runSetArchived(cmd.Context(), database, username, args, archived)
}

// runSetArchived applies the archive operation for the named user to ids.
func runSetArchived(ctx context.Context, database *db.DB, username string, ids []string, archived bool) error {
	owner, err := database.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user %q: %w", username, err)
	}

	raw := make([]any, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id)
	}
	if archived {
		return core.ArchiveBookmarks(ctx, database, raw, owner)
	}
	return core.UnarchiveBookmarks(ctx, database, raw, owner)
}

func init() {
	rootCmd.AddCommand(bookmarksCmd)
	bookmarksCmd.AddCommand(bookmarksArchiveCmd, bookmarksUnarchiveCmd)

	bookmarksCmd.PersistentFlags().String("user", "", "Username owning the bookmarks")
	_ = bookmarksCmd.MarkPersistentFlagRequired("user")
}
