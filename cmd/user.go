/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user and print its API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := cmd.Flags().GetString("password")
		if err != nil {
			return fmt.Errorf("failed to read --password: %w", err)
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

		return runCreateUser(cmd.Context(), database, args[0], password, cmd.OutOrStdout())
	},
}

func runCreateUser(ctx context.Context, database *db.DB, username, password string, out io.Writer) error {
	user, err := database.CreateUser(ctx, username, password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "created user %s (id %d)\nAPI token: %s\n", user.Username, user.ID, user.APIToken)
	return err
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().String("password", "", "Password of the new user")
	_ = userCreateCmd.MarkFlagRequired("password")
}
