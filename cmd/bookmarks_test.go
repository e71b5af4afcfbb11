/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/spf13/cobra"
)

func TestRunSetArchived(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	alice, err := database.CreateUser(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	bob, err := database.CreateUser(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	var own []db.Bookmark
	for i := 0; i < 3; i++ {
		b, err := database.AddBookmark(ctx, alice.ID, "https://example.com/"+strconv.Itoa(i), "", "")
		if err != nil {
			t.Fatalf("failed to add bookmark: %v", err)
		}
		own = append(own, b)
	}
	foreign, err := database.AddBookmark(ctx, bob.ID, "https://example.com/bob", "", "")
	if err != nil {
		t.Fatalf("failed to add bookmark: %v", err)
	}

	archived := func(id int64) bool {
		t.Helper()
		b, err := database.GetBookmark(ctx, id)
		if err != nil {
			t.Fatalf("failed to get bookmark: %v", err)
		}
		return b.IsArchived
	}
	arg := func(b db.Bookmark) string { return strconv.FormatInt(b.ID, 10) }

	t.Run("archive", func(t *testing.T) {
		if err := runSetArchived(ctx, database, "alice", []string{arg(own[0]), arg(own[2]), arg(foreign), "999", "nope"}, true); err != nil {
			t.Fatalf("runSetArchived failed: %v", err)
		}
		if !archived(own[0].ID) || archived(own[1].ID) || !archived(own[2].ID) {
			t.Error("expected exactly the first and last bookmark to be archived")
		}
		if archived(foreign.ID) {
			t.Error("expected bob's bookmark to be untouched")
		}
	})

	t.Run("unarchive", func(t *testing.T) {
		if err := runSetArchived(ctx, database, "alice", []string{arg(own[0])}, false); err != nil {
			t.Fatalf("runSetArchived failed: %v", err)
		}
		if archived(own[0].ID) || !archived(own[2].ID) {
			t.Error("expected only the first bookmark to be unarchived")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		err := runSetArchived(ctx, database, "carol", []string{arg(own[1])}, true)
		if !errors.Is(err, db.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if archived(own[1].ID) {
			t.Error("expected bookmark to be untouched")
		}
	})
}

func TestRunCreateUser(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	var out bytes.Buffer
	if err := runCreateUser(ctx, database, "alice", "password123", &out); err != nil {
		t.Fatalf("runCreateUser failed: %v", err)
	}

	user, err := database.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("expected user to exist: %v", err)
	}
	if !strings.Contains(out.String(), user.APIToken) {
		t.Errorf("expected output to contain the API token, got %q", out.String())
	}

	if err := runCreateUser(ctx, database, "alice", "other", &out); !errors.Is(err, db.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestBookmarksCmd_RequiresUser(t *testing.T) {
	flag := bookmarksCmd.PersistentFlags().Lookup("user")
	if flag == nil {
		t.Fatal("expected --user flag")
	}
	if _, ok := flag.Annotations[cobra.BashCompOneRequiredFlag]; !ok {
		t.Error("expected --user to be required")
	}
}

func TestSnapshotCmd_Flags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue interface{}
		flagType     string
	}{
		{"id flag has correct default", "id", int64(0), "int64"},
		{"limit flag has correct default", "limit", 0, "int"},
		{"timeout flag has correct default", "timeout", 40 * time.Second, "duration"},
		{"wait-selector flag has correct default", "wait-selector", "", "string"},
		{"chrome-path flag has correct default", "chrome-path", "", "string"},
		{"headful flag has correct default", "headful", false, "bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flag interface{}
			var err error

			switch tt.flagType {
			case "string":
				flag, err = snapshotCmd.Flags().GetString(tt.flagName)
			case "int":
				flag, err = snapshotCmd.Flags().GetInt(tt.flagName)
			case "int64":
				flag, err = snapshotCmd.Flags().GetInt64(tt.flagName)
			case "bool":
				flag, err = snapshotCmd.Flags().GetBool(tt.flagName)
			case "duration":
				flag, err = snapshotCmd.Flags().GetDuration(tt.flagName)
			}

			if err != nil {
				t.Fatalf("Failed to get flag %s: %v", tt.flagName, err)
			}
			if flag != tt.defaultValue {
				t.Errorf("Flag %s: got %v, want %v", tt.flagName, flag, tt.defaultValue)
			}
		})
	}
}
