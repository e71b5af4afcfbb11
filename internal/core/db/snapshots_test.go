package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func okSnapshot(bookmarkID int64, html string) Snapshot {
	now := time.Now().UTC()
	return Snapshot{
		BookmarkID:  bookmarkID,
		FinalURL:    "https://example.com/final",
		HTML:        html,
		AttemptedAt: now,
		CapturedAt:  sql.NullTime{Time: now, Valid: true},
		Status:      "ok",
	}
}

func TestSaveAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")
	b, _ := db.AddBookmark(ctx, owner.ID, "https://example.com", "Example", "")

	t.Run("missing snapshot is not found", func(t *testing.T) {
		if _, err := db.GetSnapshot(ctx, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("saves a successful capture", func(t *testing.T) {
		if err := db.SaveSnapshot(ctx, okSnapshot(b.ID, "<html>v1</html>")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		s, err := db.GetSnapshot(ctx, b.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if s.HTML != "<html>v1</html>" || s.Status != "ok" || !s.CapturedAt.Valid {
			t.Errorf("unexpected snapshot: %+v", s)
		}
	})

	t.Run("replaces an earlier result", func(t *testing.T) {
		failed := Snapshot{BookmarkID: b.ID, AttemptedAt: time.Now().UTC(), Status: "error", Error: "timeout"}
		if err := db.SaveSnapshot(ctx, failed); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		s, _ := db.GetSnapshot(ctx, b.ID)
		if s.Status != "error" || s.Error != "timeout" || s.CapturedAt.Valid || s.HTML != "" {
			t.Errorf("expected failed result to replace capture, got %+v", s)
		}
	})
}

func TestListBookmarksWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")
	captured, _ := db.AddBookmark(ctx, owner.ID, "https://captured.com", "Captured", "")
	failed, _ := db.AddBookmark(ctx, owner.ID, "https://failed.com", "Failed", "")
	db.AddBookmark(ctx, owner.ID, "https://pending.com", "Pending", "")

	db.SaveSnapshot(ctx, okSnapshot(captured.ID, "<html></html>"))
	db.SaveSnapshot(ctx, Snapshot{BookmarkID: failed.ID, AttemptedAt: time.Now().UTC(), Status: "error", Error: "boom"})

	bookmarks, err := db.ListBookmarksWithoutSnapshot(ctx, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(bookmarks) != 2 {
		t.Fatalf("expected pending and failed bookmarks, got %d", len(bookmarks))
	}
	for _, b := range bookmarks {
		if b.ID == captured.ID {
			t.Error("expected captured bookmark to be excluded")
		}
	}

	limited, _ := db.ListBookmarksWithoutSnapshot(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("expected 1 bookmark with limit, got %d", len(limited))
	}

	errored, err := db.ListSnapshotsByStatus(ctx, "error", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(errored) != 1 || errored[0].BookmarkID != failed.ID {
		t.Errorf("expected only the failed snapshot, got %+v", errored)
	}
}

func TestClearSnapshot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")
	b, _ := db.AddBookmark(ctx, owner.ID, "https://example.com", "Example", "")
	db.SaveSnapshot(ctx, okSnapshot(b.ID, "<html></html>"))

	var cleared int64
	db.RegisterEventListener(OnSnapshotClearedEvent, func(event Event) error {
		cleared = event.(SnapshotClearedEvent).BookmarkID
		return nil
	})

	if err := db.ClearSnapshot(ctx, b.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := db.GetSnapshot(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected snapshot to be gone, got %v", err)
	}
	if cleared != b.ID {
		t.Errorf("expected cleared event for %d, got %d", b.ID, cleared)
	}

	if err := db.ClearSnapshot(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing bookmark, got %v", err)
	}
}

func TestSnapshotsDeletedWithBookmark(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")
	b, _ := db.AddBookmark(ctx, owner.ID, "https://example.com", "Example", "")
	db.SaveSnapshot(ctx, okSnapshot(b.ID, "<html></html>"))

	if _, err := db.DeleteBookmarksForOwner(ctx, []int64{b.ID}, owner.ID); err != nil {
		t.Fatalf("failed to delete bookmark: %v", err)
	}
	if _, err := db.GetSnapshot(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected snapshot to cascade, got %v", err)
	}
}
