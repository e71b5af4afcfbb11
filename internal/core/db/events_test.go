package db

import (
	"context"
	"errors"
	"testing"
)

// TestEventKindString tests the String method on EventKind.
func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind     EventKind
		expected string
	}{
		{OnBookmarkCreatedEvent, "bookmark_created"},
		{OnArchiveStateChangedEvent, "archive_state_changed"},
		{OnBookmarksDeletedEvent, "bookmarks_deleted"},
		{OnSnapshotSavedEvent, "snapshot_saved"},
		{OnSnapshotClearedEvent, "snapshot_cleared"},
		{EventKind(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// TestBookmarkCreatedEvent tests that event is emitted on bookmark creation.
func TestBookmarkCreatedEvent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")

	var received BookmarkCreatedEvent
	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		received = event.(BookmarkCreatedEvent)
		return nil
	})

	b, _ := db.AddBookmark(ctx, owner.ID, "https://example.com", "Test Site", "")

	if received.Bookmark.ID != b.ID {
		t.Errorf("expected bookmark ID %d, got %d", b.ID, received.Bookmark.ID)
	}
	if received.Bookmark.OwnerID != owner.ID {
		t.Errorf("expected owner %d, got %d", owner.ID, received.Bookmark.OwnerID)
	}
}

func TestArchiveStateChangedEvent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")
	b1, _ := db.AddBookmark(ctx, owner.ID, "https://one.com", "One", "")
	b2, _ := db.AddBookmark(ctx, owner.ID, "https://two.com", "Two", "")

	var events []ArchiveStateChangedEvent
	db.RegisterEventListener(OnArchiveStateChangedEvent, func(event Event) error {
		events = append(events, event.(ArchiveStateChangedEvent))
		return nil
	})

	db.SetArchivedForOwner(ctx, []int64{b1.ID, b2.ID}, owner.ID, true)
	db.SetArchivedForOwner(ctx, []int64{99999}, owner.ID, true)

	if len(events) != 1 {
		t.Fatalf("expected one event for the update that matched rows, got %d", len(events))
	}
	if events[0].OwnerID != owner.ID || !events[0].Archived || len(events[0].BookmarkIDs) != 2 {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestBookmarksDeletedEvent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")
	b, _ := db.AddBookmark(ctx, owner.ID, "https://one.com", "One", "")

	var received BookmarksDeletedEvent
	db.RegisterEventListener(OnBookmarksDeletedEvent, func(event Event) error {
		received = event.(BookmarksDeletedEvent)
		return nil
	})

	db.DeleteBookmarksForOwner(ctx, []int64{b.ID}, owner.ID)

	if len(received.BookmarkIDs) != 1 || received.BookmarkIDs[0] != b.ID {
		t.Errorf("expected deleted event for %d, got %+v", b.ID, received)
	}
}

// TestListenerError tests that listener errors don't break the operation.
func TestListenerError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, "testuser")

	secondCalled := false
	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		return errors.New("listener failed")
	})
	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		secondCalled = true
		return nil
	})

	if _, err := db.AddBookmark(ctx, owner.ID, "https://example.com", "Test", ""); err != nil {
		t.Fatalf("expected AddBookmark to succeed despite listener error, got %v", err)
	}
	if !secondCalled {
		t.Error("expected later listeners to still run")
	}
}
