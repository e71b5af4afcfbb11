package db

import "go.uber.org/zap"

// ------------------------------
// Event System
// ------------------------------
//
// The DB emits typed events when bookmarks are created, archived, unarchived or
// deleted, and when snapshot results are saved or cleared. Register listeners
// to react to these changes.
//
// Example usage:
//
//	db.RegisterEventListener(db.OnBookmarkCreatedEvent, func(event db.Event) error {
//	    ev := event.(db.BookmarkCreatedEvent)
//	    logger.Info("bookmark created", zap.Int64("id", ev.Bookmark.ID))
//	    return nil
//	})
//
// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	// OnBookmarkCreatedEvent is emitted when a bookmark is created.
	OnBookmarkCreatedEvent EventKind = iota
	// OnArchiveStateChangedEvent is emitted when bookmarks are archived or unarchived.
	OnArchiveStateChangedEvent
	// OnBookmarksDeletedEvent is emitted when bookmarks are deleted.
	OnBookmarksDeletedEvent
	// OnSnapshotSavedEvent is emitted when a snapshot result is saved.
	OnSnapshotSavedEvent
	// OnSnapshotClearedEvent is emitted when a snapshot is cleared for recapture.
	OnSnapshotClearedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnBookmarkCreatedEvent:
		return "bookmark_created"
	case OnArchiveStateChangedEvent:
		return "archive_state_changed"
	case OnBookmarksDeletedEvent:
		return "bookmarks_deleted"
	case OnSnapshotSavedEvent:
		return "snapshot_saved"
	case OnSnapshotClearedEvent:
		return "snapshot_cleared"
	default:
		return "unknown"
	}
}

// BookmarkCreatedEvent is emitted after a new bookmark is successfully inserted.
type BookmarkCreatedEvent struct {
	Bookmark Bookmark
}

func (e BookmarkCreatedEvent) Kind() EventKind { return OnBookmarkCreatedEvent }

// ArchiveStateChangedEvent carries the ids whose archived flag was written.
// OwnerID is zero for single-record updates, which are not owner scoped.
type ArchiveStateChangedEvent struct {
	OwnerID     int64
	BookmarkIDs []int64
	Archived    bool
}

func (e ArchiveStateChangedEvent) Kind() EventKind { return OnArchiveStateChangedEvent }

// BookmarksDeletedEvent is emitted after an owner-scoped delete removed rows.
type BookmarksDeletedEvent struct {
	OwnerID     int64
	BookmarkIDs []int64
}

func (e BookmarksDeletedEvent) Kind() EventKind { return OnBookmarksDeletedEvent }

// SnapshotSavedEvent is emitted after a snapshot result is saved.
type SnapshotSavedEvent struct {
	BookmarkID int64
	Status     string // "ok" or "error"
}

func (e SnapshotSavedEvent) Kind() EventKind { return OnSnapshotSavedEvent }

// SnapshotClearedEvent is emitted after a snapshot is cleared for recapture.
type SnapshotClearedEvent struct {
	BookmarkID int64
}

func (e SnapshotClearedEvent) Kind() EventKind { return OnSnapshotClearedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called synchronously in registration order after the DB operation succeeds.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	for _, listener := range db.eventListeners[event.Kind()] {
		if err := listener(event); err != nil {
			db.logger.Warn("event listener failed",
				zap.Stringer("event", event.Kind()),
				zap.Error(err),
			)
		}
	}
}
