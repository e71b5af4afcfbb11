package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ListBookmarksWithoutSnapshot returns bookmarks that have no successful
// snapshot yet, newest first. Bookmarks whose last attempt failed are included
// so they get retried.
func (db *DB) ListBookmarksWithoutSnapshot(ctx context.Context, limit int) ([]Bookmark, error) {
	query := `
		SELECT b.id, b.url, b.title, b.description, b.date_added, b.date_modified, b.is_archived, b.owner_id
		FROM bookmarks b
		LEFT JOIN snapshots s ON s.bookmark_id = b.id
		WHERE s.captured_at IS NULL
		ORDER BY b.date_added DESC, b.id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var out []Bookmark
	if err := db.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookmarks without snapshot: %w", err)
	}
	return out, nil
}

// ListSnapshotsByStatus returns snapshots with the given status, most recent
// attempt first. HTML is not loaded.
func (db *DB) ListSnapshotsByStatus(ctx context.Context, status string, limit int) ([]Snapshot, error) {
	query := `
		SELECT bookmark_id, final_url, '' AS html, attempted_at, captured_at, status, error
		FROM snapshots
		WHERE status = ?
		ORDER BY attempted_at DESC
	`
	args := []any{status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var out []Snapshot
	if err := db.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list snapshots by status: %w", err)
	}
	return out, nil
}

func (db *DB) GetSnapshot(ctx context.Context, bookmarkID int64) (Snapshot, error) {
	var s Snapshot
	err := db.db.GetContext(ctx, &s, `
		SELECT bookmark_id, final_url, html, attempted_at, captured_at, status, error
		FROM snapshots
		WHERE bookmark_id = ?
	`, bookmarkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, fmt.Errorf("snapshot for bookmark %d %w", bookmarkID, ErrNotFound)
		}
		return Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return s, nil
}

// SaveSnapshot stores the outcome of a capture attempt, replacing any earlier
// result for the same bookmark.
// Emits a SnapshotSavedEvent after successful save.
func (db *DB) SaveSnapshot(ctx context.Context, s Snapshot) error {
	_, err := db.db.NamedExecContext(ctx, `
		INSERT INTO snapshots (bookmark_id, final_url, html, attempted_at, captured_at, status, error)
		VALUES (:bookmark_id, :final_url, :html, :attempted_at, :captured_at, :status, :error)
		ON CONFLICT (bookmark_id) DO UPDATE SET
			final_url = excluded.final_url,
			html = excluded.html,
			attempted_at = excluded.attempted_at,
			captured_at = excluded.captured_at,
			status = excluded.status,
			error = excluded.error
	`, s)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	db.emit(SnapshotSavedEvent{BookmarkID: s.BookmarkID, Status: s.Status})
	return nil
}

// ClearSnapshot drops the stored snapshot of a bookmark so it is captured again.
// Emits a SnapshotClearedEvent, which the snapshot workers listen for.
func (db *DB) ClearSnapshot(ctx context.Context, bookmarkID int64) error {
	if _, err := db.GetBookmark(ctx, bookmarkID); err != nil {
		return err
	}
	if _, err := db.db.ExecContext(ctx, `DELETE FROM snapshots WHERE bookmark_id = ?`, bookmarkID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	db.logger.Debug("snapshot cleared", zap.Int64("bookmark_id", bookmarkID))
	db.emit(SnapshotClearedEvent{BookmarkID: bookmarkID})
	return nil
}
