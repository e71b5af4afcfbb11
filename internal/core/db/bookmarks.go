package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrInvalidURL is returned when a bookmark URL fails validation.
var ErrInvalidURL = errors.New("invalid URL")

// ValidateBookmarkURL validates that a URL is acceptable for bookmarking.
// It requires the URL to have http or https scheme and a non-empty host.
func ValidateBookmarkURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return nil
}

const bookmarkColumns = `id, url, title, description, date_added, date_modified, is_archived, owner_id`

// maxIDsPerStatement keeps IN lists below SQLite's bind variable limit, which
// is 999 on builds older than 3.32.
const maxIDsPerStatement = 900

// ------------------------------
// Bookmark methods
// ------------------------------

// AddBookmark inserts a new, unarchived bookmark owned by ownerID.
//
// It validates the URL before inserting and returns ErrInvalidURL if validation fails.
// Emits a BookmarkCreatedEvent after successful insert.
func (db *DB) AddBookmark(ctx context.Context, ownerID int64, urlStr, title, description string) (Bookmark, error) {
	if err := ValidateBookmarkURL(urlStr); err != nil {
		return Bookmark{}, err
	}

	now := time.Now().UTC()
	b := Bookmark{
		URL:          urlStr,
		Title:        title,
		Description:  description,
		DateAdded:    now,
		DateModified: now,
		OwnerID:      ownerID,
	}
	res, err := db.db.NamedExecContext(ctx, `
		INSERT INTO bookmarks (url, title, description, date_added, date_modified, is_archived, owner_id)
		VALUES (:url, :title, :description, :date_added, :date_modified, :is_archived, :owner_id)
	`, b)
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to add bookmark: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return Bookmark{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	db.emit(BookmarkCreatedEvent{Bookmark: b})
	return b, nil
}

func (db *DB) GetBookmark(ctx context.Context, id int64) (Bookmark, error) {
	var b Bookmark
	err := db.db.GetContext(ctx, &b, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, fmt.Errorf("bookmark %d %w", id, ErrNotFound)
		}
		return Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return b, nil
}

// GetOwnedBookmark returns the bookmark only when it belongs to ownerID.
// A bookmark of another user is reported as ErrNotFound.
func (db *DB) GetOwnedBookmark(ctx context.Context, id, ownerID int64) (Bookmark, error) {
	var b Bookmark
	err := db.db.GetContext(ctx, &b,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, fmt.Errorf("bookmark %d %w", id, ErrNotFound)
		}
		return Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return b, nil
}

// ListOptions filters ListBookmarks.
type ListOptions struct {
	// OwnerID restricts the result to one user's bookmarks. Zero lists all.
	OwnerID int64
	// Archived, when set, restricts the result to that archived state.
	Archived *bool
	// Limit bounds the number of rows. If <= 0, all rows are returned.
	Limit int
}

// ListBookmarks returns bookmarks newest first.
func (db *DB) ListBookmarks(ctx context.Context, opts ListOptions) ([]Bookmark, error) {
	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE 1 = 1`
	var args []any
	if opts.OwnerID > 0 {
		query += ` AND owner_id = ?`
		args = append(args, opts.OwnerID)
	}
	if opts.Archived != nil {
		query += ` AND is_archived = ?`
		args = append(args, *opts.Archived)
	}
	query += ` ORDER BY date_added DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var out []Bookmark
	if err := db.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return out, nil
}

// CountBookmarks returns the number of stored bookmarks across all users.
func (db *DB) CountBookmarks(ctx context.Context) (int, error) {
	var n int
	if err := db.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookmarks`); err != nil {
		return 0, fmt.Errorf("failed to count bookmarks: %w", err)
	}
	return n, nil
}

// SetArchived sets the archived flag of a single bookmark. Other columns are
// left untouched.
// Emits an ArchiveStateChangedEvent after successful update.
func (db *DB) SetArchived(ctx context.Context, id int64, archived bool) error {
	res, err := db.db.ExecContext(ctx, `UPDATE bookmarks SET is_archived = ? WHERE id = ?`, archived, id)
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bookmark %d %w", id, ErrNotFound)
	}

	db.emit(ArchiveStateChangedEvent{BookmarkIDs: []int64{id}, Archived: archived})
	return nil
}

// SetArchivedForOwner sets the archived flag on every bookmark whose id is in
// ids and whose owner is ownerID, in a single transaction. Ids that match no such
// row are ignored. It returns the ids of the updated rows.
// Emits an ArchiveStateChangedEvent when at least one row changed.
func (db *DB) SetArchivedForOwner(ctx context.Context, ids []int64, ownerID int64, archived bool) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	updated, err := db.selectInChunks(ctx,
		`UPDATE bookmarks SET is_archived = ? WHERE owner_id = ? AND id IN (?) RETURNING id`,
		ids, archived, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update bookmarks: %w", err)
	}

	db.logger.Debug("bookmarks archive state updated",
		zap.Int64("owner_id", ownerID),
		zap.Bool("archived", archived),
		zap.Int("requested", len(ids)),
		zap.Int("affected", len(updated)),
	)
	if len(updated) > 0 {
		db.emit(ArchiveStateChangedEvent{OwnerID: ownerID, BookmarkIDs: updated, Archived: archived})
	}
	return updated, nil
}

// DeleteBookmarksForOwner removes the bookmarks in ids owned by ownerID and
// returns the ids that were deleted.
// Emits a BookmarksDeletedEvent when at least one row was removed.
func (db *DB) DeleteBookmarksForOwner(ctx context.Context, ids []int64, ownerID int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	deleted, err := db.selectInChunks(ctx, `DELETE FROM bookmarks WHERE owner_id = ? AND id IN (?) RETURNING id`, ids, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete bookmarks: %w", err)
	}

	db.logger.Debug("bookmarks deleted",
		zap.Int64("owner_id", ownerID),
		zap.Int("requested", len(ids)),
		zap.Int("affected", len(deleted)),
	)
	if len(deleted) > 0 {
		db.emit(BookmarksDeletedEvent{OwnerID: ownerID, BookmarkIDs: deleted})
	}
	return deleted, nil
}

// selectInChunks runs query, whose last bind is "IN (?)", once per slice of at
// most maxIDsPerStatement ids inside one transaction and collects the returned
// ids. args bind the placeholders before the IN list.
func (db *DB) selectInChunks(ctx context.Context, query string, ids []int64, args ...any) ([]int64, error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var out []int64
	for start := 0; start < len(ids); start += maxIDsPerStatement {
		end := min(start+maxIDsPerStatement, len(ids))
		q, qargs, err := sqlx.In(query, append(append([]any{}, args...), ids[start:end])...)
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}
		var chunk []int64
		if err := tx.SelectContext(ctx, &chunk, tx.Rebind(q), qargs...); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, nil
}
