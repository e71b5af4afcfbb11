package core

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/seckatie/linkshelf/internal/core/db"
)

// BookmarkStore is the persistence needed by the archive operations.
// *db.DB implements it.
type BookmarkStore interface {
	SetArchived(ctx context.Context, id int64, archived bool) error
	SetArchivedForOwner(ctx context.Context, ids []int64, ownerID int64, archived bool) ([]int64, error)
	DeleteBookmarksForOwner(ctx context.Context, ids []int64, ownerID int64) ([]int64, error)
}

// ArchiveBookmark marks a single bookmark as archived and persists it.
// The caller is responsible for having checked access to b.
func ArchiveBookmark(ctx context.Context, store BookmarkStore, b *db.Bookmark) error {
	return setArchived(ctx, store, b, true)
}

// UnarchiveBookmark clears the archived flag of a single bookmark and persists it.
func UnarchiveBookmark(ctx context.Context, store BookmarkStore, b *db.Bookmark) error {
	return setArchived(ctx, store, b, false)
}

func setArchived(ctx context.Context, store BookmarkStore, b *db.Bookmark, archived bool) error {
	if err := store.SetArchived(ctx, b.ID, archived); err != nil {
		return fmt.Errorf("failed to set archived=%t on bookmark %d: %w", archived, b.ID, err)
	}
	b.IsArchived = archived
	return nil
}

// ArchiveBookmarks archives every bookmark in ids that belongs to owner.
//
// Ids may be any integer type or the decimal string of one, mixed freely; see
// NormalizeIDs. Ids that do not exist or belong to another user are ignored.
// Calling it again with the same arguments leaves the same state.
func ArchiveBookmarks(ctx context.Context, store BookmarkStore, ids []any, owner db.User) error {
	return setArchivedForOwner(ctx, store, ids, owner, true)
}

// UnarchiveBookmarks is the inverse of ArchiveBookmarks under the same filter.
func UnarchiveBookmarks(ctx context.Context, store BookmarkStore, ids []any, owner db.User) error {
	return setArchivedForOwner(ctx, store, ids, owner, false)
}

func setArchivedForOwner(ctx context.Context, store BookmarkStore, ids []any, owner db.User, archived bool) error {
	normalized := NormalizeIDs(ids)
	if len(normalized) == 0 {
		return nil
	}
	if _, err := store.SetArchivedForOwner(ctx, normalized, owner.ID, archived); err != nil {
		return fmt.Errorf("failed to set archived=%t for user %d: %w", archived, owner.ID, err)
	}
	return nil
}

// DeleteBookmarks deletes every bookmark in ids that belongs to owner.
func DeleteBookmarks(ctx context.Context, store BookmarkStore, ids []any, owner db.User) error {
	normalized := NormalizeIDs(ids)
	if len(normalized) == 0 {
		return nil
	}
	if _, err := store.DeleteBookmarksForOwner(ctx, normalized, owner.ID); err != nil {
		return fmt.Errorf("failed to delete bookmarks for user %d: %w", owner.ID, err)
	}
	return nil
}

// NormalizeIDs converts caller supplied ids to int64 bookmark ids.
//
// Accepted forms are values of any integer kind (named types included),
// strings holding a base 10 integer (surrounding whitespace allowed) and
// fmt.Stringer values whose String does.
// Anything else cannot name a bookmark and is dropped, as are unsigned values
// above math.MaxInt64. Duplicates are removed keeping the first occurrence.
func NormalizeIDs(ids []any) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, raw := range ids {
		id, ok := normalizeID(raw)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalizeID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint64:
		return fromUnsigned(v)
	case uint:
		return fromUnsigned(uint64(v))
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	case fmt.Stringer:
		return normalizeID(v.String())
	case nil:
		return 0, false
	}

	// Named types such as "type ID int64" miss the cases above.
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUnsigned(rv.Uint())
	case reflect.String:
		return normalizeID(rv.String())
	}
	return 0, false
}

func fromUnsigned(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}
