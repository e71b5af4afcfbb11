package db

import (
	"database/sql"
	"time"
)

type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	APIToken     string    `db:"api_token"`
	CreatedAt    time.Time `db:"created_at"`
}

type Bookmark struct {
	ID           int64     `db:"id"`
	URL          string    `db:"url"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	DateAdded    time.Time `db:"date_added"`
	DateModified time.Time `db:"date_modified"`
	IsArchived   bool      `db:"is_archived"`
	OwnerID      int64     `db:"owner_id"`
}

type Snapshot struct {
	BookmarkID  int64     `db:"bookmark_id"`
	FinalURL    string    `db:"final_url"`
	HTML        string    `db:"html"`
	AttemptedAt time.Time `db:"attempted_at"`
	// CapturedAt is NULL until a capture succeeds.
	CapturedAt sql.NullTime `db:"captured_at"`
	Status     string       `db:"status"`
	Error      string       `db:"error"`
}
