package web

import (
	"html/template"
	"time"

	"github.com/seckatie/linkshelf/internal/core/db"
)

const timeLayout = "2006-01-02 15:04"

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format(timeLayout)
	},
}

type bookmarkView struct {
	ID             int64
	URL            string
	Title          string
	Description    string
	DateAdded      time.Time
	IsArchived     bool
	SnapshotStatus string // "", "ok", "error"
}

func newBookmarkView(b db.Bookmark, snap db.Snapshot) bookmarkView {
	title := b.Title
	if title == "" {
		title = b.URL
	}
	return bookmarkView{
		ID:             b.ID,
		URL:            b.URL,
		Title:          title,
		Description:    b.Description,
		DateAdded:      b.DateAdded,
		IsArchived:     b.IsArchived,
		SnapshotStatus: snap.Status,
	}
}

// page holds what the shared header needs. Username is the logged-in user and
// is empty on the login page.
type page struct {
	Title      string
	ActivePage string
	Username   string
}

type bookmarksPage struct {
	page
	Archived  bool
	ReturnURL string
	Bookmarks []bookmarkView
}

type snapshotView struct {
	ID          int64
	URL         string
	Title       string
	Status      string // "", "ok", "error"
	AttemptedAt time.Time
	CapturedAt  time.Time
	Error       string
	// Pending is true while no attempt has been recorded, i.e. the bookmark
	// is queued or being captured.
	Pending bool
}

func newSnapshotView(b db.Bookmark, snap db.Snapshot, found bool) snapshotView {
	v := newBookmarkView(b, snap)
	view := snapshotView{
		ID:      b.ID,
		URL:     b.URL,
		Title:   v.Title,
		Pending: !found,
	}
	if found {
		view.Status = snap.Status
		view.AttemptedAt = snap.AttemptedAt
		view.Error = snap.Error
		if snap.CapturedAt.Valid {
			view.CapturedAt = snap.CapturedAt.Time
		}
	}
	return view
}

type snapshotsPage struct {
	page
	Snapshots []snapshotView
}

type loginPage struct {
	page
	LoginName string
	Next      string
	Error     string
}
