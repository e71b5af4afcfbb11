package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/seckatie/linkshelf/internal/core"
	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

// Bulk edit actions, in the order they are checked.
const (
	actionArchive   = "bulk_archive"
	actionUnarchive = "bulk_unarchive"
	actionDelete    = "bulk_delete"
)

type bulkEditForm struct {
	BookmarkIDs []string `schema:"bookmark_id"`
}

type createBookmarkForm struct {
	URL         string `schema:"url"`
	Title       string `schema:"title"`
	Description string `schema:"description"`
}

func (ws *Server) handleBookmarkList(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		bookmarks, err := ws.db.ListBookmarks(r.Context(), db.ListOptions{OwnerID: user.ID, Archived: &archived})
		if err != nil {
			ws.serverError(w, "failed to list bookmarks", err)
			return
		}
		statuses, err := ws.snapshotStatuses(r)
		if err != nil {
			ws.serverError(w, "failed to list snapshots", err)
			return
		}

		data := bookmarksPage{
			page:      page{Title: "Bookmarks", ActivePage: "bookmarks", Username: user.Username},
			Archived:  archived,
			ReturnURL: r.URL.RequestURI(),
		}
		if archived {
			data.Title = "Archived"
			data.ActivePage = "archived"
		}
		for _, b := range bookmarks {
			data.Bookmarks = append(data.Bookmarks, newBookmarkView(b, statuses[b.ID]))
		}
		ws.renderTemplate(w, http.StatusOK, "bookmarks.html", data)
	}
}

func (ws *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var form createBookmarkForm
	if err := ws.decodeForm(r, &form); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	user := currentUser(r)
	b, err := ws.db.AddBookmark(r.Context(), user.ID,
		strings.TrimSpace(form.URL), strings.TrimSpace(form.Title), strings.TrimSpace(form.Description))
	if err != nil {
		if errors.Is(err, db.ErrInvalidURL) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ws.serverError(w, "failed to add bookmark", err)
		return
	}

	ws.logger.Info("bookmark created", zap.Int64("bookmark_id", b.ID), zap.Int64("owner_id", user.ID))
	redirectBack(w, r, "/bookmarks")
}

// handleBulkEdit applies one bulk action to the selected bookmark_id values
// of the requester. Requests without an action or without ids change nothing.
// Every handled request ends in a redirect.
func (ws *Server) handleBulkEdit(w http.ResponseWriter, r *http.Request) {
	var form bulkEditForm
	if err := ws.decodeForm(r, &form); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ids := make([]any, 0, len(form.BookmarkIDs))
	for _, id := range form.BookmarkIDs {
		ids = append(ids, id)
	}

	user := currentUser(r)
	var err error
	switch bulkAction(r) {
	case actionArchive:
		err = core.ArchiveBookmarks(r.Context(), ws.db, ids, user)
	case actionUnarchive:
		err = core.UnarchiveBookmarks(r.Context(), ws.db, ids, user)
	case actionDelete:
		err = core.DeleteBookmarks(r.Context(), ws.db, ids, user)
	}
	if err != nil {
		ws.serverError(w, "bulk edit failed", err)
		return
	}

	redirectBack(w, r, "/bookmarks")
}

// bulkAction returns the first action key present in the posted form. Only
// presence counts; the submitted value is ignored.
func bulkAction(r *http.Request) string {
	for _, action := range []string{actionArchive, actionUnarchive, actionDelete} {
		if _, ok := r.PostForm[action]; ok {
			return action
		}
	}
	return ""
}

func (ws *Server) handleSetArchived(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := ws.ownedBookmark(w, r)
		if !ok {
			return
		}

		var err error
		if archived {
			err = core.ArchiveBookmark(r.Context(), ws.db, &b)
		} else {
			err = core.UnarchiveBookmark(r.Context(), ws.db, &b)
		}
		if err != nil {
			ws.serverError(w, "failed to update bookmark", err)
			return
		}

		redirectBack(w, r, "/bookmarks")
	}
}

func (ws *Server) handleBookmarklet(w http.ResponseWriter, r *http.Request) {
	ws.renderTemplate(w, http.StatusOK, "bookmarklet.html", map[string]any{
		"Title":       "Bookmarklet",
		"ActivePage":  "bookmarklet",
		"Username":    currentUser(r).Username,
		"Bookmarklet": bookmarkletURL(requestOrigin(r)),
	})
}

// handleBookmarkletAdd shows the add form prefilled from the bookmarklet's
// url and title query parameters.
func (ws *Server) handleBookmarkletAdd(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	title := r.URL.Query().Get("title")
	if url == "" {
		http.Error(w, "Missing url parameter", http.StatusBadRequest)
		return
	}
	if title == "" {
		title = url
	}

	ws.renderTemplate(w, http.StatusOK, "bookmarklet_add.html", map[string]any{
		"Title":         "Add bookmark",
		"ActivePage":    "bookmarklet",
		"Username":      currentUser(r).Username,
		"URL":           url,
		"BookmarkTitle": title,
	})
}

// bookmarkletURL returns the javascript: link that opens the add form for
// the current page on origin.
func bookmarkletURL(origin string) template.URL {
	return template.URL(fmt.Sprintf(
		"javascript:(function(){window.open('%s/bookmarklet/add?url='+encodeURIComponent(location.href)+'&title='+encodeURIComponent(document.title));})();",
		template.JSEscapeString(origin),
	))
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
