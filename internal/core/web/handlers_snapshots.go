package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/seckatie/linkshelf/internal/core"
	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

// snapshotStatuses returns the latest snapshot attempt per bookmark id,
// without HTML.
func (ws *Server) snapshotStatuses(r *http.Request) (map[int64]db.Snapshot, error) {
	out := make(map[int64]db.Snapshot)
	for _, status := range []string{core.SnapshotStatusOK, core.SnapshotStatusError} {
		snapshots, err := ws.db.ListSnapshotsByStatus(r.Context(), status, 0)
		if err != nil {
			return nil, err
		}
		for _, s := range snapshots {
			out[s.BookmarkID] = s
		}
	}
	return out, nil
}

// handleViewSnapshot renders the snapshot viewer page with an iframe.
func (ws *Server) handleViewSnapshot(w http.ResponseWriter, r *http.Request) {
	b, ok := ws.ownedBookmark(w, r)
	if !ok {
		return
	}
	if _, ok := ws.storedSnapshot(w, r, b.ID); !ok {
		return
	}

	ws.renderTemplate(w, http.StatusOK, "viewer.html", map[string]any{
		"ActivePage": "snapshots",
		"Username":   currentUser(r).Username,
		"ID":         b.ID,
		"URL":        b.URL,
		"Title":      b.Title,
		"RawURL":     fmt.Sprintf("/bookmarks/%d/snapshot/raw", b.ID),
	})
}

// handleRawSnapshot serves the stored HTML. Scripts in it are page content,
// so the response is sandboxed.
func (ws *Server) handleRawSnapshot(w http.ResponseWriter, r *http.Request) {
	b, ok := ws.ownedBookmark(w, r)
	if !ok {
		return
	}
	snap, ok := ws.storedSnapshot(w, r, b.ID)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "sandbox")
	if _, err := w.Write([]byte(snap.HTML)); err != nil {
		ws.logger.Warn("failed to write snapshot HTML", zap.Int64("bookmark_id", b.ID), zap.Error(err))
	}
}

func (ws *Server) storedSnapshot(w http.ResponseWriter, r *http.Request, bookmarkID int64) (db.Snapshot, bool) {
	snap, err := ws.db.GetSnapshot(r.Context(), bookmarkID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Snapshot not available", http.StatusNotFound)
			return db.Snapshot{}, false
		}
		ws.serverError(w, "failed to load snapshot", err)
		return db.Snapshot{}, false
	}
	if snap.Status != core.SnapshotStatusOK || snap.HTML == "" {
		http.Error(w, "Snapshot not available", http.StatusNotFound)
		return db.Snapshot{}, false
	}
	return snap, true
}

// handleRefetchSnapshot clears the stored snapshot so the workers capture the
// page again.
func (ws *Server) handleRefetchSnapshot(w http.ResponseWriter, r *http.Request) {
	b, ok := ws.ownedBookmark(w, r)
	if !ok {
		return
	}
	if err := ws.db.ClearSnapshot(r.Context(), b.ID); err != nil {
		ws.serverError(w, "failed to clear snapshot", err)
		return
	}

	ws.logger.Info("snapshot cleared for recapture", zap.Int64("bookmark_id", b.ID))
	redirectBack(w, r, "/snapshots")
}

// handleSnapshotManager lists the requester's bookmarks with their snapshot state.
func (ws *Server) handleSnapshotManager(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	bookmarks, err := ws.db.ListBookmarks(r.Context(), db.ListOptions{OwnerID: user.ID})
	if err != nil {
		ws.serverError(w, "failed to list bookmarks", err)
		return
	}
	statuses, err := ws.snapshotStatuses(r)
	if err != nil {
		ws.serverError(w, "failed to list snapshots", err)
		return
	}

	data := snapshotsPage{page: page{Title: "Snapshots", ActivePage: "snapshots", Username: user.Username}}
	for _, b := range bookmarks {
		snap, found := statuses[b.ID]
		data.Snapshots = append(data.Snapshots, newSnapshotView(b, snap, found))
	}
	ws.renderTemplate(w, http.StatusOK, "snapshots.html", data)
}
