package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/seckatie/linkshelf/internal/auth"
	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

// renderTemplate renders a template with the standard HTML content-type header.
// If template execution fails, it logs the error and returns a 500 response.
func (ws *Server) renderTemplate(w http.ResponseWriter, status int, templateName string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := ws.templates.ExecuteTemplate(w, templateName, data); err != nil {
		ws.logger.Error("failed to execute template", zap.String("template", templateName), zap.Error(err))
	}
}

// serverError logs err and answers 500.
func (ws *Server) serverError(w http.ResponseWriter, msg string, err error) {
	ws.logger.Error(msg, zap.Error(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// decodeForm parses the request body and decodes it into dst.
func (ws *Server) decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	return ws.decoder.Decode(dst, r.PostForm)
}

// redirectBack answers 302 to the return_url form or query value when it is a
// local path, otherwise to fallback.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := r.FormValue("return_url")
	if !isLocalPath(target) {
		target = fallback
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// isLocalPath reports whether p is an absolute path on this host. Browsers
// drop tab, CR and LF from URLs and read a backslash as "/", so control
// characters are refused and the "//" and "/\" prefixes count as other hosts.
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, `/\`) {
		return false
	}
	if strings.ContainsFunc(p, unicode.IsControl) {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && !strings.HasPrefix(u.Path, "//")
}

// currentUser returns the user stored by the auth middleware. Routes using it
// are always mounted behind that middleware.
func currentUser(r *http.Request) db.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

// ownedBookmark loads the {id} bookmark of the requester. It writes 404 for
// malformed, missing and foreign ids and reports whether the caller may go on.
func (ws *Server) ownedBookmark(w http.ResponseWriter, r *http.Request) (db.Bookmark, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return db.Bookmark{}, false
	}

	b, err := ws.db.GetOwnedBookmark(r.Context(), id, currentUser(r).ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return db.Bookmark{}, false
		}
		ws.serverError(w, "failed to load bookmark", err)
		return db.Bookmark{}, false
	}
	return b, true
}
