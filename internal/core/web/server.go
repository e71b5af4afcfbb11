package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"github.com/seckatie/linkshelf/internal/auth"
	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

//go:embed templates/*.html static/*.css
var assetsFS embed.FS

const shutdownTimeout = 10 * time.Second

type Server struct {
	db        *db.DB
	auth      *auth.Auth
	logger    *zap.Logger
	templates *template.Template
	staticFS  http.FileSystem
	decoder   *schema.Decoder
}

// StartServer serves the web UI on addr until ctx is done, then shuts down
// gracefully.
func StartServer(ctx context.Context, addr string, database *db.DB, a *auth.Auth, logger *zap.Logger) error {
	ws, err := newServer(database, a, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           ws.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ws.logger.Info("starting web server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	ws.logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newServer(database *db.DB, a *auth.Auth, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	templates, err := template.New("").Funcs(templateFuncs).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(assetsFS, "static")
	if err != nil {
		return nil, err
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Server{
		db:        database,
		auth:      a,
		logger:    logger,
		templates: templates,
		staticFS:  http.FS(staticSub),
		decoder:   decoder,
	}, nil
}

func (ws *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(ws.logger))
	r.Use(middleware.Compress(5))

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(ws.staticFS)))
	r.Get("/login", ws.handleLoginPage)
	r.Post("/login", ws.handleLogin)
	r.Post("/logout", ws.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(ws.auth.Middleware(ws.db, ws.logger))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/bookmarks", http.StatusFound)
		})
		r.Get("/bookmarklet", ws.handleBookmarklet)
		r.Get("/bookmarklet/add", ws.handleBookmarkletAdd)

		r.Get("/bookmarks", ws.handleBookmarkList(false))
		r.Get("/bookmarks/archived", ws.handleBookmarkList(true))
		r.Post("/bookmarks", ws.handleCreateBookmark)
		r.Post("/bookmarks/bulk-edit", ws.handleBulkEdit)
		r.Route("/bookmarks/{id}", func(r chi.Router) {
			r.Post("/archive", ws.handleSetArchived(true))
			r.Post("/unarchive", ws.handleSetArchived(false))
			r.Get("/snapshot", ws.handleViewSnapshot)
			r.Get("/snapshot/raw", ws.handleRawSnapshot)
			r.Post("/snapshot/refetch", ws.handleRefetchSnapshot)
		})

		r.Get("/snapshots", ws.handleSnapshotManager)
	})

	return r
}
