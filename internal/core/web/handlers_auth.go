package web

import (
	"errors"
	"net/http"

	"github.com/seckatie/linkshelf/internal/auth"
	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

type loginForm struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
	Next     string `schema:"next"`
}

func (ws *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	ws.renderTemplate(w, http.StatusOK, "login.html", loginPage{page: page{Title: "Log in"}, Next: r.URL.Query().Get("next")})
}

func (ws *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := ws.decodeForm(r, &form); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	user, err := ws.db.AuthenticateUser(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, db.ErrInvalidCredentials) {
			ws.logger.Info("login failed", zap.String("username", form.Username))
			ws.renderTemplate(w, http.StatusUnauthorized, "login.html", loginPage{
				page:      page{Title: "Log in"},
				LoginName: form.Username,
				Next:      form.Next,
				Error:     "Invalid username or password.",
			})
			return
		}
		ws.serverError(w, "failed to authenticate user", err)
		return
	}

	ws.auth.SetSessionCookie(w, user.ID)
	ws.logger.Info("user logged in", zap.Int64("user_id", user.ID))

	target := form.Next
	if !isLocalPath(target) {
		target = "/bookmarks"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (ws *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}
