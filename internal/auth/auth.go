package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

const (
	// CookieName is the session cookie holding "userID:issuedAt:signature".
	CookieName = "linkshelf_session"
	// SessionMaxAge bounds how long a signed session value is accepted.
	SessionMaxAge = 30 * 24 * time.Hour
	// clockSkew tolerates issue times slightly in the future.
	clockSkew = time.Minute

	tokenScheme = "Token "
)

type Auth struct {
	SecretKey string
}

func New(secret string) *Auth {
	return &Auth{SecretKey: secret}
}

func (a *Auth) sign(value string) string {
	mac := hmac.New(sha256.New, []byte(a.SecretKey))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignCookieValue returns a session cookie value for userID issued now.
func (a *Auth) SignCookieValue(userID int64) string {
	return a.SignCookieValueAt(userID, time.Now())
}

// SignCookieValueAt returns the session cookie value for userID issued at
// issuedAt.
func (a *Auth) SignCookieValueAt(userID int64, issuedAt time.Time) string {
	payload := fmt.Sprintf("%d:%d", userID, issuedAt.Unix())
	return payload + ":" + a.sign(payload)
}

// SetSessionCookie logs userID in on w.
func (a *Auth) SetSessionCookie(w http.ResponseWriter, userID int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    a.SignCookieValue(userID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionMaxAge / time.Second),
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SessionUserID returns the user id carried by a correctly signed session
// cookie on r that was issued within SessionMaxAge.
func (a *Auth) SessionUserID(r *http.Request) (int64, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return 0, false
	}

	i := strings.LastIndex(cookie.Value, ":")
	if i < 0 {
		return 0, false
	}
	payload, sig := cookie.Value[:i], cookie.Value[i+1:]
	if !hmac.Equal([]byte(a.sign(payload)), []byte(sig)) {
		return 0, false
	}

	idPart, issuedPart, ok := strings.Cut(payload, ":")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	issued, err := strconv.ParseInt(issuedPart, 10, 64)
	if err != nil {
		return 0, false
	}
	age := time.Since(time.Unix(issued, 0))
	if age > SessionMaxAge || age < -clockSkew {
		return 0, false
	}
	return id, true
}

// UserLookup resolves authenticated identities to users. *db.DB implements it.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (db.User, error)
	GetUserByAPIToken(ctx context.Context, token string) (db.User, error)
}

// Middleware resolves the current user from an "Authorization: Token <key>"
// header or the session cookie and stores it in the request context.
//
// Unauthenticated requests carrying an Authorization header get 401, all
// others are redirected to /login.
func (a *Auth) Middleware(users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.resolve(r, users)
			if err != nil {
				if !errors.Is(err, errUnauthenticated) && !errors.Is(err, db.ErrNotFound) {
					logger.Error("failed to resolve user", zap.Error(err))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if r.Header.Get("Authorization") != "" {
					w.Header().Set("WWW-Authenticate", "Token")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

var errUnauthenticated = errors.New("unauthenticated")

func (a *Auth) resolve(r *http.Request, users UserLookup) (db.User, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, tokenScheme) {
			return db.User{}, errUnauthenticated
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, tokenScheme))
		if token == "" {
			return db.User{}, errUnauthenticated
		}
		return users.GetUserByAPIToken(r.Context(), token)
	}

	id, ok := a.SessionUserID(r)
	if !ok {
		return db.User{}, errUnauthenticated
	}
	return users.GetUser(r.Context(), id)
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user db.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user stored by Middleware.
func UserFromContext(ctx context.Context) (db.User, bool) {
	user, ok := ctx.Value(contextKey{}).(db.User)
	return user, ok
}
