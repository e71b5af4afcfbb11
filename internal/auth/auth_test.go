package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/seckatie/linkshelf/internal/auth"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUser(ctx context.Context, id int64) (db.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(db.User), args.Error(1)
}

func (m *mockUsers) GetUserByAPIToken(ctx context.Context, token string) (db.User, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(db.User), args.Error(1)
}

func TestSignCookieValue(t *testing.T) {
	a := auth.New("test-secret")
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	signed := a.SignCookieValueAt(42, issued)

	parts := strings.Split(signed, ":")
	require.Len(t, parts, 3)
	assert.Equal(t, "42", parts[0])
	assert.Equal(t, strconv.FormatInt(issued.Unix(), 10), parts[1])
	assert.Equal(t, signed, a.SignCookieValueAt(42, issued))
	assert.NotEqual(t, signed, a.SignCookieValueAt(42, issued.Add(time.Second)))
	assert.NotEqual(t, signed, auth.New("other-secret").SignCookieValueAt(42, issued))
}

func TestSessionUserID(t *testing.T) {
	a := auth.New("test-secret")
	now := time.Now()
	sigOf := func(v string) string { return v[strings.LastIndex(v, ":")+1:] }
	issuedOf := func(v string) string { return strings.Split(v, ":")[1] }
	valid := a.SignCookieValue(7)
	issued, err := strconv.ParseInt(issuedOf(valid), 10, 64)
	require.NoError(t, err)

	tests := []struct {
		name   string
		value  string
		wantID int64
		wantOK bool
	}{
		{"valid", valid, 7, true},
		{"recent", a.SignCookieValueAt(7, now.Add(-time.Hour)), 7, true},
		{"empty", "", 0, false},
		{"no separator", "invalidformat", 0, false},
		{"bad signature", "7:" + issuedOf(valid) + ":bad-signature", 0, false},
		{"legacy format", "7:" + sigOf(valid), 0, false},
		{"other secret", auth.New("nope").SignCookieValue(7), 0, false},
		{"tampered id", "8:" + issuedOf(valid) + ":" + sigOf(valid), 0, false},
		{"tampered issue time", "7:" + strconv.FormatInt(issued-5, 10) + ":" + sigOf(valid), 0, false},
		{"non numeric", "abc:" + issuedOf(valid) + ":" + sigOf(valid), 0, false},
		{"expired", a.SignCookieValueAt(7, now.Add(-auth.SessionMaxAge-time.Minute)), 0, false},
		{"issued in the future", a.SignCookieValueAt(7, now.Add(time.Hour)), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tt.value})

			id, ok := a.SessionUserID(req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}

	_, ok := a.SessionUserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok, "no cookie")
}

func TestSetAndClearSessionCookie(t *testing.T) {
	a := auth.New("test-secret")

	rec := httptest.NewRecorder()
	a.SetSessionCookie(rec, 3)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, int(auth.SessionMaxAge/time.Second), cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	id, ok := a.SessionUserID(req)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	rec = httptest.NewRecorder()
	auth.ClearSessionCookie(rec)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func serveWithMiddleware(a *auth.Auth, users auth.UserLookup, req *http.Request) (*httptest.ResponseRecorder, *db.User) {
	var seen *db.User
	h := a.Middleware(users, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := auth.UserFromContext(r.Context()); ok {
			seen = &u
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareSessionCookie(t *testing.T) {
	a := auth.New("test-secret")
	users := &mockUsers{}
	users.On("GetUser", mock.Anything, int64(5)).Return(db.User{ID: 5, Username: "alice"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/bookmarks", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: a.SignCookieValue(5)})

	rec, user := serveWithMiddleware(a, users, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	users.AssertExpectations(t)
}

func TestMiddlewareAPIToken(t *testing.T) {
	a := auth.New("test-secret")
	users := &mockUsers{}
	users.On("GetUserByAPIToken", mock.Anything, "tok").Return(db.User{ID: 9}, nil)

	req := httptest.NewRequest(http.MethodPost, "/bookmarks/bulk-edit", nil)
	req.Header.Set("Authorization", "Token tok")

	rec, user := serveWithMiddleware(a, users, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, int64(9), user.ID)
	users.AssertExpectations(t)
}

func TestMiddlewareRedirectsToLogin(t *testing.T) {
	a := auth.New("test-secret")
	users := &mockUsers{}

	rec, user := serveWithMiddleware(a, users, httptest.NewRequest(http.MethodGet, "/bookmarks", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Nil(t, user)
	users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestMiddlewareDeletedUser(t *testing.T) {
	a := auth.New("test-secret")
	users := &mockUsers{}
	users.On("GetUser", mock.Anything, int64(5)).Return(db.User{}, fmt.Errorf("user %w", db.ErrNotFound))

	req := httptest.NewRequest(http.MethodGet, "/bookmarks", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: a.SignCookieValue(5)})

	rec, _ := serveWithMiddleware(a, users, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	a := auth.New("test-secret")
	users := &mockUsers{}
	users.On("GetUserByAPIToken", mock.Anything, "wrong").Return(db.User{}, fmt.Errorf("user %w", db.ErrNotFound))

	for _, header := range []string{"Token wrong", "Bearer wrong", "Token "} {
		req := httptest.NewRequest(http.MethodGet, "/bookmarks", nil)
		req.Header.Set("Authorization", header)

		rec, user := serveWithMiddleware(a, users, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Nil(t, user)
	}
}

func TestMiddlewareLookupFailure(t *testing.T) {
	a := auth.New("test-secret")
	users := &mockUsers{}
	users.On("GetUser", mock.Anything, int64(5)).Return(db.User{}, errors.New("database is locked"))

	req := httptest.NewRequest(http.MethodGet, "/bookmarks", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: a.SignCookieValue(5)})

	rec, _ := serveWithMiddleware(a, users, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUserFromContext(t *testing.T) {
	_, ok := auth.UserFromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.WithUser(context.Background(), db.User{ID: 1, Username: "bob"})
	u, ok := auth.UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "bob", u.Username)
}
