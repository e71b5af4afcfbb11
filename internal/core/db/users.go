package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUsernameTaken is returned by CreateUser when the username already exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials is returned by AuthenticateUser on an unknown
	// username or a wrong password. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const userColumns = `id, username, password_hash, api_token, created_at`

// CreateUser stores a new user with a bcrypt hash of password and a freshly
// generated API token.
func (db *DB) CreateUser(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, errors.New("username must not be empty")
	}
	if password == "" {
		return User{}, errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	u := User{
		Username:     username,
		PasswordHash: string(hash),
		APIToken:     uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}
	res, err := db.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, api_token, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.APIToken, u.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return User{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	db.logger.Info("user created", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (User, error) {
	return db.getUser(ctx, "id = ?", id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return db.getUser(ctx, "username = ?", username)
}

func (db *DB) GetUserByAPIToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, fmt.Errorf("user %w", ErrNotFound)
	}
	return db.getUser(ctx, "api_token = ?", token)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (User, error) {
	var u User
	err := db.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user %w", ErrNotFound)
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// AuthenticateUser returns the user when password matches the stored hash.
func (db *DB) AuthenticateUser(ctx context.Context, username, password string) (User, error) {
	u, err := db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
