package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrUserNotFound = errors.New("user not found")

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL DEFAULT '',
            picture TEXT NOT NULL DEFAULT '',
            access_token TEXT NOT NULL DEFAULT '',
            refresh_token TEXT NOT NULL DEFAULT '',
            token_expiry INTEGER NOT NULL DEFAULT 0,
            imap_host TEXT NOT NULL DEFAULT '',
            imap_port INTEGER NOT NULL DEFAULT 0,
            imap_username TEXT NOT NULL DEFAULT '',
            imap_password TEXT NOT NULL DEFAULT '',
            imap_tls INTEGER NOT NULL DEFAULT 1,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// UpsertOAuthUser stores or refreshes the Google credentials for email and
// returns the resulting record. Existing IMAP fields are left untouched so
// an account that logged in both ways keeps both backends.
func (s *Store) UpsertOAuthUser(ctx context.Context, email, name, picture, accessToken, refreshToken string, expiry, now time.Time) (User, error) {
	query := `INSERT INTO users
        (id, email, name, picture, access_token, refresh_token, token_expiry, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(email) DO UPDATE SET
            name = excluded.name,
            picture = excluded.picture,
            access_token = excluded.access_token,
            refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE users.refresh_token END,
            token_expiry = excluded.token_expiry,
            updated_at = excluded.updated_at;`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), email, name, picture, accessToken, refreshToken,
		expiry.Unix(), now.Unix(), now.Unix())
	if err != nil {
		return User{}, fmt.Errorf("upsert oauth user: %w", err)
	}
	return s.GetUserByEmail(ctx, email)
}

// UpsertIMAPUser stores or replaces the IMAP credentials for email.
func (s *Store) UpsertIMAPUser(ctx context.Context, email, name, host string, port int, username, password string, useTLS bool, now time.Time) (User, error) {
	tlsFlag := 0
	if useTLS {
		tlsFlag = 1
	}
	query := `INSERT INTO users
        (id, email, name, imap_host, imap_port, imap_username, imap_password, imap_tls, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(email) DO UPDATE SET
            imap_host = excluded.imap_host,
            imap_port = excluded.imap_port,
            imap_username = excluded.imap_username,
            imap_password = excluded.imap_password,
            imap_tls = excluded.imap_tls,
            updated_at = excluded.updated_at;`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), email, name, host, port, username, password, tlsFlag,
		now.Unix(), now.Unix())
	if err != nil {
		return User{}, fmt.Errorf("upsert imap user: %w", err)
	}
	return s.GetUserByEmail(ctx, email)
}

// UpdateOAuthToken persists a refreshed token. The update is a single
// statement keyed on the user id, so concurrent refreshes of the same
// record resolve last-writer-wins.
func (s *Store) UpdateOAuthToken(ctx context.Context, userID, accessToken, refreshToken string, expiry, now time.Time) error {
	query := `UPDATE users SET
            access_token = ?,
            refresh_token = CASE WHEN ? != '' THEN ? ELSE refresh_token END,
            token_expiry = ?,
            updated_at = ?
        WHERE id = ?;`
	result, err := s.db.ExecContext(ctx, query,
		accessToken, refreshToken, refreshToken, expiry.Unix(), now.Unix(), userID)
	if err != nil {
		return fmt.Errorf("update oauth token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update oauth token: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) getUser(ctx context.Context, column, value string) (User, error) {
	query := `SELECT id, email, name, picture, access_token, refresh_token, token_expiry,
            imap_host, imap_port, imap_username, imap_password, imap_tls,
            created_at, updated_at
        FROM users WHERE ` + column + ` = ?;`
	var user User
	var tokenExpiry, createdAt, updatedAt int64
	var tlsFlag int
	row := s.db.QueryRowContext(ctx, query, value)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Picture,
		&user.AccessToken,
		&user.RefreshToken,
		&tokenExpiry,
		&user.IMAPHost,
		&user.IMAPPort,
		&user.IMAPUsername,
		&user.IMAPPassword,
		&tlsFlag,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if tokenExpiry > 0 {
		user.TokenExpiry = time.Unix(tokenExpiry, 0)
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	user.IMAPTLS = tlsFlag != 0
	return user, nil
}
