package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

// CreateUser inserts a new user. A duplicate username is a state conflict.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, formatTime(u.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return cerrors.Newf(cerrors.KindStateConflict, "username %s already exists", u.Username)
		}
		return cerrors.Internal(err, "insert user")
	}
	return nil
}

// GetUserByUsername returns one user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerrors.Newf(cerrors.KindNotFound, "user %s not found", username)
		}
		return nil, cerrors.Internal(err, "query user")
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, cerrors.Internal(err, "query users")
	}
	defer func() { _ = rows.Close() }()

	users := []*User{}
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &createdAt); err != nil {
			return nil, cerrors.Internal(err, "scan user")
		}
		u.CreatedAt = parseTime(createdAt)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Internal(err, "iterate users")
	}
	return users, nil
}
