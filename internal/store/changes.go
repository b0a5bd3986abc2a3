package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

const changeColumns = `id, env, domain, config_key, operation, content, title, description,
	author, status, draft_sha, merge_sha, reviewer, review_comment, created_at, updated_at`

// CreateChange inserts a new change request in draft status.
func (s *Store) CreateChange(ctx context.Context, cr *ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cr.Status = ChangeDraft
	cr.CreatedAt = now
	cr.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_requests (id, env, domain, config_key, operation, content, title,
			description, author, status, draft_sha, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cr.ID, cr.Env, cr.Domain, cr.Key, cr.Operation, cr.Content, cr.Title,
		cr.Description, cr.Author, cr.Status, cr.DraftSha,
		formatTime(cr.CreatedAt), formatTime(cr.UpdatedAt))
	if err != nil {
		return cerrors.Internal(err, "insert change request")
	}
	return nil
}

// GetChange returns one change request by id.
func (s *Store) GetChange(ctx context.Context, id string) (*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM change_requests WHERE id = ?`, id)
	cr, err := scanChange(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerrors.Newf(cerrors.KindNotFound, "change request %s not found", id)
		}
		return nil, cerrors.Internal(err, "query change request")
	}
	return cr, nil
}

// ListChanges returns change requests, optionally filtered by status and
// environment, newest first.
func (s *Store) ListChanges(ctx context.Context, status, env string) ([]*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + changeColumns + ` FROM change_requests WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if env != "" {
		query += ` AND env = ?`
		args = append(args, env)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.Internal(err, "query change requests")
	}
	defer func() { _ = rows.Close() }()

	changes := []*ChangeRequest{}
	for rows.Next() {
		cr, err := scanChange(rows)
		if err != nil {
			return nil, cerrors.Internal(err, "scan change request")
		}
		changes = append(changes, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Internal(err, "iterate change requests")
	}
	return changes, nil
}

// TransitionChange moves a change request from one status to another, setting
// the given columns. The WHERE clause guards the expected current status:
// a concurrent transition loses and surfaces as state_conflict.
func (s *Store) TransitionChange(ctx context.Context, id, from, to string, set map[string]string) error {
	err := s.transitionChange(ctx, id, from, to, set)
	s.rec.IncTransition("change_request", to, err == nil)
	return err
}

func (s *Store) transitionChange(ctx context.Context, id, from, to string, set map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE change_requests SET status = ?, updated_at = ?`
	args := []any{to, formatTime(time.Now())}
	for _, col := range []string{"draft_sha", "merge_sha", "reviewer", "review_comment"} {
		if v, ok := set[col]; ok {
			query += `, ` + col + ` = ?`
			args = append(args, v)
		}
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return cerrors.Internal(err, "update change request")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return cerrors.Internal(err, "rows affected")
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM change_requests WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return cerrors.Newf(cerrors.KindNotFound, "change request %s not found", id)
		}
		if err != nil {
			return cerrors.Internal(err, "query change request status")
		}
		return cerrors.Newf(cerrors.KindStateConflict,
			"change request %s is %s, expected %s", id, current, from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (*ChangeRequest, error) {
	var cr ChangeRequest
	var key, content, description, draftSha, mergeSha, reviewer, comment sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&cr.ID, &cr.Env, &cr.Domain, &key, &cr.Operation, &content,
		&cr.Title, &description, &cr.Author, &cr.Status, &draftSha, &mergeSha,
		&reviewer, &comment, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cr.Key = key.String
	cr.Content = content.String
	cr.Description = description.String
	cr.DraftSha = draftSha.String
	cr.MergeSha = mergeSha.String
	cr.Reviewer = reviewer.String
	cr.ReviewComment = comment.String
	cr.CreatedAt = parseTime(createdAt)
	cr.UpdatedAt = parseTime(updatedAt)
	return &cr, nil
}
