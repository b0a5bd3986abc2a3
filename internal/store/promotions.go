package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

const promotionColumns = `id, source_env, target_env, domain, files, requester, status,
	approver, review_comment, commit_sha, rollback_sha, failure, created_at, updated_at`

// CreatePromotion inserts a new promotion request in pending status.
func (s *Store) CreatePromotion(ctx context.Context, pr *PromotionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := json.Marshal(pr.Files)
	if err != nil {
		return cerrors.Internal(err, "marshal file list")
	}
	now := time.Now()
	pr.Status = PromotionPending
	pr.CreatedAt = now
	pr.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO promotion_requests (id, source_env, target_env, domain, files,
			requester, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.SourceEnv, pr.TargetEnv, pr.Domain, string(files),
		pr.Requester, pr.Status, formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt))
	if err != nil {
		return cerrors.Internal(err, "insert promotion request")
	}
	return nil
}

// GetPromotion returns one promotion request by id.
func (s *Store) GetPromotion(ctx context.Context, id string) (*PromotionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotion_requests WHERE id = ?`, id)
	pr, err := scanPromotion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerrors.Newf(cerrors.KindNotFound, "promotion request %s not found", id)
		}
		return nil, cerrors.Internal(err, "query promotion request")
	}
	return pr, nil
}

// ListPromotions returns promotion requests, optionally filtered by status,
// newest first.
func (s *Store) ListPromotions(ctx context.Context, status string) ([]*PromotionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + promotionColumns + ` FROM promotion_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.Internal(err, "query promotion requests")
	}
	defer func() { _ = rows.Close() }()

	promotions := []*PromotionRequest{}
	for rows.Next() {
		pr, err := scanPromotion(rows)
		if err != nil {
			return nil, cerrors.Internal(err, "scan promotion request")
		}
		promotions = append(promotions, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Internal(err, "iterate promotion requests")
	}
	return promotions, nil
}

// TransitionPromotion moves a promotion request from one status to another
// under a WHERE-status guard, setting the given columns.
func (s *Store) TransitionPromotion(ctx context.Context, id, from, to string, set map[string]string) error {
	err := s.transitionPromotion(ctx, id, from, to, set)
	s.rec.IncTransition("promotion", to, err == nil)
	return err
}

func (s *Store) transitionPromotion(ctx context.Context, id, from, to string, set map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE promotion_requests SET status = ?, updated_at = ?`
	args := []any{to, formatTime(time.Now())}
	for _, col := range []string{"approver", "review_comment", "commit_sha", "rollback_sha", "failure"} {
		if v, ok := set[col]; ok {
			query += `, ` + col + ` = ?`
			args = append(args, v)
		}
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return cerrors.Internal(err, "update promotion request")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return cerrors.Internal(err, "rows affected")
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM promotion_requests WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return cerrors.Newf(cerrors.KindNotFound, "promotion request %s not found", id)
		}
		if err != nil {
			return cerrors.Internal(err, "query promotion request status")
		}
		return cerrors.Newf(cerrors.KindStateConflict,
			"promotion request %s is %s, expected %s", id, current, from)
	}
	return nil
}

func scanPromotion(row rowScanner) (*PromotionRequest, error) {
	var pr PromotionRequest
	var files string
	var approver, comment, commitSha, rollbackSha, failure sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&pr.ID, &pr.SourceEnv, &pr.TargetEnv, &pr.Domain, &files,
		&pr.Requester, &pr.Status, &approver, &comment, &commitSha, &rollbackSha,
		&failure, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(files), &pr.Files); err != nil {
		return nil, err
	}
	pr.Approver = approver.String
	pr.ReviewComment = comment.String
	pr.CommitSha = commitSha.String
	pr.RollbackSha = rollbackSha.String
	pr.Failure = failure.String
	pr.CreatedAt = parseTime(createdAt)
	pr.UpdatedAt = parseTime(updatedAt)
	return &pr, nil
}
