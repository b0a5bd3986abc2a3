package store

import (
	"context"
	"time"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

// commit_sha is NULL on rows written before the column existed.
const auditColumns = `id, actor, action, change_id, promotion_id, env, domain, config_key, COALESCE(commit_sha, ''), detail, created_at`

// AppendAudit inserts one audit entry. The log is append-only; there is no
// update or delete path.
func (s *Store) AppendAudit(ctx context.Context, e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.CreatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor, action, change_id, promotion_id, env, domain, config_key, commit_sha, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Actor, e.Action, e.ChangeID, e.PromotionID, e.Env, e.Domain, e.Key, e.CommitSha,
		e.Detail, formatTime(e.CreatedAt))
	if err != nil {
		return cerrors.Internal(err, "insert audit entry")
	}
	e.ID, _ = result.LastInsertId()
	return nil
}

// ListRecentAudit returns the newest entries, capped at limit.
func (s *Store) ListRecentAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	return s.queryAudit(ctx,
		`SELECT `+auditColumns+` FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

// AuditByActor returns the newest entries for one actor, capped at limit.
func (s *Store) AuditByActor(ctx context.Context, actor string, limit int) ([]*AuditEntry, error) {
	return s.queryAudit(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE actor = ? ORDER BY id DESC LIMIT ?`, actor, limit)
}

// AuditByConfig returns the newest entries touching one key in one
// environment, capped at limit.
func (s *Store) AuditByConfig(ctx context.Context, env, domain, key string, limit int) ([]*AuditEntry, error) {
	return s.queryAudit(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE env = ? AND domain = ? AND config_key = ? ORDER BY id DESC LIMIT ?`,
		env, domain, key, limit)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.Internal(err, "query audit log")
	}
	defer func() { _ = rows.Close() }()

	entries := []*AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ChangeID, &e.PromotionID,
			&e.Env, &e.Domain, &e.Key, &e.CommitSha, &e.Detail, &createdAt)
		if err != nil {
			return nil, cerrors.Internal(err, "scan audit entry")
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Internal(err, "iterate audit entries")
	}
	return entries, nil
}
