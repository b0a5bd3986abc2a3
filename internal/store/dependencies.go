package store

import (
	"context"
	"time"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

const dependencyColumns = `id, consumer, env, domain, config_key, contact, stale, registered_at, last_seen_at`

// UpsertDependency registers or refreshes a consumer's declared dependency on
// a config key. A refresh clears the stale flag and bumps last_seen_at.
func (s *Store) UpsertDependency(ctx context.Context, d *Dependency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dependencies (consumer, env, domain, config_key, contact, stale, registered_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(consumer, env, domain, config_key)
		 DO UPDATE SET contact = excluded.contact, stale = 0, last_seen_at = excluded.last_seen_at`,
		d.Consumer, d.Env, d.Domain, d.Key, d.Contact, now, now)
	if err != nil {
		return cerrors.Internal(err, "upsert dependency")
	}
	return nil
}

// ListDependencies returns all registered dependencies ordered by consumer.
func (s *Store) ListDependencies(ctx context.Context) ([]*Dependency, error) {
	return s.queryDependencies(ctx,
		`SELECT `+dependencyColumns+` FROM dependencies ORDER BY consumer, env, domain, config_key`)
}

// ConsumersOf returns the dependencies declared on one config key in one
// environment.
func (s *Store) ConsumersOf(ctx context.Context, env, domain, key string) ([]*Dependency, error) {
	return s.queryDependencies(ctx,
		`SELECT `+dependencyColumns+` FROM dependencies
		 WHERE env = ? AND domain = ? AND config_key = ? ORDER BY consumer`,
		env, domain, key)
}

// MarkStaleDependencies flags every dependency not refreshed since the cutoff
// and returns how many were flagged.
func (s *Store) MarkStaleDependencies(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE dependencies SET stale = 1 WHERE stale = 0 AND last_seen_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, cerrors.Internal(err, "mark stale dependencies")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, cerrors.Internal(err, "rows affected")
	}
	return affected, nil
}

func (s *Store) queryDependencies(ctx context.Context, query string, args ...any) ([]*Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.Internal(err, "query dependencies")
	}
	defer func() { _ = rows.Close() }()

	deps := []*Dependency{}
	for rows.Next() {
		var d Dependency
		var stale int
		var registeredAt, lastSeenAt string
		err := rows.Scan(&d.ID, &d.Consumer, &d.Env, &d.Domain, &d.Key, &d.Contact,
			&stale, &registeredAt, &lastSeenAt)
		if err != nil {
			return nil, cerrors.Internal(err, "scan dependency")
		}
		d.Stale = stale != 0
		d.RegisteredAt = parseTime(registeredAt)
		d.LastSeenAt = parseTime(lastSeenAt)
		deps = append(deps, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Internal(err, "iterate dependencies")
	}
	return deps, nil
}
