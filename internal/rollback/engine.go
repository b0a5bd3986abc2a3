// Package rollback restores config files to earlier committed states, either a
// single file to a chosen commit or a whole promotion to its pre-promotion
// content.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/logfields"
)

// Engine performs rollbacks under the gateway. A rollback never rewrites
// history; it lands as a new commit on top of the environment branch.
type Engine struct {
	gw *gitrepo.Gateway
}

// NewEngine creates a rollback engine over the gateway.
func NewEngine(gw *gitrepo.Gateway) *Engine {
	return &Engine{gw: gw}
}

// RollbackFile restores one config file on an environment branch to its
// content at targetCommit and commits the restoration.
func (e *Engine) RollbackFile(ctx context.Context, env gitrepo.Env, domain, key, targetCommit, reason string) (string, error) {
	relPath := gitrepo.KeyPath(domain, key)
	var sha string
	err := e.gw.WithRepo(ctx, "rollback-file", func(s *gitrepo.Session) error {
		data, err := s.FileAtCommit(targetCommit, relPath)
		if err != nil {
			return err
		}
		if err := s.Checkout(env.Branch()); err != nil {
			return err
		}
		path := filepath.Join(s.Root(), relPath)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return cerrors.IOFailure(err, "create domain directory")
		}
		if err := os.WriteFile(path, data, 0o640); err != nil {
			return cerrors.IOFailure(err, "write restored file")
		}
		if err := s.StageAll(); err != nil {
			return err
		}
		message := fmt.Sprintf("rollback: %s/%s in %s to %s — %s",
			domain, key, env, shortSha(targetCommit), reason)
		sha, err = s.Commit(message, true)
		return err
	})
	if err != nil {
		return "", err
	}
	slog.Info("Config rolled back",
		logfields.Env(string(env)),
		logfields.Domain(domain),
		logfields.ConfigKey(key),
		logfields.Commit(sha))
	return sha, nil
}

// RollbackPromotion restores the promoted files to their content just before
// the promotion commit. Files that did not exist before the promotion are
// removed. The restoration is one commit even when it changes nothing, so the
// rollback itself stays visible in history.
func (e *Engine) RollbackPromotion(ctx context.Context, promotionID string, env gitrepo.Env, domain string, files []string, originalCommit, reason string) (string, error) {
	var sha string
	err := e.gw.WithRepo(ctx, "rollback-promotion", func(s *gitrepo.Session) error {
		parent, err := s.ParentOf(originalCommit)
		if err != nil {
			return err
		}
		if err := s.Checkout(env.Branch()); err != nil {
			return err
		}
		for _, key := range files {
			relPath := gitrepo.KeyPath(domain, key)
			path := filepath.Join(s.Root(), relPath)
			data, err := s.FileAtCommit(parent, relPath)
			if err != nil {
				if cerrors.IsKind(err, cerrors.KindNotFound) {
					if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
						return cerrors.IOFailure(rmErr, "remove promoted file")
					}
					continue
				}
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return cerrors.IOFailure(err, "create domain directory")
			}
			if err := os.WriteFile(path, data, 0o640); err != nil {
				return cerrors.IOFailure(err, "write restored file")
			}
		}
		if err := s.StageAll(); err != nil {
			return err
		}
		message := fmt.Sprintf("rollback promotion %s: %s", promotionID, reason)
		sha, err = s.Commit(message, true)
		return err
	})
	if err != nil {
		return "", err
	}
	slog.Info("Promotion rolled back",
		logfields.PromotionID(promotionID),
		logfields.Env(string(env)),
		logfields.Domain(domain),
		logfields.Commit(sha))
	return sha, nil
}

func shortSha(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
