// Package promotion copies selected config files between environment
// branches as a single tagged commit, and computes preview diffs.
package promotion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/logfields"
)

// FileDiff is the preview bundle for one requested file. Target is nil when
// the file does not exist on the target branch; Source is empty when missing
// from the source branch.
type FileDiff struct {
	Key    string  `json:"key"`
	Source string  `json:"source"`
	Target *string `json:"target"`
	Diff   string  `json:"diff"`
}

// Request describes a promotion to preview or execute.
type Request struct {
	ID     string
	Source gitrepo.Env
	Target gitrepo.Env
	Domain string
	Files  []string
}

// Engine performs promotion previews and executions under the gateway.
type Engine struct {
	gw *gitrepo.Gateway
}

// NewEngine creates a promotion engine over the gateway.
func NewEngine(gw *gitrepo.Gateway) *Engine {
	return &Engine{gw: gw}
}

// ValidateFlow enforces the two permitted promotion flows.
func ValidateFlow(source, target gitrepo.Env) error {
	if (source == gitrepo.EnvDev && target == gitrepo.EnvStaging) ||
		(source == gitrepo.EnvStaging && target == gitrepo.EnvProd) {
		return nil
	}
	return cerrors.Newf(cerrors.KindInvalidInput,
		"promotion flow %s → %s not permitted (allowed: dev → staging, staging → prod)", source, target)
}

// Preview returns per-file diff bundles, treating the target content as the
// "before" side and the source content as the "after" side.
func (e *Engine) Preview(ctx context.Context, req Request) ([]FileDiff, error) {
	var diffs []FileDiff
	err := e.gw.WithRepo(ctx, "promotion-preview", func(s *gitrepo.Session) error {
		sources := make(map[string]string, len(req.Files))
		if err := s.Checkout(req.Source.Branch()); err != nil {
			return err
		}
		for _, key := range req.Files {
			data, err := os.ReadFile(keyFile(s, req.Domain, key))
			if err != nil {
				if !os.IsNotExist(err) {
					return cerrors.IOFailure(err, "read source file")
				}
				continue
			}
			sources[key] = string(data)
		}

		if err := s.Checkout(req.Target.Branch()); err != nil {
			return err
		}
		for _, key := range req.Files {
			fd := FileDiff{Key: key, Source: sources[key]}
			if data, err := os.ReadFile(keyFile(s, req.Domain, key)); err == nil {
				target := string(data)
				fd.Target = &target
			} else if !os.IsNotExist(err) {
				return cerrors.IOFailure(err, "read target file")
			}

			before := ""
			if fd.Target != nil {
				before = *fd.Target
			}
			diff, err := unifiedDiff(req.Domain, key, req.Target, req.Source, before, fd.Source)
			if err != nil {
				return cerrors.Internal(err, "render diff")
			}
			fd.Diff = diff
			diffs = append(diffs, fd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diffs, nil
}

// Execute copies the requested files from the source branch to the target
// branch as one commit and tags it. Files absent in the source are skipped.
// Either all captured files land in one commit or no commit is made; a
// failure part-way leaves uncommitted changes that the next gateway
// operation's branch restore discards.
func (e *Engine) Execute(ctx context.Context, req Request) (string, error) {
	var sha string
	err := e.gw.WithRepo(ctx, "promotion-execute", func(s *gitrepo.Session) error {
		if err := s.Checkout(req.Source.Branch()); err != nil {
			return err
		}
		captured := make(map[string]string)
		var order []string
		for _, key := range req.Files {
			data, err := os.ReadFile(keyFile(s, req.Domain, key))
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return cerrors.IOFailure(err, "read source file")
			}
			captured[key] = string(data)
			order = append(order, key)
		}
		if len(captured) == 0 {
			return cerrors.Newf(cerrors.KindInvalidInput,
				"none of the requested files exist in %s", req.Source)
		}

		if err := s.Checkout(req.Target.Branch()); err != nil {
			return err
		}
		domainDir := filepath.Join(s.Root(), gitrepo.ConfigDir, req.Domain)
		if err := os.MkdirAll(domainDir, 0o750); err != nil {
			return cerrors.IOFailure(err, "create domain directory")
		}
		for _, key := range order {
			if err := os.WriteFile(filepath.Join(domainDir, key+".yaml"), []byte(captured[key]), 0o640); err != nil {
				return cerrors.IOFailure(err, "write promoted file")
			}
		}
		if err := os.Remove(filepath.Join(domainDir, gitrepo.GitKeep)); err != nil && !os.IsNotExist(err) {
			return cerrors.IOFailure(err, "remove gitkeep sentinel")
		}

		if err := s.StageAll(); err != nil {
			return err
		}
		message := fmt.Sprintf("promote: %s/%s %s → %s [%s]",
			req.Domain, strings.Join(order, ","), req.Source, req.Target, req.ID)
		var err error
		sha, err = s.Commit(message, true)
		if err != nil {
			return err
		}
		return s.Tag(TagName(req.Target, req.Domain, time.Now()), sha)
	})
	if err != nil {
		return "", err
	}
	slog.Info("Promotion executed",
		logfields.PromotionID(req.ID),
		logfields.Env(string(req.Target)),
		logfields.Domain(req.Domain),
		logfields.Commit(sha))
	return sha, nil
}

// TagName builds the promotion tag: promote-<target>-<domain>-<timestamp>
// with ':' and '.' replaced so the timestamp is ref-safe.
func TagName(target gitrepo.Env, domain string, at time.Time) string {
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return fmt.Sprintf("promote-%s-%s-%s", target, domain, ts)
}

func keyFile(s *gitrepo.Session, domain, key string) string {
	return filepath.Join(s.Root(), gitrepo.ConfigDir, domain, key+".yaml")
}

// unifiedDiff renders a unified diff with the target side as "before".
func unifiedDiff(domain, key string, targetEnv, sourceEnv gitrepo.Env, before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: fmt.Sprintf("%s/%s.yaml (%s)", domain, key, targetEnv),
		ToFile:   fmt.Sprintf("%s/%s.yaml (%s)", domain, key, sourceEnv),
		Context:  3,
	})
}
