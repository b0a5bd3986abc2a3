// Package mutation builds draft commit lineages for single logical edits and
// merges them into environment branches once approved.
package mutation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/logfields"
)

// Operation is one of the five mutation kinds a change request can carry.
type Operation string

const (
	OpCreate       Operation = "create"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpCreateDomain Operation = "create_domain"
	OpDeleteDomain Operation = "delete_domain"
)

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpCreate, OpUpdate, OpDelete, OpCreateDomain, OpDeleteDomain:
		return op, nil
	default:
		return "", cerrors.Newf(cerrors.KindInvalidInput, "unknown operation %q", s)
	}
}

// NeedsKey reports whether the operation targets a key file.
func (op Operation) NeedsKey() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// NeedsContent reports whether the operation writes file content.
func (op Operation) NeedsContent() bool {
	return op == OpCreate || op == OpUpdate
}

// Draft describes one pending edit to build on a draft branch.
type Draft struct {
	ID        string
	Env       gitrepo.Env
	Domain    string
	Key       string
	Operation Operation
	Content   string
	Title     string
}

// Engine performs draft creation, merge, and discard under the gateway.
type Engine struct {
	gw *gitrepo.Gateway
}

// NewEngine creates a mutation engine over the gateway.
func NewEngine(gw *gitrepo.Gateway) *Engine {
	return &Engine{gw: gw}
}

// NewDraftID returns an 8-character opaque id from a collision-resistant
// source. A colliding id (branch already exists) is a fatal error and the
// caller retries with a fresh id.
func NewDraftID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// DraftBranch names the branch carrying a draft.
func DraftBranch(id string) string {
	return "draft/" + id
}

// CreateDraft builds the draft branch for d and returns the draft commit sha.
// Content is validated as YAML before the repository is touched: malformed
// YAML never produces a commit and leaves no draft branch behind.
func (e *Engine) CreateDraft(ctx context.Context, d Draft) (string, error) {
	if d.Operation.NeedsContent() {
		if result := ValidateContent(d.Content); !result.Valid {
			return "", cerrors.InvalidInput("invalid YAML: " + result.Error).
				WithContext("line", result.Line)
		}
	}

	branch := DraftBranch(d.ID)
	var sha string
	err := e.gw.WithRepo(ctx, "create-draft", func(s *gitrepo.Session) error {
		if s.BranchExists(branch) {
			return cerrors.Newf(cerrors.KindGitFailure, "draft branch %s already exists", branch)
		}
		if err := s.CreateBranchFrom(branch, d.Env.Branch()); err != nil {
			return err
		}
		if err := e.apply(s, d); err != nil {
			// Abort cleanly: the forced restore checkout discards the
			// worktree, then the dangling branch ref is removed.
			if cerr := s.Checkout(d.Env.Branch()); cerr == nil {
				_ = s.DeleteBranch(branch)
			}
			return err
		}
		if err := s.StageAll(); err != nil {
			return err
		}
		var err error
		sha, err = s.Commit(d.Title, false)
		return err
	})
	if err != nil {
		return "", err
	}
	slog.Info("Draft created",
		logfields.ChangeID(d.ID),
		logfields.Env(string(d.Env)),
		logfields.Operation(string(d.Operation)),
		logfields.Commit(sha))
	return sha, nil
}

// apply performs the draft's filesystem operation in the checked-out worktree.
func (e *Engine) apply(s *gitrepo.Session, d Draft) error {
	domainDir := filepath.Join(s.Root(), gitrepo.ConfigDir, d.Domain)
	keyFile := filepath.Join(domainDir, d.Key+".yaml")
	gitkeep := filepath.Join(domainDir, gitrepo.GitKeep)

	switch d.Operation {
	case OpCreate:
		if err := os.MkdirAll(domainDir, 0o750); err != nil {
			return cerrors.IOFailure(err, "create domain directory")
		}
		if err := os.WriteFile(keyFile, []byte(d.Content), 0o640); err != nil {
			return cerrors.IOFailure(err, "write config file")
		}
		return removeIfPresent(gitkeep)

	case OpUpdate:
		if _, err := os.Stat(keyFile); err != nil {
			if os.IsNotExist(err) {
				return cerrors.Newf(cerrors.KindNotFound, "config %s/%s not found in %s", d.Domain, d.Key, d.Env)
			}
			return cerrors.IOFailure(err, "stat config file")
		}
		if err := os.WriteFile(keyFile, []byte(d.Content), 0o640); err != nil {
			return cerrors.IOFailure(err, "write config file")
		}
		return removeIfPresent(gitkeep)

	case OpDelete:
		if err := os.Remove(keyFile); err != nil {
			if os.IsNotExist(err) {
				return cerrors.Newf(cerrors.KindNotFound, "config %s/%s not found in %s", d.Domain, d.Key, d.Env)
			}
			return cerrors.IOFailure(err, "remove config file")
		}
		return nil

	case OpCreateDomain:
		if err := os.MkdirAll(domainDir, 0o750); err != nil {
			return cerrors.IOFailure(err, "create domain directory")
		}
		if err := os.WriteFile(gitkeep, nil, 0o640); err != nil {
			return cerrors.IOFailure(err, "write gitkeep sentinel")
		}
		return nil

	case OpDeleteDomain:
		if _, err := os.Stat(domainDir); err != nil {
			if os.IsNotExist(err) {
				return cerrors.Newf(cerrors.KindNotFound, "domain %s not found in %s", d.Domain, d.Env)
			}
			return cerrors.IOFailure(err, "stat domain directory")
		}
		if err := os.RemoveAll(domainDir); err != nil {
			return cerrors.IOFailure(err, "remove domain directory")
		}
		return nil

	default:
		return cerrors.Newf(cerrors.KindInvalidInput, "unknown operation %q", d.Operation)
	}
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cerrors.IOFailure(err, "remove gitkeep sentinel")
	}
	return nil
}

// Merge performs the non-fast-forward merge of a draft into its target
// environment branch with message "merge: <title>", deletes the draft branch,
// and returns the new head sha for auditing.
func (e *Engine) Merge(ctx context.Context, id string, env gitrepo.Env, title string) (string, error) {
	branch := DraftBranch(id)
	var sha string
	err := e.gw.WithRepo(ctx, "merge-draft", func(s *gitrepo.Session) error {
		if !s.BranchExists(branch) {
			return cerrors.Newf(cerrors.KindNotFound, "draft branch %s not found", branch)
		}
		var err error
		sha, err = s.MergeIntoBranch(env.Branch(), branch, "merge: "+title)
		if err != nil {
			return err
		}
		return s.DeleteBranch(branch)
	})
	if err != nil {
		return "", err
	}
	slog.Info("Draft merged",
		logfields.ChangeID(id),
		logfields.Env(string(env)),
		logfields.Commit(sha))
	return sha, nil
}

// Discard deletes the draft branch if present; absence is tolerated.
func (e *Engine) Discard(ctx context.Context, id string) error {
	return e.gw.WithRepo(ctx, "discard-draft", func(s *gitrepo.Session) error {
		return s.DeleteBranch(DraftBranch(id))
	})
}
