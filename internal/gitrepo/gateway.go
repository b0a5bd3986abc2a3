// Package gitrepo owns the configuration repository on disk. All reads and
// writes go through the Gateway, which serializes access and restores the
// checked-out branch on exit so callers never observe each other's branch
// state.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/logfields"
	"git.home.luguber.info/inful/confgate/internal/metrics"
)

const (
	committerName  = "Confgate Service"
	committerEmail = "confgate@service.local"

	// ConfigDir is the directory inside the repository holding all domains.
	ConfigDir = "config"

	// GitKeep is the sentinel file carried by otherwise-empty domains.
	GitKeep = ".gitkeep"
)

// Gateway provides scoped exclusive access to the repository. Operations are
// serialized through a capacity-1 channel; blocked acquirers are served in
// arrival order.
type Gateway struct {
	path string
	repo *git.Repository
	lock chan struct{}
	rec  metrics.Recorder
}

// NewGateway creates a gateway for the repository at path. Call Init before
// any other operation.
func NewGateway(path string, rec metrics.Recorder) *Gateway {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Gateway{
		path: path,
		lock: make(chan struct{}, 1),
		rec:  rec,
	}
}

// Path returns the repository path on disk.
func (g *Gateway) Path() string { return g.path }

// Init opens the repository, creating and bootstrapping it if the directory
// has no git metadata: an initial commit with config/.gitkeep on main, plus
// staging and production branches from that commit. Init is idempotent and
// also repairs missing environment branches.
func (g *Gateway) Init(ctx context.Context) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()

	repo, err := git.PlainOpen(g.path)
	if err == git.ErrRepositoryNotExists {
		repo, err = g.bootstrap()
	}
	if err != nil {
		return cerrors.GitFailure(err, "open repository")
	}
	g.repo = repo

	if err := g.setCommitterIdentity(repo); err != nil {
		return err
	}
	return g.ensureEnvironmentBranches(repo)
}

func (g *Gateway) bootstrap() (*git.Repository, error) {
	slog.Info("Initializing configuration repository", logfields.Path(g.path))

	if err := os.MkdirAll(g.path, 0o750); err != nil {
		return nil, cerrors.IOFailure(err, "create repository directory")
	}
	repo, err := git.PlainInit(g.path, false)
	if err != nil {
		return nil, cerrors.GitFailure(err, "init repository")
	}

	// The default branch is main, not master.
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(EnvDev.Branch()))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, cerrors.GitFailure(err, "set default branch")
	}

	configDir := filepath.Join(g.path, ConfigDir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, cerrors.IOFailure(err, "create config directory")
	}
	if err := os.WriteFile(filepath.Join(configDir, GitKeep), nil, 0o640); err != nil {
		return nil, cerrors.IOFailure(err, "write gitkeep sentinel")
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, cerrors.GitFailure(err, "get worktree")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, cerrors.GitFailure(err, "stage initial files")
	}
	if _, err := wt.Commit("Initialize configuration repository", &git.CommitOptions{
		Author: g.signature(),
	}); err != nil {
		return nil, cerrors.GitFailure(err, "create initial commit")
	}
	return repo, nil
}

// ensureEnvironmentBranches creates any missing environment branch from the
// dev branch head.
func (g *Gateway) ensureEnvironmentBranches(repo *git.Repository) error {
	devRef, err := repo.Reference(plumbing.NewBranchReferenceName(EnvDev.Branch()), true)
	if err != nil {
		return cerrors.GitFailure(err, "resolve dev branch")
	}
	for _, env := range Environments() {
		if env == EnvDev {
			continue
		}
		name := plumbing.NewBranchReferenceName(env.Branch())
		if _, err := repo.Reference(name, true); err == nil {
			continue
		}
		slog.Info("Creating environment branch", logfields.Branch(env.Branch()))
		if err := repo.Storer.SetReference(plumbing.NewHashReference(name, devRef.Hash())); err != nil {
			return cerrors.GitFailure(err, "create environment branch")
		}
	}
	return nil
}

func (g *Gateway) setCommitterIdentity(repo *git.Repository) error {
	cfg, err := repo.Config()
	if err != nil {
		return cerrors.GitFailure(err, "read repository config")
	}
	if cfg.User.Name == committerName && cfg.User.Email == committerEmail {
		return nil
	}
	cfg.User.Name = committerName
	cfg.User.Email = committerEmail
	if err := repo.SetConfig(cfg); err != nil {
		return cerrors.GitFailure(err, "write repository config")
	}
	return nil
}

func (g *Gateway) signature() *object.Signature {
	return &object.Signature{
		Name:  committerName,
		Email: committerEmail,
		When:  time.Now(),
	}
}

// acquire takes the repository lock, honoring context cancellation while
// waiting. Once acquired, the operation runs to completion.
func (g *Gateway) acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case g.lock <- struct{}{}:
		g.rec.ObserveLockWait(time.Since(start))
		return nil
	case <-ctx.Done():
		return cerrors.Wrap(ctx.Err(), cerrors.KindInternal, "waiting for repository lock")
	}
}

func (g *Gateway) release() {
	<-g.lock
}

// WithRepo runs fn with exclusive repository access. The branch current on
// entry is restored on exit regardless of fn's outcome; the restore checkout
// is forced, discarding any uncommitted worktree changes fn left behind.
func (g *Gateway) WithRepo(ctx context.Context, op string, fn func(*Session) error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	held := time.Now()
	defer func() {
		g.rec.ObserveLockHold(op, time.Since(held))
		g.release()
	}()

	if g.repo == nil {
		return cerrors.New(cerrors.KindGitFailure, "repository not initialized")
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return cerrors.GitFailure(err, "get worktree")
	}
	s := &Session{repo: g.repo, wt: wt, gw: g}

	entryBranch := ""
	if head, err := g.repo.Head(); err == nil && head.Name().IsBranch() {
		entryBranch = head.Name().Short()
	}

	defer func() {
		if entryBranch == "" {
			return
		}
		if err := s.Checkout(entryBranch); err != nil {
			slog.Error("Failed to restore branch after repository operation",
				logfields.Branch(entryBranch), logfields.Operation(op), logfields.Error(err))
		}
	}()

	opErr := fn(s)
	g.rec.IncGitOp(op, opErr == nil)
	return opErr
}

// KeyPath returns the repository-relative path of a config key file.
func KeyPath(domain, key string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", ConfigDir, domain, key)
}

// DomainPath returns the repository-relative path of a domain directory.
func DomainPath(domain string) string {
	return fmt.Sprintf("%s/%s", ConfigDir, domain)
}
