package gitrepo

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

// Session exposes the gateway's git operations to a caller holding the lock.
// Each method is thin over go-git; the value is the serialization and the
// branch-restore discipline enforced by WithRepo.
type Session struct {
	repo *git.Repository
	wt   *git.Worktree
	gw   *Gateway
}

// CommitInfo describes one commit in a file's history.
type CommitInfo struct {
	Sha     string
	Author  string
	Email   string
	Date    time.Time
	Message string
}

// Root returns the worktree root for direct file I/O.
func (s *Session) Root() string {
	return s.wt.Filesystem.Root()
}

// Checkout switches to the named branch, discarding uncommitted changes.
// Untracked files are cleaned as well: a forced checkout alone leaves them in
// place, and callers rely on a pristine worktree after every branch switch.
func (s *Session) Checkout(branch string) error {
	err := s.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	})
	if err != nil {
		return cerrors.GitFailure(err, "checkout "+branch)
	}
	if err := s.wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return cerrors.GitFailure(err, "clean worktree")
	}
	return nil
}

// CurrentBranch returns the branch HEAD points at.
func (s *Session) CurrentBranch() (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", cerrors.GitFailure(err, "read HEAD")
	}
	return head.Name().Short(), nil
}

// BranchExists reports whether a local branch exists.
func (s *Session) BranchExists(name string) bool {
	_, err := s.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	return err == nil
}

// CreateBranchFrom checks out the base branch and creates-and-switches to a
// new branch at its head.
func (s *Session) CreateBranchFrom(name, base string) error {
	if err := s.Checkout(base); err != nil {
		return err
	}
	err := s.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	})
	if err != nil {
		return cerrors.GitFailure(err, "create branch "+name)
	}
	return nil
}

// StageAll stages every modification, addition, and deletion in the worktree.
func (s *Session) StageAll() error {
	if err := s.wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return cerrors.GitFailure(err, "stage changes")
	}
	return nil
}

// Commit commits the staged state with the service identity and returns the
// new commit sha. With allowEmpty, a commit is created even when the tree is
// unchanged (promotions of already-identical content keep their lineage).
func (s *Session) Commit(message string, allowEmpty bool) (string, error) {
	hash, err := s.wt.Commit(message, &git.CommitOptions{
		Author:            s.gw.signature(),
		AllowEmptyCommits: allowEmpty,
	})
	if err != nil {
		return "", cerrors.GitFailure(err, "commit")
	}
	return hash.String(), nil
}

// Head returns the sha of the current HEAD commit.
func (s *Session) Head() (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", cerrors.GitFailure(err, "read HEAD")
	}
	return head.Hash().String(), nil
}

// Tag creates a lightweight tag pointing at the given commit.
func (s *Session) Tag(name, sha string) error {
	hash, err := s.resolve(sha)
	if err != nil {
		return err
	}
	if _, err := s.repo.CreateTag(name, hash, nil); err != nil {
		return cerrors.GitFailure(err, "create tag "+name)
	}
	return nil
}

// TagExists reports whether a tag reference exists.
func (s *Session) TagExists(name string) bool {
	_, err := s.repo.Reference(plumbing.NewTagReferenceName(name), true)
	return err == nil
}

// HasTagPrefix reports whether any tag name starts with the given prefix.
func (s *Session) HasTagPrefix(prefix string) bool {
	iter, err := s.repo.Tags()
	if err != nil {
		return false
	}
	defer iter.Close()
	found := false
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().Short(), prefix) {
			found = true
			return storer.ErrStop
		}
		return nil
	})
	return found
}

// HeadCommit returns the current HEAD commit's details.
func (s *Session) HeadCommit() (CommitInfo, error) {
	head, err := s.repo.Head()
	if err != nil {
		return CommitInfo{}, cerrors.GitFailure(err, "read HEAD")
	}
	c, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return CommitInfo{}, cerrors.GitFailure(err, "load HEAD commit")
	}
	return CommitInfo{
		Sha:     c.Hash.String(),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		Date:    c.Author.When,
		Message: c.Message,
	}, nil
}

// MergeIntoBranch merges the source branch into the target branch as a
// non-fast-forward merge commit and returns its sha. go-git has no merge
// porcelain, so the merge is computed three-way: the changes between the
// merge base and the source head are replayed onto the target worktree and
// committed with both heads as parents. The target may have moved past the
// draft's base; only a path changed on both sides to different content is a
// conflict.
func (s *Session) MergeIntoBranch(target, source, message string) (string, error) {
	targetRef, err := s.repo.Reference(plumbing.NewBranchReferenceName(target), true)
	if err != nil {
		return "", cerrors.GitFailure(err, "resolve branch "+target)
	}
	sourceRef, err := s.repo.Reference(plumbing.NewBranchReferenceName(source), true)
	if err != nil {
		return "", cerrors.GitFailure(err, "resolve branch "+source)
	}

	targetCommit, err := s.repo.CommitObject(targetRef.Hash())
	if err != nil {
		return "", cerrors.GitFailure(err, "load target commit")
	}
	sourceCommit, err := s.repo.CommitObject(sourceRef.Hash())
	if err != nil {
		return "", cerrors.GitFailure(err, "load source commit")
	}

	bases, err := targetCommit.MergeBase(sourceCommit)
	if err != nil {
		return "", cerrors.GitFailure(err, "find merge base")
	}
	if len(bases) == 0 {
		return "", cerrors.New(cerrors.KindGitFailure, "no common ancestor between "+target+" and "+source)
	}
	baseTree, err := bases[0].Tree()
	if err != nil {
		return "", cerrors.GitFailure(err, "load base tree")
	}
	sourceTree, err := sourceCommit.Tree()
	if err != nil {
		return "", cerrors.GitFailure(err, "load source tree")
	}
	targetTree, err := targetCommit.Tree()
	if err != nil {
		return "", cerrors.GitFailure(err, "load target tree")
	}

	changes, err := object.DiffTree(baseTree, sourceTree)
	if err != nil {
		return "", cerrors.GitFailure(err, "diff source against base")
	}

	if err := s.Checkout(target); err != nil {
		return "", err
	}
	for _, ch := range changes {
		if err := s.replayChange(ch, sourceCommit, targetTree); err != nil {
			return "", err
		}
	}
	if err := s.StageAll(); err != nil {
		return "", err
	}

	sig := s.gw.signature()
	hash, err := s.wt.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           []plumbing.Hash{targetRef.Hash(), sourceRef.Hash()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", cerrors.GitFailure(err, "commit merge")
	}
	return hash.String(), nil
}

// replayChange applies one base→source change onto the checked-out target
// worktree. The target blob for the path decides the outcome: untouched since
// the base takes the source side, already at the source side is a no-op, and
// anything else changed on both branches.
func (s *Session) replayChange(ch *object.Change, sourceCommit *object.Commit, targetTree *object.Tree) error {
	action, err := ch.Action()
	if err != nil {
		return cerrors.GitFailure(err, "inspect tree change")
	}

	path := ch.To.Name
	if action == merkletrie.Delete {
		path = ch.From.Name
	}
	baseHash := ch.From.TreeEntry.Hash
	sourceHash := ch.To.TreeEntry.Hash

	targetHash := plumbing.ZeroHash
	if entry, err := targetTree.FindEntry(path); err == nil {
		targetHash = entry.Hash
	}
	if targetHash == sourceHash {
		return nil
	}
	if targetHash != baseHash {
		return cerrors.Newf(cerrors.KindStateConflict, "merge conflict: %s changed in both branches", path)
	}

	abs := filepath.Join(s.Root(), filepath.FromSlash(path))
	if action == merkletrie.Delete {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return cerrors.IOFailure(err, "remove "+path)
		}
		return nil
	}
	file, err := sourceCommit.File(path)
	if err != nil {
		return cerrors.GitFailure(err, "read "+path+" from source")
	}
	content, err := file.Contents()
	if err != nil {
		return cerrors.GitFailure(err, "read blob for "+path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return cerrors.IOFailure(err, "create directory for "+path)
	}
	if err := os.WriteFile(abs, []byte(content), 0o640); err != nil {
		return cerrors.IOFailure(err, "write "+path)
	}
	return nil
}

// DeleteBranch removes a local branch reference. A missing branch is not an
// error; discard paths call this best-effort.
func (s *Session) DeleteBranch(name string) error {
	ref := plumbing.NewBranchReferenceName(name)
	if _, err := s.repo.Reference(ref, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return cerrors.GitFailure(err, "resolve branch "+name)
	}
	if err := s.repo.Storer.RemoveReference(ref); err != nil {
		return cerrors.GitFailure(err, "delete branch "+name)
	}
	return nil
}

// FileAtCommit reads a file's content at a commit via the object store; no
// checkout is involved.
func (s *Session) FileAtCommit(sha, path string) ([]byte, error) {
	hash, err := s.resolve(sha)
	if err != nil {
		return nil, err
	}
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, cerrors.Newf(cerrors.KindNotFound, "commit %s not found", sha)
		}
		return nil, cerrors.GitFailure(err, "load commit "+sha)
	}
	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, cerrors.Newf(cerrors.KindNotFound, "%s not present at commit %s", path, sha)
		}
		return nil, cerrors.GitFailure(err, "read file at commit")
	}
	reader, err := file.Blob.Reader()
	if err != nil {
		return nil, cerrors.GitFailure(err, "open blob")
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, cerrors.GitFailure(err, "read blob")
	}
	return data, nil
}

// ParentOf returns the first parent of a commit. Root commits yield not_found.
func (s *Session) ParentOf(sha string) (string, error) {
	hash, err := s.resolve(sha)
	if err != nil {
		return "", err
	}
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return "", cerrors.GitFailure(err, "load commit "+sha)
	}
	if commit.NumParents() == 0 {
		return "", cerrors.Newf(cerrors.KindNotFound, "commit %s has no parent", sha)
	}
	return commit.ParentHashes[0].String(), nil
}

// LogFile returns up to max commits touching path on the given branch, newest
// first.
func (s *Session) LogFile(branch, path string, max int) ([]CommitInfo, error) {
	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, cerrors.GitFailure(err, "resolve branch "+branch)
	}
	iter, err := s.repo.Log(&git.LogOptions{
		From:     ref.Hash(),
		FileName: &path,
	})
	if err != nil {
		return nil, cerrors.GitFailure(err, "log "+path)
	}
	defer iter.Close()

	var commits []CommitInfo
	for len(commits) < max {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cerrors.GitFailure(err, "iterate log")
		}
		commits = append(commits, CommitInfo{
			Sha:     c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			Date:    c.Author.When,
			Message: c.Message,
		})
	}
	return commits, nil
}

// resolve turns a sha or revision string into a hash.
func (s *Session) resolve(rev string) (plumbing.Hash, error) {
	if hash := plumbing.NewHash(rev); !hash.IsZero() && len(rev) == 40 {
		return hash, nil
	}
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, cerrors.Newf(cerrors.KindNotFound, "cannot resolve revision %q", rev)
	}
	return *hash, nil
}
