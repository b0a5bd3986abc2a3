// Package review runs the approval workflows: change requests over draft
// branches and promotion requests between environments. It owns the state
// machines; the engines underneath only know about git.
package review

import (
	"context"
	"strings"

	"git.home.luguber.info/inful/confgate/internal/audit"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/mutation"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// Actor is the authenticated identity driving a workflow action.
type Actor struct {
	Username string
	Role     string
}

func (a Actor) isAdmin() bool {
	return a.Role == store.RoleAdmin
}

func (a Actor) canEdit() bool {
	return a.Role == store.RoleAdmin || a.Role == store.RoleEditor
}

// ChangeInput is the caller-supplied part of a new change request.
type ChangeInput struct {
	Env         gitrepo.Env
	Domain      string
	Key         string
	Operation   mutation.Operation
	Content     string
	Title       string
	Description string
}

// ChangeService drives the change request state machine: draft,
// pending_review, approved, merged, with rejected and discarded exits.
type ChangeService struct {
	store    *store.Store
	engine   *mutation.Engine
	reader   *snapshot.Reader
	recorder *audit.Recorder
}

// NewChangeService wires the change workflow.
func NewChangeService(st *store.Store, engine *mutation.Engine, reader *snapshot.Reader, recorder *audit.Recorder) *ChangeService {
	return &ChangeService{store: st, engine: engine, reader: reader, recorder: recorder}
}

// Create validates the input, builds the draft branch, and records the change
// request. A create of an already-existing key or domain is rejected here,
// before any branch exists.
func (s *ChangeService) Create(ctx context.Context, actor Actor, in ChangeInput) (*store.ChangeRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot create changes")
	}
	if err := validateDomain(in.Domain); err != nil {
		return nil, err
	}
	if in.Operation.NeedsKey() {
		if err := validateKey(in.Key); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, cerrors.InvalidInput("title must not be empty")
	}
	if err := s.checkCreateTarget(ctx, in); err != nil {
		return nil, err
	}

	id := mutation.NewDraftID()
	draftSha, err := s.engine.CreateDraft(ctx, mutation.Draft{
		ID:        id,
		Env:       in.Env,
		Domain:    in.Domain,
		Key:       in.Key,
		Operation: in.Operation,
		Content:   in.Content,
		Title:     in.Title,
	})
	if err != nil {
		return nil, err
	}

	cr := &store.ChangeRequest{
		ID:          id,
		Env:         string(in.Env),
		Domain:      in.Domain,
		Key:         in.Key,
		Operation:   string(in.Operation),
		Content:     in.Content,
		Title:       in.Title,
		Description: in.Description,
		Author:      actor.Username,
		DraftSha:    draftSha,
	}
	if err := s.store.CreateChange(ctx, cr); err != nil {
		_ = s.engine.Discard(ctx, id)
		return nil, err
	}

	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.ChangeCreated, ChangeID: id,
		Env: cr.Env, Domain: cr.Domain, Key: cr.Key, Detail: cr.Title,
	})
	return cr, nil
}

// checkCreateTarget rejects creates whose target already exists. The mutation
// engine itself applies creates unconditionally; the workflow is where
// already-exists becomes a conflict.
func (s *ChangeService) checkCreateTarget(ctx context.Context, in ChangeInput) error {
	switch in.Operation {
	case mutation.OpCreate:
		_, err := s.reader.Raw(ctx, in.Env, in.Domain, in.Key)
		if err == nil {
			return cerrors.Newf(cerrors.KindStateConflict,
				"config %s/%s already exists in %s", in.Domain, in.Key, in.Env)
		}
		if !cerrors.IsKind(err, cerrors.KindNotFound) {
			return err
		}
	case mutation.OpCreateDomain:
		domains, err := s.reader.ListDomains(ctx, in.Env)
		if err != nil {
			return err
		}
		for _, d := range domains {
			if d == in.Domain {
				return cerrors.Newf(cerrors.KindStateConflict,
					"domain %s already exists in %s", in.Domain, in.Env)
			}
		}
	}
	return nil
}

// Get returns one change request.
func (s *ChangeService) Get(ctx context.Context, id string) (*store.ChangeRequest, error) {
	return s.store.GetChange(ctx, id)
}

// List returns change requests filtered by status and environment.
func (s *ChangeService) List(ctx context.Context, status, env string) ([]*store.ChangeRequest, error) {
	return s.store.ListChanges(ctx, status, env)
}

// Submit moves a draft into review. Only the author (or an admin) may
// submit. Submitting a change already in review is a no-op.
func (s *ChangeService) Submit(ctx context.Context, actor Actor, id string) (*store.ChangeRequest, error) {
	cr, err := s.store.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Author != actor.Username && !actor.isAdmin() {
		return nil, cerrors.Forbidden("only the author may submit a change")
	}
	if cr.Status == store.ChangeSubmitted {
		return cr, nil
	}
	if err := s.store.TransitionChange(ctx, id, store.ChangeDraft, store.ChangeSubmitted, nil); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.ChangeSubmitted, ChangeID: id,
		Env: cr.Env, Domain: cr.Domain, Key: cr.Key,
	})
	return s.store.GetChange(ctx, id)
}

// Approve moves a submitted change to approved. Authors may approve their
// own changes; the review gate here is procedural, not adversarial.
func (s *ChangeService) Approve(ctx context.Context, actor Actor, id, comment string) (*store.ChangeRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot review changes")
	}
	cr, err := s.store.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.store.TransitionChange(ctx, id, store.ChangeSubmitted, store.ChangeApproved, map[string]string{
		"reviewer":       actor.Username,
		"review_comment": comment,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.ChangeApproved, ChangeID: id,
		Env: cr.Env, Domain: cr.Domain, Key: cr.Key, Detail: comment,
	})
	return s.store.GetChange(ctx, id)
}

// Reject moves a submitted change to rejected and discards its draft branch.
func (s *ChangeService) Reject(ctx context.Context, actor Actor, id, comment string) (*store.ChangeRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot review changes")
	}
	cr, err := s.store.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.store.TransitionChange(ctx, id, store.ChangeSubmitted, store.ChangeRejected, map[string]string{
		"reviewer":       actor.Username,
		"review_comment": comment,
	})
	if err != nil {
		return nil, err
	}
	if err := s.engine.Discard(ctx, id); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.ChangeRejected, ChangeID: id,
		Env: cr.Env, Domain: cr.Domain, Key: cr.Key, Detail: comment,
	})
	return s.store.GetChange(ctx, id)
}

// Merge lands an approved change on its environment branch. The merge happens
// first; the status only advances once the commit exists, so a failed merge
// leaves the change approved and retryable.
func (s *ChangeService) Merge(ctx context.Context, actor Actor, id string) (*store.ChangeRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot merge changes")
	}
	cr, err := s.store.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != store.ChangeApproved {
		return nil, cerrors.Newf(cerrors.KindStateConflict,
			"change request %s is %s, expected %s", id, cr.Status, store.ChangeApproved)
	}

	mergeSha, err := s.engine.Merge(ctx, id, gitrepo.Env(cr.Env), cr.Title)
	if err != nil {
		return nil, err
	}
	err = s.store.TransitionChange(ctx, id, store.ChangeApproved, store.ChangeMerged, map[string]string{
		"merge_sha": mergeSha,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.ChangeMerged, ChangeID: id,
		Env: cr.Env, Domain: cr.Domain, Key: cr.Key, CommitSha: mergeSha,
	})
	return s.store.GetChange(ctx, id)
}

// Discard abandons an open change and deletes its draft branch. Only the
// author or an admin may discard. Discarding twice is a no-op.
func (s *ChangeService) Discard(ctx context.Context, actor Actor, id string) (*store.ChangeRequest, error) {
	cr, err := s.store.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Author != actor.Username && !actor.isAdmin() {
		return nil, cerrors.Forbidden("only the author may discard a change")
	}
	if cr.Status == store.ChangeDiscarded {
		return cr, nil
	}
	switch cr.Status {
	case store.ChangeDraft, store.ChangeSubmitted, store.ChangeRejected:
	default:
		return nil, cerrors.Newf(cerrors.KindStateConflict,
			"change request %s is %s and can no longer be discarded", id, cr.Status)
	}
	if err := s.store.TransitionChange(ctx, id, cr.Status, store.ChangeDiscarded, nil); err != nil {
		return nil, err
	}
	if err := s.engine.Discard(ctx, id); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.ChangeDiscarded, ChangeID: id,
		Env: cr.Env, Domain: cr.Domain, Key: cr.Key,
	})
	return s.store.GetChange(ctx, id)
}
