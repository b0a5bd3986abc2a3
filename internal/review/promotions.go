package review

import (
	"context"

	"git.home.luguber.info/inful/confgate/internal/audit"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/mutation"
	"git.home.luguber.info/inful/confgate/internal/promotion"
	"git.home.luguber.info/inful/confgate/internal/rollback"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// PromotionInput is the caller-supplied part of a new promotion request.
type PromotionInput struct {
	Source gitrepo.Env
	Target gitrepo.Env
	Domain string
	Files  []string
}

// PromotionService drives the promotion state machine:
// pending → approved → promoted, with rejected, failed, and rolled_back
// terminal states.
type PromotionService struct {
	store    *store.Store
	engine   *promotion.Engine
	rollback *rollback.Engine
	recorder *audit.Recorder
}

// NewPromotionService wires the promotion workflow.
func NewPromotionService(st *store.Store, engine *promotion.Engine, rb *rollback.Engine, recorder *audit.Recorder) *PromotionService {
	return &PromotionService{store: st, engine: engine, rollback: rb, recorder: recorder}
}

// Create validates the flow and records a pending promotion request.
func (s *PromotionService) Create(ctx context.Context, actor Actor, in PromotionInput) (*store.PromotionRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot request promotions")
	}
	if err := promotion.ValidateFlow(in.Source, in.Target); err != nil {
		return nil, err
	}
	if err := validateDomain(in.Domain); err != nil {
		return nil, err
	}
	if len(in.Files) == 0 {
		return nil, cerrors.InvalidInput("a promotion must name at least one file")
	}
	for _, f := range in.Files {
		if err := validateKey(f); err != nil {
			return nil, err
		}
	}

	pr := &store.PromotionRequest{
		ID:        mutation.NewDraftID(),
		SourceEnv: string(in.Source),
		TargetEnv: string(in.Target),
		Domain:    in.Domain,
		Files:     in.Files,
		Requester: actor.Username,
	}
	if err := s.store.CreatePromotion(ctx, pr); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.PromotionCreated, PromotionID: pr.ID,
		Env: pr.TargetEnv, Domain: pr.Domain,
	})
	return pr, nil
}

// Get returns one promotion request.
func (s *PromotionService) Get(ctx context.Context, id string) (*store.PromotionRequest, error) {
	return s.store.GetPromotion(ctx, id)
}

// List returns promotion requests filtered by status.
func (s *PromotionService) List(ctx context.Context, status string) ([]*store.PromotionRequest, error) {
	return s.store.ListPromotions(ctx, status)
}

// Preview renders the per-file diffs a promotion would apply.
func (s *PromotionService) Preview(ctx context.Context, id string) ([]promotion.FileDiff, error) {
	pr, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Preview(ctx, request(pr))
}

// Approve moves a pending promotion to approved. Requesters cannot approve
// their own promotions; an admin may.
func (s *PromotionService) Approve(ctx context.Context, actor Actor, id, comment string) (*store.PromotionRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot review promotions")
	}
	pr, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	if pr.Requester == actor.Username && !actor.isAdmin() {
		return nil, cerrors.Forbidden("promotions require a second reviewer")
	}
	err = s.store.TransitionPromotion(ctx, id, store.PromotionPending, store.PromotionApproved, map[string]string{
		"approver":       actor.Username,
		"review_comment": comment,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.PromotionApproved, PromotionID: id,
		Env: pr.TargetEnv, Domain: pr.Domain, Detail: comment,
	})
	return s.store.GetPromotion(ctx, id)
}

// Reject moves a pending promotion to rejected.
func (s *PromotionService) Reject(ctx context.Context, actor Actor, id, comment string) (*store.PromotionRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot review promotions")
	}
	pr, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.store.TransitionPromotion(ctx, id, store.PromotionPending, store.PromotionRejected, map[string]string{
		"approver":       actor.Username,
		"review_comment": comment,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.PromotionRejected, PromotionID: id,
		Env: pr.TargetEnv, Domain: pr.Domain, Detail: comment,
	})
	return s.store.GetPromotion(ctx, id)
}

// Execute runs an approved promotion. A git failure marks the request failed
// with the error preserved, then surfaces the original error to the caller.
func (s *PromotionService) Execute(ctx context.Context, actor Actor, id string) (*store.PromotionRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot execute promotions")
	}
	pr, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	if pr.Status != store.PromotionApproved {
		return nil, cerrors.Newf(cerrors.KindStateConflict,
			"promotion request %s is %s, expected %s", id, pr.Status, store.PromotionApproved)
	}

	sha, err := s.engine.Execute(ctx, request(pr))
	if err != nil {
		_ = s.store.TransitionPromotion(ctx, id, store.PromotionApproved, store.PromotionFailed, map[string]string{
			"failure": err.Error(),
		})
		s.recorder.Record(ctx, store.AuditEntry{
			Actor: actor.Username, Action: audit.PromotionFailed, PromotionID: id,
			Env: pr.TargetEnv, Domain: pr.Domain, Detail: err.Error(),
		})
		return nil, err
	}

	err = s.store.TransitionPromotion(ctx, id, store.PromotionApproved, store.PromotionPromoted, map[string]string{
		"commit_sha": sha,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.PromotionExecuted, PromotionID: id,
		Env: pr.TargetEnv, Domain: pr.Domain, CommitSha: sha,
	})
	return s.store.GetPromotion(ctx, id)
}

// Rollback restores the target environment to its pre-promotion state. Only
// promoted requests can be rolled back.
func (s *PromotionService) Rollback(ctx context.Context, actor Actor, id, reason string) (*store.PromotionRequest, error) {
	if !actor.canEdit() {
		return nil, cerrors.Forbidden("role " + actor.Role + " cannot roll back promotions")
	}
	pr, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, err
	}
	if pr.Status != store.PromotionPromoted {
		return nil, cerrors.Newf(cerrors.KindStateConflict,
			"promotion request %s is %s, only promoted requests can be rolled back", id, pr.Status)
	}

	sha, err := s.rollback.RollbackPromotion(ctx, id, gitrepo.Env(pr.TargetEnv),
		pr.Domain, pr.Files, pr.CommitSha, reason)
	if err != nil {
		return nil, err
	}
	err = s.store.TransitionPromotion(ctx, id, store.PromotionPromoted, store.PromotionRolledBack, map[string]string{
		"rollback_sha": sha,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, store.AuditEntry{
		Actor: actor.Username, Action: audit.PromotionRolledBack, PromotionID: id,
		Env: pr.TargetEnv, Domain: pr.Domain, CommitSha: sha, Detail: reason,
	})
	return s.store.GetPromotion(ctx, id)
}

func request(pr *store.PromotionRequest) promotion.Request {
	return promotion.Request{
		ID:     pr.ID,
		Source: gitrepo.Env(pr.SourceEnv),
		Target: gitrepo.Env(pr.TargetEnv),
		Domain: pr.Domain,
		Files:  pr.Files,
	}
}
