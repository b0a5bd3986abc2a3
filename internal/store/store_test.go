package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChangeRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cr := &ChangeRequest{
		ID: "ab12cd34", Env: "dev", Domain: "pricing", Key: "default",
		Operation: "create", Content: "rate: 0.1\n", Title: "init", Author: "alice",
		DraftSha: "deadbeef",
	}
	require.NoError(t, s.CreateChange(ctx, cr))
	assert.Equal(t, ChangeDraft, cr.Status)

	got, err := s.GetChange(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "pricing", got.Domain)
	assert.Equal(t, "alice", got.Author)
	assert.Equal(t, "deadbeef", got.DraftSha)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.TransitionChange(ctx, cr.ID, ChangeDraft, ChangeSubmitted, nil))
	require.NoError(t, s.TransitionChange(ctx, cr.ID, ChangeSubmitted, ChangeApproved, map[string]string{
		"reviewer":       "bob",
		"review_comment": "looks right",
	}))
	require.NoError(t, s.TransitionChange(ctx, cr.ID, ChangeApproved, ChangeMerged, map[string]string{
		"merge_sha": "cafebabe",
	}))

	got, err = s.GetChange(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, ChangeMerged, got.Status)
	assert.Equal(t, "bob", got.Reviewer)
	assert.Equal(t, "cafebabe", got.MergeSha)
}

func TestTransitionChangeGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cr := &ChangeRequest{ID: "x1", Env: "dev", Domain: "d", Operation: "create_domain",
		Title: "t", Author: "alice"}
	require.NoError(t, s.CreateChange(ctx, cr))

	// Wrong expected status loses the guard.
	err := s.TransitionChange(ctx, "x1", ChangeSubmitted, ChangeApproved, nil)
	assert.Equal(t, cerrors.KindStateConflict, cerrors.KindOf(err))

	// Unknown id is not found, not a conflict.
	err = s.TransitionChange(ctx, "nope", ChangeDraft, ChangeSubmitted, nil)
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))
}

type captureRecorder struct {
	metrics.NoopRecorder
	transitions []string
}

func (c *captureRecorder) IncTransition(entity, action string, success bool) {
	c.transitions = append(c.transitions, fmt.Sprintf("%s/%s/%t", entity, action, success))
}

func TestTransitionsRecordMetrics(t *testing.T) {
	rec := &captureRecorder{}
	s, err := New(":memory:", rec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.CreateChange(ctx, &ChangeRequest{ID: "m1", Env: "dev", Domain: "d",
		Operation: "create_domain", Title: "t", Author: "alice"}))
	require.NoError(t, s.TransitionChange(ctx, "m1", ChangeDraft, ChangeSubmitted, nil))
	// Losing the status guard counts as a failed transition.
	_ = s.TransitionChange(ctx, "m1", ChangeDraft, ChangeSubmitted, nil)

	require.NoError(t, s.CreatePromotion(ctx, &PromotionRequest{ID: "m2", SourceEnv: "dev",
		TargetEnv: "staging", Domain: "d", Files: []string{"k"}, Requester: "alice"}))
	require.NoError(t, s.TransitionPromotion(ctx, "m2", PromotionPending, PromotionApproved, nil))

	assert.Equal(t, []string{
		"change_request/" + ChangeSubmitted + "/true",
		"change_request/" + ChangeSubmitted + "/false",
		"promotion/" + PromotionApproved + "/true",
	}, rec.transitions)
}

func TestListChangesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cr := range []*ChangeRequest{
		{ID: "a", Env: "dev", Domain: "d", Operation: "create_domain", Title: "t", Author: "u"},
		{ID: "b", Env: "staging", Domain: "d", Operation: "create_domain", Title: "t", Author: "u"},
	} {
		require.NoError(t, s.CreateChange(ctx, cr))
	}
	require.NoError(t, s.TransitionChange(ctx, "b", ChangeDraft, ChangeSubmitted, nil))

	all, err := s.ListChanges(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	submitted, err := s.ListChanges(ctx, ChangeSubmitted, "")
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "b", submitted[0].ID)

	dev, err := s.ListChanges(ctx, "", "dev")
	require.NoError(t, err)
	require.Len(t, dev, 1)
	assert.Equal(t, "a", dev[0].ID)
}

func TestPromotionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pr := &PromotionRequest{
		ID: "p1", SourceEnv: "dev", TargetEnv: "staging", Domain: "pricing",
		Files: []string{"default", "premium"}, Requester: "alice",
	}
	require.NoError(t, s.CreatePromotion(ctx, pr))
	assert.Equal(t, PromotionPending, pr.Status)

	got, err := s.GetPromotion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "premium"}, got.Files)

	require.NoError(t, s.TransitionPromotion(ctx, "p1", PromotionPending, PromotionApproved,
		map[string]string{"approver": "bob"}))
	require.NoError(t, s.TransitionPromotion(ctx, "p1", PromotionApproved, PromotionPromoted,
		map[string]string{"commit_sha": "cafebabe"}))

	got, err = s.GetPromotion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, PromotionPromoted, got.Status)
	assert.Equal(t, "bob", got.Approver)
	assert.Equal(t, "cafebabe", got.CommitSha)

	// Double-execute loses the status guard.
	err = s.TransitionPromotion(ctx, "p1", PromotionApproved, PromotionPromoted, nil)
	assert.Equal(t, cerrors.KindStateConflict, cerrors.KindOf(err))
}

func TestPromotionFailureFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pr := &PromotionRequest{ID: "p2", SourceEnv: "staging", TargetEnv: "prod",
		Domain: "pricing", Files: []string{"default"}, Requester: "alice"}
	require.NoError(t, s.CreatePromotion(ctx, pr))
	require.NoError(t, s.TransitionPromotion(ctx, "p2", PromotionPending, PromotionApproved, nil))
	require.NoError(t, s.TransitionPromotion(ctx, "p2", PromotionApproved, PromotionFailed,
		map[string]string{"failure": "target branch diverged"}))

	got, err := s.GetPromotion(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, PromotionFailed, got.Status)
	assert.Equal(t, "target branch diverged", got.Failure)
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &User{ID: "u1", Username: "alice", PasswordHash: "hash", Role: RoleEditor}
	require.NoError(t, s.CreateUser(ctx, u))

	err := s.CreateUser(ctx, &User{ID: "u2", Username: "alice", PasswordHash: "h", Role: RoleViewer})
	assert.Equal(t, cerrors.KindStateConflict, cerrors.KindOf(err))

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, got.Role)

	_, err = s.GetUserByUsername(ctx, "mallory")
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, action := range []string{"change_request.created", "change_request.merged", "promotion.created"} {
		e := &AuditEntry{Actor: "alice", Action: action, Env: "dev", Domain: "pricing", Key: "default"}
		if i == 1 {
			e.CommitSha = "cafebabe"
		}
		if i == 2 {
			e.Actor = "bob"
			e.PromotionID = "p1"
		}
		require.NoError(t, s.AppendAudit(ctx, e))
		assert.NotZero(t, e.ID)
	}

	recent, err := s.ListRecentAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "promotion.created", recent[0].Action, "newest first")
	assert.Equal(t, "cafebabe", recent[1].CommitSha)
	assert.Empty(t, recent[0].CommitSha)

	byActor, err := s.AuditByActor(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byConfig, err := s.AuditByConfig(ctx, "dev", "pricing", "default", 10)
	require.NoError(t, err)
	assert.Len(t, byConfig, 3)

	otherEnv, err := s.AuditByConfig(ctx, "prod", "pricing", "default", 10)
	require.NoError(t, err)
	assert.Empty(t, otherEnv)

	limited, err := s.ListRecentAudit(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDependencies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &Dependency{Consumer: "checkout-svc", Env: "prod", Domain: "pricing",
		Key: "default", Contact: "team-payments"}
	require.NoError(t, s.UpsertDependency(ctx, d))
	require.NoError(t, s.UpsertDependency(ctx, &Dependency{
		Consumer: "billing-svc", Env: "prod", Domain: "pricing", Key: "default"}))

	consumers, err := s.ConsumersOf(ctx, "prod", "pricing", "default")
	require.NoError(t, err)
	require.Len(t, consumers, 2)
	assert.Equal(t, "billing-svc", consumers[0].Consumer)

	// Everything last seen before a future cutoff goes stale.
	flagged, err := s.MarkStaleDependencies(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, flagged)

	// Re-registering clears the flag.
	require.NoError(t, s.UpsertDependency(ctx, d))
	all, err := s.ListDependencies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, dep := range all {
		if dep.Consumer == "checkout-svc" {
			assert.False(t, dep.Stale)
			assert.Equal(t, "team-payments", dep.Contact)
		} else {
			assert.True(t, dep.Stale)
		}
	}
}
