// Package audit records workflow actions to the append-only audit log with a
// closed set of action tags.
package audit

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/confgate/internal/logfields"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// Action tags. Tooling filters on these; additions are fine, renames are not.
const (
	ChangeCreated   = "change_request.created"
	ChangeSubmitted = "change_request.submitted"
	ChangeApproved  = "change_request.approved"
	ChangeRejected  = "change_request.rejected"
	ChangeMerged    = "change_request.merged"
	ChangeDiscarded = "change_request.discarded"

	PromotionCreated    = "promotion.created"
	PromotionApproved   = "promotion.approved"
	PromotionRejected   = "promotion.rejected"
	PromotionExecuted   = "promotion.executed"
	PromotionFailed     = "promotion.failed"
	PromotionRolledBack = "promotion.rolled_back"

	ConfigRollback = "config.rollback"

	AuthLogin  = "auth.login"
	AuthLogout = "auth.logout"
)

// Recorder appends audit entries. Audit failures are logged and swallowed:
// the workflow action already happened and must not be reported as failed
// because its trail could not be written.
type Recorder struct {
	store *store.Store
}

// NewRecorder creates a recorder over the store.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record appends one entry.
func (r *Recorder) Record(ctx context.Context, e store.AuditEntry) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.AppendAudit(ctx, &e); err != nil {
		slog.Error("Failed to write audit entry",
			logfields.Actor(e.Actor),
			logfields.Action(e.Action),
			logfields.Error(err))
	}
}
