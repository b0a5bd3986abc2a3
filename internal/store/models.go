package store

import "time"

// Change request lifecycle states.
const (
	ChangeDraft     = "draft"
	ChangeSubmitted = "pending_review"
	ChangeApproved  = "approved"
	ChangeRejected  = "rejected"
	ChangeMerged    = "merged"
	ChangeDiscarded = "discarded"
)

// Promotion request lifecycle states.
const (
	PromotionPending    = "pending"
	PromotionApproved   = "approved"
	PromotionRejected   = "rejected"
	PromotionPromoted   = "promoted"
	PromotionFailed     = "failed"
	PromotionRolledBack = "rolled_back"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// User is an account allowed to authenticate against the service.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChangeRequest is one reviewed config mutation, bound to a draft branch in
// the repository while it is open.
type ChangeRequest struct {
	ID            string    `json:"id"`
	Env           string    `json:"env"`
	Domain        string    `json:"domain"`
	Key           string    `json:"key,omitempty"`
	Operation     string    `json:"operation"`
	Content       string    `json:"content,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Author        string    `json:"author"`
	Status        string    `json:"status"`
	DraftSha      string    `json:"draft_sha,omitempty"`
	MergeSha      string    `json:"merge_sha,omitempty"`
	Reviewer      string    `json:"reviewer,omitempty"`
	ReviewComment string    `json:"review_comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PromotionRequest is one reviewed cross-environment promotion.
type PromotionRequest struct {
	ID            string    `json:"id"`
	SourceEnv     string    `json:"source_env"`
	TargetEnv     string    `json:"target_env"`
	Domain        string    `json:"domain"`
	Files         []string  `json:"files"`
	Requester     string    `json:"requester"`
	Status        string    `json:"status"`
	Approver      string    `json:"approver,omitempty"`
	ReviewComment string    `json:"review_comment,omitempty"`
	CommitSha     string    `json:"commit_sha,omitempty"`
	RollbackSha   string    `json:"rollback_sha,omitempty"`
	Failure       string    `json:"failure,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AuditEntry is one immutable row in the audit log.
type AuditEntry struct {
	ID          int64     `json:"id"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	ChangeID    string    `json:"change_id,omitempty"`
	PromotionID string    `json:"promotion_id,omitempty"`
	Env         string    `json:"env,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	Key         string    `json:"key,omitempty"`
	CommitSha   string    `json:"commit_sha,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dependency records that a consumer service reads a config key.
type Dependency struct {
	ID           int64     `json:"id"`
	Consumer     string    `json:"consumer"`
	Env          string    `json:"env"`
	Domain       string    `json:"domain"`
	Key          string    `json:"key"`
	Contact      string    `json:"contact,omitempty"`
	Stale        bool      `json:"stale"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// timeFormat is the canonical timestamp encoding for all tables. The nano
// field is fixed-width so stored values sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
