package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEnv         = "environment"
	KeyDomain      = "domain"
	KeyConfigKey   = "config_key"
	KeyBranch      = "branch"
	KeyCommit      = "commit"
	KeyChangeID    = "change_id"
	KeyPromotionID = "promotion_id"
	KeyActor       = "actor"
	KeyAction      = "action"
	KeyOperation   = "operation"
	KeyStatus      = "status"
	KeyMethod      = "method"
	KeyPath        = "path"
	KeyHTTPStatus  = "http_status"
	KeyDurationMS  = "duration_ms"
	KeyRemoteAddr  = "remote_addr"
	KeyUserAgent   = "user_agent"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Env(e string) slog.Attr         { return slog.String(KeyEnv, e) }
func Domain(d string) slog.Attr      { return slog.String(KeyDomain, d) }
func ConfigKey(k string) slog.Attr   { return slog.String(KeyConfigKey, k) }
func Branch(b string) slog.Attr      { return slog.String(KeyBranch, b) }
func Commit(sha string) slog.Attr    { return slog.String(KeyCommit, sha) }
func ChangeID(id string) slog.Attr   { return slog.String(KeyChangeID, id) }
func PromotionID(id string) slog.Attr { return slog.String(KeyPromotionID, id) }
func Actor(a string) slog.Attr       { return slog.String(KeyActor, a) }
func Action(a string) slog.Attr      { return slog.String(KeyAction, a) }
func Operation(op string) slog.Attr  { return slog.String(KeyOperation, op) }
func Status(s string) slog.Attr      { return slog.String(KeyStatus, s) }
func Method(m string) slog.Attr      { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func HTTPStatus(code int) slog.Attr  { return slog.Int(KeyHTTPStatus, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func RemoteAddr(a string) slog.Attr  { return slog.String(KeyRemoteAddr, a) }
func UserAgent(ua string) slog.Attr  { return slog.String(KeyUserAgent, ua) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
