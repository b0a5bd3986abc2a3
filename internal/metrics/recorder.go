package metrics

import "time"

// Recorder defines observability hooks for repository and HTTP metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveLockWait(d time.Duration)
	ObserveLockHold(op string, d time.Duration)
	IncGitOp(op string, success bool)
	IncHTTPRequest(method, path string, status int)
	ObserveHTTPDuration(path string, d time.Duration)
	IncTransition(entity, action string, success bool)
	SetDriftedKeys(n int)
	SetSyncedPercent(p int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveLockWait(time.Duration)              {}
func (NoopRecorder) ObserveLockHold(string, time.Duration)      {}
func (NoopRecorder) IncGitOp(string, bool)                      {}
func (NoopRecorder) IncHTTPRequest(string, string, int)         {}
func (NoopRecorder) ObserveHTTPDuration(string, time.Duration)  {}
func (NoopRecorder) IncTransition(string, string, bool)         {}
func (NoopRecorder) SetDriftedKeys(int)                         {}
func (NoopRecorder) SetSyncedPercent(int)                       {}
