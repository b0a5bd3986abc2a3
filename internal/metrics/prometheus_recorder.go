package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	lockWait      prom.Histogram
	lockHold      *prom.HistogramVec
	gitOps        *prom.CounterVec
	httpRequests  *prom.CounterVec
	httpDuration  *prom.HistogramVec
	transitions   *prom.CounterVec
	driftedKeys   prom.Gauge
	syncedPercent prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.lockWait = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "confgate",
			Name:      "repo_lock_wait_seconds",
			Help:      "Time spent waiting for the repository lock",
			Buckets:   prom.DefBuckets,
		})
		pr.lockHold = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "confgate",
			Name:      "repo_lock_hold_seconds",
			Help:      "Time the repository lock was held per operation",
			Buckets:   prom.DefBuckets,
		}, []string{"op"})
		pr.gitOps = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "confgate",
			Name:      "git_operations_total",
			Help:      "Git operation counts by outcome",
		}, []string{"op", "result"})
		pr.httpRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "confgate",
			Name:      "http_requests_total",
			Help:      "HTTP request counts by method, path, and status",
		}, []string{"method", "path", "status"})
		pr.httpDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "confgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration per path",
			Buckets:   prom.DefBuckets,
		}, []string{"path"})
		pr.transitions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "confgate",
			Name:      "review_transitions_total",
			Help:      "Review state machine transitions by entity and action",
		}, []string{"entity", "action", "result"})
		pr.driftedKeys = prom.NewGauge(prom.GaugeOpts{
			Namespace: "confgate",
			Name:      "drifted_keys",
			Help:      "Number of keys classified as drifted in the last scan",
		})
		pr.syncedPercent = prom.NewGauge(prom.GaugeOpts{
			Namespace: "confgate",
			Name:      "synced_percent",
			Help:      "Overall sync percentage from the last drift scan",
		})
		reg.MustRegister(pr.lockWait, pr.lockHold, pr.gitOps, pr.httpRequests,
			pr.httpDuration, pr.transitions, pr.driftedKeys, pr.syncedPercent)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveLockWait(d time.Duration) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveLockHold(op string, d time.Duration) {
	if p == nil || p.lockHold == nil {
		return
	}
	p.lockHold.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncGitOp(op string, success bool) {
	if p == nil || p.gitOps == nil {
		return
	}
	p.gitOps.WithLabelValues(op, resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncHTTPRequest(method, path string, status int) {
	if p == nil || p.httpRequests == nil {
		return
	}
	p.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) ObserveHTTPDuration(path string, d time.Duration) {
	if p == nil || p.httpDuration == nil {
		return
	}
	p.httpDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTransition(entity, action string, success bool) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(entity, action, resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) SetDriftedKeys(n int) {
	if p == nil || p.driftedKeys == nil {
		return
	}
	p.driftedKeys.Set(float64(n))
}

func (p *PrometheusRecorder) SetSyncedPercent(pct int) {
	if p == nil || p.syncedPercent == nil {
		return
	}
	p.syncedPercent.Set(float64(pct))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
