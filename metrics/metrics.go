// Package metrics counts the outcomes of a run and exports them in the
// prometheus text format, for pickup by node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Post outcomes.
const (
	Downloaded  = "downloaded"
	Skipped     = "skipped"
	Unsupported = "unsupported"
	Failed      = "failed"
)

var outcomes = []string{Downloaded, Skipped, Unsupported, Failed}

// Run collects the metrics of a single run.
type Run struct {
	reg     *prometheus.Registry
	posts   *prometheus.CounterVec
	bytes   prometheus.Counter
	lastRun prometheus.Gauge

	mtx    sync.Mutex
	counts map[string]int
}

// NewRun creates the metrics for a run over the given subreddit or user.
func NewRun(target string) *Run {
	labels := prometheus.Labels{"target": target}

	r := &Run{
		reg: prometheus.NewRegistry(),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "slurp_posts_total",
			Help:        "Posts processed, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "slurp_downloaded_bytes_total",
			Help:        "Bytes written to media files.",
			ConstLabels: labels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "slurp_last_run_timestamp_seconds",
			Help:        "Unix time the run finished.",
			ConstLabels: labels,
		}),
		counts: map[string]int{},
	}

	r.reg.MustRegister(r.posts, r.bytes, r.lastRun)
	for _, o := range outcomes {
		r.posts.WithLabelValues(o)
	}

	return r
}

// Record counts one post with the given outcome.
func (r *Run) Record(outcome string) {
	r.posts.WithLabelValues(outcome).Inc()

	r.mtx.Lock()
	r.counts[outcome]++
	r.mtx.Unlock()
}

// AddBytes counts bytes written to disk.
func (r *Run) AddBytes(n int64) {
	r.bytes.Add(float64(n))
}

// Count returns the number of posts recorded with the given outcome.
func (r *Run) Count(outcome string) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.counts[outcome]
}

// Summary returns a one-line description of the run's outcomes.
func (r *Run) Summary() string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s=%d", o, r.Count(o)))
	}
	return strings.Join(parts, " ")
}

// Gatherer exposes the run's registry.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile stamps the finish time and writes all metrics to path.
func (r *Run) WriteTextfile(path string, finished time.Time) error {
	r.lastRun.Set(float64(finished.Unix()))
	return prometheus.WriteToTextfile(path, r.reg)
}
