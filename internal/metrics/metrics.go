// Package metrics holds the Prometheus collectors for harvest runs. A nil *Set
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal_harvest"

// Set is one private registry with the run collectors.
type Set struct {
	reg          *prometheus.Registry
	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	verdicts     *prometheus.CounterVec
	probeBytes   prometheus.Counter
	channels     prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Set {
	s := &Set{
		reg: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Scheduler tasks by kind (discover, verify) and result (ok, failed, skipped).",
		}, []string{"kind", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of one scheduler task.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 60, 90},
		}, []string{"kind"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_verdicts_total",
			Help:      "Probe verdicts by status.",
		}, []string{"status"}),
		probeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_bytes_total",
			Help:      "Bytes read by throughput probes.",
		}),
		channels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_channels_total",
			Help:      "Channels written by discovery runs.",
		}),
	}
	s.reg.MustRegister(s.tasks, s.taskDuration, s.verdicts, s.probeBytes, s.channels)
	return s
}

// Registry exposes the underlying registry as a gatherer.
func (s *Set) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.reg
}

// ObserveTask counts one finished task. result is "ok", "failed" or "skipped".
func (s *Set) ObserveTask(kind, result string, d time.Duration) {
	if s == nil {
		return
	}
	s.tasks.WithLabelValues(kind, result).Inc()
	if result != "skipped" {
		s.taskDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// ObserveVerdict counts one probe verdict and the bytes it read.
func (s *Set) ObserveVerdict(status string, bytes int64) {
	if s == nil {
		return
	}
	s.verdicts.WithLabelValues(status).Inc()
	if bytes > 0 {
		s.probeBytes.Add(float64(bytes))
	}
}

// AddChannels counts channels written by one discovery task.
func (s *Set) AddChannels(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.channels.Add(float64(n))
}

// WriteTextfile writes the current values in the node-exporter textfile format.
func (s *Set) WriteTextfile(path string) error {
	if s == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, s.reg)
}
