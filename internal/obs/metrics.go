package obs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "bondpipe"

// Metrics collects pipeline counters on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	linesRead      *prometheus.CounterVec
	linesSkipped   *prometheus.CounterVec
	published      *prometheus.CounterVec
	listenerErrors *prometheus.CounterVec
	queueDrops     *prometheus.CounterVec
	riskBreaches   *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
}

// Snapshot is a flat view of every counter, keyed "name{label=value}".
type Snapshot struct {
	Counters map[string]float64
}

// NewMetrics allocates and registers the pipeline collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_lines_read_total",
			Help:      "Lines read from an input feed.",
		}, []string{"feed"}),
		linesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_lines_skipped_total",
			Help:      "Malformed or unresolvable lines skipped by an input feed.",
		}, []string{"feed"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_published_total",
			Help:      "Records published by a pipeline stage.",
		}, []string{"stage"}),
		listenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_listener_errors_total",
			Help:      "Listener failures observed while a stage was publishing.",
		}, []string{"stage"}),
		queueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_queue_drops_total",
			Help:      "Records dropped because a sink queue was full or closed.",
		}, []string{"sink"}),
		riskBreaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_pv01_limit_breaches_total",
			Help:      "PV01 figures above the configured absolute limit.",
		}, []string{"instrument"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_record_seconds",
			Help:      "Time to push one feed record through the pipeline.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"feed"}),
	}
	m.registry.MustRegister(
		m.linesRead,
		m.linesSkipped,
		m.published,
		m.listenerErrors,
		m.queueDrops,
		m.riskBreaches,
		m.stageLatency,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncLineRead(feed string) {
	if m == nil {
		return
	}
	m.linesRead.WithLabelValues(feed).Inc()
}

func (m *Metrics) IncLineSkipped(feed string) {
	if m == nil {
		return
	}
	m.linesSkipped.WithLabelValues(feed).Inc()
}

func (m *Metrics) IncPublished(stage string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncListenerError(stage string) {
	if m == nil {
		return
	}
	m.listenerErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncQueueDrop(sink string) {
	if m == nil {
		return
	}
	m.queueDrops.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncRiskBreach(instrument string) {
	if m == nil {
		return
	}
	m.riskBreaches.WithLabelValues(instrument).Inc()
}

// ObserveRecord measures how long one feed record took end to end.
func (m *Metrics) ObserveRecord(feed string, d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.stageLatency.WithLabelValues(feed).Observe(d.Seconds())
}

// WriteTextfile dumps the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[string]float64)}
	if m == nil {
		return snap
	}
	families, err := m.registry.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range mf.GetMetric() {
			snap.Counters[seriesName(mf.GetName(), metric.GetLabel())] = metric.GetCounter().GetValue()
		}
	}
	return snap
}

// String renders the snapshot with keys in lexical order.
func (s Snapshot) String() string {
	keys := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatCount(s.Counters[k]))
	}
	return b.String()
}

func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, lp := range labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(lp.GetName())
		b.WriteByte('=')
		b.WriteString(lp.GetValue())
	}
	b.WriteByte('}')
	return b.String()
}

func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
