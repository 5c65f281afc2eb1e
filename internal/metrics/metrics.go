// Package metrics exposes Prometheus instrumentation for the
// processing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded on the runs counter.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the pipeline instruments. A nil *Metrics is valid and
// records nothing, so wiring stays optional in tests and one-shot runs.
type Metrics struct {
	runs               *prometheus.CounterVec
	meetingsProcessed  prometheus.Counter
	itemsExtracted     prometheus.Counter
	extractionFailures prometheus.Counter
	issuesCreated      prometheus.Counter
}

// New registers pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "granolad_runs_total",
			Help: "Processing passes by outcome.",
		}, []string{"outcome"}),
		meetingsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "granolad_meetings_processed_total",
			Help: "Meetings successfully run through extraction.",
		}),
		itemsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "granolad_action_items_extracted_total",
			Help: "Action items extracted across all meetings.",
		}),
		extractionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "granolad_extraction_failures_total",
			Help: "Per-meeting extraction failures (meeting left eligible for retry).",
		}),
		issuesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "granolad_linear_issues_created_total",
			Help: "Linear issues created from approved action items.",
		}),
	}
}

// RecordRun records one processing pass outcome.
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// RecordMeetingProcessed records one successfully extracted meeting and
// its item count.
func (m *Metrics) RecordMeetingProcessed(itemCount int) {
	if m == nil {
		return
	}
	m.meetingsProcessed.Inc()
	m.itemsExtracted.Add(float64(itemCount))
}

// RecordExtractionFailure records one failed meeting extraction.
func (m *Metrics) RecordExtractionFailure() {
	if m == nil {
		return
	}
	m.extractionFailures.Inc()
}

// RecordIssueCreated records one created Linear issue.
func (m *Metrics) RecordIssueCreated() {
	if m == nil {
		return
	}
	m.issuesCreated.Inc()
}

// ItemStatusCollector exports the current action item count per
// lifecycle state as a gauge. The snapshot function is called on every
// scrape; "total" entries are skipped since Prometheus sums for free.
type ItemStatusCollector struct {
	desc     *prometheus.Desc
	snapshot func() map[string]int
}

var _ prometheus.Collector = (*ItemStatusCollector)(nil)

// NewItemStatusCollector creates a collector over a stats snapshot
// function, typically the store's Stats method.
func NewItemStatusCollector(snapshot func() map[string]int) *ItemStatusCollector {
	return &ItemStatusCollector{
		desc: prometheus.NewDesc(
			"granolad_action_items",
			"Action items currently tracked, by lifecycle status.",
			[]string{"status"}, nil,
		),
		snapshot: snapshot,
	}
}

// Describe implements prometheus.Collector.
func (c *ItemStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *ItemStatusCollector) Collect(ch chan<- prometheus.Metric) {
	for status, count := range c.snapshot() {
		if status == "total" {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(count), status)
	}
}
