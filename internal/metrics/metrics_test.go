package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRun(OutcomeCompleted)
	m.RecordRun(OutcomeCompleted)
	m.RecordRun(OutcomeSkipped)
	m.RecordMeetingProcessed(3)
	m.RecordExtractionFailure()
	m.RecordIssueCreated()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.meetingsProcessed))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.itemsExtracted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.extractionFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.issuesCreated))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRun(OutcomeCompleted)
	m.RecordMeetingProcessed(1)
	m.RecordExtractionFailure()
	m.RecordIssueCreated()
}

func TestItemStatusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewItemStatusCollector(func() map[string]int {
		return map[string]int{
			"pending_review": 2,
			"approved":       1,
			"total":          3,
		}
	})
	reg.MustRegister(c)

	expected := strings.NewReader(`
# HELP granolad_action_items Action items currently tracked, by lifecycle status.
# TYPE granolad_action_items gauge
granolad_action_items{status="approved"} 1
granolad_action_items{status="pending_review"} 2
`)
	assert.NoError(t, testutil.GatherAndCompare(reg, expected))
}
