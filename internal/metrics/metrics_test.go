package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveCommandDuration(t *testing.T) {
	labels := map[string]string{"outcome": "ok"}
	CommandDuration.WithLabelValues("ok")

	before := getHistogramCount(t, "stata_command_duration_seconds", labels)

	ObserveCommandDuration("ok", time.Now().Add(-time.Second))

	after := getHistogramCount(t, "stata_command_duration_seconds", labels)
	require.Equal(t, before+1, after)
}

func TestRecordLadderStage(t *testing.T) {
	labels := map[string]string{"stage": "aggressive"}
	TerminationLadderStageTotal.WithLabelValues("aggressive")

	before := getCounterValue(t, "stata_termination_ladder_stage_total", labels)

	RecordLadderStage("aggressive")

	after := getCounterValue(t, "stata_termination_ladder_stage_total", labels)
	require.Equal(t, before+1, after)
}

func getCounterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mf := findMetricFamily(t, name)
	for _, m := range mf.Metric {
		if labelsMatch(m.GetLabel(), labels) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func getHistogramCount(t *testing.T, name string, labels map[string]string) uint64 {
	t.Helper()
	mf := findMetricFamily(t, name)
	for _, m := range mf.Metric {
		if labelsMatch(m.GetLabel(), labels) {
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func findMetricFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	require.FailNow(t, "metric family not found", name)
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
