package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

func TestCollector_RecordOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOutcome("batch-1", "s1", model.Outcome{Kind: model.OutcomeSuccess, Elapsed: 2 * time.Second})
	c.RecordOutcome("batch-1", "s1", model.Outcome{Kind: model.OutcomeTimeout, Elapsed: time.Second})

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := map[string]bool{}
	for _, mf := range metricFamilies {
		if mf.GetName() == "ttsdispatch_task_outcomes_total" {
			found["outcomes"] = true
		}
		if mf.GetName() == "ttsdispatch_retries_total" {
			found["retries"] = true
			for _, m := range mf.Metric {
				if counterValue(m) != 1 {
					t.Errorf("expected 1 retry counted for timeout, got %v", counterValue(m))
				}
			}
		}
	}
	if !found["outcomes"] || !found["retries"] {
		t.Fatalf("expected both outcomes and retries metric families, got %v", found)
	}
}

func TestCollector_SetInFlightAndInterval(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetInFlight("batch-1", "s1", 3)
	c.SetAdaptiveInterval("batch-1", 0.7)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ttsdispatch_worker_in_flight":
			if got := gaugeValue(mf.Metric[0]); got != 3 {
				t.Errorf("in_flight = %v, want 3", got)
			}
		case "ttsdispatch_adaptive_interval_seconds":
			if got := gaugeValue(mf.Metric[0]); got != 0.7 {
				t.Errorf("adaptive_interval = %v, want 0.7", got)
			}
		}
	}
}

func counterValue(m *dto.Metric) float64 {
	if m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

func gaugeValue(m *dto.Metric) float64 {
	if m.Gauge == nil {
		return 0
	}
	return m.Gauge.GetValue()
}
