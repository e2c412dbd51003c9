package eventsink

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.events = append(r.events, e)
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	m.Emit(Event{Kind: KindAdmitted, Model: "llama3"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(a.events), len(b.events))
	}
}

func TestPrometheusEventSinkIncrementsRequestsTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusEventSink(reg)

	s.Emit(Event{Kind: KindAdmitted, Model: "llama3"})
	s.Emit(Event{Kind: KindAdmitted, Model: "llama3"})

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found *dto.MetricFamily
	for _, mf := range metrics {
		if mf.GetName() == "sentry_requests_total" {
			found = mf
		}
	}
	if found == nil {
		t.Fatal("expected sentry_requests_total to be registered")
	}
	if len(found.Metric) != 1 || found.Metric[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected counter value 2, got %+v", found.Metric)
	}
}
