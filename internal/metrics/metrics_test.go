package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Confirmed(3)
	m.Confirmed(0)
	m.Reorg(0)
	m.Reorg(2)
	m.Head(1234)
	m.AlertsSent()
	m.AlertsDropped()
	m.Errors()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"blocks_confirmed", m.blocksConfirmed, 2},
		{"swaps_confirmed", m.swapsConfirmed, 3},
		{"reorgs", m.reorgs, 1},
		{"blocks_replaced", m.blocksReplaced, 2},
		{"head_height", m.headHeight, 1234},
		{"alerts_sent", m.alertsSent, 1},
		{"alerts_dropped", m.alertsDropped, 1},
		{"errors", m.errors, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(m.reorgDepth); n != 1 {
		t.Errorf("reorg depth histogram series = %d, want 1", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Confirmed(1)
	m.Reorg(1)
	m.Head(1)
	m.AlertsSent()
	m.AlertsDropped()
	m.Errors()
}
