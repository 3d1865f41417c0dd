package boc

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsCollector(t *testing.T) {
	c := NewCown()
	runPool(t, 2, func() {
		When(func() {}, Write(c))
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(Scheduler().MetricsCollector()); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		"boc_behaviours_total":    false,
		"boc_cowns_created_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not exported", name)
		}
	}
}

func TestStatsSnapshotAggregates(t *testing.T) {
	var a, b SchedulerStats
	a.steal()
	a.behaviour(2)
	b.behaviour(2)
	b.cown()

	var total SchedulerStats
	total.add(&a)
	total.add(&b)
	snap := total.Snapshot()
	if snap.Steals != 1 || snap.Cowns != 1 || snap.Behaviours[2] != 2 {
		t.Errorf("aggregate = %+v", snap)
	}
}

func TestStatsBehaviourOverflowBucket(t *testing.T) {
	var s SchedulerStats
	s.behaviour(40)
	if s.Snapshot().Behaviours[behaviourBuckets-1] != 1 {
		t.Error("oversized behaviour not folded into the last bucket")
	}
}
