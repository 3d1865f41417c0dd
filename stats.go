package boc

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// behaviourBuckets is the size histogram resolution: behaviours with
// this many cowns or more share the last bucket.
const behaviourBuckets = 16

// SchedulerStats counts scheduling events on one core. All counters
// are monotonic; Snapshot takes a consistent-enough copy for
// reporting.
type SchedulerStats struct {
	steals     atomic.Uint64
	pauses     atomic.Uint64
	unpauses   atomic.Uint64
	lifos      atomic.Uint64
	cowns      atomic.Uint64
	behaviours [behaviourBuckets]atomic.Uint64
}

func (s *SchedulerStats) steal()   { s.steals.Add(1) }
func (s *SchedulerStats) pause()   { s.pauses.Add(1) }
func (s *SchedulerStats) unpause() { s.unpauses.Add(1) }
func (s *SchedulerStats) lifo()    { s.lifos.Add(1) }
func (s *SchedulerStats) cown()    { s.cowns.Add(1) }

func (s *SchedulerStats) behaviour(cowns int) {
	if cowns >= behaviourBuckets {
		cowns = behaviourBuckets - 1
	}
	s.behaviours[cowns].Add(1)
}

func (s *SchedulerStats) add(o *SchedulerStats) {
	s.steals.Add(o.steals.Load())
	s.pauses.Add(o.pauses.Load())
	s.unpauses.Add(o.unpauses.Load())
	s.lifos.Add(o.lifos.Load())
	s.cowns.Add(o.cowns.Load())
	for i := range s.behaviours {
		s.behaviours[i].Add(o.behaviours[i].Load())
	}
}

// StatsSnapshot is a plain copy of the counters, aggregated or per
// core.
type StatsSnapshot struct {
	Steals     uint64
	Pauses     uint64
	Unpauses   uint64
	Lifos      uint64
	Cowns      uint64
	Behaviours [behaviourBuckets]uint64
}

func (s *SchedulerStats) Snapshot() StatsSnapshot {
	var out StatsSnapshot
	out.Steals = s.steals.Load()
	out.Pauses = s.pauses.Load()
	out.Unpauses = s.unpauses.Load()
	out.Lifos = s.lifos.Load()
	out.Cowns = s.cowns.Load()
	for i := range s.behaviours {
		out.Behaviours[i] = s.behaviours[i].Load()
	}
	return out
}

// globalStats absorbs events raised outside any worker, such as cowns
// created before the pool starts.
var globalStats SchedulerStats

// statsFor returns the counters of the calling worker's core, or the
// global counters outside the pool.
func statsFor() *SchedulerStats {
	if w := currentWorker(); w != nil {
		return &w.core.stats
	}
	return &globalStats
}

// Stats aggregates the pool's counters across cores, including events
// recorded outside any worker.
func (p *ThreadPool) Stats() StatsSnapshot {
	var total SchedulerStats
	total.add(&globalStats)
	for _, c := range p.cores {
		total.add(&c.stats)
	}
	return total.Snapshot()
}

// statsCollector exports the pool's counters as prometheus metrics,
// one series per core plus the global series.
type statsCollector struct {
	pool *ThreadPool

	steals     *prometheus.Desc
	pauses     *prometheus.Desc
	unpauses   *prometheus.Desc
	lifos      *prometheus.Desc
	cowns      *prometheus.Desc
	behaviours *prometheus.Desc
}

// MetricsCollector returns a prometheus collector over the pool's
// scheduler statistics. Register it with any registry:
//
//	prometheus.MustRegister(boc.Scheduler().MetricsCollector())
func (p *ThreadPool) MetricsCollector() prometheus.Collector {
	return &statsCollector{
		pool: p,
		steals: prometheus.NewDesc("boc_steals_total",
			"Work items stolen from another core.", []string{"core"}, nil),
		pauses: prometheus.NewDesc("boc_pauses_total",
			"Times a worker parked for lack of work.", []string{"core"}, nil),
		unpauses: prometheus.NewDesc("boc_unpauses_total",
			"Times an enqueue woke a parked worker.", []string{"core"}, nil),
		lifos: prometheus.NewDesc("boc_lifo_schedules_total",
			"Work items scheduled at a queue's head.", []string{"core"}, nil),
		cowns: prometheus.NewDesc("boc_cowns_created_total",
			"Cowns allocated.", []string{"core"}, nil),
		behaviours: prometheus.NewDesc("boc_behaviours_total",
			"Behaviours prepared, by number of requested cowns.",
			[]string{"core", "cowns"}, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.steals
	ch <- c.pauses
	ch <- c.unpauses
	ch <- c.lifos
	ch <- c.cowns
	ch <- c.behaviours
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	emit := func(label string, s *SchedulerStats) {
		snap := s.Snapshot()
		counter := func(d *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
		}
		counter(c.steals, snap.Steals, label)
		counter(c.pauses, snap.Pauses, label)
		counter(c.unpauses, snap.Unpauses, label)
		counter(c.lifos, snap.Lifos, label)
		counter(c.cowns, snap.Cowns, label)
		for i, v := range snap.Behaviours {
			if v != 0 {
				counter(c.behaviours, v, label, strconv.Itoa(i))
			}
		}
	}
	emit("global", &globalStats)
	for _, core := range c.pool.cores {
		emit(strconv.Itoa(core.index), &core.stats)
	}
}
