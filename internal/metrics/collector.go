// Package metrics exports bus statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/databus/internal/event"
)

// StatsSource provides bus statistics. *event.Bus implements it.
type StatsSource interface {
	Stats() event.Stats
}

// Collector is a prometheus.Collector reading a StatsSource on each scrape.
type Collector struct {
	src StatsSource

	triggered         *prometheus.Desc
	syncPasses        *prometheus.Desc
	deferredPasses    *prometheus.Desc
	listenersExecuted *prometheus.Desc
	listenerFailures  *prometheus.Desc
	listenerPanics    *prometheus.Desc
	subscribers       *prometheus.Desc
	channels          *prometheus.Desc
	pendingUnits      *prometheus.Desc
}

// NewCollector creates a collector whose metrics carry a "bus" label set to
// name.
func NewCollector(name string, src StatsSource) *Collector {
	labels := prometheus.Labels{"bus": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("databus", "", metric), help, nil, labels)
	}

	return &Collector{
		src:               src,
		triggered:         desc("triggered_total", "Trigger calls, including internal publications."),
		syncPasses:        desc("sync_passes_total", "Listener passes run within the trigger call."),
		deferredPasses:    desc("deferred_passes_total", "Listener passes posted to the loop."),
		listenersExecuted: desc("listeners_executed_total", "Listener invocations."),
		listenerFailures:  desc("listener_failures_total", "Listener invocations that returned an error or panicked."),
		listenerPanics:    desc("listener_panics_total", "Listener invocations that panicked."),
		subscribers:       desc("subscribers", "Registered listeners across all channels."),
		channels:          desc("channels", "Channels with a registry entry."),
		pendingUnits:      desc("pending_units", "Deferred passes waiting in the loop."),
	}
}

// Describe is part of the implementation of prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.triggered
	ch <- c.syncPasses
	ch <- c.deferredPasses
	ch <- c.listenersExecuted
	ch <- c.listenerFailures
	ch <- c.listenerPanics
	ch <- c.subscribers
	ch <- c.channels
	ch <- c.pendingUnits
}

// Collect is part of the implementation of prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	counter(c.triggered, s.Triggered)
	counter(c.syncPasses, s.SyncPasses)
	counter(c.deferredPasses, s.DeferredPasses)
	counter(c.listenersExecuted, s.ListenersExecuted)
	counter(c.listenerFailures, s.ListenerFailures)
	counter(c.listenerPanics, s.ListenerPanics)
	gauge(c.subscribers, s.Subscribers)
	gauge(c.channels, s.Channels)
	gauge(c.pendingUnits, s.PendingUnits)
}

var _ prometheus.Collector = (*Collector)(nil)
