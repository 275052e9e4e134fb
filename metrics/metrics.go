// Package metrics exports lock table activity to Prometheus.
package metrics

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/projecteru2/scopelock/lock/scoped"
)

const namespace = "scopelock"

// compile-time interface checks.
var (
	_ prometheus.Collector = (*Collector)(nil)
	_ scoped.Observer      = (*Collector)(nil)
)

// StatsSource is anything that reports scoped.Stats, normally a *scoped.Table.
type StatsSource interface {
	Stats() scoped.Stats
}

// Collector counts lock transitions as a scoped.Observer and reports the
// queue gauges of the table it is bound to.
type Collector struct {
	acquired  *prometheus.CounterVec
	cancelled prometheus.Counter
	released  *prometheus.CounterVec

	scopesDesc      *prometheus.Desc
	waitersDesc     *prometheus.Desc
	subscribersDesc *prometheus.Desc

	source atomic.Pointer[StatsSource]
}

// New returns a Collector whose metrics carry the constant label table=name.
func New(name string) *Collector {
	labels := prometheus.Labels{"table": name}
	return &Collector{
		acquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "acquired_total",
			Help:        "Lock grants, by whether the caller had to queue.",
			ConstLabels: labels,
		}, []string{"queued"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cancelled_total",
			Help:        "Queued acquisitions and release waits abandoned by their context.",
			ConstLabels: labels,
		}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "released_total",
			Help:        "Lock releases, by whether the scope became idle.",
			ConstLabels: labels,
		}, []string{"idle"}),
		scopesDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "active_scopes"),
			"Scopes currently held.", nil, labels),
		waitersDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "queued_waiters"),
			"Acquisitions waiting across all scopes.", nil, labels),
		subscribersDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "release_subscribers"),
			"Pending waits for release across all scopes.", nil, labels),
	}
}

// Bind sets the table whose gauges are reported. Gauges are omitted until
// Bind is called.
func (c *Collector) Bind(src StatsSource) {
	c.source.Store(&src)
}

// Acquired implements scoped.Observer.
func (c *Collector) Acquired(queued bool) {
	c.acquired.WithLabelValues(strconv.FormatBool(queued)).Inc()
}

// Cancelled implements scoped.Observer.
func (c *Collector) Cancelled() { c.cancelled.Inc() }

// Released implements scoped.Observer.
func (c *Collector) Released(idle bool) {
	c.released.WithLabelValues(strconv.FormatBool(idle)).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.acquired.Describe(ch)
	c.cancelled.Describe(ch)
	c.released.Describe(ch)
	ch <- c.scopesDesc
	ch <- c.waitersDesc
	ch <- c.subscribersDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.acquired.Collect(ch)
	c.cancelled.Collect(ch)
	c.released.Collect(ch)

	src := c.source.Load()
	if src == nil {
		return
	}
	st := (*src).Stats()
	ch <- prometheus.MustNewConstMetric(c.scopesDesc, prometheus.GaugeValue, float64(st.Scopes))
	ch <- prometheus.MustNewConstMetric(c.waitersDesc, prometheus.GaugeValue, float64(st.Waiters))
	ch <- prometheus.MustNewConstMetric(c.subscribersDesc, prometheus.GaugeValue, float64(st.Subscribers))
}

// NewTable builds a scoped.Table observed and bound by a fresh Collector.
func NewTable[K comparable](name string, opts ...scoped.Option) (*scoped.Table[K], *Collector) {
	c := New(name)
	t := scoped.NewTable[K](append(opts, scoped.WithName(name), scoped.WithObserver(c))...)
	c.Bind(t)
	return t, c
}
