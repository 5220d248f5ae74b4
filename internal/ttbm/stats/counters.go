package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsPrefix = "ttbm_"

// Counters aggregates run statistics across all workers. Every update is a single relaxed atomic add, so workers
// never contend on a lock; totals are only meaningful once every worker has finished.
type Counters struct {
	points             atomic.Uint64
	droppedLines       atomic.Uint64
	droppedBytes       atomic.Uint64
	connectionFailures atomic.Uint64
	activeWorkers      atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Points             uint64
	DroppedLines       uint64
	DroppedBytes       uint64
	ConnectionFailures uint64
}

func NewCounters() *Counters {
	return &Counters{}
}

// AddPoints records n data points handed to a transport, whether or not the write succeeded.
func (c *Counters) AddPoints(n uint64) {
	c.points.Add(n)
}

// AddDropped records one metric line of which bytes bytes never reached the socket.
func (c *Counters) AddDropped(bytes int) {
	c.droppedLines.Add(1)
	c.droppedBytes.Add(uint64(bytes))
}

func (c *Counters) AddConnectionFailure() {
	c.connectionFailures.Add(1)
}

func (c *Counters) WorkerStarted() {
	c.activeWorkers.Add(1)
}

func (c *Counters) WorkerFinished() {
	c.activeWorkers.Add(-1)
}

func (c *Counters) Points() uint64 {
	return c.points.Load()
}

func (c *Counters) ActiveWorkers() int64 {
	return c.activeWorkers.Load()
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Points:             c.points.Load(),
		DroppedLines:       c.droppedLines.Load(),
		DroppedBytes:       c.droppedBytes.Load(),
		ConnectionFailures: c.connectionFailures.Load(),
	}
}

// Collectors exposes the counters as Prometheus metrics. The collectors read the atomics at scrape time, so
// exporting adds nothing to the workers' hot path.
func (c *Counters) Collectors() []prometheus.Collector {
	load := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: metricsPrefix + "data_points_total",
			Help: "Data points handed to the transport, including those whose write failed",
		}, load(&c.points)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: metricsPrefix + "dropped_lines_total",
			Help: "Metric lines not fully written to the socket",
		}, load(&c.droppedLines)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: metricsPrefix + "dropped_bytes_total",
			Help: "Bytes of metric lines that never reached the socket",
		}, load(&c.droppedBytes)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: metricsPrefix + "connection_failures_total",
			Help: "Workers that could not connect to the target",
		}, load(&c.connectionFailures)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: metricsPrefix + "active_workers",
			Help: "Workers currently running",
		}, func() float64 { return float64(c.activeWorkers.Load()) }),
	}
}

// Register registers all collectors with r.
func (c *Counters) Register(r prometheus.Registerer) error {
	for _, collector := range c.Collectors() {
		if err := r.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
