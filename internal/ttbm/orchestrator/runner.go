package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/ytyou/ttbm/internal/common/logcontext"
	"github.com/ytyou/ttbm/internal/common/logging"
	"github.com/ytyou/ttbm/internal/common/task"
	"github.com/ytyou/ttbm/internal/ttbm/configuration"
	"github.com/ytyou/ttbm/internal/ttbm/encoding"
	"github.com/ytyou/ttbm/internal/ttbm/partition"
	"github.com/ytyou/ttbm/internal/ttbm/stats"
	"github.com/ytyou/ttbm/internal/ttbm/worker"
)

const statusStopTimeout = 5 * time.Second

// Runner orchestrates a benchmark run. It partitions the device population across clients, runs one worker per
// client concurrently, waits for every worker to finish, and collects the totals.
type Runner struct {
	config   configuration.RunConfig
	counters *stats.Counters
	clock    clock.Clock
	dial     worker.Dialer
}

// WorkerResult describes how a single client's run ended.
type WorkerResult struct {
	Partition partition.DevicePartition
	Ticks     uint64
	Err       error
}

// Result is the outcome of a run. It is only built after every worker has returned, so its totals are final.
type Result struct {
	RunId     uuid.UUID
	Config    configuration.RunConfig
	StartedAt time.Time
	Elapsed   time.Duration
	Totals    stats.Snapshot
	Workers   []WorkerResult
}

// Failed returns the workers that stopped early.
func (r *Result) Failed() []WorkerResult {
	var failed []WorkerResult
	for _, w := range r.Workers {
		if w.Err != nil {
			failed = append(failed, w)
		}
	}
	return failed
}

func NewRunner(config configuration.RunConfig, counters *stats.Counters, clock clock.Clock, dial worker.Dialer) *Runner {
	return &Runner{
		config:   config,
		counters: counters,
		clock:    clock,
		dial:     dial,
	}
}

// Run executes the benchmark to completion.
//
// All workers are started together and run independently: a worker that fails does not stop the others. Once
// every worker has returned, the result is assembled from the shared counters. The returned error aggregates
// the failures of all workers that stopped early; the Result is returned in either case.
func (r *Runner) Run(ctx *logcontext.Context) (*Result, error) {
	runId := uuid.New()
	ctx = logcontext.WithLogField(ctx, "run", runId.String())
	cfg := r.config

	partitions := partition.Partition(cfg.ClientCount, cfg.DeviceCount)
	if covered := partition.Covered(cfg.ClientCount, cfg.DeviceCount); covered < cfg.DeviceCount {
		ctx.Log.Warnf("%d devices do not divide evenly between %d clients; only %d devices will be simulated",
			cfg.DeviceCount, cfg.ClientCount, covered)
	}
	valueWidth := worker.NewValueGenerator(cfg, 0).MaxWidth()
	if longest := encoding.MaxLineLength(cfg.MetricCount, cfg.DeviceCount, cfg.SensorCount, valueWidth); longest > cfg.MaxLineBytes {
		ctx.Log.Warnf("Metric lines may be up to %d bytes but maxLineBytes is %d; clients will stop at the first line that does not fit",
			longest, cfg.MaxLineBytes)
	}

	ctx.Log.Infof("Starting %d clients against %s: %d devices, %d metrics, %d sensors, %d ticks from %d to %d",
		cfg.ClientCount, cfg.Target.String(), cfg.DeviceCount, cfg.MetricCount, cfg.SensorCount,
		cfg.Ticks(), cfg.StartTs, cfg.EndTs)
	ctx.Log.Infof("Expecting %d data points", ExpectedPoints(cfg))

	workers := make([]*worker.Worker, len(partitions))
	for i, p := range partitions {
		workers[i] = worker.New(cfg, p, r.counters, r.clock, r.dial)
	}

	results := make([]WorkerResult, len(workers))
	startedAt := r.clock.Now()

	statusReporter := task.NewBackgroundTaskManager(r.clock)
	if cfg.StatusInterval > 0 {
		statusReporter.Register(func() { r.logStatus(ctx, startedAt) }, cfg.StatusInterval, "status")
	}

	var g errgroup.Group
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			err := w.Run(ctx)
			results[i] = WorkerResult{Partition: partitions[i], Ticks: w.Ticks(), Err: err}
			return err
		})
	}
	// Failures are collected per worker below, so only the join matters here.
	_ = g.Wait()

	elapsed := r.clock.Since(startedAt)
	if statusReporter.StopAll(statusStopTimeout) {
		ctx.Log.Warn("Timed out waiting for the status reporter to stop")
	}

	var result *multierror.Error
	for _, wr := range results {
		if wr.Err != nil {
			logging.WithStacktrace(ctx.Log, wr.Err).Errorf("Client %d failed", wr.Partition.ClientId)
			result = multierror.Append(result, wr.Err)
		}
	}

	ctx.Log.Infof("All clients finished in %s", elapsed)
	return &Result{
		RunId:     runId,
		Config:    cfg,
		StartedAt: startedAt,
		Elapsed:   elapsed,
		Totals:    r.counters.Snapshot(),
		Workers:   results,
	}, result.ErrorOrNil()
}

// ExpectedPoints returns the number of data points a run with the given configuration attempts to send.
func ExpectedPoints(cfg configuration.RunConfig) uint64 {
	return partition.Covered(cfg.ClientCount, cfg.DeviceCount) * cfg.PointsPerTick() * cfg.Ticks()
}

// logStatus logs the aggregate progress of all clients.
func (r *Runner) logStatus(ctx *logcontext.Context, startedAt time.Time) {
	points := r.counters.Points()
	elapsed := r.clock.Since(startedAt)
	var rate float64
	if elapsed > 0 {
		rate = float64(points) / elapsed.Seconds()
	}
	ctx.Log.Infof("%d data points sent in %s by %d active clients (%.2f dps/sec)",
		points, elapsed.Truncate(time.Millisecond), r.counters.ActiveWorkers(), rate)
}
