package worker

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ytyou/ttbm/internal/common/logcontext"
	"github.com/ytyou/ttbm/internal/ttbm/configuration"
	"github.com/ytyou/ttbm/internal/ttbm/encoding"
	"github.com/ytyou/ttbm/internal/ttbm/partition"
	"github.com/ytyou/ttbm/internal/ttbm/stats"
	"github.com/ytyou/ttbm/internal/ttbm/transport"
)

// randomValueScale bounds the readings generated in random value mode.
const randomValueScale = 100

// State is the lifecycle stage of a Worker.
type State int32

const (
	Connecting State = iota
	Running
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Sender is the part of a transport connection a worker uses.
type Sender interface {
	Send(b []byte) transport.SendResult
	Connected() bool
	Close() error
}

// Dialer opens the connection a worker sends on. It must not fail: an unreachable target yields a disconnected
// Sender.
type Dialer func(ctx *logcontext.Context, target configuration.Target, opts transport.Options) Sender

// TCPDialer dials the target over TCP.
func TCPDialer(ctx *logcontext.Context, target configuration.Target, opts transport.Options) Sender {
	return transport.Dial(ctx, target, opts)
}

// Worker simulates the devices of one partition. It walks the simulated timeline from StartTs to EndTs, sending
// every metric of every device at each tick, and pauses IntervalMs of wall-clock time between ticks.
type Worker struct {
	config    configuration.RunConfig
	partition partition.DevicePartition
	counters  *stats.Counters
	clock     clock.Clock
	dial      Dialer

	state  atomic.Int32
	ticks  uint64
	sleeps uint64
}

func New(
	config configuration.RunConfig,
	partition partition.DevicePartition,
	counters *stats.Counters,
	clock clock.Clock,
	dial Dialer,
) *Worker {
	return &Worker{
		config:    config,
		partition: partition,
		counters:  counters,
		clock:     clock,
		dial:      dial,
	}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Ticks returns the number of ticks completed. Only valid once Run has returned.
func (w *Worker) Ticks() uint64 {
	return w.ticks
}

// Sleeps returns the number of pauses taken between ticks. Only valid once Run has returned.
func (w *Worker) Sleeps() uint64 {
	return w.sleeps
}

// Run executes the worker to completion. Connection and write failures are not errors; the only error returned
// is a metric line that does not fit the configured line buffer, which stops this worker early.
func (w *Worker) Run(ctx *logcontext.Context) error {
	ctx = logcontext.WithLogFields(ctx, logrus.Fields{
		"client":  w.partition.ClientId,
		"devices": w.partition.String(),
	})
	w.counters.WorkerStarted()
	defer w.counters.WorkerFinished()

	w.setState(Connecting)
	conn := w.dial(ctx, w.config.Target, transport.Options{
		ConnectTimeout: w.config.ConnectTimeout,
		WriteTimeout:   w.config.WriteTimeout,
	})
	if !conn.Connected() {
		w.counters.AddConnectionFailure()
	}

	w.setState(Running)
	err := w.generate(ctx, conn)

	w.setState(Draining)
	if closeErr := conn.Close(); closeErr != nil {
		ctx.Log.WithError(closeErr).Warn("Failed to close connection cleanly")
	}
	w.setState(Done)

	if err != nil {
		return errors.WithMessagef(err, "client %d stopped after %d ticks", w.partition.ClientId, w.ticks)
	}
	ctx.Log.Debugf("Finished %d ticks", w.ticks)
	return nil
}

func (w *Worker) generate(ctx *logcontext.Context, conn Sender) error {
	cfg := w.config
	encoder := encoding.NewEncoder(cfg.SensorCount, cfg.MaxLineBytes, NewValueGenerator(cfg, w.partition.ClientId))
	duration := float64(cfg.EndTs - cfg.StartTs)
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond

	for ts := cfg.StartTs; ; ts += cfg.StepMs {
		for device := w.partition.DeviceStart; device < w.partition.DeviceEnd; device++ {
			for metric := uint64(0); metric < cfg.MetricCount; metric++ {
				line, err := encoder.Encode(metric, device, ts)
				if err != nil {
					return err
				}
				if result := conn.Send(line); !result.Complete() {
					w.counters.AddDropped(result.Dropped)
				}
				w.counters.AddPoints(cfg.SensorCount)
			}
		}
		w.ticks++

		if cfg.ProgressEvery > 0 && w.ticks%cfg.ProgressEvery == 0 {
			ctx.Log.Infof("%.2f percent done", 100*float64(ts-cfg.StartTs)/duration)
		}

		// Written as a subtraction so a timeline ending near the top of the range cannot overflow ts.
		if cfg.EndTs-ts < cfg.StepMs {
			return nil
		}
		if interval > 0 {
			w.clock.Sleep(interval)
			w.sleeps++
		}
	}
}

// NewValueGenerator returns the sensor value policy the given client uses. Random values are seeded with
// Seed+clientId so every client produces its own reproducible sequence.
func NewValueGenerator(config configuration.RunConfig, clientId uint64) encoding.ValueGenerator {
	if config.ValueMode == configuration.ValueModeRandom {
		return encoding.NewRandomValues(config.Seed+int64(clientId), randomValueScale)
	}
	return encoding.DefaultConstant
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}
