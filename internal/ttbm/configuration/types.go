package configuration

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ytyou/ttbm/internal/common/logging"
)

const (
	DefaultDeviceCount   = 10
	DefaultMetricCount   = 10
	DefaultSensorCount   = 10
	DefaultStepMs        = 30000
	DefaultDurationMs    = 3600000
	DefaultProgressEvery = 10000
	// DefaultMaxLineBytes is the largest metric line a worker will render.
	DefaultMaxLineBytes   = 8192
	DefaultStatusInterval = 30 * time.Second
)

// ValueMode selects how sensor readings are generated.
type ValueMode string

const (
	// ValueModeConstant reports the same reading for every sensor at every tick.
	ValueModeConstant ValueMode = "constant"
	// ValueModeRandom reports pseudo-random readings from a per-client seeded source.
	ValueModeRandom ValueMode = "random"
)

// Options are the raw run parameters, as bound from flags, config file and environment.
type Options struct {
	Client   uint64 `mapstructure:"client"`
	Device   uint64 `mapstructure:"device"`
	Metric   uint64 `mapstructure:"metric"`
	Sensor   uint64 `mapstructure:"sensor"`
	Step     int64  `mapstructure:"step"`
	Interval int64  `mapstructure:"interval"`
	Start    int64  `mapstructure:"start"`
	End      int64  `mapstructure:"end"`
	Duration int64  `mapstructure:"duration"`
	TickTock Target `mapstructure:"ticktock"`
	// Number of ticks between progress log lines; 0 disables progress logging
	Progress       uint64        `mapstructure:"progress"`
	Values         ValueMode     `mapstructure:"values"`
	Seed           int64         `mapstructure:"seed"`
	MaxLineBytes   int           `mapstructure:"maxLineBytes"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	// Period of the aggregate throughput log line; 0 disables it
	StatusInterval time.Duration `mapstructure:"statusInterval"`
	MetricsPort    uint16        `mapstructure:"metricsPort"`
	// Path of the JSON result file; empty disables it
	Results string         `mapstructure:"results"`
	Logging logging.Config `mapstructure:"logging"`
}

// RunConfig is the resolved, validated set of run parameters. It is created once before any worker starts
// and only read afterwards.
type RunConfig struct {
	ClientCount uint64
	DeviceCount uint64
	MetricCount uint64
	SensorCount uint64
	// Simulated time between two samplings
	StepMs uint64
	// Wall-clock pause between two ticks of a worker; 0 runs at maximum rate
	IntervalMs uint64
	// First and last sampling timestamps, in epoch milliseconds
	StartTs uint64
	EndTs   uint64
	Target  Target

	ProgressEvery  uint64
	ValueMode      ValueMode
	Seed           int64
	MaxLineBytes   int
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	StatusInterval time.Duration
}

// DefaultOptions returns the options used when nothing is specified.
func DefaultOptions() Options {
	return Options{
		Device:         DefaultDeviceCount,
		Metric:         DefaultMetricCount,
		Sensor:         DefaultSensorCount,
		Step:           DefaultStepMs,
		Interval:       -1,
		TickTock:       Target{Host: DefaultTargetHost, Port: DefaultTargetPort},
		Progress:       DefaultProgressEvery,
		Values:         ValueModeConstant,
		MaxLineBytes:   DefaultMaxLineBytes,
		StatusInterval: DefaultStatusInterval,
	}
}

// Resolve fills in the defaults that depend on other options or on the current time, and validates the result.
func (o Options) Resolve(now time.Time) (RunConfig, error) {
	if o.Step <= 0 {
		return RunConfig{}, errors.Errorf("step should be greater than 0: %d", o.Step)
	}
	if o.Start < 0 || o.End < 0 || o.Duration < 0 {
		return RunConfig{}, errors.New("start, end and duration must not be negative")
	}

	start := uint64(o.Start)
	if start == 0 {
		start = uint64(now.UnixMilli())
	}
	end := uint64(o.End)
	if end == 0 {
		duration := uint64(o.Duration)
		if duration == 0 {
			duration = DefaultDurationMs
		}
		end = start + duration
	}

	clients := o.Client
	if clients == 0 {
		clients = o.Device
	}

	interval := uint64(o.Step)
	if o.Interval >= 0 {
		interval = uint64(o.Interval)
	}

	values := o.Values
	if values == "" {
		values = ValueModeConstant
	}

	config := RunConfig{
		ClientCount:    clients,
		DeviceCount:    o.Device,
		MetricCount:    o.Metric,
		SensorCount:    o.Sensor,
		StepMs:         uint64(o.Step),
		IntervalMs:     interval,
		StartTs:        start,
		EndTs:          end,
		Target:         o.TickTock,
		ProgressEvery:  o.Progress,
		ValueMode:      values,
		Seed:           o.Seed,
		MaxLineBytes:   o.MaxLineBytes,
		ConnectTimeout: o.ConnectTimeout,
		WriteTimeout:   o.WriteTimeout,
		StatusInterval: o.StatusInterval,
	}
	if err := config.Validate(); err != nil {
		return RunConfig{}, err
	}
	return config, nil
}

// Ticks returns the number of sampling timestamps between StartTs and EndTs inclusive.
func (c RunConfig) Ticks() uint64 {
	if c.StepMs == 0 || c.EndTs < c.StartTs {
		return 0
	}
	return (c.EndTs-c.StartTs)/c.StepMs + 1
}

// PointsPerTick returns the number of data points one device produces at each tick.
func (c RunConfig) PointsPerTick() uint64 {
	return c.MetricCount * c.SensorCount
}
