package orchestrator

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/ytyou/ttbm/internal/common/logcontext"
	"github.com/ytyou/ttbm/internal/common/logging"
	"github.com/ytyou/ttbm/internal/ttbm/configuration"
	"github.com/ytyou/ttbm/internal/ttbm/encoding"
	"github.com/ytyou/ttbm/internal/ttbm/stats"
	"github.com/ytyou/ttbm/internal/ttbm/transport"
	"github.com/ytyou/ttbm/internal/ttbm/worker"
)

func exampleConfig() configuration.RunConfig {
	return configuration.RunConfig{
		ClientCount:  2,
		DeviceCount:  10,
		MetricCount:  1,
		SensorCount:  1,
		StepMs:       500,
		IntervalMs:   0,
		StartTs:      0,
		EndTs:        1000,
		Target:       configuration.Target{Host: configuration.DefaultTargetHost, Port: configuration.DefaultTargetPort},
		ValueMode:    configuration.ValueModeConstant,
		MaxLineBytes: configuration.DefaultMaxLineBytes,
	}
}

func TestRunner_ExampleRun(t *testing.T) {
	sink := &countingSink{}
	counters := stats.NewCounters()

	result, err := NewRunner(exampleConfig(), counters, clocktesting.NewFakeClock(time.Unix(0, 0)), sink.dial).Run(testContext())
	require.NoError(t, err)

	assert.Equal(t, uint64(30), result.Totals.Points)
	assert.Equal(t, uint64(30), sink.lines.Load())
	assert.Equal(t, uint64(0), result.Totals.DroppedLines)
	assert.NotEmpty(t, result.RunId.String())
	assert.Empty(t, result.Failed())

	require.Len(t, result.Workers, 2)
	assert.Equal(t, "[0,5)", result.Workers[0].Partition.String())
	assert.Equal(t, "[5,10)", result.Workers[1].Partition.String())
	for _, w := range result.Workers {
		assert.Equal(t, uint64(3), w.Ticks)
	}
}

func TestRunner_TotalMatchesFormula(t *testing.T) {
	tests := map[string]struct {
		clients, devices, metrics, sensors uint64
		start, end, step                   uint64
	}{
		"one client per device":     {clients: 4, devices: 4, metrics: 3, sensors: 2, start: 0, end: 3000, step: 1000},
		"remainder devices skipped": {clients: 3, devices: 7, metrics: 2, sensors: 5, start: 100, end: 1099, step: 250},
		"single tick":               {clients: 1, devices: 3, metrics: 1, sensors: 1, start: 0, end: 10, step: 1000},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			config := exampleConfig()
			config.ClientCount = tc.clients
			config.DeviceCount = tc.devices
			config.MetricCount = tc.metrics
			config.SensorCount = tc.sensors
			config.StartTs = tc.start
			config.EndTs = tc.end
			config.StepMs = tc.step

			result, err := NewRunner(config, stats.NewCounters(), clocktesting.NewFakeClock(time.Unix(0, 0)), (&countingSink{}).dial).Run(testContext())
			require.NoError(t, err)

			perClient := tc.devices / tc.clients
			expected := tc.clients * perClient * tc.metrics * tc.sensors * config.Ticks()
			assert.Equal(t, expected, result.Totals.Points)
			assert.Equal(t, expected, ExpectedPoints(config))
		})
	}
}

func TestRunner_ElapsedIncludesPacing(t *testing.T) {
	config := exampleConfig()
	config.IntervalMs = 100
	clock := clocktesting.NewFakeClock(time.Unix(0, 0))

	result, err := NewRunner(config, stats.NewCounters(), clock, (&countingSink{}).dial).Run(testContext())
	require.NoError(t, err)

	// Each of the 2 workers sleeps between its 3 ticks; the fake clock advances on every sleep.
	assert.Equal(t, 400*time.Millisecond, result.Elapsed)
	assert.Equal(t, time.Unix(0, 0), result.StartedAt)
}

func TestRunner_WorkerFailureDoesNotStopOthers(t *testing.T) {
	config := exampleConfig()
	config.MaxLineBytes = 33
	config.DeviceCount = 20
	// Lines for d_0 to d_9 are 33 bytes long, longer device ids do not fit.
	sink := &countingSink{}

	result, err := NewRunner(config, stats.NewCounters(), clocktesting.NewFakeClock(time.Unix(0, 0)), sink.dial).Run(testContext())
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
	assert.True(t, errors.Is(err, encoding.ErrLineTooLong))

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, uint64(1), failed[0].Partition.ClientId)
	assert.Equal(t, uint64(0), failed[0].Ticks)

	assert.Nil(t, result.Workers[0].Err)
	assert.Equal(t, uint64(3), result.Workers[0].Ticks)
	assert.Equal(t, uint64(30), result.Totals.Points, "only the healthy client contributes")
}

func TestRunner_UnreachableTarget(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	config := exampleConfig()
	config.Target = targetOf(t, listener)
	require.NoError(t, listener.Close())

	result, err := NewRunner(config, stats.NewCounters(), clocktesting.NewFakeClock(time.Unix(0, 0)), worker.TCPDialer).Run(testContext())
	require.NoError(t, err, "connection failures are not fatal")

	assert.Equal(t, uint64(30), result.Totals.Points)
	assert.Equal(t, uint64(30), result.Totals.DroppedLines)
	assert.Equal(t, uint64(2), result.Totals.ConnectionFailures)
}

func TestRunner_OverTCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	var received atomic.Uint64
	go func() {
		for {
			c, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				for scanner.Scan() {
					received.Add(1)
				}
			}()
		}
	}()

	config := exampleConfig()
	config.Target = targetOf(t, listener)
	config.ConnectTimeout = time.Second
	config.WriteTimeout = time.Second

	result, err := NewRunner(config, stats.NewCounters(), clocktesting.NewFakeClock(time.Unix(0, 0)), worker.TCPDialer).Run(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(30), result.Totals.Points)
	assert.Equal(t, uint64(0), result.Totals.DroppedLines)

	require.Eventually(t, func() bool { return received.Load() == 30 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunner_LogStatus(t *testing.T) {
	clock := clocktesting.NewFakeClock(time.Unix(0, 0))
	counters := stats.NewCounters()
	counters.AddPoints(5000)
	counters.WorkerStarted()
	startedAt := clock.Now()
	clock.Step(2 * time.Second)

	logger, hook := test.NewNullLogger()
	runner := NewRunner(exampleConfig(), counters, clock, (&countingSink{}).dial)
	runner.logStatus(logcontext.New(context.Background(), logrus.NewEntry(logger)), startedAt)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "5000 data points sent in 2s by 1 active clients (2500.00 dps/sec)", hook.LastEntry().Message)
}

func TestRunner_StatusReporterStopsWithRun(t *testing.T) {
	config := exampleConfig()
	config.StatusInterval = time.Hour

	result, err := NewRunner(config, stats.NewCounters(), clocktesting.NewFakeClock(time.Unix(0, 0)), (&countingSink{}).dial).Run(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(30), result.Totals.Points)
}

// countingSink is a Sender that accepts everything.
type countingSink struct {
	lines atomic.Uint64
}

func (s *countingSink) dial(_ *logcontext.Context, _ configuration.Target, _ transport.Options) worker.Sender {
	return s
}

func (s *countingSink) Send(b []byte) transport.SendResult {
	s.lines.Add(1)
	return transport.SendResult{Written: len(b)}
}

func (s *countingSink) Connected() bool {
	return true
}

func (s *countingSink) Close() error {
	return nil
}

func targetOf(t *testing.T, listener net.Listener) configuration.Target {
	t.Helper()
	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return configuration.Target{Host: host, Port: uint16(p)}
}

func testContext() *logcontext.Context {
	return logcontext.New(context.Background(), logging.NullEntry())
}
