package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/ytyou/ttbm/internal/ttbm/orchestrator"
)

// SchemaVersion is the version of the result file layout.
const SchemaVersion = "1.0"

type TestResult struct {
	Metadata      Metadata              `json:"metadata"`
	Configuration ConfigurationSnapshot `json:"configuration"`
	Results       Results               `json:"results"`
}

type Metadata struct {
	Version   string    `json:"version"`
	RunId     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
}

type ConfigurationSnapshot struct {
	Target     string `json:"target"`
	Clients    uint64 `json:"clients"`
	Devices    uint64 `json:"devices"`
	Metrics    uint64 `json:"metrics"`
	Sensors    uint64 `json:"sensors"`
	StepMs     uint64 `json:"stepMs"`
	IntervalMs uint64 `json:"intervalMs"`
	StartTs    uint64 `json:"startTs"`
	EndTs      uint64 `json:"endTs"`
	ValueMode  string `json:"valueMode"`
}

type Results struct {
	GrandTotal         uint64        `json:"grandTotal"`
	ElapsedMs          int64         `json:"elapsedMs"`
	Throughput         float64       `json:"throughput"`
	DroppedLines       uint64        `json:"droppedLines"`
	DroppedBytes       uint64        `json:"droppedBytes"`
	ConnectionFailures uint64        `json:"connectionFailures"`
	FailedClients      []ClientError `json:"failedClients,omitempty"`
}

type ClientError struct {
	ClientId uint64 `json:"clientId"`
	Devices  string `json:"devices"`
	Ticks    uint64 `json:"ticks"`
	Error    string `json:"error"`
}

// Throughput returns data points per second. An elapsed time below one millisecond yields 0.
func Throughput(points uint64, elapsed time.Duration) float64 {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return 1000.0 * float64(points) / float64(ms)
}

// BuildTestResult assembles the report for a finished run.
func BuildTestResult(result *orchestrator.Result) TestResult {
	cfg := result.Config
	testResult := TestResult{
		Metadata: Metadata{
			Version:   SchemaVersion,
			RunId:     result.RunId.String(),
			StartedAt: result.StartedAt,
		},
		Configuration: ConfigurationSnapshot{
			Target:     cfg.Target.String(),
			Clients:    cfg.ClientCount,
			Devices:    cfg.DeviceCount,
			Metrics:    cfg.MetricCount,
			Sensors:    cfg.SensorCount,
			StepMs:     cfg.StepMs,
			IntervalMs: cfg.IntervalMs,
			StartTs:    cfg.StartTs,
			EndTs:      cfg.EndTs,
			ValueMode:  string(cfg.ValueMode),
		},
		Results: Results{
			GrandTotal:         result.Totals.Points,
			ElapsedMs:          result.Elapsed.Milliseconds(),
			Throughput:         Throughput(result.Totals.Points, result.Elapsed),
			DroppedLines:       result.Totals.DroppedLines,
			DroppedBytes:       result.Totals.DroppedBytes,
			ConnectionFailures: result.Totals.ConnectionFailures,
		},
	}
	for _, w := range result.Failed() {
		testResult.Results.FailedClients = append(testResult.Results.FailedClients, ClientError{
			ClientId: w.Partition.ClientId,
			Devices:  w.Partition.String(),
			Ticks:    w.Ticks,
			Error:    w.Err.Error(),
		})
	}
	return testResult
}

// PrintSummary writes the human readable run summary.
func PrintSummary(w io.Writer, result TestResult) error {
	r := result.Results
	_, err := fmt.Fprintf(w,
		"Grand Total  = %d dps\nElapsed Time = %d ms\nThroughput   = %.2f dps/sec\nDropped      = %d lines (%d bytes), %d connection failures\n",
		r.GrandTotal, r.ElapsedMs, r.Throughput, r.DroppedLines, r.DroppedBytes, r.ConnectionFailures)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, failed := range r.FailedClients {
		if _, err := fmt.Fprintf(w, "Client %d %s failed after %d ticks: %s\n",
			failed.ClientId, failed.Devices, failed.Ticks, failed.Error); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// WriteTestResultToFile writes the result as indented JSON, replacing any existing file.
func WriteTestResultToFile(result TestResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling test result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing test result to %s", path)
	}
	return nil
}
