package cmd

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/utils/clock"

	"github.com/ytyou/ttbm/internal/common/logcontext"
	"github.com/ytyou/ttbm/internal/common/logging"
	"github.com/ytyou/ttbm/internal/common/metrics"
	"github.com/ytyou/ttbm/internal/ttbm/configuration"
	"github.com/ytyou/ttbm/internal/ttbm/orchestrator"
	"github.com/ytyou/ttbm/internal/ttbm/report"
	"github.com/ytyou/ttbm/internal/ttbm/stats"
	"github.com/ytyou/ttbm/internal/ttbm/worker"
)

const (
	exitOK           = 0
	exitConfigError  = 1
	exitWorkerFailed = 2
)

// runFailedError marks a run that completed but in which at least one client stopped early.
type runFailedError struct {
	err error
}

func (e *runFailedError) Error() string {
	return e.err.Error()
}

func (e *runFailedError) Unwrap() error {
	return e.err
}

// ExitCode maps the error returned by the root command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var failed *runFailedError
	if errors.As(err, &failed) {
		return exitWorkerFailed
	}
	return exitConfigError
}

// NewRootCmd creates the ttbm command. Every flag is bound into its own viper instance, so values may also come
// from the config file or TTBM_ prefixed environment variables.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ttbm",
		Short: "Load generator simulating IoT devices writing metrics to TickTockDB",
		Long: `
Load generator simulating IoT devices writing metrics to TickTockDB

Devices are split evenly between clients. Each client opens one TCP connection and, for every
timestamp from start to end in steps of --step milliseconds, sends one line per metric of each
of its devices:

metric_<M>,device=d_<D> s_0=<v>,s_1=<v>,...

Persistent config can be saved in a config file so it doesn't have to be specified every run.

Example structure:

device: 1000
client: 10
step: 10000
ticktock: tt.example.com:6181
logging:
  file:
    logfile: /var/log/ttbm.log

The location of this file can be passed in using --config argument or picked from $HOME/.ttbm.yaml.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfigFile(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, cmd.OutOrStdout())
		},
	}

	defaults := configuration.DefaultOptions()
	flags := cmd.Flags()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ttbm.yaml)")
	flags.Uint64("client", 0, "number of clients (0 means one client per device)")
	flags.Uint64("device", defaults.Device, "number of devices")
	flags.Uint64("metric", defaults.Metric, "number of metrics per device")
	flags.Uint64("sensor", defaults.Sensor, "number of sensors per metric")
	flags.Int64("step", defaults.Step, "simulated time between two samplings, in milliseconds")
	flags.Int64("interval", defaults.Interval, "wall-clock pause between two samplings in milliseconds (negative means same as step, 0 means as fast as possible)")
	flags.Int64("start", 0, "first sampling timestamp in epoch milliseconds (0 means now)")
	flags.Int64("end", 0, "last sampling timestamp in epoch milliseconds (0 means start plus duration)")
	flags.Int64("duration", 0, "length of the simulated timeline in milliseconds when end is not given (0 means one hour)")
	flags.String("ticktock", defaults.TickTock.String(), "TickTockDB address as host[:port]")
	flags.Uint64("progress", defaults.Progress, "log progress every this many sampling ticks (0 disables)")
	flags.String("values", string(defaults.Values), "sensor value mode: constant or random")
	flags.Int64("seed", 0, "seed for random sensor values")
	flags.Int("maxLineBytes", defaults.MaxLineBytes, "longest metric line a client may send")
	flags.Duration("connectTimeout", 0, "timeout for connecting to TickTockDB (0 means OS default)")
	flags.Duration("writeTimeout", 0, "deadline for each write to TickTockDB (0 means none)")
	flags.Duration("statusInterval", defaults.StatusInterval, "period of the aggregate throughput log line (0 disables)")
	flags.Uint16("metricsPort", 0, "port to serve Prometheus metrics on (0 disables)")
	flags.String("results", "", "path of a JSON file to write the run result to")
	flags.String("log", "", "also write log output to this file")
	flags.String("logLevel", "info", "log level: debug, info, warn or error")

	bindings := map[string]string{
		"client":         "client",
		"device":         "device",
		"metric":         "metric",
		"sensor":         "sensor",
		"step":           "step",
		"interval":       "interval",
		"start":          "start",
		"end":            "end",
		"duration":       "duration",
		"ticktock":       "ticktock",
		"progress":       "progress",
		"values":         "values",
		"seed":           "seed",
		"maxLineBytes":   "maxLineBytes",
		"connectTimeout": "connectTimeout",
		"writeTimeout":   "writeTimeout",
		"statusInterval": "statusInterval",
		"metricsPort":    "metricsPort",
		"results":        "results",
		"log":            "logging.file.logfile",
		"logLevel":       "logging.level",
	}
	if err := bindFlags(v, flags, bindings); err != nil {
		panic(err)
	}
	return cmd
}

// Execute runs the root command and exits the process with the matching exit code.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		log.Error(err)
	}
	os.Exit(ExitCode(err))
}

func run(v *viper.Viper, out io.Writer) error {
	options := configuration.DefaultOptions()
	if err := v.Unmarshal(&options, configuration.CustomHooks...); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	runConfig, err := options.Resolve(time.Now())
	if err != nil {
		return err
	}

	logCloser, err := logging.ConfigureApplicationLogging(options.Logging)
	if err != nil {
		return err
	}
	defer func() {
		if err := logCloser.Close(); err != nil {
			log.WithError(err).Warn("Failed to close log file")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hook, err := logging.NewPrometheusHook(registry)
	if err != nil {
		return err
	}
	log.AddHook(hook)
	counters := stats.NewCounters()
	if err := counters.Register(registry); err != nil {
		return err
	}
	stopMetrics := metrics.ServeMetrics(options.MetricsPort, registry)
	defer stopMetrics()

	runner := orchestrator.NewRunner(runConfig, counters, clock.RealClock{}, worker.TCPDialer)
	result, runErr := runner.Run(logcontext.Background())

	testResult := report.BuildTestResult(result)
	if err := report.PrintSummary(out, testResult); err != nil {
		return err
	}
	if options.Results != "" {
		if err := report.WriteTestResultToFile(testResult, options.Results); err != nil {
			return err
		}
		log.Infof("Run result written to %s", options.Results)
	}

	if runErr != nil {
		return &runFailedError{err: runErr}
	}
	return nil
}
