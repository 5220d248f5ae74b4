/*
Package configuration defines the run parameters of the ttbm load generator.

ttbm simulates a population of IoT-like devices, each reporting a fixed set of metrics with
several sensor readings, and streams the generated data points to a TickTockDB instance over
plain TCP. The population is split across a number of clients; each client owns one
connection and walks the simulated timeline from start to end in fixed steps.

# Configuration Structure

Options holds the raw values as supplied on the command line, in a config file or through
TTBM_ environment variables. Zero and negative values act as "use the default" markers:

  - client 0 means one client per device
  - start 0 means now
  - end 0 means start + duration, and duration 0 means one hour
  - interval < 0 means the same as step; interval 0 sends as fast as possible

Options.Resolve turns them into a RunConfig, which is immutable for the lifetime of a run.

# Example YAML Configuration

	client: 4
	device: 1000
	metric: 10
	sensor: 10
	step: 30000
	interval: 0
	start: 1700000000000
	duration: 86400000
	ticktock: tt.example.com:6180
	values: random
	seed: 42
	statusInterval: 1m
	metricsPort: 9100
	results: results/run.json
	logging:
	  level: info
	  file:
	    logfile: ttbm.log

# Validation

RunConfig.Validate enforces end > start, step > 0, 0 < clients <= devices, at least one
sensor per metric line and a positive line buffer. A configuration that fails validation
never starts any worker.
*/
package configuration
