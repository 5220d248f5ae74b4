package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// unrotatedMaxSizeMb caps the log file when rotation is disabled; lumberjack always rotates at some size.
const unrotatedMaxSizeMb = 1 << 20

// ConfigureLogging sets up the standard logrus logger for console output.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: RFC3339Milli,
	})
	log.SetOutput(os.Stdout)
}

// ConfigureApplicationLogging applies the given config to the standard logger. When a log file is configured,
// every line is written to both stdout and the file, and the returned closer must be closed on exit.
func ConfigureApplicationLogging(config Config) (io.Closer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	level, _ := parseLogLevel(config.Level)
	log.SetLevel(level)

	if config.File.LogFile == "" {
		return io.NopCloser(nil), nil
	}

	fileLogger := createFileLogger(config)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: RFC3339Milli,
	})
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
	return fileLogger, nil
}

func createFileLogger(config Config) *lumberjack.Logger {
	rotation := config.File.Rotation
	if !rotation.Enabled {
		return &lumberjack.Logger{
			Filename: config.File.LogFile,
			MaxSize:  unrotatedMaxSizeMb,
		}
	}
	return &lumberjack.Logger{
		Filename:   config.File.LogFile,
		MaxSize:    rotation.MaxSizeMb,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}
}
