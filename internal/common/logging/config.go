package logging

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config defines ttbm logging configuration.
type Config struct {
	// Log level for both console and file output, e.g. info, debug
	Level string `mapstructure:"level"`
	// Defines configuration for file logging
	File struct {
		// The location of the logfile on disk. File logging is disabled when empty.
		LogFile string `mapstructure:"logfile"`
		// Log rotation options
		Rotation struct {
			// Whether log rotation is enabled
			Enabled bool `mapstructure:"enabled"`
			// Maximum size in megabytes of the log file before it gets rotated
			MaxSizeMb int `mapstructure:"maxSizeMb"`
			// Maximum number of old log files to retain
			MaxBackups int `mapstructure:"maxBackups"`
			// Maximum number of days to retain old log files
			MaxAgeDays int `mapstructure:"maxAgeDays"`
			// Whether to compress rotated log files
			Compress bool `mapstructure:"compress"`
		} `mapstructure:"rotation"`
	} `mapstructure:"file"`
}

func (c Config) Validate() error {
	if _, err := parseLogLevel(c.Level); err != nil {
		return err
	}
	rotation := c.File.Rotation
	if c.File.LogFile != "" && rotation.Enabled {
		if rotation.MaxSizeMb <= 0 {
			return errors.New("rotation.maxSizeMb must be greater than zero")
		}
		if rotation.MaxBackups <= 0 {
			return errors.New("rotation.maxBackups must be greater than zero")
		}
		if rotation.MaxAgeDays <= 0 {
			return errors.New("rotation.maxAgeDays must be greater than zero")
		}
	}
	return nil
}

func parseLogLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, errors.Errorf("unknown level: %s", level)
	}
}
