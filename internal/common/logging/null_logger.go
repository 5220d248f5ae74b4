package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NullEntry returns an entry whose output is discarded, for code paths and tests that must log but should stay quiet.
func NullEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}
