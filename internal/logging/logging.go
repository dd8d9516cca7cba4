// Package logging wires up the structured logger shared by every binary.
// It centralizes formatter/level setup the way the teacher centralized
// config loading, so main() stays a thin composition root.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger configured for JSON output with
// millisecond-precision timestamps in the process's local time zone (the
// zone offset is included), suitable for both local development and
// container logs.
func New(component string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetLevel(logrus.InfoLevel)
	return log
}

// WithComponent returns an Entry pre-populated with a "component" field so
// log lines from the coordinator, uploader, and sweeper binaries are easy to
// tell apart when aggregated.
func WithComponent(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}
