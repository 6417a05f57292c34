// Package logging holds the process-wide logrus logger shared by every
// proxyrpc component.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	log.Level = levelFromEnv()
}

func levelFromEnv() logrus.Level {
	switch strings.ToLower(os.Getenv("PROXYRPC_LOGLEVEL")) {
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// Get returns the shared logger.
func Get() *logrus.Logger {
	return log
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return log.WithField("component", component)
}

// Configure sets level ("debug", "info", ...) and format ("text" or "json").
// Empty values leave the current setting untouched.
func Configure(level, format string) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		log.SetLevel(lvl)
	}
	switch strings.ToLower(format) {
	case "":
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("logging: unknown format %q", format)
	}
	return nil
}
