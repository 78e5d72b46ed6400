package addonkit

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// debugEnv raises the default logger to debug level when set.
const debugEnv = "ADDONKIT_DEBUG"

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
		Prefix:          "addonkit",
	})
}

func defaultLogger() *log.Logger {
	level := log.WarnLevel
	if os.Getenv(debugEnv) != "" {
		level = log.DebugLevel
	}
	return newLogger(os.Stderr, level)
}
