package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus so packages can share one configured instance.
type Logger struct {
	*logrus.Logger
}

// LogArgs is embedded in go-arg argument structs.
type LogArgs struct {
	LogLevel string `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

// NewLogger returns a logger writing to stdout without timestamps, journald
// adds its own. An unknown level falls back to info.
func NewLogger(levelStr string) *Logger {
	l := logrus.New()
	l.Out = os.Stdout
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		l.Warnf("unknown log level '%s', using info", levelStr)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return &Logger{l}
}
