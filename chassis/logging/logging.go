package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	timeFormat = "2006-01-02 15:04:05"
)

var (
	base   = logrus.New()
	logger = logrus.NewEntry(base)
)

// Fields ...
type Fields logrus.Fields

// Init ...
func Init(module string, level string) {
	customFormatter := &logrus.TextFormatter{}
	customFormatter.TimestampFormat = timeFormat
	customFormatter.FullTimestamp = true
	base.SetFormatter(customFormatter)
	base.SetOutput(os.Stdout)
	base.SetLevel(ParseLevel(level))
	logger = base.WithFields(logrus.Fields{
		"module": module,
	})
	logger.WithFields(logrus.Fields{
		"event": "init_logger",
		"level": base.GetLevel().String(),
	}).Info("logger initiated")
}

// ParseLevel maps a configured level name to a logrus level, info by default.
func ParseLevel(level string) logrus.Level {
	switch level {
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// AddHook attaches a hook to the underlying logger.
func AddHook(hook logrus.Hook) {
	base.AddHook(hook)
}

// WithFields ...
func WithFields(fields Fields) *logrus.Entry {
	return logger.WithFields(logrus.Fields(fields))
}

// Error ...
func Error(args ...interface{}) {
	logger.Error(args...)
}

// Warn ...
func Warn(args ...interface{}) {
	logger.Warn(args...)
}

// Info ...
func Info(args ...interface{}) {
	logger.Info(args...)
}

// Debug ...
func Debug(args ...interface{}) {
	logger.Debug(args...)
}
