package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// LogLevel is the application-level verbosity setting, mapped onto logrus
// levels by SetLevel.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// GetLogger exposes the underlying logrus logger for callers that need
// direct access (e.g. to attach hooks).
func GetLogger() *logrus.Logger {
	return log
}

func SetLevel(level LogLevel) {
	switch level {
	case DEBUG:
		log.SetLevel(logrus.DebugLevel)
	case INFO:
		log.SetLevel(logrus.InfoLevel)
	case WARNING:
		log.SetLevel(logrus.WarnLevel)
	case ERROR:
		log.SetLevel(logrus.ErrorLevel)
	case FATAL:
		log.SetLevel(logrus.FatalLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

func Debug(args ...interface{})                 { log.Debug(args...) }
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Info(args ...interface{})                  { log.Info(args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warning(args ...interface{})               { log.Warn(args...) }
func Warningf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}
func Error(args ...interface{})                 { log.Error(args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }

// LogBlockEvent records a structured entry for a block that became canonical.
func LogBlockEvent(number uint64, hash string, txs int, gasUsed uint64) {
	log.WithFields(logrus.Fields{
		"event":   "block",
		"number":  number,
		"hash":    hash,
		"txs":     txs,
		"gasUsed": gasUsed,
	}).Info("block sealed")
}

// LogTransactionEvent records a structured entry for a transaction lifecycle step.
func LogTransactionEvent(hash, from, action, status string) {
	log.WithFields(logrus.Fields{
		"event":  "transaction",
		"tx":     hash,
		"from":   from,
		"action": action,
		"status": status,
	}).Debug("transaction event")
}
