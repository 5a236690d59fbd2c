package definition

import (
	"fmt"
	"io"
	"log"
	"os"
)

// DefaultLogger is a plain text Logger backed by the standard library, for
// hosts that would rather keep structured logging out of their dependency
// graph. The config loader selects it with `logging: stderr`; LogrusLogger
// is what a Bus falls back to otherwise.
type DefaultLogger struct {
	logger *log.Logger
	debug  bool
}

// NewDefaultLogger builds a DefaultLogger writing to stderr.
func NewDefaultLogger() *DefaultLogger {
	return NewWriterLogger(os.Stderr)
}

// NewWriterLogger builds a DefaultLogger writing to w; tests hand it a
// buffer.
func NewWriterLogger(w io.Writer) *DefaultLogger {
	return &DefaultLogger{logger: log.New(w, "crossbus ", log.LstdFlags|log.Lmsgprefix)}
}

func (l *DefaultLogger) tagged(tag string, v ...interface{}) {
	l.logger.Printf("[%s]: %s", tag, fmt.Sprint(v...))
}

func (l *DefaultLogger) taggedf(tag, format string, v ...interface{}) {
	l.logger.Printf("[%s]: %s", tag, fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Info(v ...interface{})                  { l.tagged("INFO", v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})  { l.taggedf("INFO", format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                  { l.tagged("WARN", v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})  { l.taggedf("WARN", format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                 { l.tagged("ERROR", v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{}) { l.taggedf("ERROR", format, v...) }

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.tagged("DEBUG", v...)
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.taggedf("DEBUG", format, v...)
	}
}

func (l *DefaultLogger) Fatal(v ...interface{}) {
	l.tagged("FATAL", v...)
	os.Exit(1)
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.taggedf("FATAL", format, v...)
	os.Exit(1)
}

func (l *DefaultLogger) Panic(v ...interface{})                 { l.logger.Panic(v...) }
func (l *DefaultLogger) Panicf(format string, v ...interface{}) { l.logger.Panicf(format, v...) }

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	return l.debug
}
