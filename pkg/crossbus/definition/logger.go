// Package definition holds the small set of host-facing interfaces that do
// not belong to any single component: the logger contract and its default
// implementations.
package definition

// Logger is the logging contract every CrossBus component accepts. A host
// application may supply its own implementation; if none is given the bus
// falls back to LogrusLogger.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}
