package monitoring

import (
	"fmt"

	"go.uber.org/zap"
)

var base = zap.Must(zap.NewProduction()).Sugar()

// Logf is the package-level diagnostic logger. It defaults to the zap
// production logger at info level but may be replaced by SetLogger or Init.
// Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = base.Infof

// Debugf carries verbose traces (propagation detail, dropped nodes). It is
// silent under the production logger until Init(true) is called.
var Debugf func(format string, v ...interface{}) = base.Debugf

// Init rebuilds the zap logger. debug selects the development config, which
// enables Debugf output and human-readable encoding.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		l, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	base = l.Sugar()
	Logf = base.Infof
	Debugf = base.Debugf
	return nil
}

// SetLogger replaces Logf and Debugf. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
	Debugf = f
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = base.Sync()
}
