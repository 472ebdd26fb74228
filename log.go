package tdauth

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/rusq/dlog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logger interface that is used throughout the package.
type Logger interface {
	Print(...any)
	Printf(string, ...any)
	Println(...any)
	Debug(...any)
	Debugf(string, ...any)
	Debugln(...any)
}

// Log is the global logger for the worker lifecycle messages, replace it in
// the downstream, if needed, or go with the default one.  The engine traffic
// is traced separately, see WithDebug.
var Log Logger = dlog.New(os.Stderr, "", 0, false)

// newTraceLogger returns the colored console logger for engine traffic.
func newTraceLogger() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(colorable.NewColorableStdout()),
		zapcore.DebugLevel,
	))
}
