// Package logger builds the zap logger shared by every component.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to stderr. Debug messages are only
// shown when verbose is set; JSON switches to machine-readable output.
func New(verbose bool, json bool) *zap.SugaredLogger {
	return NewWithWriter(os.Stderr, verbose, json)
}

func NewWithWriter(w io.Writer, verbose bool, json bool) *zap.SugaredLogger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.EncodeCaller = nil
		cfg.CallerKey = zapcore.OmitKey
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zap.New(core).Sugar().Named("podmirror")
}
