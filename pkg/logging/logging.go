// Package logging builds the process-wide zap logger. Commands install it
// with zap.ReplaceGlobals so libraries log through zap.L().
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogOpts struct {
	Verbose  bool
	Encoding string
}

func (opts LogOpts) encoder() zapcore.Encoder {
	if opts.Encoding == "json" {
		if opts.Verbose {
			return zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
		}
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	return zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
}

func (opts LogOpts) level() zapcore.Level {
	if env, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var level zapcore.Level
		if err := level.Set(strings.ToLower(env)); err == nil {
			return level
		}
	}
	if opts.Verbose {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

func (opts LogOpts) NewLogger() *zap.Logger {
	core := zapcore.NewCore(opts.encoder(), zapcore.Lock(os.Stderr), opts.level())
	if opts.Verbose {
		return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	}
	return zap.New(core)
}
