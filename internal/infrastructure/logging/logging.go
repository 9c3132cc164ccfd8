package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger verbosity and outputs.
type Options struct {
	Verbose bool
	Quiet   bool
	Debug   bool
	LogFile string
}

// Level maps the command line switches onto a zap level. Debug wins over
// verbose, which wins over quiet.
func (o Options) Level() zapcore.Level {
	switch {
	case o.Debug, o.Verbose:
		return zapcore.DebugLevel
	case o.Quiet:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// New builds a console logger writing to stderr, with colours when stderr is
// a terminal. When LogFile is set every entry is also appended to that file.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(opts.Level())

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), level))
	}

	zapOpts := []zap.Option{}
	if opts.Debug {
		zapOpts = append(zapOpts, zap.AddCaller())
	}

	return zap.New(zapcore.NewTee(cores...), zapOpts...), nil
}
