// Package logging builds the process logger: a human-readable console core
// teed with a JSON core writing to a size-rotated file, exposed as a
// logr.Logger.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log records go.
type Config struct {
	// Development logs everything down to V(1). Otherwise only warnings and
	// errors are written.
	Development bool

	// Console receives the console-encoded stream. Default: os.Stdout.
	Console io.Writer

	// FilePath is the rotated JSON log file. Empty disables file logging.
	FilePath string

	// MaxSizeMB is the size at which the file is rotated. Default: 1.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept. Default: 3.
	MaxBackups int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Console:    os.Stdout,
		FilePath:   "tmp/app.log",
		MaxSizeMB:  1,
		MaxBackups: 3,
	}
}

// New builds a logger. The returned function flushes buffered records and
// closes the log file.
func New(cfg Config) (logr.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if cfg.Development {
		level = zap.NewAtomicLevelAt(zapcore.Level(-1))
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	ce := zap.NewDevelopmentEncoderConfig()
	ce.EncodeTime = zapcore.TimeEncoderOfLayout("02/01 15:04:05")
	cores := []zapcore.Core{
		&removeCallerCore{zapcore.NewCore(zapcore.NewConsoleEncoder(ce), zapcore.AddSync(console), level)},
	}

	var rotator *lumberjack.Logger
	if cfg.FilePath != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 1),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
		}
		fe := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fe), zapcore.AddSync(rotator), level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() error {
		_ = zl.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return zapr.NewLogger(zl), closer, nil
}

// removeCallerCore drops caller information, which only the file output
// keeps.
type removeCallerCore struct {
	zapcore.Core
}

func (c *removeCallerCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(entry, nil) == nil {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *removeCallerCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Caller = zapcore.EntryCaller{}
	return c.Core.Write(entry, fields)
}

func (c *removeCallerCore) With(fields []zapcore.Field) zapcore.Core {
	return &removeCallerCore{c.Core.With(fields)}
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
