// Package log is the structured logging facade used throughout this
// repository: the sync driver, the RPC server, and the Engine API handler
// take a Logger in their constructors, and stages read it from
// stagedsync.Context, rather than reach for a global. No log file
// was present in the retrieved pack, so this wraps go.uber.org/zap and
// gopkg.in/natefinch/lumberjack.v2 directly per the teacher's go.mod
// dependency surface, following the conventional level-method-plus-
// key/value-pairs shape erigon's own log/v3 package exposes.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the interface those constructors and stagedsync.Context carry.
type Logger interface {
	Trace(msg string, kv ...interface{})
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Crit(msg string, kv ...interface{})
	New(kv ...interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a root Logger writing to stderr only.
func New() Logger {
	logger, _ := zap.NewProduction()
	return &zapLogger{s: logger.Sugar()}
}

// NewFileRotating builds a root Logger that writes JSON lines to stderr and
// additionally rotates them into dir via lumberjack (the --log.dir.path
// sink).
func NewFileRotating(dir string, maxSizeMB, maxBackups, maxAgeDays int) Logger {
	sink := &lumberjack.Logger{
		Filename:   dir + "/corexec.log",
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(sink), zap.InfoLevel),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), zap.InfoLevel),
	)
	return &zapLogger{s: zap.New(core).Sugar()}
}

func (l *zapLogger) Trace(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Crit(msg string, kv ...interface{})  { l.s.Fatalw(msg, kv...) }

// New returns a child logger with kv permanently attached (component
// tagging, e.g. logger.New("stage", "headers")).
func (l *zapLogger) New(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

// Nop is a Logger that discards everything, useful in tests.
type Nop struct{}

func (Nop) Trace(string, ...interface{}) {}
func (Nop) Debug(string, ...interface{}) {}
func (Nop) Info(string, ...interface{})  {}
func (Nop) Warn(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}
func (Nop) Crit(string, ...interface{})  {}
func (Nop) New(...interface{}) Logger    { return Nop{} }
