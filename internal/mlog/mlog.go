/*
DESCRIPTION
  mlog.go provides the structured logger shared by the demuxer and codec
  front-ends. It wraps zap with a lumberjack-backed rotating file sink so
  long-running decode sessions do not need their own logging setup.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mlog provides a shared structured logger for demuxer and codec
// front-ends, built on zap with optional lumberjack file rotation.
package mlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging interface codecs and demuxers depend on. A nil
// *Logger is valid and discards everything, so callers that do not care
// about diagnostics can pass nil into a constructor.
type Logger struct {
	s *zap.SugaredLogger
}

// FileConfig configures rotation for an on-disk log sink. A zero value
// disables file output; only stderr is used.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a Logger that writes JSON lines to stderr and, if cfg.Path is
// non-empty, to a rotating file managed by lumberjack.
func New(cfg FileConfig) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(zapcore.AddSync(os.Stderr)), zap.WarnLevel),
	}
	if cfg.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(lj), zap.DebugLevel))
	}
	core := zapcore.NewTee(cores...)
	return &Logger{s: zap.New(core).Sugar()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

func (l *Logger) sugar() *zap.SugaredLogger {
	if l == nil || l.s == nil {
		return zap.NewNop().Sugar()
	}
	return l.s
}

// Warnw logs a resync/desync-class event; per the decode contract codecs
// never escalate these to fatal.
func (l *Logger) Warnw(msg string, kv ...interface{}) { l.sugar().Warnw(msg, kv...) }

// Debugw logs fine-grained per-packet/per-atom tracing.
func (l *Logger) Debugw(msg string, kv ...interface{}) { l.sugar().Debugw(msg, kv...) }

// Errorw logs a fatal-to-the-caller condition the decoder is about to
// return as an error.
func (l *Logger) Errorw(msg string, kv ...interface{}) { l.sugar().Errorw(msg, kv...) }

// Sync flushes buffered log entries; callers should defer this at shutdown.
func (l *Logger) Sync() error {
	if l == nil || l.s == nil {
		return nil
	}
	return l.s.Sync()
}
