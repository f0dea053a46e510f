// Package logger provides the application-wide logging interface backed by zap.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Interface interface {
	Debug(message interface{}, args ...interface{})
	Info(message string, args ...interface{})
	Warn(message string, args ...interface{})
	Error(message interface{}, args ...interface{})
	Fatal(message interface{}, args ...interface{})
}

type Logger struct {
	logger *zap.SugaredLogger
}

var _ Interface = (*Logger)(nil)

func New(level string) *Logger {
	var zapLevel zapcore.Level

	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.EncoderConfig.MessageKey = "message"

	zl, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		zl = zap.NewNop()
	}

	return &Logger{
		logger: zl.Sugar(),
	}
}

func (l *Logger) Debug(message interface{}, args ...interface{}) {
	l.msg("debug", message, args...)
}

func (l *Logger) Info(message string, args ...interface{}) {
	l.log(message, args...)
}

func (l *Logger) Warn(message string, args ...interface{}) {
	if len(args) == 0 {
		l.logger.Warn(message)
	} else {
		l.logger.Warnf(message, args...)
	}
}

func (l *Logger) Error(message interface{}, args ...interface{}) {
	l.msg("error", message, args...)
}

func (l *Logger) Fatal(message interface{}, args ...interface{}) {
	l.msg("fatal", message, args...)
}

func (l *Logger) log(message string, args ...interface{}) {
	if len(args) == 0 {
		l.logger.Info(message)
	} else {
		l.logger.Infof(message, args...)
	}
}

func (l *Logger) msg(level string, message interface{}, args ...interface{}) {
	var text string

	switch m := message.(type) {
	case error:
		text = m.Error()
	case string:
		text = m
	default:
		text = fmt.Sprintf("message %v has unknown type %v", message, m)
	}

	if len(args) > 0 {
		text = fmt.Sprintf("%s %v", text, args)
	}

	switch level {
	case "debug":
		l.logger.Debug(text)
	case "error":
		l.logger.Error(text)
	case "fatal":
		l.logger.Fatal(text)
	}
}

// Sync flushes buffered entries, called on shutdown.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}
