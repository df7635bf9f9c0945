package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls verbosity and the optional rotating log file.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Logger struct {
	zap     *zap.Logger
	restore func()
}

func New(env string, serviceName string, opts Options) (*Logger, error) {
	var encCfg zapcore.EncoderConfig
	var level zapcore.Level
	switch env {
	case "development":
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.CallerKey = "caller"
		level = zapcore.DebugLevel
	case "staging", "production":
		encCfg = zap.NewProductionEncoderConfig()
		level = zapcore.InfoLevel
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}

	var stdoutEnc zapcore.Encoder
	if env == "development" {
		stdoutEnc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		stdoutEnc = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEnc, zapcore.Lock(os.Stdout), level),
	}

	if opts.File != "" {
		fileCfg := encCfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileCfg),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   opts.Compress,
			}),
			level,
		))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).
		With(zap.String("service", serviceName))

	return &Logger{zap: zapLogger}, nil
}

// Zap exposes the underlying logger for components that take *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// RedirectStdLog sends the standard library logger through zap until Sync.
func (l *Logger) RedirectStdLog() {
	l.restore = zap.RedirectStdLog(l.zap)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	l.zap.Error(msg, append(fields, zap.Error(err))...)
}

func (l *Logger) Sync() {
	if l.restore != nil {
		l.restore()
		l.restore = nil
	}
	_ = l.zap.Sync()
}
