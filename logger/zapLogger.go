package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(log *zap.Logger) *zapLogger {
	return &zapLogger{logger: log}
}

//NewZap builds a production zap logger writing JSON to stderr at the given level ("debug", "info", ...).
func NewZap(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.AddCallerSkip(2))
}

func (z zapLogger) Debug(str string) {
	z.logger.Debug(str)
}

func (z zapLogger) Info(str string) {
	z.logger.Info(str)
}

func (z zapLogger) Warn(str string) {
	z.logger.Warn(str)
}

func (z zapLogger) Error(str string) {
	z.logger.Error(str)
}

func (z zapLogger) Fatal(str string) {
	z.logger.Fatal(str)
}
