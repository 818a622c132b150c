package logger

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerAlreadyDefinedErr = errors.New("logger already defined")
)

var (
	once sync.Once
	mu   sync.RWMutex
)

type logger struct {
	loggerI
}

var loggerInstance *logger

// fallback writes to stderr until NewInstance installs a real backend,
// so startup failures are never silent.
var fallback = &logger{NewZapLogger(newConsoleZap(os.Stderr))}

func newConsoleZap(w zapcore.WriteSyncer, opts ...zap.Option) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), w, zapcore.InfoLevel)
	return zap.New(core, append([]zap.Option{zap.AddCallerSkip(2)}, opts...)...)
}

//NewInstance installs the process-wide backend. Only the first call wins.
func NewInstance(i loggerI) error {
	installed := false
	once.Do(func() {
		mu.Lock()
		loggerInstance = &logger{i}
		mu.Unlock()
		installed = true
	})
	if installed {
		return nil
	}
	current().Error(loggerAlreadyDefinedErr.Error())
	return loggerAlreadyDefinedErr
}

func current() *logger {
	mu.RLock()
	defer mu.RUnlock()
	if loggerInstance == nil {
		return fallback
	}
	return loggerInstance
}

func Debug(a ...any) {
	current().Debug(fmt.Sprint(a...))
}

func Info(a ...any) {
	current().Info(fmt.Sprint(a...))
}

func Warn(a ...any) {
	current().Warn(fmt.Sprint(a...))
}

func Error(a ...any) {
	current().Error(fmt.Sprint(a...))
}

func Fatal(a ...any) {
	current().Fatal(fmt.Sprint(a...))
}

func DebugF(format string, a ...any) {
	current().Debug(fmt.Sprintf(format, a...))
}

func InfoF(format string, a ...any) {
	current().Info(fmt.Sprintf(format, a...))
}

func WarnF(format string, a ...any) {
	current().Warn(fmt.Sprintf(format, a...))
}

func ErrorF(format string, a ...any) {
	current().Error(fmt.Sprintf(format, a...))
}

func FatalF(format string, a ...any) {
	current().Fatal(fmt.Sprintf(format, a...))
}

type loggerI interface {
	Debug(str string)
	Info(str string)
	Warn(str string)
	Error(str string)
	Fatal(str string)
}
