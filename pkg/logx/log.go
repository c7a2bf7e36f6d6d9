package logx

import (
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is replaced by NewLogger. It discards everything until then so
// packages can log from tests without any setup.
var Logger = zap.NewNop().Sugar()

type Config struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string
	// File enables a rotating log file next to the console output.
	File string
}

func NewLogger(config Config) error {
	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", config.Level, err)
		}
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	}

	if config.File != "" {
		// 10MB per file, 3 backups, 7 days
		rotator := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(rotator), level))
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()

	return nil
}

func Sync() {
	err := Logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		// https://github.com/uber-go/zap/issues/328
		return
	}
	if err != nil {
		log.Printf(`level=error msg="%s" desc="%s"`, err.Error(), "could not sync (flush) logger")
	}
}
