// Package log 基于 zap 封装的全局日志组件，支持 lumberjack 日志切割
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	// 日志级别: debug / info / warn / error
	Level string `yaml:"level"`
	// 输出格式: json / console
	Format string `yaml:"format"`
	// 日志文件路径，为空时输出到标准输出
	FileName string `yaml:"fileName"`
	// 单个日志文件大小上限，单位 MB
	MaxSize int `yaml:"maxSize"`
	// 保留的旧日志文件个数
	MaxBackups int `yaml:"maxBackups"`
	// 旧日志文件保留天数
	MaxAge int `yaml:"maxAge"`
}

var (
	mu     sync.RWMutex
	logger = newLogger(Config{}).Sugar()
)

// Init 按配置重建全局日志实例，应在进程启动时调用一次
func Init(conf Config) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(conf).Sugar()
}

func newLogger(conf Config) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encoderConf := zap.NewProductionEncoderConfig()
	encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if conf.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConf)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConf)
	}

	var syncer zapcore.WriteSyncer
	if conf.FileName == "" {
		syncer = zapcore.AddSync(os.Stdout)
	} else {
		syncer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.FileName,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
		})
	}

	return zap.New(zapcore.NewCore(encoder, syncer, level), zap.AddCaller(), zap.AddCallerSkip(1))
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) {
	sugar().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	sugar().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	sugar().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	sugar().Errorf(format, args...)
}

// WarnContextf 带上下文的 warn 日志，便于后续接入链路追踪
func WarnContextf(ctx context.Context, format string, args ...interface{}) {
	sugar().Warnf(format, args...)
}

// ErrorContextf 带上下文的 error 日志
func ErrorContextf(ctx context.Context, format string, args ...interface{}) {
	sugar().Errorf(format, args...)
}
