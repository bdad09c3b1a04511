package logger

import (
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spreadflow/conf"
)

var l *zap.SugaredLogger

// Pair 构造一个结构化字段，配合 Info/Error 使用
func Pair(key string, value interface{}) interface{} {
	return zap.Any(key, value)
}

// InitLogger 初始化全局日志，文件输出走lumberjack滚动
func InitLogger(cfg *conf.LogConfig, appName string) {
	level := zapcore.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05.000"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeFormat))
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core

	if cfg.FileName != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level))
	}

	if cfg.Console || cfg.FileName == "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		Named(appName)
	l = zl.Sugar()
}

// 未初始化时退回到控制台输出，避免单测里空指针
func log() *zap.SugaredLogger {
	if l == nil {
		zl, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
		l = zl.Sugar()
	}
	return l
}

func Debugf(format string, args ...interface{}) { log().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { log().Fatalf(format, args...) }

func Info(msg string, pairs ...interface{})  { log().Infow(msg, pairs...) }
func Warn(msg string, pairs ...interface{})  { log().Warnw(msg, pairs...) }
func Error(msg string, pairs ...interface{}) { log().Errorw(msg, pairs...) }
func Fatal(msg string, pairs ...interface{}) { log().Fatalw(msg, pairs...) }

// Sync 进程退出前刷盘
func Sync() {
	if l != nil {
		_ = l.Sync()
	}
}
