package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志实例
var Logger *logrus.Logger

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`           // debug / info / warn / error
	OutputFile string `yaml:"outputFile" json:"outputFile"` // 日志文件路径（为空则只输出到控制台）
	MaxSize    int    `yaml:"maxSize" json:"maxSize"`       // 单个日志文件最大大小（MB）
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"maxAge" json:"maxAge"`         // 保留旧日志文件的天数
	Compress   bool   `yaml:"compress" json:"compress"`     // 是否压缩旧日志文件
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7
	}
}

// Init 初始化日志系统
// 同时配置全局 logrus 标准实例，包内 logrus.WithField 的调用共享同一输出
func Init(config Config) error {
	config.ApplyDefaults()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	})

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	Logger = logger

	logrus.SetLevel(level)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	return nil
}

// WithField 便捷封装
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger == nil {
		return logrus.WithField(key, value)
	}
	return Logger.WithField(key, value)
}

// WithFields 便捷封装
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger == nil {
		return logrus.WithFields(fields)
	}
	return Logger.WithFields(fields)
}

func std() *logrus.Logger {
	if Logger == nil {
		return logrus.StandardLogger()
	}
	return Logger
}

func Debug(args ...interface{})                 { std().Debug(args...) }
func Debugf(format string, args ...interface{}) { std().Debugf(format, args...) }
func Info(args ...interface{})                  { std().Info(args...) }
func Infof(format string, args ...interface{})  { std().Infof(format, args...) }
func Warn(args ...interface{})                  { std().Warn(args...) }
func Warnf(format string, args ...interface{})  { std().Warnf(format, args...) }
func Error(args ...interface{})                 { std().Error(args...) }
func Errorf(format string, args ...interface{}) { std().Errorf(format, args...) }
