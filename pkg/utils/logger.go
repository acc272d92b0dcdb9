package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel уровень логирования
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Logger структурированный логгер поверх logrus
type Logger struct {
	entry *logrus.Entry
}

// ParseLevel разбирает уровень логирования, по умолчанию info
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// NewLogger создает новый логгер
func NewLogger(level, format string) *Logger {
	return NewLoggerWithOutput(level, format, os.Stdout)
}

// NewLoggerWithOutput создает логгер с заданным выводом
func NewLoggerWithOutput(level, format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(toLogrusLevel(ParseLevel(level)))
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return NewLoggerFrom(l)
}

// NewLoggerFrom оборачивает готовый logrus.Logger (например, из hooks/test)
func NewLoggerFrom(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// WithField добавляет поле к логгеру
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields добавляет несколько полей к логгеру
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError добавляет ошибку в поле error
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// Debug логирует сообщение уровня debug
func (l *Logger) Debug(msg string) {
	l.entry.Debug(msg)
}

// Info логирует сообщение уровня info
func (l *Logger) Info(msg string) {
	l.entry.Info(msg)
}

// Warn логирует сообщение уровня warn
func (l *Logger) Warn(msg string) {
	l.entry.Warn(msg)
}

// Error логирует сообщение уровня error
func (l *Logger) Error(msg string) {
	l.entry.Error(msg)
}

// Fatal логирует сообщение уровня fatal и завершает программу
func (l *Logger) Fatal(msg string) {
	l.entry.Fatal(msg)
}

// Progress пишет событие прогресса: на info при verbose, иначе на debug
func (l *Logger) Progress(verbose bool, msg string) {
	if verbose {
		l.entry.Info(msg)
		return
	}
	l.entry.Debug(msg)
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// NopLogger возвращает логгер, который ничего не выводит
func NopLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewLoggerFrom(l)
}
