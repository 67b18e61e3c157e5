package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/patconext-data/internal/common/discord"
	"github.com/rs/zerolog"
)

// Logger interface defines the logging methods
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

type loggerImpl struct {
	zl     zerolog.Logger
	alerts *discord.Client
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level           zerolog.Level
	Console         bool
	File            bool
	FilePath        string
	MaxSizeMB       int
	MaxBackups      int
	MaxAgeDays      int
	Compress        bool
	TimeFieldFormat string
	// DiscordURL receives error and fatal events when set.
	DiscordURL string
}

// DefaultLoggerConfig returns console and rotating file output at info level
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:           zerolog.InfoLevel,
		Console:         true,
		File:            true,
		FilePath:        "patconext.log",
		MaxSizeMB:       10,
		MaxBackups:      5,
		MaxAgeDays:      30,
		Compress:        true,
		TimeFieldFormat: time.RFC3339,
	}
}

// New creates a new logger instance with the given writers
func New(writers ...io.Writer) Logger {
	multi := io.MultiWriter(writers...)
	zl := zerolog.New(multi).With().Timestamp().Logger()
	return &loggerImpl{zl: zl}
}

// NewFromConfig builds a logger from cfg, wiring the Discord alert hook
// when a webhook URL is configured
func NewFromConfig(cfg LoggerConfig) Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFieldFormat})
	}
	if cfg.File {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	if cfg.TimeFieldFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFieldFormat
	}

	l := &loggerImpl{
		zl: zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger().Level(cfg.Level),
	}
	if cfg.DiscordURL != "" {
		l.alerts = discord.NewClient(cfg.DiscordURL)
	}
	return l
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &loggerImpl{zl: zerolog.Nop()}
}

// ConsoleWriter returns a console writer
func ConsoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// ParseLogLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info
func ParseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *loggerImpl) Info(msg string, fields ...interface{}) {
	logWithFields(l.zl.Info(), msg, fields...)
}

func (l *loggerImpl) Warn(msg string, fields ...interface{}) {
	logWithFields(l.zl.Warn(), msg, fields...)
}

func (l *loggerImpl) Error(msg string, fields ...interface{}) {
	logWithFields(l.zl.Error(), msg, fields...)
	if l.alerting(zerolog.ErrorLevel) {
		go func() {
			_ = l.alerts.SendLogMessage("ERROR", msg, fieldMap(fields))
		}()
	}
}

func (l *loggerImpl) Debug(msg string, fields ...interface{}) {
	logWithFields(l.zl.Debug(), msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *loggerImpl) Fatal(msg string, fields ...interface{}) {
	// the process exits once the event is written
	if l.alerting(zerolog.FatalLevel) {
		_ = l.alerts.SendLogMessage("FATAL", msg, fieldMap(fields))
	}
	logWithFields(l.zl.Fatal(), msg, fields...)
}

func (l *loggerImpl) alerting(level zerolog.Level) bool {
	return l.alerts != nil && l.zl.GetLevel() <= level
}

// logWithFields adds structured fields to the event
func logWithFields(event *zerolog.Event, msg string, fields ...interface{}) {
	if event == nil {
		return
	}
	if len(fields) == 1 {
		if m, ok := fields[0].(map[string]interface{}); ok {
			event.Fields(m).Msg(msg)
			return
		}
	}
	// fallback: treat as key-value pairs
	if len(fields)%2 == 0 {
		for i := 0; i < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			if key == "error" {
				if err, ok := fields[i+1].(error); ok && err != nil {
					event = event.Err(err)
					continue
				}
			}
			event = event.Interface(key, fields[i+1])
		}
	}
	event.Msg(msg)
}

// fieldMap collects the same fields logWithFields writes, for alerts.
func fieldMap(fields []interface{}) map[string]interface{} {
	if len(fields) == 1 {
		if m, ok := fields[0].(map[string]interface{}); ok {
			return m
		}
	}
	if len(fields)%2 != 0 {
		return nil
	}
	m := make(map[string]interface{}, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok && err != nil {
			m[key] = err.Error()
			continue
		}
		m[key] = fields[i+1]
	}
	return m
}
