package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hzhao/stock-selector/pkg/config"
	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the hooks the rest of the module
// needs. Derived loggers share the sink and differ only in bound fields.
// ⭐ SSOT: 所有日志输出都经过这个包
type Logger struct {
	zlog zerolog.Logger
}

// New builds the process logger from config. Format "console" (or
// "pretty") renders for a terminal; anything else emits JSON lines.
// The level is bound per logger, not globally, so tests can run loggers
// at different levels side by side.
func New(cfg *config.Config) *Logger {
	var output io.Writer = os.Stdout
	if cfg.LogFormat == "console" || cfg.LogFormat == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	zlog := zerolog.New(output).
		Level(parseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("env", cfg.Env).
		Logger()

	return &Logger{zlog: zlog}
}

func parseLevel(s string) zerolog.Level {
	// 兼容 "warning" 的写法
	if strings.EqualFold(s, "warning") {
		return zerolog.WarnLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string) { l.zlog.Fatal().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.zlog.Fatal().Msgf(format, args...)
}

// WithField binds one field onto a derived logger.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields binds several fields at once.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithError binds err under the standard "error" key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

// WithContext binds ctx for zerolog hooks that read it.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{zlog: l.zlog.With().Ctx(ctx).Logger()}
}

// WithDuration binds an elapsed time under "elapsed", rounded to the
// millisecond. Sync and indicator batches report timings through this.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{zlog: l.zlog.With().Dur("elapsed", d.Round(time.Millisecond)).Logger()}
}

// Zerolog exposes the underlying logger
// 外部包需要直接用 zerolog 能力时使用
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
