package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ResolveForJob resolves the glog pair and the go-job bridges for the worker.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	var jobLogger job.Logger
	if resolvedLogger != nil {
		jobLogger = job.GoLogger(resolvedLogger)
	}
	return resolvedProvider, resolvedLogger, jobProvider, jobLogger
}

const levelTrace = slog.Level(-8)

// SlogLogger writes glog calls to a slog handler. Key/value arguments are
// passed through as slog attributes.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger, ctx: context.Background()}
}

// NewJSONLogger logs JSON lines to w at the named level (trace, debug, info,
// warn, error). Unknown levels fall back to info.
func NewJSONLogger(w io.Writer, level string) *SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return NewSlogLogger(slog.New(handler))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// Fatal logs at error level and exits the process.
func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
	os.Exit(1)
}

func (l *SlogLogger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &SlogLogger{logger: l.logger, ctx: ctx}
}

func (l *SlogLogger) named(name string) *SlogLogger {
	return &SlogLogger{logger: l.logger.With("logger", name), ctx: l.ctx}
}

func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Log(l.ctx, level, msg, args...)
}

// SlogProvider hands out SlogLoggers tagged with the requested name.
type SlogProvider struct {
	root *SlogLogger
}

func NewSlogProvider(root *SlogLogger) *SlogProvider {
	if root == nil {
		root = NewSlogLogger(nil)
	}
	return &SlogProvider{root: root}
}

func (p *SlogProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return p.root.named(name)
}

var (
	_ glog.Logger         = (*SlogLogger)(nil)
	_ glog.LoggerProvider = (*SlogProvider)(nil)
)
