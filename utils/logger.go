package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is what documents, batches and op logs log through. With
// derives a logger that stamps every record with args, e.g. the
// document actor or the batch's first stamp.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}

type SlogLogger struct {
	logger *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

func NewDefaultLogger(level slog.Level) *SlogLogger {
	return NewLogger(os.Stderr, level)
}

// NewLogger writes slog text records to w, tagged lib=jdoc.
func NewLogger(w io.Writer, level slog.Level) *SlogLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &SlogLogger{logger: slog.New(handler).With("lib", "jdoc")}
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

type argsKey struct{}

// ArgsFrom lists the args attached to ctx by WithArgs.
func ArgsFrom(ctx context.Context) []any {
	args, _ := ctx.Value(argsKey{}).([]any)
	return args
}

// WithArgs attaches args to every record logged with the returned ctx.
func WithArgs(ctx context.Context, args ...any) context.Context {
	prev := ArgsFrom(ctx)
	all := make([]any, 0, len(prev)+len(args))
	all = append(append(all, prev...), args...)
	return context.WithValue(ctx, argsKey{}, all)
}

func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, msg, append(args, ArgsFrom(ctx)...)...)
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args)
}

func (l *SlogLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args)
}

func (l *SlogLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *SlogLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

func (l *SlogLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args)
}
