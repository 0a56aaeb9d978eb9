package slogcapture

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"strings"
	"sync"
)

// builtinHandler reproduces the output of slog's built-in default handler
// ("LEVEL msg k=v") on a private log.Logger that keeps the writer, prefix
// and flags the log package had before Setup. Attribute encoding is
// delegated to a TextHandler with the built-in keys removed.
type builtinHandler struct {
	out   *builtinOutput
	attrs slog.Handler
	level slog.Leveler
}

type builtinOutput struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	logger *log.Logger
}

var _ slog.Handler = (*builtinHandler)(nil)

func newBuiltinHandler(logger *log.Logger, level slog.Leveler) *builtinHandler {
	out := &builtinOutput{logger: logger}
	return &builtinHandler{
		out: out,
		attrs: slog.NewTextHandler(&out.buf, &slog.HandlerOptions{
			ReplaceAttr: dropBuiltinKeys,
		}),
		level: level,
	}
}

// logLoggerLevel reads the level set by slog.SetLogLoggerLevel.
func logLoggerLevel() slog.Level {
	level := slog.SetLogLoggerLevel(slog.LevelInfo)
	slog.SetLogLoggerLevel(level)
	return level
}

func dropBuiltinKeys(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey, slog.LevelKey, slog.MessageKey:
		return slog.Attr{}
	}
	return a
}

func (h *builtinHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *builtinHandler) Handle(ctx context.Context, r slog.Record) error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	h.out.buf.Reset()
	if err := h.attrs.Handle(ctx, r); err != nil {
		return err
	}

	var line strings.Builder
	line.WriteString(r.Level.String())
	line.WriteByte(' ')
	line.WriteString(r.Message)
	if attrs := strings.TrimSuffix(h.out.buf.String(), "\n"); attrs != "" {
		line.WriteByte(' ')
		line.WriteString(attrs)
	}
	return h.out.logger.Output(2, line.String())
}

func (h *builtinHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &builtinHandler{out: h.out, attrs: h.attrs.WithAttrs(attrs), level: h.level}
}

func (h *builtinHandler) WithGroup(name string) slog.Handler {
	return &builtinHandler{out: h.out, attrs: h.attrs.WithGroup(name), level: h.level}
}
