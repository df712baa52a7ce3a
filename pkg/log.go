package pkg

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/alchemy/rotoslog"
	console "github.com/phsym/console-slog"
)

const TraceLevel = slog.Level(-8)

var _ slog.Handler = (*MultiLogHandler)(nil)

func ParseLevel(level string) slog.Level {
	var lv slog.LevelVar
	if level == "trace" {
		lv.Set(TraceLevel)
	} else {
		lv.UnmarshalText([]byte(level))
	}
	return lv.Level()
}

type LogConfig struct {
	Level      string `default:"info" desc:"日志级别 trace/debug/info/warn/error"`
	Color      bool   `default:"true" desc:"控制台彩色输出"`
	TimeFormat string `default:"2006-01-02 15:04:05.000" desc:"时间格式"`
	Path       string `desc:"日志文件目录，为空则不写文件"`
	Size       uint64 `default:"1048576" desc:"日志文件大小，单位：字节"`
	Formatter  string `default:"2006-01-02T15" desc:"日志文件名格式"`
	MaxFiles   uint64 `default:"7" desc:"最大日志文件数量"`
}

// NewLogger 控制台输出，配置了 Path 时同时写入滚动日志文件
func NewLogger(w io.Writer, conf LogConfig) (*slog.Logger, error) {
	level := ParseLevel(conf.Level)
	handler := NewMultiLogHandler(level)
	handler.Add(console.NewHandler(w, &console.HandlerOptions{NoColor: !conf.Color, Level: level, TimeFormat: conf.TimeFormat}))
	if conf.Path != "" {
		builder := func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
			return console.NewHandler(w, &console.HandlerOptions{NoColor: true, Level: level, TimeFormat: conf.TimeFormat})
		}
		fileHandler, err := rotoslog.NewHandler(rotoslog.LogHandlerBuilder(builder), rotoslog.LogDir(conf.Path), rotoslog.MaxFileSize(conf.Size), rotoslog.DateTimeLayout(conf.Formatter), rotoslog.MaxRotatedFiles(conf.MaxFiles))
		if err != nil {
			return nil, err
		}
		handler.Add(fileHandler)
	}
	return slog.New(handler), nil
}

type MultiLogHandler struct {
	handlers []slog.Handler
	level    *slog.LevelVar
}

func NewMultiLogHandler(level slog.Level) *MultiLogHandler {
	m := &MultiLogHandler{level: new(slog.LevelVar)}
	m.level.Set(level)
	return m
}

func (m *MultiLogHandler) Add(h slog.Handler) {
	m.handlers = append(m.handlers, h)
}

func (m *MultiLogHandler) Remove(h slog.Handler) {
	if i := slices.Index(m.handlers, h); i != -1 {
		m.handlers = slices.Delete(m.handlers, i, i+1)
	}
}

func (m *MultiLogHandler) SetLevel(level slog.Level) {
	m.level.Set(level)
}

// Enabled implements slog.Handler.
func (m *MultiLogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= m.level.Level()
}

// Handle implements slog.Handler.
func (m *MultiLogHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (m *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	result := &MultiLogHandler{
		handlers: make([]slog.Handler, len(m.handlers)),
		level:    m.level,
	}
	for i, h := range m.handlers {
		result.handlers[i] = h.WithAttrs(attrs)
	}
	return result
}

// WithGroup implements slog.Handler.
func (m *MultiLogHandler) WithGroup(name string) slog.Handler {
	result := &MultiLogHandler{
		handlers: make([]slog.Handler, len(m.handlers)),
		level:    m.level,
	}
	for i, h := range m.handlers {
		result.handlers[i] = h.WithGroup(name)
	}
	return result
}
