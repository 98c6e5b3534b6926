// Package logging 提供了统一的结构化日志（slog）封装，支持OpenTelemetry追踪上下文注入与日志文件切割。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace" // OpenTelemetry追踪
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu sync.RWMutex
	// defaultLogger 是全局默认的Logger实例，由 SetDefault 或 InitLogger 设置。
	defaultLogger *Logger
	// once 用于确保InitLogger函数只被执行一次。
	once sync.Once
	// level 指向默认 Logger 的动态级别，SetLevel 通过它在运行时调整日志级别。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string
	Module     string
	Level      string
	Format     string    // json 或 text，默认 json
	Output     io.Writer // 控制台输出目标，为空时使用 stderr（stdout 留给查询结果）
	File       string    // 日志文件路径，为空则只输出到控制台
	MaxSize    int       // 每个日志文件最大尺寸 (MB)
	MaxBackups int       // 保留旧日志文件的最大个数
	MaxAge     int       // 保留旧日志文件的最大天数
	Compress   bool      // 是否压缩旧日志
}

// Logger 结构体封装了原生的 `*slog.Logger`，并添加了服务名和模块名，方便在日志中区分来源。
type Logger struct {
	*slog.Logger
	Service string // 服务名称
	Module  string // 模块名称

	level  *slog.LevelVar // 本 Logger 的动态级别
	closer io.Closer      // 文件输出的关闭句柄，可能为空
}

// TraceHandler 是一个自定义的 `slog.Handler` 装饰器，用于从 `context.Context` 中提取并注入 `trace_id` 和 `span_id` 到日志记录中。
type TraceHandler struct {
	slog.Handler
}

// Handle 在处理日志记录之前尝试从上下文获取 SpanContext，如果有效，则将 trace_id 和 span_id 添加到日志属性中。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器在派生 Logger 上继续生效。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 保持装饰器在派生 Logger 上继续生效。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将配置中的级别字符串转换为 slog.Level，无法识别时返回 Info。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// SetLevel 调整默认 Logger 的日志级别，配置热更新时调用。
func SetLevel(s string) {
	mu.RLock()
	defer mu.RUnlock()
	level.Set(ParseLevel(s))
}

// CurrentLevel 返回默认 Logger 的日志级别。
func CurrentLevel() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return level.Level()
}

// NewFromConfig 创建一个新的Logger实例，级别独立于其他 Logger。
// 配置了 File 时同时写入控制台与 lumberjack 滚动文件。
func NewFromConfig(cfg Config) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(cfg.Level))

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			a.Key = "timestamp"
		}
		return a
	}
	opts := &slog.HandlerOptions{Level: lv, ReplaceAttr: replaceAttr}

	newHandler := func(w io.Writer) slog.Handler {
		if cfg.Format == "text" {
			return slog.NewTextHandler(w, opts)
		}
		return slog.NewJSONHandler(w, opts)
	}

	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{newHandler(console)}

	var closer io.Closer
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		// 文件始终使用 JSON，便于采集
		handlers = append(handlers, slog.NewJSONHandler(fileWriter, opts))
		closer = fileWriter
	}

	logger := slog.New(&TraceHandler{Handler: newFanoutHandler(handlers...)}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
		level:   lv,
		closer:  closer,
	}
}

// Close 关闭文件输出。
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// With 返回附加了属性的 Logger，保留服务名与模块名。
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), Service: l.Service, Module: l.Module, level: l.level, closer: l.closer}
}

// SetDefault 将 l 设为默认日志记录器与 slog 的默认 Logger，此后 SetLevel 作用于 l。
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
	level = l.level
	slog.SetDefault(l.Logger)
}

// InitLogger 在尚未设置默认日志记录器时按 cfg 创建一个并设为默认。
func InitLogger(cfg Config) *Logger {
	once.Do(func() {
		if Default() == nil {
			SetDefault(NewFromConfig(cfg))
		}
	})
	return Default()
}

// Default 返回默认日志记录器实例，未设置时为 nil。
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// LogDuration 记录操作耗时，返回的函数应在操作结束时调用。
func (l *Logger) LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		l.InfoContext(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}
