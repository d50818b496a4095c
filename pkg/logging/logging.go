package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level 日志级别
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelOrder = map[Level]int{
	LevelDebug: 1,
	LevelInfo:  2,
	LevelWarn:  3,
	LevelError: 4,
}

// ParseLevel 解析日志级别字符串
func ParseLevel(s string) (Level, error) {
	lvl := Level(strings.ToLower(strings.TrimSpace(s)))
	if lvl == "warning" {
		lvl = LevelWarn
	}
	if _, ok := levelOrder[lvl]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// LogRecord 标准化日志记录结构
type LogRecord struct {
	Timestamp time.Time              `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Transport 日志输出通道接口
type Transport interface {
	// Name 返回 transport 名称(用于调试)
	Name() string
	// Log 写入一条日志记录
	Log(ctx context.Context, rec *LogRecord) error
	// Flush 刷新缓冲(如果有)
	Flush(ctx context.Context) error
}

// sink 在同一组 transport 上派生出的 Logger 共享
type sink struct {
	mu         sync.RWMutex
	level      Level
	transports []Transport
}

// Logger 聚合多个 Transport, 提供统一的日志接口
type Logger struct {
	sink      *sink
	component string
}

// NewLogger 创建 Logger 实例
func NewLogger(level Level, transports ...Transport) *Logger {
	return &Logger{sink: &sink{level: level, transports: transports}}
}

// Nop 返回不输出任何内容的 Logger
func Nop() *Logger {
	return NewLogger(LevelError)
}

// Named 返回带组件名的子 Logger，与父 Logger 共享级别和 transports
func (l *Logger) Named(component string) *Logger {
	if l.component != "" {
		component = l.component + "." + component
	}
	return &Logger{sink: l.sink, component: component}
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetTransports 替换所有 transport
func (l *Logger) SetTransports(transports ...Transport) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.transports = transports
}

func (l *Logger) log(ctx context.Context, level Level, msg string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}

	rec := &LogRecord{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Fields:    mergeFields(FieldsFrom(ctx), fields),
	}

	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	for _, t := range l.sink.transports {
		_ = t.Log(ctx, rec)
	}
}

type fieldsKey struct{}

// WithFields 返回携带日志字段的 ctx, 经由它记录的日志都会带上这些字段。
// 嵌套调用时外层字段保留, 同名字段以内层为准。
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, fieldsKey{}, mergeFields(FieldsFrom(ctx), fields))
}

// FieldsFrom 返回 ctx 上携带的日志字段
func FieldsFrom(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(map[string]interface{})
	return fields
}

// mergeFields 返回新 map, 不修改入参; 调用点字段覆盖 ctx 字段
func mergeFields(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 {
		return override
	}
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (l *Logger) enabled(level Level) bool {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return levelOrder[level] >= levelOrder[l.sink.level]
}

// Debug 记录调试日志
func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelDebug, msg, fields)
}

// Info 记录信息日志
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelInfo, msg, fields)
}

// Warn 记录警告日志
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelWarn, msg, fields)
}

// Error 记录错误日志
func (l *Logger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelError, msg, fields)
}

// Flush 刷新所有 transports
func (l *Logger) Flush(ctx context.Context) {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	for _, t := range l.sink.transports {
		_ = t.Flush(ctx)
	}
}

// Default 全局 Logger，CLI 启动时按配置替换 transports
var Default = NewLogger(LevelInfo, NewConsoleTransport(nil, false))

func Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	Default.Debug(ctx, msg, fields)
}

func Info(ctx context.Context, msg string, fields map[string]interface{}) {
	Default.Info(ctx, msg, fields)
}

func Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	Default.Warn(ctx, msg, fields)
}

func Error(ctx context.Context, msg string, fields map[string]interface{}) {
	Default.Error(ctx, msg, fields)
}

func Flush(ctx context.Context) {
	Default.Flush(ctx)
}
