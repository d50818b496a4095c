package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/lmittmann/tint"
)

// =========================
// JSON Transport
// =========================

// JSONTransport 将日志记录以 JSON 行的形式写到任意 io.Writer
type JSONTransport struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONTransport 创建 JSONTransport, w 为 nil 时写 stdout
func NewJSONTransport(w io.Writer) *JSONTransport {
	if w == nil {
		w = os.Stdout
	}
	return &JSONTransport{encoder: json.NewEncoder(w)}
}

func (t *JSONTransport) Name() string { return "json" }

func (t *JSONTransport) Log(ctx context.Context, rec *LogRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder.Encode(rec)
}

func (t *JSONTransport) Flush(ctx context.Context) error { return nil }

// =========================
// File Transport
// =========================

// FileTransport 将日志记录以 JSON 行写入到指定文件
type FileTransport struct {
	JSONTransport
	file *os.File
}

// NewFileTransport 创建 FileTransport, path 为日志文件路径
func NewFileTransport(path string) (*FileTransport, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileTransport{
		JSONTransport: JSONTransport{encoder: json.NewEncoder(f)},
		file:          f,
	}, nil
}

func (t *FileTransport) Name() string { return "file" }

func (t *FileTransport) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Sync()
}

// Close 关闭底层文件
func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// =========================
// Slog Transport
// =========================

// SlogTransport 将日志记录转发给 *slog.Logger
type SlogTransport struct {
	logger *slog.Logger
}

// NewSlogTransport 包装已有的 slog.Logger
func NewSlogTransport(logger *slog.Logger) *SlogTransport {
	return &SlogTransport{logger: logger}
}

// NewConsoleTransport 创建基于 tint 的彩色控制台输出, w 为 nil 时写 stderr
func NewConsoleTransport(w io.Writer, noColor bool) *SlogTransport {
	if w == nil {
		w = os.Stderr
	}
	handler := tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
	return NewSlogTransport(slog.New(handler))
}

func (t *SlogTransport) Name() string { return "slog" }

func (t *SlogTransport) Log(ctx context.Context, rec *LogRecord) error {
	attrs := make([]slog.Attr, 0, len(rec.Fields)+1)
	if rec.Component != "" {
		attrs = append(attrs, slog.String("component", rec.Component))
	}
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, rec.Fields[k]))
	}
	t.logger.LogAttrs(ctx, toSlogLevel(rec.Level), rec.Message, attrs...)
	return nil
}

func (t *SlogTransport) Flush(ctx context.Context) error { return nil }

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
