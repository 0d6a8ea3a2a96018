// Package logger builds the process-wide slog.Logger. Text output renders
// through charmbracelet/log for interactive use; JSON output is one LogEntry
// per line with the analysis-domain keys promoted to stable top-level
// members so downstream filters never dig into the fields map for them.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"mealsnap/pkg/config"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Env overrides beat the config file.
const (
	envFormat    = "MEALSNAP_LOG_FORMAT"
	envLevel     = "MEALSNAP_LOG_LEVEL"
	envAddSource = "MEALSNAP_LOG_ADD_SOURCE"
)

// LogEntry is one JSON log line.
//
// Component names the emitting subsystem, provider and request_id tie a line
// to one vendor call, duration_ms carries its latency. Every other attribute
// lands in Fields under its (group-prefixed) key.
type LogEntry struct {
	Level      string         `json:"level"`
	Timestamp  string         `json:"timestamp"`
	Component  string         `json:"component,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Message    string         `json:"message"`
	Caller     string         `json:"caller,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// promote fills a dedicated entry member when the key is one of the
// recognized analysis keys. Reports whether the attribute was consumed.
func (e *LogEntry) promote(key string, value slog.Value) bool {
	switch key {
	case "component":
		e.Component = stringValue(value)
	case "provider":
		e.Provider = stringValue(value)
	case "request_id":
		e.RequestID = stringValue(value)
	case "duration_ms":
		if value.Kind() != slog.KindInt64 {
			return false
		}
		e.DurationMS = value.Int64()
	default:
		return false
	}
	return true
}

// absorb routes one attribute into the entry. Promotion only applies to
// ungrouped keys; grouped attributes always flatten into Fields.
func (e *LogEntry) absorb(fields map[string]any, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if prefix == "" && e.promote(attr.Key, attr.Value) {
		return
	}

	key := prefix + attr.Key
	if attr.Value.Kind() == slog.KindGroup {
		for _, member := range attr.Value.Group() {
			e.absorb(fields, key+".", member)
		}
		return
	}

	fields[key] = plainValue(attr.Value)
}

type options struct {
	format    string
	level     slog.Level
	addSource bool
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func resolveOptions(cfg config.LoggingConfig) (options, error) {
	opts := options{
		format:    strings.ToLower(strings.TrimSpace(cfg.Format)),
		addSource: cfg.AddSource,
	}

	if env := strings.TrimSpace(os.Getenv(envFormat)); env != "" {
		opts.format = strings.ToLower(env)
	}
	if opts.format == "" {
		opts.format = FormatText
	}
	if opts.format != FormatText && opts.format != FormatJSON {
		return options{}, fmt.Errorf("unsupported log format %q", opts.format)
	}

	levelText := strings.ToLower(strings.TrimSpace(cfg.Level))
	if env := strings.TrimSpace(os.Getenv(envLevel)); env != "" {
		levelText = strings.ToLower(env)
	}
	if levelText == "" {
		levelText = "info"
	}
	level, ok := levelNames[levelText]
	if !ok {
		return options{}, fmt.Errorf("unsupported log level %q", levelText)
	}
	opts.level = level

	if env := strings.TrimSpace(os.Getenv(envAddSource)); env != "" {
		switch strings.ToLower(env) {
		case "1", "true", "yes", "on":
			opts.addSource = true
		default:
			opts.addSource = false
		}
	}

	return opts, nil
}

// New builds the logger described by the logging config, writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	opts, err := resolveOptions(cfg)
	if err != nil {
		return nil, err
	}

	if opts.format == FormatText {
		pretty := charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(opts.level),
			ReportTimestamp: true,
			ReportCaller:    opts.addSource,
			Formatter:       charmLog.TextFormatter,
		})
		return slog.New(pretty), nil
	}

	return slog.New(&analysisHandler{opts: opts, writer: writer, mu: &sync.Mutex{}}), nil
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

// analysisHandler marshals records into LogEntry JSON lines.
type analysisHandler struct {
	opts   options
	writer io.Writer
	attrs  []slog.Attr
	prefix string
	mu     *sync.Mutex
}

func (h *analysisHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level
}

func (h *analysisHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := map[string]any{}
	for _, attr := range h.attrs {
		entry.absorb(fields, h.prefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.absorb(fields, h.prefix, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.opts.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *analysisHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *analysisHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}

	return filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

func stringValue(value slog.Value) string {
	if value.Kind() == slog.KindString {
		return value.String()
	}
	return fmt.Sprint(value.Any())
}

func plainValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindUint64:
		return value.Uint64()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	default:
		return value.Any()
	}
}
