// Package observability provides the structured logging hooks used across
// the reconstruction pipeline. Implementations are intentionally minimal: a
// nop logger for library use and a text logger for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Logger is the structured logger accepted by every pipeline stage.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a typed key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field      { return Field{key, value} }
func Int(key string, value int) Field     { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Float64(key string, v float64) Field { return Field{key, v} }
func Bool(key string, value bool) Field   { return Field{key, value} }
func Error(key string, err error) Field   { return Field{key, err} }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Level filters TextLogger output.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// TextLogger writes level-prefixed key=value lines to a writer. Safe for
// concurrent use by the page worker pool.
type TextLogger struct {
	mu    *sync.Mutex
	w     io.Writer
	min   Level
	bound []Field
}

// NewTextLogger returns a TextLogger writing entries at or above min to w.
func NewTextLogger(w io.Writer, min Level) *TextLogger {
	return &TextLogger{mu: &sync.Mutex{}, w: w, min: min}
}

func (l *TextLogger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, "DEBUG", msg, fields) }
func (l *TextLogger) Info(msg string, fields ...Field)  { l.emit(LevelInfo, "INFO", msg, fields) }
func (l *TextLogger) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, "WARN", msg, fields) }
func (l *TextLogger) Error(msg string, fields ...Field) { l.emit(LevelError, "ERROR", msg, fields) }

// With returns a logger that attaches fields to every entry.
func (l *TextLogger) With(fields ...Field) Logger {
	out := &TextLogger{mu: l.mu, w: l.w, min: l.min}
	out.bound = append(append([]Field(nil), l.bound...), fields...)
	return out
}

func (l *TextLogger) emit(lvl Level, tag, msg string, fields []Field) {
	if lvl < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(tag)
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range append(append([]Field(nil), l.bound...), fields...) {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteString("\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, b.String())
}

// Standard metric names emitted by the pipeline.
const (
	MetricPagesProcessed  = "reflow.pages.processed"
	MetricPagesFailed     = "reflow.pages.failed"
	MetricTablesReordered = "reflow.fixer.tables_reordered"
	MetricTablesMerged    = "reflow.fixer.tables_merged"
	MetricKVPromotions    = "reflow.kvtable.promotions"
	MetricContinuations   = "reflow.merger.continuations"
	MetricOrphanFragments = "reflow.merger.orphans"
	MetricVisualArtifacts = "reflow.imaging.artifacts"
)

// Counters is a small concurrency-safe counter set keyed by metric name.
type Counters struct {
	mu sync.Mutex
	m  map[string]int64
}

// NewCounters returns an empty counter set.
func NewCounters() *Counters { return &Counters{m: map[string]int64{}} }

// Add increments the named counter.
func (c *Counters) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[name] += delta
}

// Snapshot returns the counters in deterministic order.
func (c *Counters) Snapshot() []Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, Int64(k, c.m[k]))
	}
	return out
}
