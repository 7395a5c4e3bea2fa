package monitoring

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogCapacity = 1000

// LogEntry is one captured log record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"metadata,omitempty"`
}

// LogStats summarises the buffered logs.
type LogStats struct {
	Total        int            `json:"total"`
	ByLevel      map[string]int `json:"byLevel"`
	RecentErrors []LogEntry     `json:"recentErrors"`
}

// LogBuffer keeps the most recent log entries in memory for the admin
// monitoring view. It is a zapcore.Core so it can be tee'd into the global
// logger.
type LogBuffer struct {
	zapcore.LevelEnabler

	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBuffer creates a buffer holding up to capacity entries at or above
// level. A non-positive capacity uses 1000.
func NewLogBuffer(capacity int, level zapcore.LevelEnabler) *LogBuffer {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &LogBuffer{
		LevelEnabler: level,
		entries:      make([]LogEntry, capacity),
	}
}

// Attach returns a logger that writes to both base and the buffer.
func (b *LogBuffer) Attach(base *zap.Logger) *zap.Logger {
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, b)
	}))
}

// With implements zapcore.Core. The returned core shares the ring.
func (b *LogBuffer) With(fields []zapcore.Field) zapcore.Core {
	return &boundBuffer{buf: b, fields: append([]zapcore.Field{}, fields...)}
}

// Check implements zapcore.Core.
func (b *LogBuffer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(ent.Level) {
		return ce.AddCore(ent, b)
	}
	return ce
}

// Write implements zapcore.Core.
func (b *LogBuffer) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	b.add(ent, fields)
	return nil
}

// Sync implements zapcore.Core.
func (b *LogBuffer) Sync() error { return nil }

func (b *LogBuffer) add(ent zapcore.Entry, fields []zapcore.Field) {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	entry := LogEntry{
		Timestamp: ent.Time.UTC(),
		Level:     ent.Level.String(),
		Message:   ent.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}

	b.mu.Lock()
	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// snapshot returns the buffered entries oldest first.
func (b *LogBuffer) snapshot() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]LogEntry(nil), b.entries[:b.next]...)
	}
	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Logs returns up to limit entries, newest first, optionally filtered by level.
func (b *LogBuffer) Logs(level string, limit int) []LogEntry {
	if limit <= 0 {
		limit = 100
	}
	all := b.snapshot()
	out := make([]LogEntry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if level != "" && all[i].Level != level {
			continue
		}
		out = append(out, all[i])
	}
	return out
}

// Stats counts buffered entries per level and lists the ten latest errors.
func (b *LogBuffer) Stats() LogStats {
	all := b.snapshot()
	stats := LogStats{Total: len(all), ByLevel: map[string]int{}, RecentErrors: []LogEntry{}}
	for _, e := range all {
		stats.ByLevel[e.Level]++
	}
	for i := len(all) - 1; i >= 0 && len(stats.RecentErrors) < 10; i-- {
		if all[i].Level == zapcore.ErrorLevel.String() {
			stats.RecentErrors = append(stats.RecentErrors, all[i])
		}
	}
	return stats
}

// boundBuffer is a LogBuffer view carrying fields added with Logger.With.
type boundBuffer struct {
	buf    *LogBuffer
	fields []zapcore.Field
}

func (c *boundBuffer) Enabled(l zapcore.Level) bool { return c.buf.Enabled(l) }

func (c *boundBuffer) With(fields []zapcore.Field) zapcore.Core {
	return &boundBuffer{buf: c.buf, fields: append(append([]zapcore.Field{}, c.fields...), fields...)}
}

func (c *boundBuffer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *boundBuffer) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.buf.add(ent, append(append([]zapcore.Field{}, c.fields...), fields...))
	return nil
}

func (c *boundBuffer) Sync() error { return nil }
