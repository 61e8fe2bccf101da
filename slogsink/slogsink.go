// Package slogsink delivers scopez events to a log/slog logger.
//
// The sink flattens each event's fields into slog attributes and
// attaches the ancestor chain as a single group, so span context
// survives into flat log output:
//
//	sink := slogsink.New(slog.Default())
//	registry := scopez.NewRegistry(sink)
package slogsink

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zoobzio/scopez"
)

// Level mapping stretches slog's four levels over six: trace lands
// below debug and critical above error, following slog's documented
// spacing convention.
const (
	levelTrace    = slog.LevelDebug - 4
	levelCritical = slog.LevelError + 4
)

// Sink adapts a slog logger to the scopez Sink interface.
type Sink struct {
	logger  *slog.Logger
	spanKey string
}

// Option configures a Sink.
type Option func(*Sink)

// WithSpanKey sets the attribute group key for span context.
// Defaults to "span".
func WithSpanKey(key string) Option {
	return func(s *Sink) {
		if key != "" {
			s.spanKey = key
		}
	}
}

// New creates a sink logging through logger. A nil logger uses
// slog.Default.
func New(logger *slog.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		logger:  logger,
		spanKey: "span",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent implements scopez.Sink. The event's stamped time carries
// through to the log record.
func (s *Sink) OnEvent(evt scopez.Event, ancestors []scopez.SpanData) {
	lvl := toSlogLevel(evt.Level)
	ctx := context.Background()
	if !s.logger.Enabled(ctx, lvl) {
		return
	}

	attrs := make([]slog.Attr, 0, len(evt.Fields)+1)
	for _, f := range evt.Fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	if len(ancestors) > 0 {
		attrs = append(attrs, slog.Group(s.spanKey,
			slog.String("id", string(ancestors[0].ID)),
			slog.Int("depth", len(ancestors)),
			slog.String("path", spanPath(ancestors)),
		))
	}

	when := evt.Time
	if when.IsZero() {
		when = time.Now()
	}

	rec := slog.NewRecord(when, lvl, evt.Message, 0)
	rec.AddAttrs(attrs...)
	_ = s.logger.Handler().Handle(ctx, rec)
}

// toSlogLevel maps a scopez level onto the slog scale.
func toSlogLevel(lvl scopez.Level) slog.Level {
	switch lvl {
	case scopez.LevelTrace:
		return levelTrace
	case scopez.LevelDebug:
		return slog.LevelDebug
	case scopez.LevelInfo:
		return slog.LevelInfo
	case scopez.LevelWarn:
		return slog.LevelWarn
	case scopez.LevelError:
		return slog.LevelError
	case scopez.LevelCritical:
		return levelCritical
	}
	return slog.LevelInfo
}

// spanPath renders the ancestor chain root first, as a slash path.
func spanPath(ancestors []scopez.SpanData) string {
	parts := make([]string, len(ancestors))
	for i, span := range ancestors {
		parts[len(ancestors)-1-i] = span.Message
	}
	return strings.Join(parts, "/")
}
