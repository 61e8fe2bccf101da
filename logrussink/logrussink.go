// Package logrussink delivers scopez events to a logrus logger.
//
// Each event becomes one log entry carrying the event fields plus the
// identity of the span it was emitted under:
//
//	sink := logrussink.New(logrus.StandardLogger())
//	registry := scopez.NewRegistry(sink)
package logrussink

import (
	"github.com/sirupsen/logrus"

	"github.com/zoobzio/scopez"
)

// Entry keys for span context, alongside the event's own fields.
const (
	spanKey       = "span"
	spanIDKey     = "spanID"
	parentSpanKey = "parentSpanID"
	spanDepthKey  = "spanDepth"
)

// Sink adapts a logrus logger to the scopez Sink interface.
type Sink struct {
	base *logrus.Entry
}

// New creates a sink logging through logger.
func New(logger *logrus.Logger) *Sink {
	return &Sink{base: logrus.NewEntry(logger)}
}

// NewWithEntry creates a sink that extends an existing entry, keeping
// whatever fields the caller already attached.
func NewWithEntry(entry *logrus.Entry) *Sink {
	return &Sink{base: entry}
}

// OnEvent implements scopez.Sink.
func (s *Sink) OnEvent(evt scopez.Event, ancestors []scopez.SpanData) {
	fields := make(logrus.Fields, len(evt.Fields)+4)
	for _, f := range evt.Fields {
		fields[f.Key] = f.Value
	}
	if len(ancestors) > 0 {
		current := ancestors[0]
		fields[spanKey] = current.Message
		fields[spanIDKey] = string(current.ID)
		fields[spanDepthKey] = len(ancestors)
		if current.ParentID != "" {
			fields[parentSpanKey] = string(current.ParentID)
		}
	}

	entry := s.base.WithFields(fields)
	if !evt.Time.IsZero() {
		entry = entry.WithTime(evt.Time)
	}
	entry.Log(toLogrusLevel(evt.Level), evt.Message)
}

// toLogrusLevel maps a scopez level onto the logrus scale. Critical
// maps to fatal for severity ordering; Entry.Log never exits the
// process.
func toLogrusLevel(lvl scopez.Level) logrus.Level {
	switch lvl {
	case scopez.LevelTrace:
		return logrus.TraceLevel
	case scopez.LevelDebug:
		return logrus.DebugLevel
	case scopez.LevelInfo:
		return logrus.InfoLevel
	case scopez.LevelWarn:
		return logrus.WarnLevel
	case scopez.LevelError:
		return logrus.ErrorLevel
	case scopez.LevelCritical:
		return logrus.FatalLevel
	}
	return logrus.InfoLevel
}
