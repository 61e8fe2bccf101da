package scopez

import (
	"fmt"
	"strings"
)

// Level is the severity of an event or span.
// Levels compare numerically: a subscriber thresholded at a level
// passes everything at or above it.
type Level int8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical

	// LevelDisabled is a threshold-only sentinel meaning nothing
	// passes. It is never valid as an event's own level.
	LevelDisabled
)

var levelNames = [...]string{
	LevelTrace:    "trace",
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarn:     "warn",
	LevelError:    "error",
	LevelCritical: "critical",
	LevelDisabled: "disabled",
}

// String returns the lowercase level name.
func (l Level) String() string {
	if l < LevelTrace || l > LevelDisabled {
		return fmt.Sprintf("level(%d)", int8(l))
	}
	return levelNames[l]
}

// Enabled reports whether an event at this level passes the given
// threshold.
func (l Level) Enabled(threshold Level) bool {
	return l >= threshold
}

// ParseLevel converts a level name to a Level.
// Case-insensitive; accepts the String form plus common aliases.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "critical", "crit":
		return LevelCritical, nil
	case "disabled", "off":
		return LevelDisabled, nil
	}
	return LevelInfo, fmt.Errorf("unknown level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
