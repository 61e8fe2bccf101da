package scopez

import "context"

// SpanID is an opaque span handle minted by a subscriber.
// The core never inspects it beyond identity.
type SpanID string

// Subscriber is the contract every sink implements.
//
// NewSpan allocates an id for a span that has not started. Enter makes
// the span current, fixing its parent to whatever was current at that
// instant. Exit closes it. Event delivers a point-in-time record.
// Clone produces an isolated copy for a concurrent branch: the copy
// starts from the same current span, and later enter/exit calls on
// either side never affect the other.
//
// Optional capabilities are discovered by type assertion: LevelFilter,
// Filter, Recorder, CurrentSpanner, and ContextRunner.
type Subscriber interface {
	NewSpan(attrs *SpanAttrs) SpanID
	Event(evt Event)
	Enter(id SpanID)
	Exit(id SpanID)
	Clone() Subscriber
}

// LevelFilter lets a subscriber reject a level before the event is
// built. The cheap gate, checked first.
type LevelFilter interface {
	EnabledForLevel(lvl Level) bool
}

// Filter lets a subscriber inspect full metadata before delivery.
type Filter interface {
	Enabled(meta *Metadata) bool
}

// Recorder lets a subscriber attach fields to a stored span after
// creation, whether or not the span has been entered yet.
type Recorder interface {
	Record(id SpanID, key string, value any)
}

// CurrentSpanner exposes the innermost entered span.
type CurrentSpanner interface {
	CurrentSpanID() (SpanID, bool)
}

// ContextRunner lets a subscriber rebind external ambient state, such
// as an OpenTelemetry active span, around a call's dynamic extent.
// The instrumentation engine routes the wrapped invocation through it
// when the capability is present.
type ContextRunner interface {
	RunInContext(ctx context.Context, fn func(context.Context))
}
