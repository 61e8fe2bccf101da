package scopez

import "sync/atomic"

// Shared inert handles keep disabled tracing allocation-free.
var (
	inertSpan    = &Span{}
	inertEntered = &EnteredSpan{}
)

// Span is an unentered span handle: a subscriber-minted id waiting for
// Enter. A zero Span is inert and every method on it is a safe no-op,
// so callers never branch on whether tracing is active.
type Span struct {
	sub     Subscriber
	id      SpanID
	claimed atomic.Bool
}

// Enabled reports whether the span is backed by a subscriber.
func (s *Span) Enabled() bool {
	return s != nil && s.sub != nil
}

// ID returns the subscriber-minted id, if any.
func (s *Span) ID() (SpanID, bool) {
	if !s.Enabled() {
		return "", false
	}
	return s.id, true
}

// Record attaches a field to the span through the subscriber's
// Recorder capability. Works before or after entry.
func (s *Span) Record(key string, value any) {
	if !s.Enabled() {
		return
	}
	if rec, ok := s.sub.(Recorder); ok {
		rec.Record(s.id, key, value)
	}
}

// Enter claims the span, makes it current, and returns the exit guard.
// At most one entry is live per span: later calls return an inert
// guard. Callers typically defer the guard's Exit.
func (s *Span) Enter() *EnteredSpan {
	if !s.Enabled() {
		return inertEntered
	}
	if !s.claimed.CompareAndSwap(false, true) {
		return inertEntered
	}
	s.sub.Enter(s.id)
	return &EnteredSpan{span: s}
}

// EnteredSpan guards an entered span and owns its exactly-once exit.
// A zero EnteredSpan is inert. Safe for concurrent use.
type EnteredSpan struct {
	span   *Span
	exited atomic.Bool
}

// Record attaches a field to the underlying span.
func (e *EnteredSpan) Record(key string, value any) {
	if e == nil || e.span == nil {
		return
	}
	e.span.Record(key, value)
}

// Exit closes the span. Idempotent: only the first call reaches the
// subscriber.
func (e *EnteredSpan) Exit() {
	if e == nil || e.span == nil {
		return
	}
	if !e.exited.CompareAndSwap(false, true) {
		return
	}
	e.span.sub.Exit(e.span.id)
}
