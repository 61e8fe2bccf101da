package scopez

// ExitState classifies the outcome of exiting a span.
type ExitState uint8

const (
	// ExitOK means the exited span was the current span.
	ExitOK ExitState = iota

	// ExitOrphaned means the span was found after popping still-open
	// descendants, reported as orphans.
	ExitOrphaned

	// ExitNotFound means the span was not on the entered chain. For an
	// id the subscriber has never seen nothing changes; for a known but
	// never-entered id the whole chain unwinds as orphans.
	ExitNotFound
)

// String returns the state name.
func (s ExitState) String() string {
	switch s {
	case ExitOK:
		return "ok"
	case ExitOrphaned:
		return "orphaned"
	case ExitNotFound:
		return "not-found"
	}
	return "unknown"
}

// ExitResult is the tagged outcome of one exit call, so protocol
// violations can be asserted on directly instead of scraped from
// output.
type ExitResult struct {
	ID      SpanID
	State   ExitState
	Orphans []SpanData // spans popped while unwinding, innermost first.
}

// Diagnostic is one protocol violation observed by a subscriber.
type Diagnostic struct {
	Op      string // operation that observed it: "exit", "record", "sink".
	Message string
	SpanID  SpanID
	State   ExitState
	Orphans []SpanData
}

// DiagnosticHandler receives diagnostics on a side channel. Handlers
// run outside the subscriber's lock and never interrupt the caller's
// control flow.
type DiagnosticHandler func(d Diagnostic)
