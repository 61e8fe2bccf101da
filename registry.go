package scopez

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/zoobzio/clockz"
)

// SpanData is the sink-visible snapshot of one span in an ancestor
// chain.
//
//nolint:govet // Field order optimized for JSON serialization order
type SpanData struct {
	ID        SpanID    `json:"id"`
	ParentID  SpanID    `json:"parent_id,omitempty"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Fields    Fields    `json:"fields,omitempty"`
	StartTime time.Time `json:"start_time"`
}

// Sink receives every delivered event together with the ancestor chain
// of the span it was emitted under, innermost first.
type Sink interface {
	OnEvent(evt Event, ancestors []SpanData)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt Event, ancestors []SpanData)

// OnEvent implements Sink.
func (f SinkFunc) OnEvent(evt Event, ancestors []SpanData) {
	f(evt, ancestors)
}

// MultiSink returns a sink that delivers every event to each of sinks
// in order. Nil entries are skipped. The ancestors slice is shared
// across sinks, so none of them may mutate it.
func MultiSink(sinks ...Sink) Sink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return SinkFunc(func(Event, []SpanData) {})
	case 1:
		return kept[0]
	}
	return multiSink(kept)
}

type multiSink []Sink

func (m multiSink) OnEvent(evt Event, ancestors []SpanData) {
	for _, s := range m {
		s.OnEvent(evt, ancestors)
	}
}

// spanNode is one pending or entered span in the tree.
type spanNode struct {
	attrs   SpanAttrs
	parent  *spanNode
	start   time.Time
	id      SpanID
	entered bool
}

// Registry implements Subscriber generically: it tracks the span tree
// and attaches an ordered ancestor chain to every event, so concrete
// sinks only supply OnEvent.
//
// Registry is safe for concurrent use, but the lock only keeps the
// node table coherent. Causal correctness across goroutines still
// requires Clone at every fork point: one current-span pointer cannot
// serve two interleaved branches.
//
//nolint:govet // Field order optimized for readability over memory
type Registry struct {
	sink    Sink
	clock   clockz.Clock
	diag    DiagnosticHandler
	level   Level
	mu      sync.Mutex
	current *spanNode
	pending map[SpanID]*spanNode
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLevel sets the minimum level the registry passes.
// Defaults to LevelInfo. LevelDisabled suppresses everything.
func WithLevel(lvl Level) RegistryOption {
	return func(r *Registry) {
		r.level = lvl
	}
}

// WithClock sets the clock used to stamp spans and events.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithDiagnostics sets the side-channel handler for protocol
// violations.
func WithDiagnostics(h DiagnosticHandler) RegistryOption {
	return func(r *Registry) {
		r.diag = h
	}
}

// NewRegistry creates a registry delivering to sink.
// Uses the real clock for production behavior.
func NewRegistry(sink Sink, opts ...RegistryOption) *Registry {
	r := &Registry{
		sink:    sink,
		clock:   clockz.RealClock,
		level:   LevelInfo,
		pending: make(map[SpanID]*spanNode),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSpan stores a pending span and returns its id. The current span
// is untouched until Enter.
func (r *Registry) NewSpan(attrs *SpanAttrs) SpanID {
	id := SpanID(xid.New().String())

	node := &spanNode{
		id:    id,
		start: r.clock.Now(),
	}
	if attrs != nil {
		node.attrs = *attrs
		node.attrs.Fields = attrs.Fields.Clone()
	}

	r.mu.Lock()
	r.pending[id] = node
	r.mu.Unlock()

	return id
}

// Enter makes the span current. Its parent becomes whatever span was
// current at this instant and never changes afterwards. Entering an id
// this registry has never seen, or one already entered, is a
// programmer error and panics.
func (r *Registry) Enter(id SpanID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.pending[id]
	if !ok {
		panic(fmt.Sprintf("scopez: enter of invalid span %q", id))
	}
	if node.entered {
		panic(fmt.Sprintf("scopez: span %q entered twice", id))
	}

	node.parent = r.current
	node.entered = true
	r.current = node
}

// Exit closes the span. Out-of-order exits are tolerated: every
// still-open descendant is popped and reported as an orphan through
// the diagnostics handler. Exiting an id the registry has never seen
// changes nothing.
func (r *Registry) Exit(id SpanID) {
	res := r.exit(id)
	if res.State == ExitOK || r.diag == nil {
		return
	}
	r.diag(Diagnostic{
		Op:      "exit",
		SpanID:  id,
		State:   res.State,
		Orphans: res.Orphans,
		Message: exitMessage(res),
	})
}

// exit performs the unwind and returns the tagged outcome.
func (r *Registry) exit(id SpanID) ExitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := ExitResult{ID: id}

	if _, known := r.pending[id]; !known {
		res.State = ExitNotFound
		return res
	}

	for cur := r.current; cur != nil; cur = cur.parent {
		if cur.id == id {
			r.current = cur.parent
			delete(r.pending, id)
			if len(res.Orphans) > 0 {
				res.State = ExitOrphaned
			}
			return res
		}
		res.Orphans = append(res.Orphans, snapshotSpan(cur))
		delete(r.pending, cur.id)
	}

	// Known id that was never on the entered chain. The unwind consumed
	// the whole chain without a match; drop the span too so it cannot be
	// entered later against a stale parent view.
	r.current = nil
	delete(r.pending, id)
	res.State = ExitNotFound
	return res
}

func exitMessage(res ExitResult) string {
	switch res.State {
	case ExitOrphaned:
		return fmt.Sprintf("span exited out of order, %d orphan(s) popped", len(res.Orphans))
	case ExitNotFound:
		if len(res.Orphans) > 0 {
			return fmt.Sprintf("span not on entered chain, %d span(s) unwound", len(res.Orphans))
		}
		return "span unknown to subscriber"
	}
	return "ok"
}

// Event stamps evt if needed and delivers it with the ancestor chain
// of the current span, innermost first. The sink runs outside the
// registry lock; a panicking sink is contained and reported through
// the diagnostics handler, never to the emitting caller.
func (r *Registry) Event(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = r.clock.Now()
	}

	r.mu.Lock()
	var ancestors []SpanData
	for cur := r.current; cur != nil; cur = cur.parent {
		ancestors = append(ancestors, snapshotSpan(cur))
	}
	r.mu.Unlock()

	if r.sink != nil {
		r.deliver(evt, ancestors)
	}
}

func (r *Registry) deliver(evt Event, ancestors []SpanData) {
	defer func() {
		if rec := recover(); rec != nil && r.diag != nil {
			r.diag(Diagnostic{
				Op:      "sink",
				Message: fmt.Sprintf("sink panic: %v", rec),
			})
		}
	}()
	r.sink.OnEvent(evt, ancestors)
}

// Record attaches a field to a stored span in place, visible to any
// later event whether or not the span has been entered. Recording on
// an unknown id is a diagnosed no-op.
func (r *Registry) Record(id SpanID, key string, value any) {
	r.mu.Lock()
	node, ok := r.pending[id]
	if ok {
		node.attrs.Fields.Set(key, value)
	}
	r.mu.Unlock()

	if !ok && r.diag != nil {
		r.diag(Diagnostic{
			Op:      "record",
			SpanID:  id,
			State:   ExitNotFound,
			Message: "record on unknown span",
		})
	}
}

// Clone returns an isolated registry sharing the sink, clock, level,
// and diagnostics handler. The current pointer carries over and the
// node table is deep-copied, so enter/exit on either side never
// affects the other. Taking the clone before a goroutine fork freezes
// the ancestor view each branch starts from.
func (r *Registry) Clone() Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := &Registry{
		sink:    r.sink,
		clock:   r.clock,
		diag:    r.diag,
		level:   r.level,
		pending: make(map[SpanID]*spanNode, len(r.pending)),
	}

	remap := make(map[*spanNode]*spanNode, len(r.pending))
	for id, node := range r.pending {
		copied := &spanNode{
			attrs:   node.attrs,
			start:   node.start,
			id:      node.id,
			entered: node.entered,
		}
		copied.attrs.Fields = node.attrs.Fields.Clone()
		remap[node] = copied
		clone.pending[id] = copied
	}
	for node, copied := range remap {
		if node.parent != nil {
			copied.parent = remap[node.parent]
		}
	}
	if r.current != nil {
		clone.current = remap[r.current]
	}

	return clone
}

// EnabledForLevel reports whether lvl passes the registry threshold.
func (r *Registry) EnabledForLevel(lvl Level) bool {
	return lvl.Enabled(r.level)
}

// CurrentSpanID returns the innermost entered span id.
func (r *Registry) CurrentSpanID() (SpanID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return "", false
	}
	return r.current.id, true
}

// snapshotSpan copies a node for delivery outside the lock.
func snapshotSpan(n *spanNode) SpanData {
	data := SpanData{
		ID:        n.id,
		Level:     n.attrs.Level,
		Message:   n.attrs.Message,
		Fields:    n.attrs.Fields.Clone(),
		StartTime: n.start,
	}
	if n.parent != nil {
		data.ParentID = n.parent.id
	}
	return data
}
