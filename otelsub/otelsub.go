// Package otelsub bridges scopez spans onto OpenTelemetry.
//
// The subscriber mirrors the span protocol onto a trace.Tracer: Enter
// starts an OTel span under the current one, Exit ends it, and events
// become span events. Clones share started spans but track their own
// current pointer, so concurrent branches nest correctly under the
// fork point:
//
//	sub := otelsub.New(otelsub.WithTracerProvider(provider))
//	ctx := scopez.WithSubscriber(ctx, sub)
package otelsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/scopez"
)

const scopeName = "github.com/zoobzio/scopez/otelsub"

// node is one entered span. Nodes are immutable once created, so
// clones share chain segments safely.
type node struct {
	span   trace.Span
	ctx    context.Context
	parent *node
	id     scopez.SpanID
}

// Subscriber implements scopez.Subscriber on top of an OpenTelemetry
// tracer. Safe for concurrent use; fork points still require Clone so
// branches keep separate current pointers.
//
//nolint:govet // Field order optimized for readability over memory
type Subscriber struct {
	tracer  trace.Tracer
	level   scopez.Level
	baseCtx context.Context
	mu      sync.Mutex
	current *node
	pending map[scopez.SpanID]*scopez.SpanAttrs
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithTracerProvider selects the provider to take the tracer from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Subscriber) {
		if tp != nil {
			s.tracer = tp.Tracer(scopeName)
		}
	}
}

// WithTracer sets the tracer directly.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Subscriber) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLevel sets the minimum level the subscriber passes.
// Defaults to LevelInfo.
func WithLevel(lvl scopez.Level) Option {
	return func(s *Subscriber) {
		s.level = lvl
	}
}

// WithContext sets the base context new root spans start from, for
// linking into an existing remote trace.
func WithContext(ctx context.Context) Option {
	return func(s *Subscriber) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// New creates a subscriber emitting through OpenTelemetry.
func New(opts ...Option) *Subscriber {
	s := &Subscriber{
		tracer:  otel.GetTracerProvider().Tracer(scopeName),
		level:   scopez.LevelInfo,
		baseCtx: context.Background(),
		pending: make(map[scopez.SpanID]*scopez.SpanAttrs),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSpan implements scopez.Subscriber. The OTel span does not start
// until Enter, when its parent is known.
func (s *Subscriber) NewSpan(attrs *scopez.SpanAttrs) scopez.SpanID {
	id := scopez.SpanID(xid.New().String())

	stored := &scopez.SpanAttrs{}
	if attrs != nil {
		*stored = *attrs
		stored.Fields = attrs.Fields.Clone()
	}

	s.mu.Lock()
	s.pending[id] = stored
	s.mu.Unlock()

	return id
}

// Enter implements scopez.Subscriber. Entering an unknown id is a
// programmer error and panics, matching the core registry contract.
func (s *Subscriber) Enter(id scopez.SpanID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, ok := s.pending[id]
	if !ok {
		panic(fmt.Sprintf("otelsub: enter of invalid span %q", id))
	}
	delete(s.pending, id)

	parentCtx := s.baseCtx
	if s.current != nil {
		parentCtx = s.current.ctx
	}

	kvs := convertFields(attrs.Fields)
	kvs = append(kvs, attribute.String("scopez.level", attrs.Level.String()))
	ctx, span := s.tracer.Start(parentCtx, attrs.Message, trace.WithAttributes(kvs...))

	s.current = &node{span: span, ctx: ctx, parent: s.current, id: id}
}

// Exit implements scopez.Subscriber. Out-of-order exits end every
// still-open descendant on the way down. Unknown ids change nothing;
// a pending id that was never entered is just forgotten.
func (s *Subscriber) Exit(id scopez.SpanID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; ok {
		delete(s.pending, id)
		return
	}

	onChain := false
	for cur := s.current; cur != nil; cur = cur.parent {
		if cur.id == id {
			onChain = true
			break
		}
	}
	if !onChain {
		return
	}

	for cur := s.current; cur != nil; cur = cur.parent {
		cur.span.End()
		if cur.id == id {
			s.current = cur.parent
			return
		}
	}
}

// Event implements scopez.Subscriber. With no span current the event
// has nowhere to attach and is dropped.
func (s *Subscriber) Event(evt scopez.Event) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur == nil {
		return
	}

	opts := []trace.EventOption{trace.WithAttributes(convertFields(evt.Fields)...)}
	if !evt.Time.IsZero() {
		opts = append(opts, trace.WithTimestamp(evt.Time))
	}
	cur.span.AddEvent(evt.Message, opts...)

	if evt.Level >= scopez.LevelError {
		cur.span.SetStatus(codes.Error, evt.Message)
	}
}

// Record implements the Recorder capability. Fields recorded before
// Enter reach the span's start attributes; afterwards they are set
// directly on the live span.
func (s *Subscriber) Record(id scopez.SpanID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attrs, ok := s.pending[id]; ok {
		attrs.Fields.Set(key, value)
		return
	}
	for cur := s.current; cur != nil; cur = cur.parent {
		if cur.id == id {
			cur.span.SetAttributes(attrValue(key, value))
			return
		}
	}
}

// Clone implements scopez.Subscriber. The clone shares started spans
// with the original but keeps its own current pointer and pending
// table, so branch enter/exit traffic never crosses over.
func (s *Subscriber) Clone() scopez.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := &Subscriber{
		tracer:  s.tracer,
		level:   s.level,
		baseCtx: s.baseCtx,
		current: s.current,
		pending: make(map[scopez.SpanID]*scopez.SpanAttrs, len(s.pending)),
	}
	for id, attrs := range s.pending {
		copied := *attrs
		copied.Fields = attrs.Fields.Clone()
		clone.pending[id] = &copied
	}
	return clone
}

// EnabledForLevel implements the LevelFilter capability.
func (s *Subscriber) EnabledForLevel(lvl scopez.Level) bool {
	return lvl.Enabled(s.level)
}

// CurrentSpanID implements the CurrentSpanner capability.
func (s *Subscriber) CurrentSpanID() (scopez.SpanID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", false
	}
	return s.current.id, true
}

// RunInContext implements the ContextRunner capability: the wrapped
// call observes the current OTel span through trace.SpanFromContext,
// so foreign instrumentation nests under scopez spans.
func (s *Subscriber) RunInContext(ctx context.Context, fn func(context.Context)) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur != nil {
		ctx = trace.ContextWithSpan(ctx, cur.span)
	}
	fn(ctx)
}

// convertFields maps scopez fields to OTel attributes.
func convertFields(fields scopez.Fields) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		kvs = append(kvs, attrValue(f.Key, f.Value))
	}
	return kvs
}

func attrValue(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
