package scopez

import (
	"context"
	"errors"
	"sync/atomic"
)

// subscriberKeyType is a private type for context keys to avoid collisions.
type subscriberKeyType string

const (
	subscriberKey subscriberKeyType = "scopez"
)

var defaultSubscriber atomic.Pointer[Subscriber]

// WithSubscriber returns a context carrying s as the active subscriber.
func WithSubscriber(ctx context.Context, s Subscriber) context.Context {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, subscriberKey, s)
}

// Run executes fn with s active for its dynamic extent. Nested calls
// shadow and then restore the outer subscriber through ordinary
// context derivation.
func Run(ctx context.Context, s Subscriber, fn func(context.Context)) {
	fn(WithSubscriber(ctx, s))
}

// SubscriberFrom returns the active subscriber, falling back to the
// process-wide default. Absence is a normal state, not an error:
// emission paths no-op without one.
func SubscriberFrom(ctx context.Context) (Subscriber, bool) {
	if ctx != nil {
		if s, ok := ctx.Value(subscriberKey).(Subscriber); ok && s != nil {
			return s, true
		}
	}
	if p := defaultSubscriber.Load(); p != nil {
		return *p, true
	}
	return nil, false
}

// MustSubscriber returns the active subscriber or panics.
// For call sites that assert a sink must be configured.
func MustSubscriber(ctx context.Context) Subscriber {
	s, ok := SubscriberFrom(ctx)
	if !ok {
		panic("scopez: no subscriber configured")
	}
	return s
}

// SetDefaultSubscriber installs the process-wide fallback consulted
// when a context carries no subscriber. It may be set exactly once,
// by application start-up code.
func SetDefaultSubscriber(s Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}
	if !defaultSubscriber.CompareAndSwap(nil, &s) {
		return errors.New("default subscriber already set")
	}
	return nil
}

// resetDefaultSubscriber clears the fallback. Tests only.
func resetDefaultSubscriber() {
	defaultSubscriber.Store(nil)
}

// Fork returns a context whose subscriber is an isolated clone frozen
// at the call point. Take the fork on the spawning goroutine, before
// the new goroutine starts, so sibling span stacks stay invisible to
// each other. Without a subscriber the context is returned unchanged.
func Fork(ctx context.Context) context.Context {
	s, ok := SubscriberFrom(ctx)
	if !ok {
		return ctx
	}
	return WithSubscriber(ctx, s.Clone())
}
