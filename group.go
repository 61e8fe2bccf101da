package scopez

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Go runs fn on its own goroutine through the instrumentation engine.
// The subscriber clone is taken here, on the caller's goroutine, so
// the task's span stack is frozen at the spawn point and later
// mutations on either side stay invisible to the other.
//
// Fire-and-forget: the task's error is emitted through LogError and
// otherwise dropped.
func Go(ctx context.Context, fn func(context.Context) error, attrs ...Attr) {
	forked := Fork(ctx)
	wrapped := Instrument0(fn, append([]Attr{LogError()}, attrs...)...)
	go func() {
		_ = wrapped(forked)
	}()
}

// Group runs instrumented tasks that are joined with Wait. Each task
// gets its own subscriber clone frozen at the Go call, so siblings
// share the ancestor chain from the fork point and nothing after it.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// NewGroup creates a Group. The group context is canceled the first
// time a task fails, matching errgroup semantics.
func NewGroup(ctx context.Context) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}
}

// SetLimit bounds the number of concurrently running tasks.
func (g *Group) SetLimit(n int) {
	g.eg.SetLimit(n)
}

// Go starts an instrumented task. The clone is taken before the
// goroutine starts.
func (g *Group) Go(fn func(context.Context) error, attrs ...Attr) {
	forked := Fork(g.ctx)
	wrapped := Instrument0(fn, attrs...)
	g.eg.Go(func() error {
		return wrapped(forked)
	})
}

// Wait blocks until every task returns and yields the first error
// unchanged.
func (g *Group) Wait() error {
	return g.eg.Wait()
}
