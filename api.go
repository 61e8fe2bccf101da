// Package scopez provides structured span and event tracing primitives.
//
// scopez turns leveled events and nested spans into ordered ancestor.
// chains delivered to pluggable sinks. It's designed for library and
// application code that needs causally correct traces across goroutines
// with predictable performance and no mandatory configuration.
//
// Core Components:.
//   - Subscriber: Contract every sink implements.
//   - Registry: Generic subscriber that tracks the span tree.
//   - Span / EnteredSpan: Guarded handles for span lifecycle.
//   - Collector: Buffers delivered records for export.
//   - Instrument: Wraps functions so every call opens and closes a span.
//
// Basic Usage:.
//
//	reg := scopez.NewRegistry(sink, scopez.WithLevel(scopez.LevelDebug))
//	ctx := scopez.WithSubscriber(context.Background(), reg)
//
//	// Open a span around a unit of work.
//	span := scopez.StartSpan(ctx, scopez.LevelInfo, "checkout")
//	entered := span.Enter()
//	defer entered.Exit()
//
//	// Emit leveled events; open spans become the ancestor chain.
//	scopez.Info(ctx, "charging card", scopez.F("amount", 42))
//
// Thread Safety:.
//
// Registry is safe for concurrent use, and Span/EnteredSpan handles are
// safe for concurrent use. Causal correctness across goroutines still
// requires a clone per branch: use Fork, Go, or Group so sibling span
// stacks stay isolated.
//
// Context Propagation:.
//
// The active subscriber travels in context.Context. WithSubscriber
// scopes it, SetDefaultSubscriber installs a process-wide fallback once
// at startup, and Fork clones it for a new goroutine.
//
// Tracing Disabled:.
//
// Every operation is a safe no-op when no subscriber is configured or a
// level is suppressed. Handles returned in that state are inert, so
// instrumented code never branches on whether tracing is active.
//
// Diagnostics:.
//
// Protocol violations (out-of-order exits, unknown ids) never crash and
// never interrupt callers. They surface as typed values on the
// registry's diagnostics side channel - use WithDiagnostics to observe
// orphaned spans.
package scopez

// Redacted replaces values hidden from the logged view of instrumented
// call arguments.
const Redacted = "***"
