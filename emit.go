package scopez

import "context"

// Emit delivers a leveled event to the active subscriber. Safe
// unconditionally: with no subscriber configured, or with the level
// suppressed, it does nothing. LevelDisabled is never a valid event
// level and is dropped.
func Emit(ctx context.Context, lvl Level, msg string, fields ...Field) {
	sub, ok := SubscriberFrom(ctx)
	if !ok {
		return
	}
	emitOn(sub, lvl, msg, fields)
}

// Trace emits at LevelTrace.
func Trace(ctx context.Context, msg string, fields ...Field) {
	Emit(ctx, LevelTrace, msg, fields...)
}

// Debug emits at LevelDebug.
func Debug(ctx context.Context, msg string, fields ...Field) {
	Emit(ctx, LevelDebug, msg, fields...)
}

// Info emits at LevelInfo.
func Info(ctx context.Context, msg string, fields ...Field) {
	Emit(ctx, LevelInfo, msg, fields...)
}

// Warn emits at LevelWarn.
func Warn(ctx context.Context, msg string, fields ...Field) {
	Emit(ctx, LevelWarn, msg, fields...)
}

// Error emits at LevelError.
func Error(ctx context.Context, msg string, fields ...Field) {
	Emit(ctx, LevelError, msg, fields...)
}

// Critical emits at LevelCritical.
func Critical(ctx context.Context, msg string, fields ...Field) {
	Emit(ctx, LevelCritical, msg, fields...)
}

// StartSpan opens a span through the same gate as Emit and returns its
// unentered handle. The handle is inert when no subscriber is active
// or the level is suppressed, so call sites never branch on whether
// tracing is on.
func StartSpan(ctx context.Context, lvl Level, msg string, fields ...Field) *Span {
	sub, ok := SubscriberFrom(ctx)
	if !ok {
		return inertSpan
	}
	return startSpanOn(sub, lvl, msg, fields)
}

// emitOn runs the delivery gate against a resolved subscriber:
// level validity, then the cheap level filter, then the finer
// metadata filter, then delivery.
func emitOn(sub Subscriber, lvl Level, msg string, fields []Field) {
	if lvl < LevelTrace || lvl >= LevelDisabled {
		return
	}
	if lf, ok := sub.(LevelFilter); ok && !lf.EnabledForLevel(lvl) {
		return
	}

	evt := Event{Metadata: Metadata{Level: lvl, Message: msg, Fields: Fields(fields)}}

	if f, ok := sub.(Filter); ok && !f.Enabled(&evt.Metadata) {
		return
	}

	sub.Event(evt)
}

// startSpanOn runs the same gate and allocates the span id.
func startSpanOn(sub Subscriber, lvl Level, msg string, fields []Field) *Span {
	if lvl < LevelTrace || lvl >= LevelDisabled {
		return inertSpan
	}
	if lf, ok := sub.(LevelFilter); ok && !lf.EnabledForLevel(lvl) {
		return inertSpan
	}

	attrs := SpanAttrs{Metadata: Metadata{Level: lvl, Message: msg, Fields: Fields(fields)}}

	if f, ok := sub.(Filter); ok && !f.Enabled(&attrs.Metadata) {
		return inertSpan
	}

	return &Span{id: sub.NewSpan(&attrs), sub: sub}
}
