package scopez

import (
	"context"
	"testing"
)

// vetoSub wraps a registry with a metadata filter for gate tests.
type vetoSub struct {
	*Registry
	veto func(meta *Metadata) bool
}

func (s *vetoSub) Enabled(meta *Metadata) bool {
	return !s.veto(meta)
}

func TestEmitWithoutSubscriber(t *testing.T) {
	resetDefaultSubscriber()

	// Nothing to assert beyond not panicking.
	Emit(context.Background(), LevelInfo, "ignored", F("key", "value"))
}

func TestEmitDelivers(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink)
	ctx := WithSubscriber(context.Background(), registry)

	Emit(ctx, LevelWarn, "trouble", F("code", 503))

	evt, chain := sink.last(t)
	if evt.Level != LevelWarn {
		t.Errorf("Expected level warn, got %s", evt.Level)
	}
	if evt.Message != "trouble" {
		t.Errorf("Expected message 'trouble', got %s", evt.Message)
	}
	if value, ok := evt.Fields.Get("code"); !ok || value != 503 {
		t.Errorf("Expected code=503, got %v", value)
	}
	if len(chain) != 0 {
		t.Errorf("Expected empty ancestors outside any span, got %d", len(chain))
	}
}

func TestEmitLevelSuppressed(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink, WithLevel(LevelWarn))
	ctx := WithSubscriber(context.Background(), registry)

	Emit(ctx, LevelInfo, "quiet")
	if sink.count() != 0 {
		t.Errorf("Expected info suppressed below warn threshold, got %d deliveries", sink.count())
	}

	Emit(ctx, LevelError, "loud")
	if sink.count() != 1 {
		t.Errorf("Expected error to pass, got %d deliveries", sink.count())
	}
}

func TestEmitInvalidLevelDropped(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink, WithLevel(LevelTrace))
	ctx := WithSubscriber(context.Background(), registry)

	// Disabled is a threshold, never an event level.
	Emit(ctx, LevelDisabled, "never")
	Emit(ctx, Level(-1), "never")
	Emit(ctx, Level(99), "never")

	if sink.count() != 0 {
		t.Errorf("Expected invalid levels dropped, got %d deliveries", sink.count())
	}
}

func TestEmitMetadataFilter(t *testing.T) {
	sink := &recordingSink{}
	sub := &vetoSub{
		Registry: NewRegistry(sink),
		veto: func(meta *Metadata) bool {
			value, ok := meta.Fields.Get("secret")
			return ok && value == true
		},
	}
	ctx := WithSubscriber(context.Background(), sub)

	Emit(ctx, LevelInfo, "vetoed", F("secret", true))
	if sink.count() != 0 {
		t.Errorf("Expected the metadata filter to veto delivery, got %d", sink.count())
	}

	Emit(ctx, LevelInfo, "passed")
	if sink.count() != 1 {
		t.Errorf("Expected unfiltered event to pass, got %d", sink.count())
	}
}

func TestLevelHelpers(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink, WithLevel(LevelTrace))
	ctx := WithSubscriber(context.Background(), registry)

	Trace(ctx, "a")
	Debug(ctx, "b")
	Info(ctx, "c")
	Warn(ctx, "d")
	Error(ctx, "e")
	Critical(ctx, "f")

	if sink.count() != 6 {
		t.Fatalf("Expected 6 deliveries, got %d", sink.count())
	}

	want := []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, lvl := range want {
		if sink.events[i].Level != lvl {
			t.Errorf("Expected delivery %d at %s, got %s", i, lvl, sink.events[i].Level)
		}
	}
}

func TestEmitUsesDefaultSubscriber(t *testing.T) {
	resetDefaultSubscriber()
	defer resetDefaultSubscriber()

	sink := &recordingSink{}
	if err := SetDefaultSubscriber(NewRegistry(sink)); err != nil {
		t.Fatalf("Expected default install to succeed, got %v", err)
	}

	Info(context.Background(), "via-default")

	if sink.count() != 1 {
		t.Fatalf("Expected 1 delivery through the default subscriber, got %d", sink.count())
	}
}

func TestStartSpanWithoutSubscriber(t *testing.T) {
	resetDefaultSubscriber()

	span := StartSpan(context.Background(), LevelInfo, "ignored")
	if span.Enabled() {
		t.Error("Expected an inert span without a subscriber")
	}
	span.Enter().Exit()
}

func TestStartSpanSuppressed(t *testing.T) {
	registry := NewRegistry(nil, WithLevel(LevelWarn))
	ctx := WithSubscriber(context.Background(), registry)

	span := StartSpan(ctx, LevelDebug, "quiet")
	if span.Enabled() {
		t.Error("Expected an inert span below the threshold")
	}

	// Nothing was entered on the registry.
	span.Enter()
	if _, ok := registry.CurrentSpanID(); ok {
		t.Error("Expected no current span from a suppressed handle")
	}
}

func TestStartSpanDelivers(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink)
	ctx := WithSubscriber(context.Background(), registry)

	span := StartSpan(ctx, LevelInfo, "operation", F("key", "value"))
	entered := span.Enter()
	Info(ctx, "inside")
	entered.Exit()

	_, chain := sink.last(t)
	if len(chain) != 1 {
		t.Fatalf("Expected 1 ancestor, got %d", len(chain))
	}
	if chain[0].Message != "operation" {
		t.Errorf("Expected ancestor 'operation', got %s", chain[0].Message)
	}
	if value, _ := chain[0].Fields.Get("key"); value != "value" {
		t.Errorf("Expected span field key=value, got %v", value)
	}
}

func TestStartSpanMetadataFilter(t *testing.T) {
	sink := &recordingSink{}
	sub := &vetoSub{
		Registry: NewRegistry(sink),
		veto: func(meta *Metadata) bool {
			return meta.Message == "blocked"
		},
	}
	ctx := WithSubscriber(context.Background(), sub)

	if span := StartSpan(ctx, LevelInfo, "blocked"); span.Enabled() {
		t.Error("Expected the filter to veto the span")
	}
	if span := StartSpan(ctx, LevelInfo, "allowed"); !span.Enabled() {
		t.Error("Expected the filter to pass the span")
	}
}
