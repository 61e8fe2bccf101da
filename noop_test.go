package scopez

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

func TestNoOpBehavior(t *testing.T) {
	resetDefaultSubscriber()
	ctx := context.Background()

	// With no subscriber, every operation is a no-op.
	Trace(ctx, "ignored")
	Debug(ctx, "ignored")
	Info(ctx, "ignored", F("key", "value"))
	Warn(ctx, "ignored")
	Error(ctx, "ignored")
	Critical(ctx, "ignored")

	span := StartSpan(ctx, LevelInfo, "ignored", F("key", "value"))
	if span.Enabled() {
		t.Error("Expected disabled span without a subscriber")
	}
	if id, ok := span.ID(); ok || id != "" {
		t.Errorf("Expected empty id for disabled span, got %s", id)
	}
	span.Record("key", "value")

	entered := span.Enter()
	entered.Record("key", "value")
	entered.Exit()
	entered.Exit()

	// Instrumented functions pass straight through.
	calls := 0
	wrapped := Instrument1(func(_ context.Context, n int) error {
		calls++
		if n != 42 {
			t.Errorf("Expected original argument 42, got %d", n)
		}
		return nil
	})
	if err := wrapped(ctx, 42); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}

	// Errors survive passthrough untouched.
	wantErr := errors.New("boom")
	failing := Instrument0(func(context.Context) error {
		return wantErr
	})
	if err := failing(ctx); !errors.Is(err, wantErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestNoOpSubscriberResumes(t *testing.T) {
	resetDefaultSubscriber()

	var events []Event
	sink := SinkFunc(func(evt Event, _ []SpanData) {
		events = append(events, evt)
	})
	registry := NewRegistry(sink)

	// Nothing delivered before the subscriber is installed.
	Info(context.Background(), "before")
	if len(events) != 0 {
		t.Fatalf("Expected no deliveries without a subscriber, got %d", len(events))
	}

	ctx := WithSubscriber(context.Background(), registry)
	Info(ctx, "after")

	if len(events) != 1 {
		t.Fatalf("Expected 1 delivery with a subscriber, got %d", len(events))
	}
	if events[0].Message != "after" {
		t.Errorf("Expected message 'after', got %s", events[0].Message)
	}
}

func TestNoOpMemoryUsage(t *testing.T) {
	resetDefaultSubscriber()

	var m1, m2 runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m1)

	ctx := context.Background()
	// Perform many no-op operations.
	for i := 0; i < 1000; i++ {
		Info(ctx, "ignored", F("key", "value"))
		span := StartSpan(ctx, LevelInfo, "ignored")
		span.Record("key", "value")
		span.Enter().Exit()
	}

	runtime.GC()
	runtime.ReadMemStats(&m2)

	allocBytes := m2.TotalAlloc - m1.TotalAlloc
	allocsPerOp := allocBytes / 1000

	// The threshold here is generous to account for runtime overhead.
	if allocsPerOp > 500 {
		t.Errorf("no-op operations allocating too much memory: %d bytes per operation", allocsPerOp)
	}
}

func BenchmarkNoOpEmit(b *testing.B) {
	resetDefaultSubscriber()
	ctx := context.Background()

	b.Run("event", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			Info(ctx, "ignored")
		}
	})

	b.Run("span", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			StartSpan(ctx, LevelInfo, "ignored").Enter().Exit()
		}
	})
}
