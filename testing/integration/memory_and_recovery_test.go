package integration

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/zoobzio/scopez"
)

// TestCollectorBufferGrowth verifies memory management with large then
// small batches.
func TestCollectorBufferGrowth(t *testing.T) {
	collector := scopez.NewCollector("growth", 64)
	collector.SetSyncMode(true)
	defer collector.Close()
	registry := scopez.NewRegistry(collector, scopez.WithLevel(scopez.LevelTrace))
	ctx := scopez.WithSubscriber(context.Background(), registry)

	// Phase 1: Generate many records under one span.
	largeBatch := 10000
	span := scopez.StartSpan(ctx, scopez.LevelInfo, "large-batch")
	entered := span.Enter()
	for i := 0; i < largeBatch; i++ {
		scopez.Info(ctx, "bulk event",
			scopez.F("index", i),
			scopez.F("payload", fmt.Sprintf("some-data-%d", i)),
		)
	}
	entered.Exit()

	phase1 := collector.Export()
	t.Logf("Phase 1: Generated %d, Exported %d records", largeBatch, len(phase1))

	if len(phase1) != largeBatch {
		t.Errorf("Sync collection lost records: %d of %d", len(phase1), largeBatch)
	}
	if len(phase1) > 0 && len(phase1[0].Ancestors) != 1 {
		t.Errorf("Expected 1 ancestor on bulk events, got %d", len(phase1[0].Ancestors))
	}

	// Force GC to reclaim the exported batch.
	runtime.GC()

	// Phase 2: Generate small batch.
	smallBatch := 10
	for i := 0; i < smallBatch; i++ {
		scopez.Info(ctx, "small event",
			scopez.F("phase", 2),
			scopez.F("index", i),
		)
	}

	phase2 := collector.Export()
	t.Logf("Phase 2: Generated %d, Exported %d records", smallBatch, len(phase2))

	if len(phase2) != smallBatch {
		t.Fatalf("Phase 2 expected %d records, got %d", smallBatch, len(phase2))
	}

	// Verify data integrity.
	for _, rec := range phase2 {
		if phase, ok := rec.Event.Fields.Get("phase"); !ok || phase != 2 {
			t.Error("Phase 2 record has wrong phase field")
		}
		if _, ok := rec.Event.Fields.Get("index"); !ok {
			t.Error("Phase 2 record missing index")
		}
		if len(rec.Ancestors) != 0 {
			t.Error("Phase 2 record emitted outside any span but carries ancestors")
		}
	}
}

// TestRecordSnapshotIsolation verifies collected records are immune to
// later mutations of the live span and of caller-owned field slices.
func TestRecordSnapshotIsolation(t *testing.T) {
	collector := scopez.NewCollector("isolation", 100)
	collector.SetSyncMode(true)
	defer collector.Close()
	registry := scopez.NewRegistry(collector, scopez.WithLevel(scopez.LevelTrace))
	ctx := scopez.WithSubscriber(context.Background(), registry)

	span := scopez.StartSpan(ctx, scopez.LevelInfo, "mutating-span")
	entered := span.Enter()

	span.Record("stage", "one")
	scopez.Info(ctx, "first look")

	// Mutate the span after the first event was delivered.
	span.Record("extra", true)
	scopez.Info(ctx, "second look")

	// Mutate a caller-owned field slice after emission.
	fields := []scopez.Field{scopez.F("color", "red")}
	scopez.Info(ctx, "third look", fields...)
	fields[0] = scopez.F("color", "blue")

	entered.Exit()

	recs := collector.Export()
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}

	// First record saw the span as it was at emission time.
	first := recs[0].Ancestors[0]
	if stage, ok := first.Fields.Get("stage"); !ok || stage != "one" {
		t.Error("First record lost the stage field")
	}
	if _, ok := first.Fields.Get("extra"); ok {
		t.Error("First record gained a field added after its emission")
	}

	// Second record saw both fields.
	second := recs[1].Ancestors[0]
	if _, ok := second.Fields.Get("stage"); !ok {
		t.Error("Second record missing stage field")
	}
	if extra, ok := second.Fields.Get("extra"); !ok || extra != true {
		t.Error("Second record missing field recorded before its emission")
	}

	// Third record kept the field value from emission time.
	if color, ok := recs[2].Event.Fields.Get("color"); !ok || color != "red" {
		t.Errorf("Third record's field was mutated after collection: got %v", color)
	}
}

// TestNilContextSafety verifies graceful handling of nil context.
func TestNilContextSafety(t *testing.T) {
	var nilCtx context.Context

	// Emission helpers tolerate a nil context without panicking.
	scopez.Info(nilCtx, "into the void")

	// Spans opened without a subscriber are inert, not nil.
	span := scopez.StartSpan(nilCtx, scopez.LevelInfo, "unrooted")
	if span == nil {
		t.Fatal("Got nil span from nil context")
	}
	if span.Enabled() {
		t.Error("Span from nil context should be inert")
	}
	if _, ok := span.ID(); ok {
		t.Error("Inert span should not carry an id")
	}

	// Every method on an inert span is a safe no-op.
	span.Record("ignored", true)
	entered := span.Enter()
	entered.Record("still-ignored", true)
	entered.Exit()

	// Deriving from nil starts a fresh context chain.
	collector := scopez.NewCollector("nilctx", 16)
	collector.SetSyncMode(true)
	defer collector.Close()
	registry := scopez.NewRegistry(collector, scopez.WithLevel(scopez.LevelTrace))
	ctx := scopez.WithSubscriber(nilCtx, registry)
	if ctx == nil {
		t.Fatal("WithSubscriber returned nil context")
	}

	live := scopez.StartSpan(ctx, scopez.LevelInfo, "rooted")
	liveEntered := live.Enter()
	scopez.Info(ctx, "recovered")
	liveEntered.Exit()

	recs := collector.Export()
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	if got := ChainMessages(recs[0]); len(got) != 1 || got[0] != "rooted" {
		t.Errorf("Expected chain [rooted], got %v", got)
	}
}

// TestPanicPassesThroughInstrumentation verifies the engine reports a
// panic, closes the call span, and rethrows the original value.
func TestPanicPassesThroughInstrumentation(t *testing.T) {
	collector := scopez.NewCollector("panic", 100)
	collector.SetSyncMode(true)
	defer collector.Close()
	registry := scopez.NewRegistry(collector, scopez.WithLevel(scopez.LevelTrace))
	ctx := scopez.WithSubscriber(context.Background(), registry)

	boom := scopez.Instrument1(func(ctx context.Context, input string) error {
		panic("kaboom: " + input)
	}, scopez.Message("volatile.op"), scopez.ArgNames("input"), scopez.LogAll())

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = boom(ctx, "bad-input")
	}()

	if recovered != "kaboom: bad-input" {
		t.Fatalf("Expected original panic value, got %v", recovered)
	}

	recs := collector.Export()
	if len(recs) != 2 {
		t.Fatalf("Expected enter and error records, got %d", len(recs))
	}

	enter := recs[0]
	if phase, _ := enter.Event.Fields.Get("phase"); phase != "enter" {
		t.Errorf("Expected enter phase first, got %v", phase)
	}

	failure := recs[1]
	if failure.Event.Level != scopez.LevelError {
		t.Errorf("Expected panic reported at error level, got %v", failure.Event.Level)
	}
	if phase, _ := failure.Event.Fields.Get("phase"); phase != "error" {
		t.Errorf("Expected error phase, got %v", phase)
	}
	if msg, ok := failure.Event.Fields.Get("panic"); !ok || msg != "kaboom: bad-input" {
		t.Errorf("Expected panic field with original value, got %v", msg)
	}
	if got := ChainMessages(failure); len(got) != 1 || got[0] != "volatile.op" {
		t.Errorf("Expected panic reported inside the call span, got %v", got)
	}

	// The caller's registry never adopted the call span.
	if _, ok := registry.CurrentSpanID(); ok {
		t.Error("Registry still has a current span after the panic unwound")
	}

	// Tracing keeps working after the panic.
	scopez.Info(ctx, "life goes on")
	after := collector.Export()
	if len(after) != 1 || after[0].Event.Message != "life goes on" {
		t.Errorf("Expected tracing to continue after panic, got %d records", len(after))
	}
}

// TestFieldVolumeOnOneSpan tests behavior with an excessive field count.
func TestFieldVolumeOnOneSpan(t *testing.T) {
	// Skip in short mode as this test is intensive.
	if testing.Short() {
		t.Skip("Skipping field volume test in short mode")
	}

	collector := scopez.NewCollector("cardinality", 100)
	collector.SetSyncMode(true)
	defer collector.Close()
	registry := scopez.NewRegistry(collector, scopez.WithLevel(scopez.LevelTrace))
	ctx := scopez.WithSubscriber(context.Background(), registry)

	span := scopez.StartSpan(ctx, scopez.LevelInfo, "high-cardinality-span")
	entered := span.Enter()

	// Attach 10,000 unique fields.
	fieldCount := 10000
	for i := 0; i < fieldCount; i++ {
		span.Record(fmt.Sprintf("field-%d", i), fmt.Sprintf("value-%d", i))
	}

	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	scopez.Info(ctx, "snapshot under load")
	entered.Exit()

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)
	t.Logf("Memory growth with %d fields: %d bytes", fieldCount, int64(memAfter.Alloc)-int64(memBefore.Alloc))

	recs := collector.Export()
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}

	loaded := recs[0].Ancestors[0]
	t.Logf("Snapshot carries %d fields", len(loaded.Fields))
	if len(loaded.Fields) != fieldCount {
		t.Errorf("Expected %d fields preserved, got %d", fieldCount, len(loaded.Fields))
	}
	if v, ok := loaded.Fields.Get("field-9999"); !ok || v != "value-9999" {
		t.Error("Last recorded field missing from snapshot")
	}

	// Verify system still functional.
	probe := scopez.StartSpan(ctx, scopez.LevelInfo, "post-cardinality-probe")
	probeEntered := probe.Enter()
	scopez.Info(ctx, "normal again")
	probeEntered.Exit()

	post := collector.Export()
	if len(post) != 1 {
		t.Fatalf("Expected 1 record after cardinality test, got %d", len(post))
	}
	if got := ChainMessages(post[0]); len(got) != 1 || got[0] != "post-cardinality-probe" {
		t.Errorf("Expected clean chain after cardinality test, got %v", got)
	}
}

// TestMemoryPressureGracefulDegradation simulates high memory usage.
func TestMemoryPressureGracefulDegradation(t *testing.T) {
	// Skip in short mode as this test is intensive.
	if testing.Short() {
		t.Skip("Skipping memory pressure test in short mode")
	}

	collector := scopez.NewCollector("pressure", 1000)
	defer collector.Close()
	registry := scopez.NewRegistry(collector, scopez.WithLevel(scopez.LevelTrace))
	ctx := scopez.WithSubscriber(context.Background(), registry)

	// Allocate a large amount of memory to simulate pressure - 100MB.
	largeData := make([][]byte, 100)
	for i := range largeData {
		largeData[i] = make([]byte, 1024*1024)
	}
	runtime.GC()

	// Emit under pressure through the async path.
	sent := 1000
	for i := 0; i < sent; i++ {
		scopez.Info(ctx, "pressured event", scopez.F("index", i))
	}

	collected := drainCollector(collector, sent, 5*time.Second)
	dropped := collector.DroppedCount()

	t.Logf("Under memory pressure: sent=%d, collected=%d, dropped=%d",
		sent, collected, dropped)

	if int64(collected)+dropped != int64(sent) {
		t.Errorf("Record accounting broken: %d collected + %d dropped != %d sent",
			collected, dropped, sent)
	}
	if collected == 0 {
		t.Error("No records collected under memory pressure")
	}

	// Free memory.
	runtime.KeepAlive(largeData)
	largeData = nil //nolint:ineffassign,wastedassign // Required for memory pressure test
	runtime.GC()

	// Verify system recovers after memory pressure relieved.
	span := scopez.StartSpan(ctx, scopez.LevelInfo, "recovery-span")
	entered := span.Enter()
	scopez.Info(ctx, "recovered after pressure")
	entered.Exit()

	deadline := time.Now().Add(2 * time.Second)
	found := false
	for time.Now().Before(deadline) && !found {
		for _, rec := range collector.Export() {
			if rec.Event.Message == "recovered after pressure" {
				found = true
				break
			}
		}
		if !found {
			time.Sleep(10 * time.Millisecond)
		}
	}

	if !found {
		t.Error("Recovery event not collected after memory pressure relieved")
	}
}
