package integration

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/scopez"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []scopez.Record
	*scopez.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := scopez.NewCollector(name, bufferSize)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]scopez.Record, 0),
	}
}

// Export returns collected records and clears the buffer.
func (m *MockCollector) Export() []scopez.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.Collector.Export()
	m.exported = append(m.exported, records...)
	return records
}

// GetAll returns every record seen so far without losing earlier
// exports.
func (m *MockCollector) GetAll() []scopez.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.Collector.Export()
	if len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]scopez.Record, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForRecords waits for the expected number of records with timeout.
func (m *MockCollector) WaitForRecords(expected int, timeout time.Duration) []scopez.Record {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		all := m.GetAll()
		if len(all) >= expected {
			return all[:expected]
		}
		<-ticker.C
	}

	all := m.GetAll()
	m.t.Errorf("Timeout waiting for records: expected %d, got %d", expected, len(all))
	return all
}

// AssertRecordCount verifies exact record count.
func (m *MockCollector) AssertRecordCount(expected int) {
	records := m.Export()
	if len(records) != expected {
		m.t.Errorf("Expected %d records, got %d", expected, len(records))
	}
}

// AssertEventNamed checks if an event with the given message exists.
func (m *MockCollector) AssertEventNamed(message string) *scopez.Record {
	records := m.GetAll()
	for i := range records {
		if records[i].Event.Message == message {
			return &records[i]
		}
	}
	m.t.Errorf("Event %q not found", message)
	return nil
}

// AssertEmittedUnder verifies that the named event carried the given
// span message somewhere in its ancestor chain.
func (m *MockCollector) AssertEmittedUnder(message, spanMessage string) {
	rec := m.AssertEventNamed(message)
	if rec == nil {
		return
	}
	for _, span := range rec.Ancestors {
		if span.Message == spanMessage {
			return
		}
	}
	m.t.Errorf("Event %q not under span %q, chain: %v", message, spanMessage, ChainMessages(*rec))
}

// ChainMessages flattens a record's ancestor chain to messages,
// innermost first.
func ChainMessages(rec scopez.Record) []string {
	msgs := make([]string, len(rec.Ancestors))
	for i, span := range rec.Ancestors {
		msgs[i] = span.Message
	}
	return msgs
}

// SpansObserved rebuilds the set of spans referenced by any ancestor
// chain, keyed by id. Later snapshots of the same span win, so
// recorded fields accumulate.
func SpansObserved(records []scopez.Record) map[scopez.SpanID]scopez.SpanData {
	spans := make(map[scopez.SpanID]scopez.SpanData)
	for _, rec := range records {
		for _, span := range rec.Ancestors {
			spans[span.ID] = span
		}
	}
	return spans
}

// SpanTree represents a hierarchical view of observed spans.
type SpanTree struct {
	Span     scopez.SpanData
	Children []*SpanTree
}

// BuildSpanTree constructs trees from the spans observed across a set
// of records.
func BuildSpanTree(records []scopez.Record) []*SpanTree {
	spans := SpansObserved(records)
	nodeMap := make(map[scopez.SpanID]*SpanTree, len(spans))
	roots := make([]*SpanTree, 0)

	for id, span := range spans {
		nodeMap[id] = &SpanTree{
			Span:     span,
			Children: make([]*SpanTree, 0),
		}
	}

	for id, span := range spans {
		node := nodeMap[id]
		if span.ParentID == "" {
			roots = append(roots, node)
		} else if parent, exists := nodeMap[span.ParentID]; exists {
			parent.Children = append(parent.Children, node)
		}
	}

	return roots
}

// PrintSpanTree formats span trees for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s (%s)\n", indent, node.Span.Message, node.Span.ID)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// RecordAnalyzer provides trace-level assertions over a record batch.
type RecordAnalyzer struct {
	records   []scopez.Record
	byMessage map[string][]scopez.Record
	trees     []*SpanTree
}

// NewRecordAnalyzer creates an analyzer for a set of records.
func NewRecordAnalyzer(records []scopez.Record) *RecordAnalyzer {
	a := &RecordAnalyzer{
		records:   records,
		byMessage: make(map[string][]scopez.Record),
	}

	for _, rec := range records {
		a.byMessage[rec.Event.Message] = append(a.byMessage[rec.Event.Message], rec)
	}

	a.trees = BuildSpanTree(records)
	return a
}

// EventsNamed retrieves all records whose event carries the message.
func (a *RecordAnalyzer) EventsNamed(message string) []scopez.Record {
	return a.byMessage[message]
}

// CountRecords returns the total record count.
func (a *RecordAnalyzer) CountRecords() int {
	return len(a.records)
}

// CountTrees returns the number of distinct root spans observed.
func (a *RecordAnalyzer) CountTrees() int {
	return len(a.trees)
}

// VerifyChain checks that the named event was emitted under exactly
// the given span messages, innermost first.
func (a *RecordAnalyzer) VerifyChain(eventMessage string, spanMessages ...string) error {
	records := a.EventsNamed(eventMessage)
	if len(records) == 0 {
		return fmt.Errorf("event %q not found", eventMessage)
	}

	got := ChainMessages(records[0])
	if len(got) != len(spanMessages) {
		return fmt.Errorf("event %q chain %v, want %v", eventMessage, got, spanMessages)
	}
	for i := range got {
		if got[i] != spanMessages[i] {
			return fmt.Errorf("event %q chain %v, want %v", eventMessage, got, spanMessages)
		}
	}
	return nil
}

// DeepestChain returns the longest ancestor chain in the batch,
// innermost first.
func (a *RecordAnalyzer) DeepestChain() []scopez.SpanData {
	var deepest []scopez.SpanData
	for _, rec := range a.records {
		if len(rec.Ancestors) > len(deepest) {
			deepest = rec.Ancestors
		}
	}
	return deepest
}

// TestScenario represents a reusable test case.
type TestScenario struct {
	Setup   func(t *testing.T) (*scopez.Registry, *MockCollector)
	Execute func(context.Context)
	Verify  func(*testing.T, []scopez.Record)
	Name    string
}

// Run executes the test scenario.
func (s *TestScenario) Run(t *testing.T) {
	t.Run(s.Name, func(t *testing.T) {
		var registry *scopez.Registry
		var collector *MockCollector
		if s.Setup != nil {
			registry, collector = s.Setup(t)
		}
		if registry == nil || collector == nil {
			collector = NewMockCollector(t, "scenario", 1000)
			registry = scopez.NewRegistry(collector.Collector, scopez.WithLevel(scopez.LevelTrace))
		}
		defer collector.Close()

		ctx := scopez.WithSubscriber(context.Background(), registry)
		s.Execute(ctx)

		records := collector.GetAll()
		s.Verify(t, records)
	})
}

// MockService simulates an external service whose calls are traced
// through the instrumentation engine.
type MockService struct {
	call         func(context.Context, string) error
	name         string
	latency      time.Duration
	mu           sync.Mutex
	requestCount int
	failureRate  float32
}

// NewMockService creates a simulated service.
func NewMockService(name string) *MockService {
	m := &MockService{
		name:    name,
		latency: time.Millisecond,
	}
	m.call = scopez.Instrument1(m.handle,
		scopez.Message(name+".call"),
		scopez.ArgNames("operation"),
		scopez.LogAll(),
	)
	return m
}

// SetLatency configures response time.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetFailureRate configures error probability (0.0-1.0).
func (m *MockService) SetFailureRate(rate float32) {
	m.mu.Lock()
	m.failureRate = rate
	m.mu.Unlock()
}

// RequestCount returns how many calls the service has handled.
func (m *MockService) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Call runs one traced service call.
func (m *MockService) Call(ctx context.Context, operation string) error {
	return m.call(ctx, operation)
}

func (m *MockService) handle(ctx context.Context, operation string) error {
	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	latency := m.latency
	shouldFail := rand.Float32() < m.failureRate
	m.mu.Unlock()

	scopez.Debug(ctx, m.name+".processing",
		scopez.F("operation", operation),
		scopez.F("request", count),
	)

	time.Sleep(latency)

	if shouldFail {
		return fmt.Errorf("%s: simulated failure", m.name)
	}
	return nil
}
