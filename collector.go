package scopez

import (
	"sync"
	"sync/atomic"
	"time"
)

// Record is one delivered event with the span chain it was attributed
// to.
type Record struct {
	Event     Event      `json:"event"`
	Ancestors []SpanData `json:"ancestors,omitempty"`
}

// Collector is a Sink that buffers delivered records for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      []Record
	recordsCh    chan Record
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool // Track if collector is closed.
	syncMode     bool        // Bypass channel for synchronous collection.
}

// NewCollector creates a collector with the specified name and buffer
// size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:      name,
		records:   make([]Record, 0, 8), // Start with small capacity.
		recordsCh: make(chan Record, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving records from the
// channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case rec := <-c.recordsCh:
					c.buffer(rec)
				default:
					return // Clean shutdown.
				}
			}
		case rec := <-c.recordsCh:
			c.buffer(rec)
		}
	}
}

// Close shuts down the collector gracefully. Records arriving after
// Close are dropped.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
		// Clean shutdown completed.
	case <-time.After(100 * time.Millisecond):
		// Timeout - continue anyway.
	}
}

// OnEvent implements Sink with backpressure protection. If the
// internal channel is full the record is dropped and the drop counter
// incremented. In sync mode records are buffered directly for
// deterministic testing.
func (c *Collector) OnEvent(evt Event, ancestors []SpanData) {
	rec := copyRecord(evt, ancestors)

	if c.syncMode {
		if c.closed.Load() {
			c.droppedCount.Add(1)
			return
		}
		c.buffer(rec)
		return
	}

	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	select {
	case c.recordsCh <- rec:
		// Successfully queued.
	default:
		// Channel full - drop to prevent blocking the emitter.
		c.droppedCount.Add(1)
	}
}

// copyRecord deep-copies the delivered data so later Record mutations
// on live spans never reach the buffer.
func copyRecord(evt Event, ancestors []SpanData) Record {
	rec := Record{Event: evt}
	rec.Event.Fields = evt.Fields.Clone()
	if len(ancestors) > 0 {
		rec.Ancestors = make([]SpanData, len(ancestors))
		for i := range ancestors {
			rec.Ancestors[i] = ancestors[i]
			rec.Ancestors[i].Fields = ancestors[i].Fields.Clone()
		}
	}
	return rec
}

// buffer adds a record, growing the buffer in steps.
func (c *Collector) buffer(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) >= cap(c.records) {
		currentCap := cap(c.records)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]Record, len(c.records), newCap)
		copy(grown, c.records)
		c.records = grown
	}
	c.records = append(c.records, rec)
}

// Export returns a copy of all buffered records and clears the
// internal buffer. The returned slice is safe to modify without
// affecting the collector.
func (c *Collector) Export() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	result := make([]Record, len(c.records))
	for i := range c.records {
		result[i] = copyRecord(c.records[i].Event, c.records[i].Ancestors)
	}

	// Shrink only when the buffer is very oversized to avoid
	// allocation churn.
	if cap(c.records) > 256 && len(c.records) < cap(c.records)/8 {
		newCap := cap(c.records) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.records = make([]Record, 0, newCap)
	} else {
		c.records = c.records[:0] // Keep capacity, reset length.
	}

	return result
}

// Count returns the current number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// DroppedCount returns the total number of records dropped due to
// backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing. When
// enabled, records bypass the channel so tests see them immediately.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered records and the drop counter. Does not
// affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = c.records[:0]
	c.droppedCount.Store(0)
}
