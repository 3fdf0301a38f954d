// Package analytics counts dataset queries and persists the totals in batches.
package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Flusher persists accumulated query counts keyed by dataset ID.
type Flusher interface {
	FlushQueries(ctx context.Context, counts map[string]int64) error
}

// Config holds configuration for the QueryCounter.
type Config struct {
	FlushInterval time.Duration // How often to flush accumulated counts
	BatchSize     int           // Flush once this many queries are pending
	ChannelBuffer int           // Size of the query channel buffer
	FlushTimeout  time.Duration // Deadline for a single flush
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		BatchSize:     100,
		ChannelBuffer: 10000,
		FlushTimeout:  5 * time.Second,
	}
}

// QueryCounter provides non-blocking, batched query counting.
type QueryCounter struct {
	flusher Flusher
	cfg     Config

	queryChan    chan string
	counts       map[string]int64
	countsMu     sync.Mutex
	pendingCount int64

	dropped atomic.Int64

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
	stopped  atomic.Bool
}

// NewQueryCounter creates a QueryCounter and starts its flush loop.
func NewQueryCounter(cfg Config, flusher Flusher) *QueryCounter {
	def := DefaultConfig()
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	c := &QueryCounter{
		flusher:   flusher,
		cfg:       cfg,
		queryChan: make(chan string, cfg.ChannelBuffer),
		counts:    make(map[string]int64),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}

	go c.run()
	return c
}

// RecordQuery counts one query against a dataset. It never blocks: when the
// buffer is full the query is dropped.
func (c *QueryCounter) RecordQuery(datasetID string) {
	if c.stopped.Load() {
		return
	}

	select {
	case c.queryChan <- datasetID:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many queries were discarded because the buffer was full.
func (c *QueryCounter) Dropped() int64 {
	return c.dropped.Load()
}

// Stop stops the counter and flushes remaining counts.
func (c *QueryCounter) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopChan)
		<-c.doneChan
	})
}

// PendingStats returns a snapshot of unflushed query counts.
func (c *QueryCounter) PendingStats() map[string]int64 {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()

	result := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		result[k] = v
	}
	return result
}

func (c *QueryCounter) run() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case id := <-c.queryChan:
			if c.add(id) {
				c.flush()
			}

		case <-ticker.C:
			c.flush()

		case <-c.stopChan:
			c.drain()
			c.flush()
			return
		}
	}
}

// add records one query and reports whether the batch is full.
func (c *QueryCounter) add(id string) bool {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()
	c.counts[id]++
	c.pendingCount++
	return int(c.pendingCount) >= c.cfg.BatchSize
}

func (c *QueryCounter) drain() {
	for {
		select {
		case id := <-c.queryChan:
			c.add(id)
		default:
			return
		}
	}
}

// flush hands accumulated counts to the flusher. Counts that fail to flush
// are merged back and retried on the next flush.
func (c *QueryCounter) flush() {
	c.countsMu.Lock()
	if len(c.counts) == 0 {
		c.countsMu.Unlock()
		return
	}

	toFlush := c.counts
	pending := c.pendingCount
	c.counts = make(map[string]int64)
	c.pendingCount = 0
	c.countsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
	defer cancel()

	if err := c.flusher.FlushQueries(ctx, toFlush); err != nil {
		c.countsMu.Lock()
		for k, v := range toFlush {
			c.counts[k] += v
		}
		c.pendingCount += pending
		c.countsMu.Unlock()
	}
}
