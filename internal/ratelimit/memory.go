package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLimiter is a process-local sliding-window limiter. Each identifier
// keeps the timestamps of its requests inside the current window.
type MemoryLimiter struct {
	config  Config
	now     func() time.Time
	entries sync.Map // string -> *window

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type window struct {
	mu   sync.Mutex
	hits []time.Time // ascending
	dead bool        // removed from entries; holders must reload
}

// trim drops hits at or before cutoff.
func (w *window) trim(cutoff time.Time) {
	i := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(cutoff) })
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// NewMemoryLimiter starts a limiter with a background sweeper that forgets
// idle identifiers once per window.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	return newMemoryLimiter(cfg, time.Now)
}

func newMemoryLimiter(cfg Config, now func() time.Time) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &MemoryLimiter{
		config: cfg,
		now:    now,
		done:   make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m, nil
}

// Allow records a request for identifier if the budget permits it.
func (m *MemoryLimiter) Allow(ctx context.Context, identifier string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now()
	for {
		v, _ := m.entries.LoadOrStore(identifier, &window{})
		if res, ok := m.record(v.(*window), now); ok {
			return res, nil
		}
	}
}

// record applies the budget to w. It reports false when w was removed from
// entries after it was loaded, in which case nothing is recorded.
func (m *MemoryLimiter) record(w *window, now time.Time) (*Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return nil, false
	}

	w.trim(now.Add(-m.config.Window))
	var oldest time.Time
	if len(w.hits) > 0 {
		oldest = w.hits[0]
	}
	res := m.config.decide(len(w.hits), oldest, now)
	if res.Allowed {
		w.hits = append(w.hits, now)
	}
	return res, true
}

// Reset forgets all requests recorded for identifier.
func (m *MemoryLimiter) Reset(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v, ok := m.entries.LoadAndDelete(identifier); ok {
		w := v.(*window)
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
	}
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
	return nil
}

// Len returns the number of identifiers currently tracked.
func (m *MemoryLimiter) Len() int {
	n := 0
	m.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func (m *MemoryLimiter) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Window)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryLimiter) sweep() {
	cutoff := m.now().Add(-m.config.Window)
	m.entries.Range(func(key, value interface{}) bool {
		w := value.(*window)
		w.mu.Lock()
		w.trim(cutoff)
		if len(w.hits) == 0 {
			w.dead = true
			m.entries.CompareAndDelete(key, w)
		}
		w.mu.Unlock()
		return true
	})
}
