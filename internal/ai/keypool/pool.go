package keypool

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry tracks a single credential and its usage state.
type Entry struct {
	Credential  string
	Name        string
	UsageCount  uint64
	Exhausted   bool
	ExhaustedAt time.Time
}

// Pool rotates a set of interchangeable API credentials for one capability.
// Exhausted keys are never returned until Reset is called; the reset schedule
// (e.g. daily quota refresh) is external configuration.
//
// Mutation is atomic per call. Concurrent requests share the pool, so the
// current index and exhaustion flags are guarded by a single mutex.
type Pool struct {
	mu      sync.Mutex
	entries []*Entry
	current int
	logger  *zap.Logger
}

// New creates a pool over the given credentials. Names default to "key-N".
func New(credentials []string, logger *zap.Logger) *Pool {
	entries := make([]*Entry, len(credentials))
	for i, cred := range credentials {
		entries[i] = &Entry{
			Credential: cred,
			Name:       "key-" + strconv.Itoa(i+1),
		}
	}

	return &Pool{
		entries: entries,
		logger:  logger.Named("keypool"),
	}
}

// NextAvailable returns the current usable credential, rotating past exhausted
// keys round-robin. Returns false when every key is exhausted; the caller must
// fall back to a different capability provider rather than retry the pool.
func (p *Pool) NextAvailable() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		idx := (p.current + i) % len(p.entries)
		if !p.entries[idx].Exhausted {
			p.current = idx
			return p.entries[idx].Credential, true
		}
	}

	return "", false
}

// MarkCurrentExhausted flags the current key as exhausted and advances to the
// next usable key. Returns true if another key became current.
func (p *Pool) MarkCurrentExhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return false
	}

	entry := p.entries[p.current]
	if !entry.Exhausted {
		entry.Exhausted = true
		entry.ExhaustedAt = time.Now()
		p.logger.Warn("API key exhausted",
			zap.String("key", entry.Name),
			zap.Uint64("usageCount", entry.UsageCount))
	}

	for i := 1; i <= len(p.entries); i++ {
		idx := (p.current + i) % len(p.entries)
		if !p.entries[idx].Exhausted {
			p.current = idx
			return true
		}
	}

	return false
}

// IncrementUsage bumps the usage counter of the current key.
func (p *Pool) IncrementUsage() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return
	}
	p.entries[p.current].UsageCount++
}

// HasAvailable reports whether any key is still usable.
func (p *Pool) HasAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.entries {
		if !entry.Exhausted {
			return true
		}
	}

	return false
}

// Reset clears exhaustion state on all keys. Called by the external quota
// reset schedule, not by the pipeline.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.entries {
		entry.Exhausted = false
		entry.ExhaustedAt = time.Time{}
	}
	p.current = 0

	p.logger.Info("Key pool reset", zap.Int("keys", len(p.entries)))
}

// Size returns the total number of keys in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.entries)
}
