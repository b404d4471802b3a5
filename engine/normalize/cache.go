package normalize

import (
	"context"
	"sync"

	"github.com/varikb/varikb/pkg/fn"
)

// RunCache records normalization outcomes for a single transform run: source
// concept ID → resolved match (success) or a recorded failure. Repeated
// references to the same source concept resolve (or fail) exactly once, and
// concurrent callers for the same ID share one in-flight resolution.
//
// A RunCache belongs to exactly one transform invocation. It is never a
// package global, so concurrent transforms of different sources stay
// isolated.
type RunCache struct {
	mu      sync.Mutex
	entries map[string]*runEntry
}

type runEntry struct {
	done  chan struct{}
	match *Match
}

// NewRunCache creates an empty per-run cache.
func NewRunCache() *RunCache {
	return &RunCache{entries: make(map[string]*runEntry)}
}

// Resolve returns the cached outcome for sourceID, or invokes resolve at
// most once to produce it. A resolver error (timeout, 5xx) is recorded as a
// no-match so the ID is not retried within the run. The second return value
// is false when the concept could not be normalized.
func (c *RunCache) Resolve(ctx context.Context, sourceID string, resolve func(context.Context) (*Match, error)) (*Match, bool) {
	c.mu.Lock()
	if e, ok := c.entries[sourceID]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.match, e.match != nil
		case <-ctx.Done():
			return nil, false
		}
	}
	e := &runEntry{done: make(chan struct{})}
	c.entries[sourceID] = e
	c.mu.Unlock()

	m, err := resolve(ctx)
	if err != nil {
		m = nil // client failure counts as no-match for caching purposes
	}
	e.match = m
	close(e.done)
	return m, m != nil
}

// Len returns the number of distinct source IDs seen so far.
func (c *RunCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Request asks for one source concept to be resolved from an ordered list of
// candidate query strings.
type Request struct {
	SourceID string
	Queries  []string
}

// Outcome is the resolution result for one request.
type Outcome struct {
	SourceID string
	Match    *Match
	OK       bool
}

// ResolveAll resolves a batch of concepts of one kind with bounded
// concurrency, joining before return. Outcomes are returned in request
// order, so output is deterministic given deterministic input.
func (c *RunCache) ResolveAll(ctx context.Context, client Normalizer, reqs []Request, workers int) []Outcome {
	return fn.ParMap(reqs, workers, func(r Request) Outcome {
		m, ok := c.Resolve(ctx, r.SourceID, func(ctx context.Context) (*Match, error) {
			return client.Normalize(ctx, r.Queries)
		})
		return Outcome{SourceID: r.SourceID, Match: m, OK: ok}
	})
}
