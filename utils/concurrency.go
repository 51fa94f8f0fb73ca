package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool runs jobs on a bounded number of goroutines, spacing job starts
// by a minimum interval.
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
	limiter    *rate.Limiter
	wg         sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency and rate limit.
// A rateLimitMs of zero disables spacing.
func NewWorkerPool(maxWorkers, rateLimitMs int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	limit := rate.Inf
	if rateLimitMs > 0 {
		limit = rate.Every(time.Duration(rateLimitMs) * time.Millisecond)
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Submit enqueues a job for execution in the pool. It blocks while all
// workers are busy. If ctx is done before the job may start, the job still
// runs so that it can record its own failure; it receives the cancelled ctx.
func (wp *WorkerPool) Submit(ctx context.Context, job func(ctx context.Context)) {
	wp.wg.Add(1)
	select {
	case wp.semaphore <- struct{}{}:
	case <-ctx.Done():
		go func() {
			defer wp.wg.Done()
			job(ctx)
		}()
		return
	}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		// A wait error means ctx is done; the job sees that through ctx.
		_ = wp.limiter.Wait(ctx)
		job(ctx)
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Size returns the pool width.
func (wp *WorkerPool) Size() int {
	return wp.maxWorkers
}

// TokenSet is a thread-safe set of listing tokens.
type TokenSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewTokenSet creates an empty TokenSet.
func NewTokenSet() *TokenSet {
	return &TokenSet{seen: make(map[string]struct{})}
}

// Add returns true if the token was newly added, false if already present.
func (s *TokenSet) Add(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[token]; exists {
		return false
	}
	s.seen[token] = struct{}{}
	return true
}

// Size returns the number of unique tokens tracked.
func (s *TokenSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
