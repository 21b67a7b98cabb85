// Package poller tracks in-flight entities with one polling loop per id,
// owned by an explicit registry so start/stop are idempotent and shutdown
// leaves no orphaned timers.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"payables/internal/domain"
)

// ErrCodePollFetch marks snapshots produced when a fetch failed and
// polling stopped.
const ErrCodePollFetch = "POLL_FETCH_FAILED"

// Snapshot is one observed state of a tracked entity.
type Snapshot struct {
	ID        string
	UIStatus  domain.UIStatus
	Progress  int
	Issues    []domain.DetailedIssue
	Summary   string
	ErrorCode string
}

// Terminal reports whether polling should stop on this snapshot.
func (s Snapshot) Terminal() bool {
	switch s.UIStatus {
	case domain.UIStatusExported, domain.UIStatusError, domain.UIStatusDuplicate:
		return true
	case domain.UIStatusSuccess, domain.UIStatusSuccessCaveats:
		return s.Progress >= 100
	}
	return false
}

// FetchFunc re-fetches the entity and derives its current snapshot.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// ObserverFunc receives every snapshot, including the final one.
type ObserverFunc func(Snapshot)

type entry struct {
	cancel context.CancelFunc
}

// Registry owns all polling loops, keyed by entity id.
type Registry struct {
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// NewRegistry creates a registry polling at the given interval.
func NewRegistry(interval time.Duration) *Registry {
	return &Registry{
		interval: interval,
		entries:  make(map[string]*entry),
	}
}

// Start begins polling the entity. Returns false without side effects if
// the entity is already being polled.
func (r *Registry) Start(id string, fetch FetchFunc, observe ObserverFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.entries[id] = &entry{cancel: cancel}
	r.wg.Add(1)
	go r.poll(ctx, id, fetch, observe)
	return true
}

// Stop cancels polling for one entity. Stopping an untracked id is a no-op.
func (r *Registry) Stop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.cancel()
		delete(r.entries, id)
	}
}

// Shutdown stops every loop and waits for them to exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for id, e := range r.entries {
		e.cancel()
		delete(r.entries, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Active returns the number of tracked entities.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) poll(ctx context.Context, id string, fetch FetchFunc, observe ObserverFunc) {
	defer r.wg.Done()
	defer r.Stop(id)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		snapshot, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Fail-stop: one failed fetch forces the entity to error and
			// ends polling instead of retrying forever.
			log.Printf("poller: fetch for %s failed, stopping: %v", id, err)
			observe(Snapshot{ID: id, UIStatus: domain.UIStatusError, Progress: 100, ErrorCode: ErrCodePollFetch})
			return
		}

		observe(snapshot)
		if snapshot.Terminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
