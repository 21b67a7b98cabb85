package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payables/internal/domain"
)

type snapshotCollector struct {
	mu        sync.Mutex
	snapshots []Snapshot
	done      chan struct{}
	once      sync.Once
}

func newSnapshotCollector() *snapshotCollector {
	return &snapshotCollector{done: make(chan struct{})}
}

func (c *snapshotCollector) observe(s Snapshot) {
	c.mu.Lock()
	c.snapshots = append(c.snapshots, s)
	c.mu.Unlock()
	if s.Terminal() {
		c.once.Do(func() { close(c.done) })
	}
}

func (c *snapshotCollector) all() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snapshot, len(c.snapshots))
	copy(out, c.snapshots)
	return out
}

func (c *snapshotCollector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal snapshot")
	}
}

func TestSnapshot_Terminal(t *testing.T) {
	assert.True(t, Snapshot{UIStatus: domain.UIStatusExported}.Terminal())
	assert.True(t, Snapshot{UIStatus: domain.UIStatusError}.Terminal())
	assert.True(t, Snapshot{UIStatus: domain.UIStatusDuplicate}.Terminal())
	assert.True(t, Snapshot{UIStatus: domain.UIStatusSuccess, Progress: 100}.Terminal())
	assert.True(t, Snapshot{UIStatus: domain.UIStatusSuccessCaveats, Progress: 100}.Terminal())
	assert.False(t, Snapshot{UIStatus: domain.UIStatusSuccess, Progress: 85}.Terminal())
	assert.False(t, Snapshot{UIStatus: domain.UIStatusProcessing, Progress: 45}.Terminal())
}

func TestRegistry_StartIsIdempotent(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	defer r.Shutdown()

	block := make(chan struct{})
	defer close(block)
	fetch := func(ctx context.Context) (Snapshot, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return Snapshot{ID: "f1", UIStatus: domain.UIStatusProcessing, Progress: 45}, nil
	}

	assert.True(t, r.Start("f1", fetch, func(Snapshot) {}))
	assert.False(t, r.Start("f1", fetch, func(Snapshot) {}))
	assert.Equal(t, 1, r.Active())
}

func TestRegistry_StopsOnTerminalSnapshot(t *testing.T) {
	r := NewRegistry(5 * time.Millisecond)
	defer r.Shutdown()

	var calls int
	var mu sync.Mutex
	collector := newSnapshotCollector()

	fetch := func(ctx context.Context) (Snapshot, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			return Snapshot{ID: "f1", UIStatus: domain.UIStatusProcessing, Progress: 45}, nil
		}
		return Snapshot{ID: "f1", UIStatus: domain.UIStatusSuccess, Progress: 100}, nil
	}

	require.True(t, r.Start("f1", fetch, collector.observe))
	collector.wait(t)

	snapshots := collector.all()
	require.GreaterOrEqual(t, len(snapshots), 3)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, domain.UIStatusSuccess, last.UIStatus)

	// The entry drains out of the registry once the loop exits.
	assert.Eventually(t, func() bool { return r.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_FailStopOnFetchError(t *testing.T) {
	r := NewRegistry(5 * time.Millisecond)
	defer r.Shutdown()

	collector := newSnapshotCollector()
	fetch := func(ctx context.Context) (Snapshot, error) {
		return Snapshot{}, fmt.Errorf("store unavailable")
	}

	require.True(t, r.Start("f1", fetch, collector.observe))
	collector.wait(t)

	snapshots := collector.all()
	require.Len(t, snapshots, 1)
	assert.Equal(t, domain.UIStatusError, snapshots[0].UIStatus)
	assert.Equal(t, ErrCodePollFetch, snapshots[0].ErrorCode)
	assert.Eventually(t, func() bool { return r.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_StopCancelsLoop(t *testing.T) {
	r := NewRegistry(time.Hour) // the loop should never reach a second tick

	fetched := make(chan struct{}, 1)
	fetch := func(ctx context.Context) (Snapshot, error) {
		select {
		case fetched <- struct{}{}:
		default:
		}
		return Snapshot{ID: "f1", UIStatus: domain.UIStatusProcessing, Progress: 45}, nil
	}

	require.True(t, r.Start("f1", fetch, func(Snapshot) {}))
	<-fetched

	r.Stop("f1")
	assert.Equal(t, 0, r.Active())
	r.Shutdown()
}

func TestRegistry_ShutdownDrainsAll(t *testing.T) {
	r := NewRegistry(time.Hour)
	fetch := func(ctx context.Context) (Snapshot, error) {
		return Snapshot{UIStatus: domain.UIStatusProcessing, Progress: 45}, nil
	}

	require.True(t, r.Start("f1", fetch, func(Snapshot) {}))
	require.True(t, r.Start("f2", fetch, func(Snapshot) {}))

	r.Shutdown()
	assert.Equal(t, 0, r.Active())
}
