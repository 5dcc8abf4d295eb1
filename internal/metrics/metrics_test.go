package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/store/storetest"
	"github.com/matthewbaird/propmaint/internal/types"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func resolvedTask(id string, created time.Time, after time.Duration) types.Task {
	t := storetest.Reactive(id, "p1", types.LevelLow, created)
	t.Status = types.StatusResolved
	t.ResolvedAt = types.Ptr(created.Add(after))
	return t
}

func seeded(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	storetest.SeedProperty(t, s, types.Property{ID: "p1", Name: "Maple Court"})
	active := storetest.Reactive("a1", "p1", types.LevelHigh, now.Add(-time.Hour))
	active.Status = types.StatusActive
	storetest.SeedTasks(t, s,
		storetest.Reactive("n1", "p1", types.LevelLow, now.Add(-2*time.Hour)),
		active,
		resolvedTask("r1", now.Add(-72*time.Hour), 10*time.Hour),
		resolvedTask("r2", now.Add(-48*time.Hour), 20*time.Hour),
	)
	return s
}

func TestCompute(t *testing.T) {
	snap, err := Compute(context.Background(), seeded(t), now)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 1, snap.ByStatus[types.StatusPending])
	assert.Equal(t, 1, snap.ByStatus[types.StatusActive])
	assert.Equal(t, 2, snap.ByStatus[types.StatusResolved])
	assert.Equal(t, 0, snap.ByStatus[types.StatusPredicted])
	assert.Equal(t, 2, snap.Resolved)
	require.NotNil(t, snap.AvgResolutionHours)
	assert.InDelta(t, 15.0, *snap.AvgResolutionHours, 0.001)
	assert.False(t, snap.Stale)
}

func TestCompute_NothingResolved(t *testing.T) {
	snap, err := Compute(context.Background(), store.NewMemoryStore(), now)
	require.NoError(t, err)
	assert.Zero(t, snap.Total)
	assert.Nil(t, snap.AvgResolutionHours)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	c.sets++
	return nil
}

// flakyReader fails reads once broken is set.
type flakyReader struct {
	store.Reader
	broken bool
}

func (r *flakyReader) CountTasksByStatus(ctx context.Context) (map[types.Status]int, error) {
	if r.broken {
		return nil, errors.New("database is locked")
	}
	return r.Reader.CountTasksByStatus(ctx)
}

func TestService_CachesSnapshot(t *testing.T) {
	ctx := context.Background()
	cache := &memCache{}
	r := &flakyReader{Reader: seeded(t)}
	svc := NewService(r, cache, time.Minute, nil)

	first := svc.Snapshot(ctx)
	assert.Equal(t, 4, first.Total)
	assert.Equal(t, 1, cache.sets)

	r.broken = true
	second := svc.Snapshot(ctx)
	assert.False(t, second.Stale, "served from cache without touching the store")
	assert.Equal(t, 4, second.Total)
}

func TestService_StaleOnFailure(t *testing.T) {
	ctx := context.Background()
	r := &flakyReader{Reader: seeded(t)}
	svc := NewService(r, nil, time.Minute, nil)

	fresh := svc.Snapshot(ctx)
	require.False(t, fresh.Stale)

	r.broken = true
	stale := svc.Snapshot(ctx)
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.Total, stale.Total)
}

func TestService_EmptyWhenNeverRefreshed(t *testing.T) {
	r := &flakyReader{Reader: store.NewMemoryStore(), broken: true}
	snap := NewService(r, nil, time.Minute, nil).Snapshot(context.Background())
	assert.True(t, snap.Stale)
	assert.Zero(t, snap.Total)
	assert.NotNil(t, snap.ByStatus)
}
