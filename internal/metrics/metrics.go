// Package metrics reports task counts by status and the mean time to
// resolution. Snapshots are cached; when a refresh fails the last good
// snapshot is served marked stale.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

const cacheKey = "propmaint:metrics:snapshot"

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("metrics: cache miss")

// Cache stores encoded snapshots with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Snapshot is one metrics view.
type Snapshot struct {
	ByStatus map[types.Status]int `json:"by_status"`
	Total    int                  `json:"total"`
	Resolved int                  `json:"resolved"`
	// AvgResolutionHours is nil until at least one task has been resolved.
	AvgResolutionHours *float64  `json:"avg_resolution_hours"`
	GeneratedAt        time.Time `json:"generated_at"`
	Stale              bool      `json:"stale"`
}

// Compute builds a snapshot from the store.
func Compute(ctx context.Context, r store.Reader, now time.Time) (Snapshot, error) {
	counts, err := r.CountTasksByStatus(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	resolved, err := r.ListTasks(ctx, store.TaskFilter{Statuses: []types.Status{types.StatusResolved}})
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{ByStatus: make(map[types.Status]int, len(types.Statuses)), GeneratedAt: now.UTC()}
	for _, s := range types.Statuses {
		snap.ByStatus[s] = counts[s]
		snap.Total += counts[s]
	}
	snap.AvgResolutionHours = averageHours(resolved)
	snap.Resolved = len(resolved)
	return snap, nil
}

func averageHours(resolved []types.Task) *float64 {
	var (
		sum time.Duration
		n   int
	)
	for _, t := range resolved {
		if t.ResolvedAt == nil {
			continue
		}
		sum += t.ResolvedAt.Sub(t.CreatedAt)
		n++
	}
	if n == 0 {
		return nil
	}
	avg := math.Round(sum.Hours()/float64(n)*100) / 100
	return &avg
}

// Service serves cached snapshots.
type Service struct {
	reader store.Reader
	cache  Cache
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *Snapshot
}

// NewService returns a Service. cache may be nil, in which case every call
// recomputes.
func NewService(r store.Reader, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{reader: r, cache: cache, ttl: ttl, log: log.With("component", "metrics"), now: time.Now}
}

// Snapshot returns the current metrics. It never fails: on a refresh error
// it returns the last good snapshot, or an empty one, with Stale set.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	if snap, ok := s.fromCache(ctx); ok {
		return snap
	}

	snap, err := Compute(ctx, s.reader, s.now())
	if err != nil {
		s.log.Warn("metrics refresh failed, serving stale view", "error", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.last != nil {
			stale := *s.last
			stale.Stale = true
			return stale
		}
		return Snapshot{ByStatus: map[types.Status]int{}, GeneratedAt: s.now().UTC(), Stale: true}
	}

	s.mu.Lock()
	s.last = &snap
	s.mu.Unlock()
	s.toCache(ctx, snap)
	return snap
}

func (s *Service) fromCache(ctx context.Context) (Snapshot, bool) {
	if s.cache == nil {
		return Snapshot{}, false
	}
	data, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("metrics cache read failed", "error", err)
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("metrics cache entry unreadable", "error", err)
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Service) toCache(ctx context.Context, snap Snapshot) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, data, s.ttl); err != nil {
		s.log.Warn("metrics cache write failed", "error", err)
	}
}
