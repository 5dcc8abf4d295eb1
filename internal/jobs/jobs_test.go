package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_RejectsBadInput(t *testing.T) {
	s := New(time.Second, nil)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("predictions", "0 2 * * *", noop))
	assert.Error(t, s.Add("predictions", "0 3 * * *", noop), "names are unique")
	assert.Error(t, s.Add("broken", "not a cron", noop))
	assert.Len(t, s.List(), 1)
}

func TestRun_RecordsOutcome(t *testing.T) {
	s := New(time.Second, nil)
	fail := true
	require.NoError(t, s.Add("assignment", "0 3 * * 1", func(context.Context) error {
		if fail {
			return errors.New("store unavailable")
		}
		return nil
	}))

	assert.Error(t, s.Run(context.Background(), "assignment"))
	info := s.List()[0]
	assert.Equal(t, 1, info.Runs)
	assert.Equal(t, 1, info.Failures)
	assert.Equal(t, "store unavailable", info.LastErr)
	require.NotNil(t, info.LastRun)

	fail = false
	require.NoError(t, s.Run(context.Background(), "assignment"))
	info = s.List()[0]
	assert.Equal(t, 2, info.Runs)
	assert.Empty(t, info.LastErr)

	assert.Error(t, s.Run(context.Background(), "missing"))
}

func TestRun_AppliesTimeout(t *testing.T) {
	s := New(20*time.Millisecond, nil)
	require.NoError(t, s.Add("slow", "0 2 * * *", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	err := s.Run(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	s := New(time.Second, nil)
	require.NoError(t, s.Add("predictions", "0 2 * * *", func(context.Context) error { return nil }))

	s.Start(context.Background())
	s.Start(context.Background())
	next := s.List()[0].NextRun
	assert.False(t, next.IsZero())
	assert.Equal(t, 2, next.UTC().Hour())
	s.Stop()
	s.Stop()
}

func TestRun_RejectsOverlap(t *testing.T) {
	s := New(time.Second, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Add("assignment", "0 3 * * 1", func(context.Context) error {
		close(entered)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), "assignment") }()
	<-entered
	assert.True(t, s.List()[0].Running)

	err := s.Run(context.Background(), "assignment")
	assert.ErrorIs(t, err, ErrRunning)

	close(release)
	require.NoError(t, <-done)
	info := s.List()[0]
	assert.False(t, info.Running)
	assert.Equal(t, 1, info.Runs, "the rejected run is not counted")
	assert.Equal(t, 0, info.Failures)
}
