package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingExpirer struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (c *countingExpirer) Expire(ctx context.Context, ttl time.Duration) (int, error) {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 1, nil
}

func TestNewReaper_Validates(t *testing.T) {
	_, err := NewReaper(&countingExpirer{}, 0, time.Minute, zap.NewNop())
	assert.Error(t, err)
	_, err = NewReaper(&countingExpirer{}, time.Minute, 0, zap.NewNop())
	assert.Error(t, err)
}

func TestReaper_RunOnce(t *testing.T) {
	exp := &countingExpirer{}
	r, err := NewReaper(exp, 30*time.Minute, time.Minute, zap.NewNop())
	require.NoError(t, err)

	r.RunOnce()
	assert.Equal(t, int32(1), exp.calls.Load())
	assert.Equal(t, int64(30*time.Minute), exp.ttl.Load())
}

func TestReaper_Schedule(t *testing.T) {
	exp := &countingExpirer{}
	r, err := NewReaper(exp, time.Minute, time.Second, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer cancel()

	assert.Eventually(t, func() bool { return exp.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}
