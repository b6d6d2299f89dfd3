package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() *memoryLimiter {
	l := NewMemoryLimiter().(*memoryLimiter)
	l.Stop()
	return l
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter()

	current := time.Now()
	l.now = func() time.Time { return current }

	// 10 requests pass, the 11th in the same window is rejected.
	for i := 0; i < 10; i++ {
		allowed, err := l.Allow(ctx, "acct:generate", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, err := l.Allow(ctx, "acct:generate", 10, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// After the window elapses, requests succeed again.
	current = current.Add(61 * time.Second)
	allowed, err = l.Allow(ctx, "acct:generate", 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter()

	allowed, err := l.Allow(ctx, "a:generate", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Allow(ctx, "a:generate", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different (account, action) key has its own window.
	allowed, err = l.Allow(ctx, "b:generate", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiter_Block(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter()

	current := time.Now()
	l.now = func() time.Time { return current }

	require.NoError(t, l.Block(ctx, "acct", "operation burst", 10*time.Minute))

	blocked, reason, err := l.IsBlocked(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "operation burst", reason)

	// Expired blocks self-clear on lookup.
	current = current.Add(11 * time.Minute)
	blocked, _, err = l.IsBlocked(ctx, "acct")
	require.NoError(t, err)
	assert.False(t, blocked)
}
