package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/errors"
)

func TestAcquireRejectsEmptyUser(t *testing.T) {
	l := New(DefaultConfig())
	_, err := l.Acquire(context.Background(), "  ", false, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.Contains(t, err.Error(), "无法识别用户身份")
}

func TestReadCooldown(t *testing.T) {
	l := New(Config{ReadCooldown: time.Hour, GlobalConcurrency: 5})

	lease, err := l.Acquire(context.Background(), "u1", false, "")
	require.NoError(t, err)
	lease.Release()

	_, err = l.Acquire(context.Background(), "u1", false, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.Contains(t, err.Error(), "读操作过于频繁")

	// Cooldowns are per user.
	lease, err = l.Acquire(context.Background(), "u2", false, "")
	require.NoError(t, err)
	lease.Release()
}

func TestWriteCooldownIndependentOfRead(t *testing.T) {
	l := New(Config{ReadCooldown: time.Hour, WriteCooldown: time.Hour, GlobalConcurrency: 5})

	lease, err := l.Acquire(context.Background(), "u1", false, "")
	require.NoError(t, err)
	lease.Release()

	// A fresh write token is still available.
	lease, err = l.Acquire(context.Background(), "u1", true, "")
	require.NoError(t, err)
	lease.Release()

	_, err = l.Acquire(context.Background(), "u1", true, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "写操作过于频繁")
}

func TestZeroCooldownDisabled(t *testing.T) {
	l := New(Config{GlobalConcurrency: 5})
	for i := 0; i < 3; i++ {
		lease, err := l.Acquire(context.Background(), "u1", true, "")
		require.NoError(t, err)
		lease.Release()
	}
}

func TestGlobalConcurrencyCap(t *testing.T) {
	l := New(Config{GlobalConcurrency: 1})

	lease, err := l.Acquire(context.Background(), "u1", false, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "u2", false, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	lease.Release()
	lease, err = l.Acquire(context.Background(), "u3", false, "")
	require.NoError(t, err)
	lease.Release()
}

func TestAccountWriteSerialized(t *testing.T) {
	l := New(Config{GlobalConcurrency: 5, AccountWriteSerialized: true})

	first, err := l.Acquire(context.Background(), "u1", true, "acct1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "u2", true, "acct1")
	require.Error(t, err)

	// A different account is not blocked.
	other, err := l.Acquire(context.Background(), "u3", true, "acct2")
	require.NoError(t, err)
	other.Release()

	// Reads against the same account pass through.
	read, err := l.Acquire(context.Background(), "u4", false, "acct1")
	require.NoError(t, err)
	read.Release()

	first.Release()
	second, err := l.Acquire(context.Background(), "u5", true, "acct1")
	require.NoError(t, err)
	second.Release()
}

func TestLeaseReleaseIdempotent(t *testing.T) {
	l := New(Config{GlobalConcurrency: 1, AccountWriteSerialized: true})

	lease, err := l.Acquire(context.Background(), "u1", true, "acct1")
	require.NoError(t, err)
	lease.Release()
	lease.Release()

	// Double release must not have freed a second slot.
	next, err := l.Acquire(context.Background(), "u2", true, "acct1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "u3", false, "")
	require.Error(t, err)
	next.Release()
}

func TestFailedAccountAcquireFreesGlobal(t *testing.T) {
	l := New(Config{GlobalConcurrency: 2, AccountWriteSerialized: true})

	blocker, err := l.Acquire(context.Background(), "u1", true, "acct1")
	require.NoError(t, err)

	// u2 gets the second global slot but times out on the account lock;
	// that global slot must come back.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "u2", true, "acct1")
	require.Error(t, err)

	// With one slot still held by u1, a leaked slot would leave none.
	read, err := l.Acquire(context.Background(), "u3", false, "")
	require.NoError(t, err)
	read.Release()

	blocker.Release()
	last, err := l.Acquire(context.Background(), "u4", true, "acct1")
	require.NoError(t, err)
	last.Release()
}
