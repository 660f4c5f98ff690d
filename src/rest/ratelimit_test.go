package rest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualLockStartsOpen(t *testing.T) {
	l := newManualLock()
	assert.False(t, l.Locked())
	require.NoError(t, l.Acquire(context.Background()))
}

func TestManualLockForBlocksUntilExpiry(t *testing.T) {
	l := newManualLock()
	l.LockFor(30 * time.Millisecond)
	assert.True(t, l.Locked())

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.False(t, l.Locked())
}

func TestManualLockForIsIdempotent(t *testing.T) {
	l := newManualLock()
	l.LockFor(30 * time.Millisecond)
	until := l.LockedUntil()
	l.LockFor(time.Hour)
	assert.Equal(t, until, l.LockedUntil())
}

func TestManualLockReleaseDuringExpiry(t *testing.T) {
	// release racing the unlock timer must not double-close the gate.
	for i := 0; i < 20000; i++ {
		l := newManualLock()
		l.LockFor(5 * time.Microsecond)
		done := make(chan struct{})
		go func() {
			l.release()
			close(done)
		}()
		<-done
		require.NoError(t, l.Acquire(context.Background()))
	}
}

func TestManualLockAcquireHonorsContext(t *testing.T) {
	l := newManualLock()
	l.LockFor(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func rateLimitHeaders(remaining string, resetAfter string) http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "5")
	if remaining != "" {
		h.Set("X-RateLimit-Remaining", remaining)
	}
	if resetAfter != "" {
		h.Set("X-RateLimit-Reset-After", resetAfter)
	}
	return h
}

func TestBucketAcquireLocksWhenDepleted(t *testing.T) {
	b := newBucket("GET:/channels/{channel_id}:c//", "")
	b.UpdateInfo(http.StatusOK, rateLimitHeaders("0", "0.05"))

	start := time.Now()
	require.NoError(t, b.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestBucketAcquireWithHeadroomDoesNotBlock(t *testing.T) {
	b := newBucket("GET:/channels/{channel_id}:c//", "")
	b.UpdateInfo(http.StatusOK, rateLimitHeaders("3", "0.05"))

	start := time.Now()
	require.NoError(t, b.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestBucketRemainingOnlyTightens(t *testing.T) {
	b := newBucket("GET:/channels/{channel_id}:c//", "")

	b.UpdateInfo(http.StatusOK, rateLimitHeaders("3", "1"))
	assert.Equal(t, 3, b.Remaining())

	// A late response with stale headroom must not reopen quota.
	b.UpdateInfo(http.StatusOK, rateLimitHeaders("5", "1"))
	assert.Equal(t, 3, b.Remaining())

	b.UpdateInfo(http.StatusOK, rateLimitHeaders("1", "1"))
	assert.Equal(t, 1, b.Remaining())

	b.UpdateInfo(http.StatusTooManyRequests, rateLimitHeaders("4", "1"))
	assert.Equal(t, 0, b.Remaining())
}

func TestBucketMissingRemainingHeaderKeepsHeadroom(t *testing.T) {
	b := newBucket("GET:/users/@me:///", "")
	b.UpdateInfo(http.StatusOK, http.Header{})
	assert.Equal(t, 1, b.Remaining())
}

func TestBucketRecordsHash(t *testing.T) {
	b := newBucket("GET:/channels/{channel_id}:c//", "")
	h := rateLimitHeaders("3", "1")
	h.Set("X-RateLimit-Bucket", "abcd1234")
	b.UpdateInfo(http.StatusOK, h)
	assert.Equal(t, "abcd1234", b.Hash())
}

func TestMigrateCarriesLockState(t *testing.T) {
	rl := NewRateLimiter(nil)
	old := rl.GetBucket("GET:/channels/{channel_id}:c1//", "")
	old.LockFor(50 * time.Millisecond)

	migrated := rl.Migrate(old, "GET:/channels/{channel_id}:c1//", "hash1")
	require.NotSame(t, old, migrated)
	assert.True(t, migrated.Locked())

	// Second migration lands on the same bucket instance.
	again := rl.Migrate(old, "GET:/channels/{channel_id}:c1//", "hash1")
	assert.Same(t, migrated, again)
}

func TestMigrateConvergesRoutesOnSharedHash(t *testing.T) {
	rl := NewRateLimiter(nil)
	a := rl.GetBucket("DELETE:/channels/{channel_id}/messages/{message_id}:c1//", "")
	b := rl.GetBucket("DELETE:/channels/{channel_id}/messages/{message_id}:c1//", "shared")
	migrated := rl.Migrate(a, "DELETE:/channels/{channel_id}/messages/{message_id}:c1//", "shared")
	assert.Same(t, b, migrated)
}

func TestGlobalLockStallsAcquire(t *testing.T) {
	rl := NewRateLimiter(nil)
	rl.LockGlobal(30 * time.Millisecond)
	assert.True(t, rl.GlobalLocked())

	start := time.Now()
	require.NoError(t, rl.AcquireGlobal(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.False(t, rl.GlobalLocked())
}

func TestCloseReleasesEveryWaiter(t *testing.T) {
	rl := NewRateLimiter(nil)
	b := rl.GetBucket("GET:/channels/{channel_id}:c1//", "")
	b.LockFor(time.Hour)
	rl.LockGlobal(time.Hour)

	done := make(chan error, 2)
	go func() { done <- rl.AcquireGlobal(context.Background()) }()
	go func() { done <- b.Acquire(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	rl.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiter still parked after Close")
		}
	}
}
