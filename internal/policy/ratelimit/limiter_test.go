package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterPacesSameHost(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second request waits roughly 100ms.
	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://web.archive.org/save/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://web.archive.org/save/b"))
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterBucketsPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://web.archive.org/save/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://archive.org/wayback/available?url=a"))
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("second host blocked unexpectedly")
	}
}

func TestLimiterDisabledWhenRateNotPositive(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://web.archive.org/save/x"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://web.archive.org/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "https://web.archive.org/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit wait")
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "web.archive.org", hostOf("https://web.archive.org/save/example.com"))
	require.Equal(t, "unknown", hostOf("not a url"))
	require.Equal(t, "unknown", hostOf("://bad"))
}
