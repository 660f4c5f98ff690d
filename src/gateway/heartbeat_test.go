package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirstDelayIsWithinInterval(t *testing.T) {
	interval := 41250 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := firstDelay(interval)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, interval)
	}
}

func TestHeartbeatMonitorBeatsRepeatedly(t *testing.T) {
	var beats atomic.Int64
	m := NewHeartbeatMonitor(10*time.Millisecond, func(context.Context) error {
		beats.Add(1)
		return nil
	}, slog.Default())

	m.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	m.Stop()
	assert.Greater(t, beats.Load(), int64(2))
}

func TestHeartbeatMonitorStopJoins(t *testing.T) {
	var beats atomic.Int64
	m := NewHeartbeatMonitor(5*time.Millisecond, func(context.Context) error {
		beats.Add(1)
		return nil
	}, slog.Default())

	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	// After Stop returns the task is gone: the count must not move.
	after := beats.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, beats.Load())

	// Stop is safe to call again.
	m.Stop()
}

func TestHeartbeatMonitorStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewHeartbeatMonitor(5*time.Millisecond, func(context.Context) error {
		return nil
	}, slog.Default())
	m.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after context cancel")
	}
}

func TestHeartbeatMonitorTracksAcks(t *testing.T) {
	m := NewHeartbeatMonitor(time.Minute, func(context.Context) error { return nil }, slog.Default())
	assert.True(t, m.LastAck().IsZero())

	m.RecordAck()
	assert.WithinDuration(t, time.Now(), m.LastAck(), time.Second)
}
