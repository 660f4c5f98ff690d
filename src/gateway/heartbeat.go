package gateway

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// HeartbeatMonitor keeps the connection alive by sending a heartbeat every
// interval. The first beat fires after a random fraction of the interval so
// a fleet of reconnecting clients does not beat in lockstep; every beat
// after that uses the full interval.
//
// The monitor only records acks. Deciding that the connection is zombied
// from those timestamps is the controller's job.
type HeartbeatMonitor struct {
	interval time.Duration
	beat     func(ctx context.Context) error
	log      *slog.Logger

	lastAck  atomic.Int64 // unix nanoseconds, 0 until the first ack
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewHeartbeatMonitor(interval time.Duration, beat func(ctx context.Context) error, log *slog.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		interval: interval,
		beat:     beat,
		log:      log,
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// firstDelay returns the jittered delay before the first heartbeat,
// uniform in [0, interval).
func firstDelay(interval time.Duration) time.Duration {
	return time.Duration(rand.Float64() * float64(interval))
}

func (m *HeartbeatMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *HeartbeatMonitor) run(ctx context.Context) {
	defer close(m.done)
	timer := time.NewTimer(firstDelay(m.interval))
	defer timer.Stop()
	for {
		select {
		case <-m.stopped:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := m.beat(ctx); err != nil {
				m.log.Error("gateway heartbeat failed", "error", err)
				return
			}
			m.log.Debug("gateway heartbeat sent")
			timer.Reset(m.interval)
		}
	}
}

// Stop cancels the heartbeat task and waits for it to finish. After Stop
// returns it is guaranteed no further beat will be written, so the caller
// may safely close the socket.
func (m *HeartbeatMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})
	<-m.done
}

// RecordAck notes that a HEARTBEAT_ACK arrived.
func (m *HeartbeatMonitor) RecordAck() {
	m.lastAck.Store(time.Now().UnixNano())
}

// LastAck returns the time of the most recent ack, or the zero time if no
// ack has been seen yet.
func (m *HeartbeatMonitor) LastAck() time.Time {
	ns := m.lastAck.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
