package gateway

import (
	"time"

	"golang.org/x/time/rate"
)

// Discord allows 120 gateway commands per 60 seconds. A few slots are held
// back so heartbeats, which bypass the limiter, always have room.
const (
	commandsPerMinute = 120
	heartbeatReserve  = 5
)

func newCommandLimiter() *rate.Limiter {
	allowed := commandsPerMinute - heartbeatReserve
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(allowed)), allowed)
}

// newIdentifyLimiter throttles IDENTIFY to one attempt per five seconds.
func newIdentifyLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(5*time.Second), 1)
}
