package session

import (
	"context"
	"time"
)

// DefaultHeartbeatInterval is the default interval between stage refreshes.
const DefaultHeartbeatInterval = 5 * time.Second

// StartHeartbeat launches a goroutine that calls beat on every tick until
// ctx is cancelled.
func StartHeartbeat(ctx context.Context, interval time.Duration, beat func(now time.Time)) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				beat(now)
			}
		}
	}()
}
