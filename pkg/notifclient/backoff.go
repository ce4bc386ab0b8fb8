package notifclient

import "time"

const (
	backoffBase     = 1000 * time.Millisecond
	backoffMaxShift = 5
	backoffCap      = 30 * time.Second
	jitterRange     = 1000 * time.Millisecond

	// MaxReconnectAttempts is the number of consecutive failed connections after which
	// the controller stops retrying and shows a persistent error.
	MaxReconnectAttempts = 15
)

// Backoff returns the delay before reconnection attempt n (0-indexed).
// jitter is clamped to [0, 1s).
func Backoff(attempt int, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	shift := attempt
	if shift > backoffMaxShift {
		shift = backoffMaxShift
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter >= jitterRange {
		jitter = jitterRange - 1
	}

	delay := backoffBase*time.Duration(1<<shift) + jitter
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}
