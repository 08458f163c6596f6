package pool

import "time"

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// backoffDelay returns the capped exponential cooldown applied to a
// credential slot after its n-th consecutive failure.
// Logic: baseDelay * 2^(failures-1), capped at maxDelay.
func backoffDelay(failures int) time.Duration {
	if failures <= 1 {
		return baseDelay
	}
	// 2^30 seconds already dwarfs maxDelay; avoid shift overflow.
	if failures-1 > 30 {
		return maxDelay
	}
	delay := baseDelay * time.Duration(1<<(failures-1))
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
