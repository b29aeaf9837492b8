package backoff

import (
	"math"
	"math/rand"
	"time"
)

type Policy string

const (
	Fixed          Policy = "fixed"
	Linear         Policy = "linear"
	Exponential    Policy = "exponential"
	ExpEqualJitter Policy = "exp_equal_jitter"
	ExpFullJitter  Policy = "exp_full_jitter"
)

// Delay returns how long to wait before retry number attempt (0-based).
// Unknown policies behave like ExpFullJitter.
func Delay(policy Policy, base, maxDelay time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	switch policy {
	case Fixed:
		return min(base, maxDelay)
	case Linear:
		return min(base*time.Duration(max(1, attempt)), maxDelay)
	case Exponential:
		return exp(base, maxDelay, attempt)
	case ExpEqualJitter:
		d := exp(base, maxDelay, attempt)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	default:
		d := exp(base, maxDelay, attempt)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}

func exp(base, maxDelay time.Duration, attempt int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempt))
	if f >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(f)
}
