package notifier

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	PerMinute int  // Notifications per minute per channel (default: 20)
	Burst     int  // Burst size (default: PerMinute)
	Enabled   bool // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 20,
		Burst:     20,
		Enabled:   true,
	}
}

// RateLimiter is a per-channel token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	enabled  bool
	channels map[string]*rate.Limiter
	dropped  map[string]int64
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = 20
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}

	return &RateLimiter{
		limit:    rate.Limit(float64(config.PerMinute) / 60),
		burst:    config.Burst,
		enabled:  config.Enabled,
		channels: make(map[string]*rate.Limiter),
		dropped:  make(map[string]int64),
	}
}

// Allow reports whether one more notification may go to channel now.
func (r *RateLimiter) Allow(channel string) bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.channels[channel]
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.channels[channel] = lim
	}
	if !lim.Allow() {
		r.dropped[channel]++
		return false
	}
	return true
}

// Dropped returns the number of notifications throttled on channel.
func (r *RateLimiter) Dropped(channel string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[channel]
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped   map[string]int64
	PerMinute float64
	Burst     int
	Enabled   bool
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := make(map[string]int64, len(r.dropped))
	for ch, n := range r.dropped {
		dropped[ch] = n
	}
	return RateLimitStats{
		Dropped:   dropped,
		PerMinute: float64(r.limit) * 60,
		Burst:     r.burst,
		Enabled:   r.enabled,
	}
}

// Reset clears all buckets and counters.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = make(map[string]*rate.Limiter)
	r.dropped = make(map[string]int64)
}
