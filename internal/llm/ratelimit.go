package llm

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows requestsPerMinute calls with a burst of one minute's worth.
func newRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
}
