// Exposes a limiter decision to HTTP clients.

package ratelimit

import (
	"net/http"
	"strconv"
)

// SetHeaders records the decision in h. X-RateLimit-* are always set so
// clients can pace themselves; Retry-After only when the request is refused.
//
// Call it before the response status is written.
func (r Result) SetHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(r.ResetAt.Unix(), 10))
	if !r.Allowed {
		h.Set("Retry-After", strconv.Itoa(r.RetrySeconds()))
	}
}

// RetrySeconds is RetryAfter in whole seconds.
func (r Result) RetrySeconds() int {
	return int(r.RetryAfter.Seconds())
}
