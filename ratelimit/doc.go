// Package ratelimit implements token-bucket rate limiting: per-stream
// and per-group bandwidth caps with periodic linear refill, a burst
// ceiling, and manual decrement/refill APIs.
package ratelimit
