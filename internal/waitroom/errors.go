// Package waitroom implements the virtual waiting room: score-ordered
// enqueue, slot-bounded admission, TTL-bearing access grants, and the
// periodic jobs that keep queue, active-session set and active counter
// consistent across service instances.
package waitroom

import "errors"

// ErrTooManyRequests is returned when the per-millisecond admission score
// sequence overflows.  It is transient; callers should retry with backoff.
// Handlers translate it into an HTTP 429 response.
var ErrTooManyRequests = errors.New("too many requests")

// ErrSessionExpired is returned when an access grant is missing or its
// session has passed the absolute ceiling.  The client must re-enter the
// queue.  Handlers translate it into an HTTP 410 response.
var ErrSessionExpired = errors.New("session expired")

// ErrInvalidAccessKey is returned when a presented access key does not
// match the stored grant.  Handlers translate it into an HTTP 401 response.
var ErrInvalidAccessKey = errors.New("invalid access key")
