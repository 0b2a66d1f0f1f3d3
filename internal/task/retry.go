package task

import (
	"math"
	"time"

	"github.com/phrazzld/golem-api/internal/domain"
)

// knownCodes lists every error code a handler may attach to an Error.
// Anything outside this set is recorded as UNKNOWN.
var knownCodes = map[string]bool{
	domain.ErrorCodeTimeout:          true,
	domain.ErrorCodeNetwork:          true,
	domain.ErrorCodeRateLimited:      true,
	domain.ErrorCodeElementNotFound:  true,
	domain.ErrorCodeAuthFailed:       true,
	domain.ErrorCodeInvalidInput:     true,
	domain.ErrorCodeTargetNotFound:   true,
	domain.ErrorCodePermissionDenied: true,
	domain.ErrorCodeUnknown:          true,
}

// retryableCodes lists the transient failure codes worth another
// attempt. Everything else, UNKNOWN included, is terminal on first
// occurrence.
var retryableCodes = map[string]bool{
	domain.ErrorCodeTimeout:         true,
	domain.ErrorCodeNetwork:         true,
	domain.ErrorCodeRateLimited:     true,
	domain.ErrorCodeElementNotFound: true,
}

// IsRetryable reports whether a failure with the given code may be
// retried. Unclassified codes are not: a fault that cannot be named
// cannot be assumed transient.
func IsRetryable(code string) bool {
	return retryableCodes[code]
}

// RetryDelay returns the backoff before the given retry (1-based): the
// base delay doubled once per prior retry, capped at max. The schedule
// is deterministic; a 5s base yields 5s, 10s, then 20s.
func RetryDelay(base time.Duration, retry int, max time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(retry-1)))
	if max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}
