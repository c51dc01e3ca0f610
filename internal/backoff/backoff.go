package backoff

import (
	"math"
	"time"
)

// Kind selects a delay schedule.
type Kind int

const (
	Network Kind = iota
	HTTP
	RateLimit
)

// String returns the schedule name.
func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case HTTP:
		return "http"
	case RateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// Schedule parameters.
const (
	NetworkBase = 250 * time.Millisecond
	NetworkMax  = 16 * time.Second

	HTTPBase = 5 * time.Second
	HTTPMax  = 320 * time.Second

	RateLimitBase = 60 * time.Second
)

// Delay returns the wait before the given attempt (1-based) under schedule k.
// Attempts below 1 are treated as 1.
func Delay(k Kind, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	switch k {
	case Network:
		if attempts >= int(NetworkMax/NetworkBase) {
			return NetworkMax
		}
		return NetworkBase * time.Duration(attempts)
	case HTTP:
		return capped(exponential(HTTPBase, attempts), HTTPMax)
	case RateLimit:
		return exponential(RateLimitBase, attempts)
	default:
		return 0
	}
}

// exponential computes base * 2^(attempts-1), saturating at the largest Duration.
func exponential(base time.Duration, attempts int) time.Duration {
	shift := attempts - 1
	if shift >= 63 || base > time.Duration(math.MaxInt64>>uint(shift)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(shift)
}

func capped(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}

// Strategy tracks attempts within one failure episode.
// Not safe for concurrent use; the connection manager owns it.
type Strategy struct {
	kind     Kind
	attempts int
}

// New creates a Strategy with zero attempts.
func New(kind Kind) *Strategy {
	return &Strategy{kind: kind}
}

// NewNetwork creates a linear network Strategy.
func NewNetwork() *Strategy { return New(Network) }

// NewHTTP creates an exponential HTTP Strategy.
func NewHTTP() *Strategy { return New(HTTP) }

// NewRateLimit creates an uncapped exponential Strategy for HTTP 420.
func NewRateLimit() *Strategy { return New(RateLimit) }

// NextDelay increments the attempt counter and returns the delay for that attempt.
func (s *Strategy) NextDelay() time.Duration {
	s.attempts++
	return Delay(s.kind, s.attempts)
}

// Attempts returns how many delays have been computed.
func (s *Strategy) Attempts() int {
	return s.attempts
}

// Kind returns the schedule of this Strategy.
func (s *Strategy) Kind() Kind {
	return s.kind
}
