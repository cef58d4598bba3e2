package resilience

import "errors"

// Errors returned by guarded calls instead of the underlying failure.
var (
	// ErrCircuitOpen is returned when the breaker rejects the call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when the call exceeded the configured timeout.
	ErrTimeout = errors.New("resilience: operation timeout")
)

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeout reports whether err is a guard timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable reports whether err means the guarded dependency should be
// considered down for now.
func IsUnavailable(err error) bool {
	return IsCircuitOpen(err) || IsTimeout(err)
}
