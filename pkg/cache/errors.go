package cache

import (
	"context"
	"errors"
)

// Errors returned by view cache layers.
var (
	// ErrKeyNotFound is a miss: the layer holds no view for the key.
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrInvalidKey is returned for keys that do not name an account.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrInvalidValue is returned when a stored view cannot be decoded.
	ErrInvalidValue = errors.New("cache: invalid value")

	// ErrLayerUnavailable is returned when a layer backend cannot be reached.
	ErrLayerUnavailable = errors.New("cache: layer unavailable")
)

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// ClassifyError returns a label for err suitable for logs. Errors that wrap
// none of the package sentinels are reported as "backend".
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrKeyNotFound):
		return "miss"
	case errors.Is(err, ErrLayerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	default:
		return "backend"
	}
}
