package chain

import (
	"math"
	"time"
)

// TTLStrategy determines TTL for each layer in the chain.
type TTLStrategy interface {
	// GetTTL returns the TTL for a specific layer index
	GetTTL(layerIndex int, baseTTL time.Duration) time.Duration
}

// UniformTTLStrategy uses the same TTL for all layers.
type UniformTTLStrategy struct{}

// GetTTL returns the base TTL for all layers.
func (s *UniformTTLStrategy) GetTTL(layerIndex int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTLStrategy shortens the TTL of the faster layers. The last layer
// keeps baseTTL and each layer above it gets DecayFactor times the TTL of
// the one below.
type DecayingTTLStrategy struct {
	// DecayFactor must be in (0, 1); other values disable the decay.
	DecayFactor float64

	// Layers is the chain length. NewWithConfig fills it in when zero.
	Layers int
}

// GetTTL returns baseTTL * DecayFactor^(Layers-1-layerIndex). With three
// layers and a factor of 0.5 that is 0.25, 0.5 and 1 times baseTTL.
func (s *DecayingTTLStrategy) GetTTL(layerIndex int, baseTTL time.Duration) time.Duration {
	if s.DecayFactor <= 0 || s.DecayFactor >= 1 || layerIndex < 0 || layerIndex >= s.Layers {
		return baseTTL
	}

	exponent := float64(s.Layers - 1 - layerIndex)
	return time.Duration(float64(baseTTL) * math.Pow(s.DecayFactor, exponent))
}

// CustomTTLStrategy uses explicit TTL values for each layer.
type CustomTTLStrategy struct {
	TTLs []time.Duration
}

// GetTTL returns the custom TTL for a layer, or baseTTL if not specified.
func (s *CustomTTLStrategy) GetTTL(layerIndex int, baseTTL time.Duration) time.Duration {
	if layerIndex < len(s.TTLs) {
		return s.TTLs[layerIndex]
	}
	return baseTTL
}
