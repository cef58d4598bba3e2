// Package bloom remembers which external account numbers were registered.
package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a thread-safe bloom filter of external account numbers. It
// implements ledger.NumberFilter: MayContain never returns false for a
// number passed to Add.
type Filter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter

	expectedItems     uint
	falsePositiveRate float64

	queries  uint64
	rejected uint64
	added    uint64
}

// New creates a filter sized for expectedItems numbers at the given false
// positive rate. Zero or out of range values fall back to 10000 and 1%.
func New(expectedItems uint, falsePositiveRate float64) *Filter {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &Filter{
		filter:            bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
	}
}

// MayContain reports whether number may have been added.
func (f *Filter) MayContain(number string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++
	if !f.filter.TestString(number) {
		f.rejected++
		return false
	}
	return true
}

// Add records number.
func (f *Filter) Add(number string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filter.AddString(number)
	f.added++
}

// Reset forgets every number and clears the counters.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filter = bloom.NewWithEstimates(f.expectedItems, f.falsePositiveRate)
	f.queries = 0
	f.rejected = 0
	f.added = 0
}

// Stats returns statistics about the filter.
func (f *Filter) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rejectionRate := 0.0
	if f.queries > 0 {
		rejectionRate = float64(f.rejected) / float64(f.queries)
	}

	return Stats{
		Queries:          f.queries,
		Rejected:         f.rejected,
		Added:            f.added,
		RejectionRate:    rejectionRate,
		EstimatedNumbers: uint(f.filter.ApproximatedSize()),
		Capacity:         f.filter.Cap(),
		HashFunctions:    f.filter.K(),
	}
}

// Stats holds statistics about filter usage.
type Stats struct {
	Queries  uint64 `json:"queries"`
	Rejected uint64 `json:"rejected"`
	Added    uint64 `json:"added"`

	// RejectionRate is the share of queries answered without a store lookup.
	RejectionRate float64 `json:"rejection_rate"`

	EstimatedNumbers uint `json:"estimated_numbers"`
	Capacity         uint `json:"capacity_bits"`
	HashFunctions    uint `json:"hash_functions"`
}
