package cuckoofilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeForInvariants(t *testing.T) {
	for _, capacity := range []uint64{1, 2, 100, 1000, 10000, 100000} {
		for _, eps := range []float64{0.1, 0.03, 0.01, 0.001} {
			bucketCount, slotsPerBucket, fingerprintBytes, maxKicks := sizeFor(capacity, eps)

			assert.True(t, isPow2(bucketCount), "bucketCount=%d must be a power of two (capacity=%d eps=%v)", bucketCount, capacity, eps)
			assert.Equal(t, defaultSlotsPerBucket, slotsPerBucket)
			assert.GreaterOrEqual(t, fingerprintBytes, 1)
			assert.Equal(t, int(bucketCount), maxKicks)

			loadFactor := float64(capacity) / (float64(bucketCount) * float64(slotsPerBucket))
			assert.LessOrEqual(t, loadFactor, 1.0, "sizing should never pack a filter beyond 100%% load")
		}
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{
		0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1023: 1024, 1024: 1024, 1025: 2048,
	}
	for in, want := range cases {
		assert.Equal(t, want, nextPow2(in), "nextPow2(%d)", in)
	}
}

func TestIsPow2(t *testing.T) {
	for _, n := range []uint64{1, 2, 4, 8, 1024} {
		assert.True(t, isPow2(n), "%d should be a power of two", n)
	}
	for _, n := range []uint64{0, 3, 5, 6, 1000} {
		assert.False(t, isPow2(n), "%d should not be a power of two", n)
	}
}
