package cuckoofilter

import "errors"

// Sentinel errors covering argument errors at construction and the
// "filter full" signal from Insert. Remove/Contains never fail, so they
// have no sentinels of their own.
var (
	// ErrNotPowerOfTwo is returned by New/FromBytes when the requested
	// bucket count is not a power of two. Required so that the XOR-based
	// alternate-index derivation stays an involution.
	ErrNotPowerOfTwo = errors.New("cuckoofilter: bucket count must be a power of two")

	// ErrBadLength is returned by FromBytes when the supplied byte slice's
	// length isn't a multiple of slotsPerBucket*fingerprintBytes.
	ErrBadLength = errors.New("cuckoofilter: byte length is not a multiple of slots-per-bucket * fingerprint-bytes")

	// ErrInvalidParams is returned when a non-positive S, F, or K is
	// supplied to a constructor.
	ErrInvalidParams = errors.New("cuckoofilter: slots-per-bucket, fingerprint-bytes, and max-kicks must all be positive")

	// ErrFull is returned by Insert when try_insert exhausts its kick
	// budget without finding a home for the evicted fingerprint.
	ErrFull = errors.New("cuckoofilter: filter is full")
)
