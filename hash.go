package cuckoofilter

import (
	"encoding/binary"

	"github.com/dgryski/go-metro"
)

// Hasher is the pluggable hash primitive the filter core consumes. Hash
// must write exactly len(out) bytes of a deterministic digest of in into
// out. Implementations must be pure functions of (len(out), in): the
// filter calls Hash repeatedly for the same value across its lifetime
// (once at insertion, again at every later lookup) and relies on getting
// the same bytes back every time.
type Hasher interface {
	Hash(out, in []byte)
}

// metroHasher is the default production Hasher, built on
// github.com/dgryski/go-metro. A single metro.Hash64 call only yields 8
// bytes; metroHasher expands that to an arbitrary-length digest by
// rehashing in with an incrementing block seed across successive 8-byte
// blocks, with the starting seed mixed from the length of the request.
// Two calls with the same input but different requested lengths therefore
// diverge, while two calls with the same (length, input) always agree,
// which Contains depends on to rederive the same bytes it stored at
// insertion time.
type metroHasher struct {
	seed uint64
}

// newMetroHasher returns a metroHasher seeded for reproducibility. A
// zero seed is valid and common for tests.
func newMetroHasher(seed uint64) *metroHasher {
	return &metroHasher{seed: seed}
}

func (h *metroHasher) Hash(out, in []byte) {
	blockSeed := h.seed ^ (uint64(len(out)) * 0x9E3779B97F4A7C15)
	var block [8]byte
	for off := 0; off < len(out); off += 8 {
		v := metro.Hash64(in, blockSeed)
		binary.BigEndian.PutUint64(block[:], v)
		copy(out[off:], block[:])
		blockSeed++
	}
}

// shortDigest returns a 4-byte digest of data as a uint32, used by
// Filter.Hash to fold the bucket bytes into a cheap hash code.
func shortDigest(data []byte) uint32 {
	return uint32(metro.Hash64(data, 0))
}

// MappedHasher is a deterministic test double that looks up the digest
// for an input in a fixed table. The looked-up value is truncated or
// zero-padded to the requested output length. Hashing an input with no
// entry panics, since scripted tests that use MappedHasher name every
// input they exercise up front; a silent fallback would mask a typo in
// the test's mapping table rather than the filter under test.
type MappedHasher struct {
	table map[string][]byte
}

// NewMappedHasher builds a MappedHasher from a table of input -> digest.
// Both keys and values are treated as raw bytes (callers in this package's
// tests pass ASCII strings for readability).
func NewMappedHasher(table map[string][]byte) *MappedHasher {
	m := make(map[string][]byte, len(table))
	for k, v := range table {
		m[k] = v
	}
	return &MappedHasher{table: m}
}

func (h *MappedHasher) Hash(out, in []byte) {
	v, ok := h.table[string(in)]
	if !ok {
		panic("cuckoofilter: MappedHasher has no entry for " + string(in))
	}
	for i := range out {
		if i < len(v) {
			out[i] = v[i]
		} else {
			out[i] = 0
		}
	}
}

// PrefixHasher is a trivial deterministic test double that fills out by
// repeating the input bytes. Useful for byte-primitive-level tests that
// don't care about realistic hash distribution, only determinism.
type PrefixHasher struct{}

func (PrefixHasher) Hash(out, in []byte) {
	if len(in) == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}
	for i := range out {
		out[i] = in[i%len(in)]
	}
}
