package cuckoofilter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// maxStackFP bounds the fingerprint length, and sizes the fixed-size
// per-call scratch arrays that Contains/TryInsert/Remove declare. Those
// arrays are passed to the Hasher interface, so the compiler moves them to
// the heap and each call allocates them. Realistic false-positive targets
// need only single-digit fingerprint bytes even at very low error rates,
// so this is generous headroom, not a tight fit.
const maxStackFP = 64

// Filter is a cuckoo filter: an approximate-membership set supporting
// Contains, TryInsert, and Remove, with no false negatives. It is a
// single-owner, in-process object. Contains may run concurrently with
// other Contains calls; TryInsert, Insert, and Remove all mutate the
// table and must not overlap any other call.
type Filter struct {
	bucketCount      uint64
	slotsPerBucket   int
	fingerprintBytes int
	maxKicks         int

	store bucketStore
	buf   []byte // store.Bytes(), cached so the hot path never calls an interface method

	// fpHasher and idxHasher derive fingerprints and bucket indices
	// respectively. They are domain-separated so that a value's
	// fingerprint and its primary-index digest never coincide, even when
	// fingerprintBytes equals the 4-byte index width: a custom Hasher
	// supplied via WithHasher is used for both roles unchanged, since a
	// caller providing their own hash primitive owns that guarantee.
	fpHasher  Hasher
	idxHasher Hasher
	rng       *rand.Rand

	count uint64
}

// config collects the optional construction parameters shared by New,
// NewSized, FromBytes, and NewMMap.
type config struct {
	maxKicks int
	hasher   Hasher
	seed     int64
	haveSeed bool
	rng      *rand.Rand
}

// Option configures a Filter at construction time.
type Option func(*config)

// WithMaxKicks overrides the default max-kicks budget (the default is
// K = B). Mostly useful for tests that want to observe "filter full"
// sooner than a full-width kick budget would allow.
func WithMaxKicks(k int) Option {
	return func(c *config) { c.maxKicks = k }
}

// WithHasher overrides the default production Hasher. Test code supplies
// MappedHasher or PrefixHasher here to drive the filter with a fully
// scripted, deterministic hash.
func WithHasher(h Hasher) Option {
	return func(c *config) { c.hasher = h }
}

// WithSeed seeds both the default Hasher (when no explicit Hasher is
// supplied) and the filter's RNG, for reproducible runs. Without it, the
// RNG is seeded from the current time and the default Hasher uses a fixed
// seed of 0.
func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed; c.haveSeed = true }
}

// WithRand overrides the filter's RNG entirely, bypassing WithSeed. Tests
// that need to pin down exactly which of a value's two candidate buckets
// the kick loop starts from use this to supply a fully scripted
// math/rand.Source instead of relying on a seed producing a particular
// sequence under whatever math/rand algorithm the runtime ships.
func WithRand(rng *rand.Rand) Option {
	return func(c *config) { c.rng = rng }
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// New constructs a filter with explicit parameters. bucketCount must be a
// power of two, which the XOR alternate-index derivation depends on to be
// its own inverse; slotsPerBucket and fingerprintBytes must be positive.
func New(bucketCount uint64, slotsPerBucket, fingerprintBytes int, opts ...Option) (*Filter, error) {
	if !isPow2(bucketCount) {
		return nil, ErrNotPowerOfTwo
	}
	if slotsPerBucket <= 0 || fingerprintBytes <= 0 {
		return nil, ErrInvalidParams
	}
	if fingerprintBytes > maxStackFP {
		return nil, errors.Wrapf(ErrInvalidParams, "fingerprint-bytes %d exceeds supported maximum %d", fingerprintBytes, maxStackFP)
	}

	cfg := newConfig(opts)
	if cfg.maxKicks <= 0 {
		cfg.maxKicks = int(bucketCount)
	}

	size := int(bucketCount) * slotsPerBucket * fingerprintBytes
	store := newMemStore(size)
	return newFilter(store, bucketCount, slotsPerBucket, fingerprintBytes, cfg)
}

// NewSized constructs a filter sized for capacity items at a target false
// positive rate fpRate.
func NewSized(capacity uint64, fpRate float64, opts ...Option) (*Filter, error) {
	if capacity == 0 || fpRate <= 0 {
		return nil, ErrInvalidParams
	}
	bucketCount, slotsPerBucket, fingerprintBytes, maxKicks := sizeFor(capacity, fpRate)
	allOpts := append([]Option{WithMaxKicks(maxKicks)}, opts...)
	return New(bucketCount, slotsPerBucket, fingerprintBytes, allOpts...)
}

// FromBytes reconstructs a filter from a raw bucket-bytes image: no
// header, just B*S*F bytes. Use the persist package if you need the
// header-plus-gzip wire format instead.
func FromBytes(bucketBytes []byte, slotsPerBucket, fingerprintBytes, maxKicks int, opts ...Option) (*Filter, error) {
	if slotsPerBucket <= 0 || fingerprintBytes <= 0 || maxKicks <= 0 {
		return nil, ErrInvalidParams
	}
	if fingerprintBytes > maxStackFP {
		return nil, errors.Wrapf(ErrInvalidParams, "fingerprint-bytes %d exceeds supported maximum %d", fingerprintBytes, maxStackFP)
	}

	width := slotsPerBucket * fingerprintBytes
	if width == 0 || len(bucketBytes)%width != 0 {
		return nil, ErrBadLength
	}
	bucketCount := uint64(len(bucketBytes) / width)
	if !isPow2(bucketCount) {
		return nil, ErrNotPowerOfTwo
	}

	cfg := newConfig(opts)
	cfg.maxKicks = maxKicks
	store := newMemStoreFrom(bucketBytes)
	return newFilter(store, bucketCount, slotsPerBucket, fingerprintBytes, cfg)
}

// NewMMap constructs a filter whose bucket bytes are backed by a
// memory-mapped file instead of a heap slice. Reopening an existing file
// created this way recovers its contents; a new or short file is
// zero-extended to the required size.
func NewMMap(filename string, bucketCount uint64, slotsPerBucket, fingerprintBytes int, opts ...Option) (*Filter, error) {
	if !isPow2(bucketCount) {
		return nil, ErrNotPowerOfTwo
	}
	if slotsPerBucket <= 0 || fingerprintBytes <= 0 {
		return nil, ErrInvalidParams
	}
	if fingerprintBytes > maxStackFP {
		return nil, errors.Wrapf(ErrInvalidParams, "fingerprint-bytes %d exceeds supported maximum %d", fingerprintBytes, maxStackFP)
	}

	cfg := newConfig(opts)
	if cfg.maxKicks <= 0 {
		cfg.maxKicks = int(bucketCount)
	}

	size := int(bucketCount) * slotsPerBucket * fingerprintBytes
	store, err := openMMapStore(filename, size)
	if err != nil {
		return nil, err
	}
	f, err := newFilter(store, bucketCount, slotsPerBucket, fingerprintBytes, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return f, nil
}

// indexDomainSalt separates the default hasher's index-derivation seed
// from its fingerprint-derivation seed, so the two never produce the same
// digest for the same input regardless of fingerprintBytes. An arbitrary
// odd 64-bit constant is enough; metro.Hash64 does the actual mixing.
const indexDomainSalt = 0x9ddfea08eb382d69

func newFilter(store bucketStore, bucketCount uint64, slotsPerBucket, fingerprintBytes int, cfg *config) (*Filter, error) {
	fpHasher := cfg.hasher
	idxHasher := cfg.hasher
	if fpHasher == nil {
		fpHasher = newMetroHasher(uint64(cfg.seed))
		idxHasher = newMetroHasher(uint64(cfg.seed) ^ indexDomainSalt)
	}

	rng := cfg.rng
	if rng == nil {
		var src rand.Source
		if cfg.haveSeed {
			src = rand.NewSource(cfg.seed)
		} else {
			src = rand.NewSource(time.Now().UnixNano())
		}
		rng = rand.New(src)
	}

	buf := store.Bytes()
	f := &Filter{
		bucketCount:      bucketCount,
		slotsPerBucket:   slotsPerBucket,
		fingerprintBytes: fingerprintBytes,
		maxKicks:         cfg.maxKicks,
		store:            store,
		buf:              buf,
		fpHasher:         fpHasher,
		idxHasher:        idxHasher,
		rng:              rng,
	}
	f.count = countOccupied(buf, fingerprintBytes)
	return f, nil
}

func countOccupied(buf []byte, fpBytes int) uint64 {
	var n uint64
	for off := 0; off < len(buf); off += fpBytes {
		if !isZero(buf, off, fpBytes) {
			n++
		}
	}
	return n
}

// fingerprint derives v's fingerprint into out (which must be exactly
// fingerprintBytes long), rewriting an all-zero digest to all-ones since
// zero is reserved as the empty-slot sentinel.
func (f *Filter) fingerprint(v, out []byte) {
	f.fpHasher.Hash(out, v)
	if isZero(out, 0, len(out)) {
		for i := range out {
			out[i] = 0xFF
		}
	}
}

// primaryIndex derives i1 from v: a 4-byte digest interpreted big-endian,
// masked by bucketCount-1.
func (f *Filter) primaryIndex(v []byte) uint64 {
	var buf [4]byte
	f.idxHasher.Hash(buf[:], v)
	return uint64(binary.BigEndian.Uint32(buf[:])) & (f.bucketCount - 1)
}

// alternateIndex derives the bucket XOR-related to from, given the
// fingerprint occupying (or about to occupy) it: a 4-byte digest of fp,
// masked, then XORed with from. Called with from=i1 and fp to get i2, or
// with from=the current kick target and the just-evicted fp to get the
// evicted fingerprint's other candidate bucket.
func (f *Filter) alternateIndex(from uint64, fp []byte) uint64 {
	var buf [4]byte
	f.idxHasher.Hash(buf[:], fp)
	h := uint64(binary.BigEndian.Uint32(buf[:])) & (f.bucketCount - 1)
	return from ^ h
}

// Contains reports whether v may have been inserted. False positives are
// possible; false negatives are not, absent concurrent mutation. Contains
// mutates no filter state, so it is safe to call concurrently with other
// Contains calls. Its scratch buffers are per call but escape to the heap
// through the Hasher interface, so each call allocates.
func (f *Filter) Contains(v []byte) bool {
	var fpArr [maxStackFP]byte
	fp := fpArr[:f.fingerprintBytes]
	f.fingerprint(v, fp)

	i1 := f.primaryIndex(v)
	off1 := bucketOffset(int(i1), f.slotsPerBucket, f.fingerprintBytes)
	if findInBucket(f.buf, off1, f.slotsPerBucket, f.fingerprintBytes, fp) != -1 {
		return true
	}

	i2 := f.alternateIndex(i1, fp)
	off2 := bucketOffset(int(i2), f.slotsPerBucket, f.fingerprintBytes)
	return findInBucket(f.buf, off2, f.slotsPerBucket, f.fingerprintBytes, fp) != -1
}

// TryInsert attempts to insert v, cascading kicks up to MaxKicks times if
// both of v's candidate buckets are full. It returns false if the kick
// budget is exhausted without finding a home; the fingerprint evicted by
// the last kick is then left out of the table, with no rollback.
func (f *Filter) TryInsert(v []byte) bool {
	var bufA, bufB [maxStackFP]byte
	fp := bufA[:f.fingerprintBytes]
	other := bufB[:f.fingerprintBytes]
	f.fingerprint(v, fp)

	i1 := f.primaryIndex(v)
	i2 := f.alternateIndex(i1, fp)

	off1 := bucketOffset(int(i1), f.slotsPerBucket, f.fingerprintBytes)
	if insertIntoBucket(f.buf, off1, f.slotsPerBucket, f.fingerprintBytes, fp) {
		f.count++
		return true
	}
	off2 := bucketOffset(int(i2), f.slotsPerBucket, f.fingerprintBytes)
	if insertIntoBucket(f.buf, off2, f.slotsPerBucket, f.fingerprintBytes, fp) {
		f.count++
		return true
	}

	// Both candidate buckets are full: start cuckoo-kicking. The starting
	// target is a coin flip between i1 and i2, not always i1, so that
	// repeated evictions don't pile fingerprints onto the same bucket.
	target := i1
	if f.rng.Intn(2) == 1 {
		target = i2
	}

	for k := 0; k < f.maxKicks; k++ {
		j := f.rng.Intn(f.slotsPerBucket)
		bucketOff := bucketOffset(int(target), f.slotsPerBucket, f.fingerprintBytes)
		swapSlot(f.buf, bucketOff, j, f.fingerprintBytes, fp, other)
		fp, other = other, fp

		target = f.alternateIndex(target, fp)
		off := bucketOffset(int(target), f.slotsPerBucket, f.fingerprintBytes)
		if insertIntoBucket(f.buf, off, f.slotsPerBucket, f.fingerprintBytes, fp) {
			f.count++
			return true
		}
	}
	return false
}

// Insert wraps TryInsert, returning ErrFull instead of a bare false when
// the kick budget is exhausted.
func (f *Filter) Insert(v []byte) error {
	if f.TryInsert(v) {
		return nil
	}
	return ErrFull
}

// Remove deletes one occurrence of v's fingerprint from whichever of its
// two candidate buckets holds it first, returning true if one did. It
// returns false, not an error, if v's fingerprint is absent from both.
// Deleting a value that was never inserted is not an error, and may
// silently delete an unrelated value whose fingerprint happens to match.
func (f *Filter) Remove(v []byte) bool {
	var fpArr [maxStackFP]byte
	fp := fpArr[:f.fingerprintBytes]
	f.fingerprint(v, fp)

	i1 := f.primaryIndex(v)
	off1 := bucketOffset(int(i1), f.slotsPerBucket, f.fingerprintBytes)
	if j := findInBucket(f.buf, off1, f.slotsPerBucket, f.fingerprintBytes, fp); j != -1 {
		clearSlot(f.buf, off1, j, f.fingerprintBytes)
		f.count--
		return true
	}

	i2 := f.alternateIndex(i1, fp)
	off2 := bucketOffset(int(i2), f.slotsPerBucket, f.fingerprintBytes)
	if j := findInBucket(f.buf, off2, f.slotsPerBucket, f.fingerprintBytes, fp); j != -1 {
		clearSlot(f.buf, off2, j, f.fingerprintBytes)
		f.count--
		return true
	}
	return false
}

// Equal reports whether f and other have identical (B, S, F, K) and
// identical bucket bytes.
func (f *Filter) Equal(other *Filter) bool {
	if other == nil {
		return false
	}
	if f.bucketCount != other.bucketCount ||
		f.slotsPerBucket != other.slotsPerBucket ||
		f.fingerprintBytes != other.fingerprintBytes ||
		f.maxKicks != other.maxKicks {
		return false
	}
	return bytes.Equal(f.buf, other.buf)
}

// Hash returns a hash code consistent with Equal: combines (B, S, F, K)
// with a 4-byte digest of the bucket bytes.
func (f *Filter) Hash() uint64 {
	h := f.bucketCount
	h = h*31 + uint64(f.slotsPerBucket)
	h = h*31 + uint64(f.fingerprintBytes)
	h = h*31 + uint64(f.maxKicks)
	h = h*31 + uint64(shortDigest(f.buf))
	return h
}

// BucketCount returns B.
func (f *Filter) BucketCount() uint64 { return f.bucketCount }

// SlotsPerBucket returns S.
func (f *Filter) SlotsPerBucket() int { return f.slotsPerBucket }

// FingerprintBytes returns F.
func (f *Filter) FingerprintBytes() int { return f.fingerprintBytes }

// MaxKicks returns K.
func (f *Filter) MaxKicks() int { return f.maxKicks }

// ByteLen returns the length of the bucket bytes, i.e. B*S*F.
func (f *Filter) ByteLen() int { return len(f.buf) }

// Bytes returns the filter's raw bucket bytes. The returned slice aliases
// the filter's internal storage: mutating it mutates the filter.
func (f *Filter) Bytes() []byte { return f.buf }

// Count returns the number of occupied slots, maintained incrementally by
// TryInsert and Remove.
func (f *Filter) Count() uint64 { return f.count }

// LoadFactor returns occupied slots / total slots.
func (f *Filter) LoadFactor() float64 {
	total := float64(f.bucketCount) * float64(f.slotsPerBucket)
	if total == 0 {
		return 0
	}
	return float64(f.count) / total
}

// Reset clears every slot and resets Count to 0 without resizing the
// filter, so the underlying allocation can be reused.
func (f *Filter) Reset() {
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.count = 0
}

// Sync flushes the backing store (a no-op unless the filter was built
// with NewMMap).
func (f *Filter) Sync() error { return f.store.Sync() }

// Close releases any resources held by the backing store (a no-op unless
// the filter was built with NewMMap).
func (f *Filter) Close() error { return f.store.Close() }

// Dump returns, bucket by bucket, the raw bytes of every occupied slot.
// It is for tests and diagnostics only and is never called on any hot
// path.
func (f *Filter) Dump() [][][]byte {
	out := make([][][]byte, f.bucketCount)
	for i := 0; i < int(f.bucketCount); i++ {
		off := bucketOffset(i, f.slotsPerBucket, f.fingerprintBytes)
		var slots [][]byte
		for j := 0; j < f.slotsPerBucket; j++ {
			so := off + j*f.fingerprintBytes
			if !isZero(f.buf, so, f.fingerprintBytes) {
				fp := make([]byte, f.fingerprintBytes)
				copy(fp, f.buf[so:so+f.fingerprintBytes])
				slots = append(slots, fp)
			}
		}
		out[i] = slots
	}
	return out
}

// DebugString renders Dump as printable ASCII where possible, falling
// back to hex for fingerprints with non-printable bytes.
func (f *Filter) DebugString() string {
	var b strings.Builder
	for i, slots := range f.Dump() {
		fmt.Fprintf(&b, "bucket %d:", i)
		for _, fp := range slots {
			if isPrintableASCII(fp) {
				fmt.Fprintf(&b, " %q", fp)
			} else {
				fmt.Fprintf(&b, " %x", fp)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
