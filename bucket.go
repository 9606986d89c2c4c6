package cuckoofilter

import "bytes"

// The functions in this file do the slot-level byte arithmetic on
// bucket_bytes for Contains/TryInsert/Remove, which address a bucket by
// index and leave the offsets to these. (Reset, Dump, Equal and the
// occupancy count in filter.go walk the bytes themselves.) All of them are
// allocation-free and safe to call on every Contains/TryInsert/Remove.

// bucketOffset returns the byte offset of bucket i within buf, given a
// bucket width of slotsPerBucket*fpBytes.
func bucketOffset(i int, slotsPerBucket, fpBytes int) int {
	return i * slotsPerBucket * fpBytes
}

// isZero reports whether the fpBytes bytes at buf[off:off+fpBytes] are all
// zero, i.e. whether that slot is empty.
func isZero(buf []byte, off, fpBytes int) bool {
	for _, b := range buf[off : off+fpBytes] {
		if b != 0 {
			return false
		}
	}
	return true
}

// findInBucket returns the lowest slot index j in [0, slotsPerBucket) such
// that the fpBytes bytes at bucketOff+j*fpBytes equal fp, or -1 if no slot
// matches. First match wins.
func findInBucket(buf []byte, bucketOff, slotsPerBucket, fpBytes int, fp []byte) int {
	for j := 0; j < slotsPerBucket; j++ {
		off := bucketOff + j*fpBytes
		if bytes.Equal(buf[off:off+fpBytes], fp) {
			return j
		}
	}
	return -1
}

// insertIntoBucket writes fp into the first empty slot of the bucket at
// bucketOff and returns true. If the bucket has no empty slot it returns
// false and leaves buf unmodified. The caller guarantees fp is non-zero.
func insertIntoBucket(buf []byte, bucketOff, slotsPerBucket, fpBytes int, fp []byte) bool {
	for j := 0; j < slotsPerBucket; j++ {
		off := bucketOff + j*fpBytes
		if isZero(buf, off, fpBytes) {
			copy(buf[off:off+fpBytes], fp)
			return true
		}
	}
	return false
}

// clearSlot zeroes the slot j of the bucket at bucketOff.
func clearSlot(buf []byte, bucketOff, j, fpBytes int) {
	off := bucketOff + j*fpBytes
	for k := off; k < off+fpBytes; k++ {
		buf[k] = 0
	}
}

// swapSlot exchanges fp with whatever fingerprint currently occupies slot j
// of the bucket at bucketOff: evicted receives the bytes that were there,
// and fp is written in their place. evicted must be fpBytes long.
func swapSlot(buf []byte, bucketOff, j, fpBytes int, fp, evicted []byte) {
	off := bucketOff + j*fpBytes
	copy(evicted, buf[off:off+fpBytes])
	copy(buf[off:off+fpBytes], fp)
}
