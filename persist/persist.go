// Package persist implements a small serialization format for
// cuckoofilter.Filter: a header carrying (B, S, F, K) followed by the
// filter's raw bucket bytes, optionally gzip-wrapped.
//
// This package is a thin wrapper around the filter core, not part of it:
// cuckoofilter.FromBytes and Filter.Bytes are the primitives it is built
// on.
package persist

import (
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/nk-labs/cuckoofilter"
)

var magic = [4]byte{'c', 'k', 'f', '1'}

const (
	flagGzip byte = 1 << 0

	headerLen = 4 + 1 + 1 + 8 + 4 + 4 + 4 // magic, version, flags, B, S, F, K
	version1  = 1
)

// Write serializes f to w: header (B, S, F, K) followed by its raw bucket
// bytes. When gzipCompress is true, the bucket-byte section is wrapped in
// a gzip stream; the header itself is never compressed, so Read can
// always find B/S/F/K without decompressing anything.
func Write(w io.Writer, f *cuckoofilter.Filter, gzipCompress bool) error {
	var header [headerLen]byte
	copy(header[0:4], magic[:])
	header[4] = version1
	if gzipCompress {
		header[5] = flagGzip
	}
	binary.BigEndian.PutUint64(header[6:14], f.BucketCount())
	binary.BigEndian.PutUint32(header[14:18], uint32(f.SlotsPerBucket()))
	binary.BigEndian.PutUint32(header[18:22], uint32(f.FingerprintBytes()))
	binary.BigEndian.PutUint32(header[22:26], uint32(f.MaxKicks()))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "persist: write header")
	}

	if !gzipCompress {
		if _, err := w.Write(f.Bytes()); err != nil {
			return errors.Wrap(err, "persist: write bucket bytes")
		}
		return nil
	}

	gz := gzip.NewWriter(w)
	if _, err := gz.Write(f.Bytes()); err != nil {
		gz.Close()
		return errors.Wrap(err, "persist: gzip-write bucket bytes")
	}
	return errors.Wrap(gz.Close(), "persist: close gzip writer")
}

// Read deserializes a filter previously written by Write. opts are
// forwarded to cuckoofilter.FromBytes; pass cuckoofilter.WithHasher if
// the filter was built with a non-default Hasher, since the wire format
// carries no information about which hash primitive produced it.
func Read(r io.Reader, opts ...cuckoofilter.Option) (*cuckoofilter.Filter, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "persist: read header")
	}
	if header[0] != magic[0] || header[1] != magic[1] || header[2] != magic[2] || header[3] != magic[3] {
		return nil, errors.New("persist: bad magic, not a cuckoofilter image")
	}
	if header[4] != version1 {
		return nil, errors.Errorf("persist: unsupported version %d", header[4])
	}
	flags := header[5]
	bucketCount := binary.BigEndian.Uint64(header[6:14])
	slotsPerBucket := int(binary.BigEndian.Uint32(header[14:18]))
	fingerprintBytes := int(binary.BigEndian.Uint32(header[18:22]))
	maxKicks := int(binary.BigEndian.Uint32(header[22:26]))

	size := int(bucketCount) * slotsPerBucket * fingerprintBytes

	var body io.Reader = r
	if flags&flagGzip != 0 {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "persist: open gzip reader")
		}
		defer gz.Close()
		body = gz
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, errors.Wrap(err, "persist: read bucket bytes")
	}

	return cuckoofilter.FromBytes(buf, slotsPerBucket, fingerprintBytes, maxKicks, opts...)
}
