package cuckoofilter

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// bucketStore owns the lifetime of the byte slab backing a Filter's
// bucket bytes. The filter core never calls a method per slot, since that
// would put an interface call on every fingerprint comparison; it asks
// the store for the underlying []byte once, at construction, and then
// addresses it directly via the primitives in bucket.go.
type bucketStore interface {
	// Bytes returns the live byte slab. Mutating it mutates the store.
	Bytes() []byte
	// Sync flushes any buffered writes to the backing medium. A no-op for
	// in-memory stores.
	Sync() error
	// Close releases any resources (file handles, mappings) held by the
	// store. A no-op for in-memory stores.
	Close() error
}

// memStore is a plain heap-backed bucketStore, the default for New and
// NewSized.
type memStore struct {
	buf []byte
}

func newMemStore(size int) *memStore {
	return &memStore{buf: make([]byte, size)}
}

func newMemStoreFrom(buf []byte) *memStore {
	return &memStore{buf: buf}
}

func (s *memStore) Bytes() []byte { return s.buf }
func (s *memStore) Sync() error   { return nil }
func (s *memStore) Close() error  { return nil }

// mmapStore backs the bucket bytes with a memory-mapped file. It is the
// natural home for a filter sized past what comfortably lives in a single
// process's heap, or one that should persist across process restarts
// without going through the persist package's serializer.
type mmapStore struct {
	file *os.File
	m    mmap.MMap
}

// openMMapStore opens (creating if necessary) filename, truncates it to
// size bytes, and maps it read/write. size must equal the filter's
// B*S*F; the caller is responsible for that invariant.
func openMMapStore(filename string, size int) (*mmapStore, error) {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open mmap-backed bucket file")
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "truncate mmap-backed bucket file to %d bytes", size)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "mmap bucket file")
	}
	return &mmapStore{file: f, m: m}, nil
}

func (s *mmapStore) Bytes() []byte { return s.m }

func (s *mmapStore) Sync() error {
	return errors.Wrap(s.m.Flush(), "flush mmap-backed bucket file")
}

func (s *mmapStore) Close() error {
	if err := s.m.Unmap(); err != nil {
		return errors.Wrap(err, "unmap bucket file")
	}
	return errors.Wrap(s.file.Close(), "close mmap-backed bucket file")
}
