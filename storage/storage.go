// Package storage implements Hermes's append-only memory-mapped ring: a
// fixed on-disk header followed by a power-of-two-capacity payload region
// that every broadcast frame is appended to verbatim.
//
// The mmap lifecycle here — open-or-create, Truncate to size, syscall.Mmap
// read/write/shared — mirrors the shared-memory ring buffer this module's
// broker descends from; storage generalizes that fixed-slot region into a
// byte-addressed ring with a persistent header.
package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
)

const (
	// magic identifies an initialized storage file ("HERMES_V" in hex).
	magic uint64 = 0x4845524D45535F56
	// version is the only supported on-disk layout version.
	version uint32 = 1
	// headerSize is the fixed, 64-byte-aligned on-disk header size.
	headerSize = 64
)

// header field byte offsets within the mapped region.
const (
	offMagic    = 0
	offVersion  = 8
	offCapacity = 12
	offWritePos = 16
	offReadPos  = 24
)

// Storage is a memory-mapped append-only ring on disk.
type Storage struct {
	file     *os.File
	data     []byte // header + payload region, mmap'd
	capacity uint64
}

// Open opens or creates the storage file at path, sizing it to
// headerSize+capacity and mapping it read/write. capacity must be a power
// of two. If the on-disk magic is absent (a fresh file), the header is
// initialized; a present magic with a mismatched version is rejected as a
// Config-invalid-class error rather than guessing at a migration.
func Open(path string, capacity uint64) (*Storage, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("storage: capacity %d is not a power of two", capacity)
	}

	totalSize := int64(headerSize + capacity)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if info.Size() < totalSize {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("storage: truncate %s: %w", path, err)
		}
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(totalSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: mmap %s: %w", path, err)
	}

	s := &Storage{file: f, data: data, capacity: capacity}

	existingMagic := binary.LittleEndian.Uint64(data[offMagic : offMagic+8])
	switch existingMagic {
	case magic:
		existingVersion := binary.LittleEndian.Uint32(data[offVersion : offVersion+4])
		if existingVersion != version {
			syscall.Munmap(data)
			f.Close()
			return nil, fmt.Errorf("storage: %s has incompatible version %d, want %d", path, existingVersion, version)
		}
		existingCapacity := binary.LittleEndian.Uint32(data[offCapacity : offCapacity+4])
		if uint64(existingCapacity) != capacity {
			syscall.Munmap(data)
			f.Close()
			return nil, fmt.Errorf("storage: %s has capacity %d, requested %d", path, existingCapacity, capacity)
		}
	case 0:
		s.initHeader()
	default:
		syscall.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("storage: %s has unrecognized magic %#x", path, existingMagic)
	}

	return s, nil
}

func (s *Storage) initHeader() {
	binary.LittleEndian.PutUint64(s.data[offMagic:offMagic+8], magic)
	binary.LittleEndian.PutUint32(s.data[offVersion:offVersion+4], version)
	binary.LittleEndian.PutUint32(s.data[offCapacity:offCapacity+4], uint32(s.capacity))
	binary.LittleEndian.PutUint64(s.data[offWritePos:offWritePos+8], 0)
	binary.LittleEndian.PutUint64(s.data[offReadPos:offReadPos+8], 0)
}

func (s *Storage) writePos() uint64 {
	return atomic.LoadUint64((*uint64)(wordAt(s.data, offWritePos)))
}

func (s *Storage) storeWritePos(v uint64) {
	atomic.StoreUint64((*uint64)(wordAt(s.data, offWritePos)), v)
}

func (s *Storage) readPos() uint64 {
	return atomic.LoadUint64((*uint64)(wordAt(s.data, offReadPos)))
}

// Capacity returns the fixed payload-region byte capacity.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// Write appends b into the ring at writePos mod capacity, splitting
// across the wrap boundary if needed. It returns the pre-wrap starting
// offset and true, or false if the ring lacks capacity − (write_pos −
// read_pos) space for len(b) bytes. The caller supplies already-framed
// bytes; Write does no framing of its own.
func (s *Storage) Write(b []byte) (uint64, bool) {
	writePos := s.writePos()
	readPos := s.readPos()

	available := s.capacity - (writePos - readPos)
	if uint64(len(b)) > available {
		return 0, false
	}

	offset := writePos % s.capacity
	payload := s.data[headerSize:]

	firstPart := s.capacity - offset
	if firstPart > uint64(len(b)) {
		firstPart = uint64(len(b))
	}
	copy(payload[offset:offset+firstPart], b[:firstPart])

	if firstPart < uint64(len(b)) {
		secondPart := uint64(len(b)) - firstPart
		copy(payload[:secondPart], b[firstPart:])
	}

	s.storeWritePos(writePos + uint64(len(b)))
	return offset, true
}

// Read returns a direct view of length bytes at offset within the payload
// region. It refuses to read across the wrap boundary: offset+length must
// not exceed capacity.
func (s *Storage) Read(offset, length uint64) ([]byte, bool) {
	if offset+length > s.capacity {
		return nil, false
	}
	payload := s.data[headerSize:]
	return payload[offset : offset+length], true
}

// Close unmaps the storage region and closes the underlying file. The OS
// is responsible for flushing dirty pages back to disk; Close does not
// force an explicit msync.
func (s *Storage) Close() error {
	if err := syscall.Munmap(s.data); err != nil {
		s.file.Close()
		return fmt.Errorf("storage: munmap: %w", err)
	}
	return s.file.Close()
}
