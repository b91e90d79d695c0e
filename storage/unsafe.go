package storage

import "unsafe"

// wordAt returns a pointer to the uint64 word at byte offset off within
// data, for use with the sync/atomic Load/Store pair that publishes
// write_pos with release ordering. The mmap region is allocated by the OS
// and is page-aligned at its base (syscall.Mmap returns page-aligned
// memory), so offsets into the header are themselves suitably aligned for
// 8-byte atomic access.
func wordAt(data []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&data[off]))
}
