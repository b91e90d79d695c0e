// Package wireproto implements the Hermes wire frame: a fixed 32-byte
// header directly castable from a byte slice, followed by 0..65536 payload
// bytes, with a rolling additive checksum and single/batch encode-decode.
//
// The header is a fixed-layout struct: no padding, explicit field widths,
// and a size assertion in init() guarding the zero-copy cast.
package wireproto

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// MsgType identifies the kind of frame on the wire.
type MsgType uint8

const (
	MsgPublish   MsgType = 1
	MsgSubscribe MsgType = 2
	MsgAck       MsgType = 3
	MsgHeartbeat MsgType = 4
	MsgBatch     MsgType = 5
)

const (
	// Magic is the fixed header magic number ("HRMS" read big-endian; the
	// little-endian wire bytes spell "SMRH").
	Magic uint32 = 0x48524D53
	// Version is the only supported wire protocol version.
	Version uint8 = 1
	// MaxPayloadSize bounds a single frame's payload.
	MaxPayloadSize = 65536
	// HeaderSize is the fixed, packed on-wire header size in bytes.
	HeaderSize = 32
)

// Header is the fixed 32-byte frame header, little-endian, no padding.
// Field order and widths are load-bearing: the struct is cast directly
// to/from a [HeaderSize]byte via unsafe.Pointer, so reordering or resizing
// any field changes the wire format.
type Header struct {
	Magic       uint32
	Version     uint8
	MsgType     uint8
	Flags       uint16
	Sequence    uint64
	TimestampNs uint64
	PayloadLen  uint32
	Checksum    uint32
}

func init() {
	if unsafe.Sizeof(Header{}) != HeaderSize {
		panic(fmt.Sprintf("wireproto: Header size is %d, expected %d", unsafe.Sizeof(Header{}), HeaderSize))
	}
}

// IsValid reports whether magic and version match their constants and
// PayloadLen is within MaxPayloadSize.
func (h *Header) IsValid() bool {
	return h.Magic == Magic && h.Version == Version && h.PayloadLen <= MaxPayloadSize
}

// PutHeader encodes h into dst, which must be at least HeaderSize bytes.
// This is the portable, alignment-agnostic counterpart to HeaderFromBytes:
// it never assumes dst is suitably aligned for a struct cast.
func PutHeader(dst []byte, h *Header) {
	_ = dst[HeaderSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	dst[4] = h.Version
	dst[5] = h.MsgType
	binary.LittleEndian.PutUint16(dst[6:8], h.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(dst[16:24], h.TimestampNs)
	binary.LittleEndian.PutUint32(dst[24:28], h.PayloadLen)
	binary.LittleEndian.PutUint32(dst[28:32], h.Checksum)
}

// HeaderFromBytes casts the leading HeaderSize bytes of buf directly to a
// *Header (zero-copy). It returns nil if buf is too short or the header
// fails IsValid.
//
// On a little-endian target (amd64, arm64) this cast reproduces exactly
// what PutHeader/ReadHeader would have written byte-for-byte, because
// Header's field layout matches the wire layout with no implicit padding.
// A big-endian target would need to byte-swap every multi-byte field
// after the cast, or use ReadHeader instead, which never assumes the
// host's native byte order.
func HeaderFromBytes(buf []byte) *Header {
	if len(buf) < HeaderSize {
		return nil
	}
	h := (*Header)(unsafe.Pointer(&buf[0]))
	if !h.IsValid() {
		return nil
	}
	return h
}

// ReadHeader decodes a header from buf field-by-field via encoding/binary,
// without assuming pointer alignment. It returns ok=false under the same
// conditions HeaderFromBytes returns nil.
func ReadHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     buf[4],
		MsgType:     buf[5],
		Flags:       binary.LittleEndian.Uint16(buf[6:8]),
		Sequence:    binary.LittleEndian.Uint64(buf[8:16]),
		TimestampNs: binary.LittleEndian.Uint64(buf[16:24]),
		PayloadLen:  binary.LittleEndian.Uint32(buf[24:28]),
		Checksum:    binary.LittleEndian.Uint32(buf[28:32]),
	}
	if !h.IsValid() {
		return Header{}, false
	}
	return h, true
}

// Checksum computes an Adler-like rolling additive checksum over payload.
// A checksum of 0 means "not checked" and bypasses verification on
// decode.
func Checksum(payload []byte) uint32 {
	var a, b uint32 = 1, 0
	for _, x := range payload {
		a += uint32(x)
		b += a
	}
	return (b << 16) | a
}
