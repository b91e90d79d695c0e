package wireproto

import (
	"time"
)

// Message is one (payload, sequence) pair for batch encoding.
type Message struct {
	Payload  []byte
	Sequence uint64
}

// Encoder owns a pre-allocated byte buffer and a write cursor. All encode
// operations append to the buffer in place; nothing is allocated on the
// hot path after NewEncoder.
type Encoder struct {
	buffer   []byte
	writePos int
}

// NewEncoder allocates an Encoder with the given buffer capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buffer: make([]byte, capacity)}
}

// Reset rewinds the write cursor to the start of the buffer for reuse.
func (e *Encoder) Reset() {
	e.writePos = 0
}

// Available returns the number of unused bytes remaining in the buffer.
func (e *Encoder) Available() int {
	return len(e.buffer) - e.writePos
}

// Bytes returns the slice of the buffer written so far.
func (e *Encoder) Bytes() []byte {
	return e.buffer[:e.writePos]
}

// Encode writes a single frame of the given type, sequence, and payload.
// It returns the slice just written and true, or nil and false if the
// payload exceeds MaxPayloadSize or the buffer lacks the space.
func (e *Encoder) Encode(msgType MsgType, sequence uint64, payload []byte) ([]byte, bool) {
	if len(payload) > MaxPayloadSize {
		return nil, false
	}
	total := HeaderSize + len(payload)
	if e.writePos+total > len(e.buffer) {
		return nil, false
	}

	start := e.writePos
	h := Header{
		Magic:       Magic,
		Version:     Version,
		MsgType:     uint8(msgType),
		TimestampNs: uint64(time.Now().UnixNano()),
		Sequence:    sequence,
		PayloadLen:  uint32(len(payload)),
		Checksum:    Checksum(payload),
	}
	PutHeader(e.buffer[start:start+HeaderSize], &h)
	copy(e.buffer[start+HeaderSize:start+total], payload)
	e.writePos += total

	return e.buffer[start:e.writePos], true
}

// EncodeBatch writes one outer Batch-typed frame whose sequence is that of
// the first message and whose payload is the concatenation of each
// message's own Publish-typed inner frame. It refuses an empty message
// list and returns nil, false on overflow, exactly like Encode.
func (e *Encoder) EncodeBatch(messages []Message) ([]byte, bool) {
	if len(messages) == 0 {
		return nil, false
	}

	start := e.writePos

	totalPayloadSize := 0
	for _, m := range messages {
		totalPayloadSize += HeaderSize + len(m.Payload)
	}

	if e.writePos+HeaderSize+totalPayloadSize > len(e.buffer) {
		return nil, false
	}

	outer := Header{
		Magic:       Magic,
		Version:     Version,
		MsgType:     uint8(MsgBatch),
		TimestampNs: uint64(time.Now().UnixNano()),
		Sequence:    messages[0].Sequence,
		PayloadLen:  uint32(totalPayloadSize),
	}
	PutHeader(e.buffer[e.writePos:e.writePos+HeaderSize], &outer)
	e.writePos += HeaderSize

	for _, m := range messages {
		inner := Header{
			Magic:       Magic,
			Version:     Version,
			MsgType:     uint8(MsgPublish),
			TimestampNs: uint64(time.Now().UnixNano()),
			Sequence:    m.Sequence,
			PayloadLen:  uint32(len(m.Payload)),
			Checksum:    Checksum(m.Payload),
		}
		PutHeader(e.buffer[e.writePos:e.writePos+HeaderSize], &inner)
		e.writePos += HeaderSize

		copy(e.buffer[e.writePos:e.writePos+len(m.Payload)], m.Payload)
		e.writePos += len(m.Payload)
	}

	return e.buffer[start:e.writePos], true
}

// Decoder wraps a borrowed byte slice and decodes frames from it without
// copying payload bytes.
type Decoder struct {
	buffer  []byte
	readPos int
}

// NewDecoder wraps buffer for decoding starting at offset 0.
func NewDecoder(buffer []byte) *Decoder {
	return &Decoder{buffer: buffer}
}

// Remaining returns the number of undecoded bytes left in the buffer.
func (d *Decoder) Remaining() int {
	if d.readPos >= len(d.buffer) {
		return 0
	}
	return len(d.buffer) - d.readPos
}

// Next decodes the next frame. It returns ok=false without advancing the
// cursor if fewer than HeaderSize bytes remain, the frame is truncated,
// the header fails IsValid, or a nonzero checksum fails to verify.
func (d *Decoder) Next() (Header, []byte, bool) {
	if d.readPos+HeaderSize > len(d.buffer) {
		return Header{}, nil, false
	}

	h, ok := ReadHeader(d.buffer[d.readPos:])
	if !ok {
		return Header{}, nil, false
	}

	payloadStart := d.readPos + HeaderSize
	payloadEnd := payloadStart + int(h.PayloadLen)
	if payloadEnd > len(d.buffer) {
		return Header{}, nil, false
	}

	payload := d.buffer[payloadStart:payloadEnd]
	if h.Checksum != 0 && Checksum(payload) != h.Checksum {
		return Header{}, nil, false
	}

	d.readPos = payloadEnd
	return h, payload, true
}

// BatchIterator decodes the inner frames of a batch payload in order.
type BatchIterator struct {
	inner *Decoder
}

// Next returns the next inner frame, or ok=false once the batch payload is
// exhausted.
func (b *BatchIterator) Next() (Header, []byte, bool) {
	return b.inner.Next()
}

// DecodeBatch consumes one frame expected to be MsgBatch and returns an
// iterator over its inner frames. It returns ok=false if the next frame is
// missing, invalid, or not a Batch frame. The outer Next() call already
// advanced the cursor past the inspected frame regardless of its type.
func (d *Decoder) DecodeBatch() (*BatchIterator, bool) {
	h, payload, ok := d.Next()
	if !ok {
		return nil, false
	}
	if MsgType(h.MsgType) != MsgBatch {
		return nil, false
	}
	return &BatchIterator{inner: NewDecoder(payload)}, true
}
