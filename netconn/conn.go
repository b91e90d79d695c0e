// Package netconn implements per-connection state for the broker: a
// bounded read buffer, a capped write buffer with flush-then-buffer send
// semantics, sticky role inference, and per-connection counters.
//
// A Conn is exclusively owned by the broker event loop (package broker);
// nothing here takes a lock, since the connection map and storage are
// owned exclusively by that loop.
package netconn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Role is the inferred purpose of a connection, pinned by the first
// Publish or Subscribe frame observed from it.
type Role int

const (
	RoleUnknown Role = iota
	RolePublisher
	RoleSubscriber
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

const (
	// readBufferSize is the minimum per-connection read buffer.
	readBufferSize = 128 * 1024
	// writeBufferCap is the hard cap on buffered-but-unflushed bytes.
	writeBufferCap = 1024 * 1024
	// socketBufferSize is the OS send/receive buffer size raised on accept.
	socketBufferSize = 256 * 1024
)

// SendOutcome classifies the result of a single Send call.
type SendOutcome int

const (
	SendOK SendOutcome = iota
	SendBuffered
	SendDropped
	SendErr
)

// Conn is one accepted socket's broker-visible state.
type Conn struct {
	ID   uint64
	Addr net.Addr
	Role Role

	conn net.Conn

	readBuf []byte
	readLen int // occupied prefix of readBuf, starting at index 0

	writeBuf []byte // pending-but-unflushed bytes, len <= writeBufferCap

	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64
}

// New wraps an accepted net.Conn, disabling Nagle's algorithm and raising
// OS socket buffer sizes the way the broker's original accept phase does.
// Socket-buffer tuning is best-effort: a platform that refuses the
// setsockopt call still gets a working connection, just without the
// larger buffers.
func New(id uint64, c net.Conn) (*Conn, error) {
	tc, ok := c.(*net.TCPConn)
	if ok {
		if err := tc.SetNoDelay(true); err != nil {
			return nil, fmt.Errorf("netconn: set nodelay: %w", err)
		}
		raiseSocketBuffers(tc)
	}

	return &Conn{
		ID:      id,
		Addr:    c.RemoteAddr(),
		Role:    RoleUnknown,
		conn:    c,
		readBuf: make([]byte, readBufferSize),
	}, nil
}

func raiseSocketBuffers(tc *net.TCPConn) {
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferSize)
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferSize)
	})
}

// errWouldBlock is the sentinel TryRead returns in place of a platform
// timeout error, so callers can classify it with errors.Is regardless of
// the underlying net.Error's exact type.
var errWouldBlock = errors.New("netconn: would block")

// ErrWouldBlock is returned by TryRead when no data was available within
// the non-blocking poll window; it is never a peer-loss signal.
var ErrWouldBlock = errWouldBlock

// TryRead performs one non-blocking read attempt into the tail of the
// read buffer. Go's net.Conn has no native non-blocking mode, so TryRead
// emulates it with a read deadline of "now": a deadline-exceeded error is
// the Go analogue of WouldBlock and is returned as ErrWouldBlock.
//
// A zero-byte, nil-error Read does not occur on a live Go socket in this
// mode: a closed peer surfaces as io.EOF, so TryRead never has to guess
// whether n==0 means "no data" or "peer gone".
func (c *Conn) TryRead() (int, error) {
	if c.readLen >= len(c.readBuf) {
		return 0, nil
	}

	c.conn.SetReadDeadline(time.Now())
	n, err := c.conn.Read(c.readBuf[c.readLen:])
	if n > 0 {
		c.readLen += n
		c.BytesIn += uint64(n)
	}
	if err == nil {
		return n, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, ErrWouldBlock
	}
	return n, err
}

// IsPeerLost reports whether err, as returned from TryRead, indicates the
// peer connection is gone (reset, aborted, or a clean EOF) rather than a
// benign WouldBlock or a one-off transport hiccup.
func IsPeerLost(err error) bool {
	if err == nil || errors.Is(err, ErrWouldBlock) {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	return false
}

// Readable returns the occupied prefix of the read buffer available for
// decoding.
func (c *Conn) Readable() []byte {
	return c.readBuf[:c.readLen]
}

// Consume shifts the first n bytes out of the read buffer in place,
// retreating the occupied length accordingly. It is a no-op if n <= 0.
func (c *Conn) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > c.readLen {
		n = c.readLen
	}
	copy(c.readBuf, c.readBuf[n:c.readLen])
	c.readLen -= n
}

// Send implements the per-connection send policy: flush any pending bytes
// first; if pending remains, buffer the new bytes (refusing when
// buffering would exceed writeBufferCap); otherwise attempt a direct
// write, buffering on WouldBlock.
func (c *Conn) Send(data []byte) SendOutcome {
	if err := c.Flush(); err != nil {
		return SendErr
	}

	if len(c.writeBuf) > 0 {
		if len(c.writeBuf)+len(data) > writeBufferCap {
			return SendDropped
		}
		c.writeBuf = append(c.writeBuf, data...)
		return SendBuffered
	}

	c.conn.SetWriteDeadline(time.Now())
	n, err := c.conn.Write(data)
	if err == nil {
		c.MessagesOut++
		c.BytesOut += uint64(n)
		return SendOK
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if len(c.writeBuf)+(len(data)-n) > writeBufferCap {
			return SendDropped
		}
		c.writeBuf = append(c.writeBuf, data[n:]...)
		return SendBuffered
	}
	return SendErr
}

// Flush attempts to drain the pending write buffer non-blockingly. A
// timeout leaves the unwritten remainder in place for the next call.
func (c *Conn) Flush() error {
	if len(c.writeBuf) == 0 {
		return nil
	}

	c.conn.SetWriteDeadline(time.Now())
	n, err := c.conn.Write(c.writeBuf)
	if n > 0 {
		c.BytesOut += uint64(n)
		c.writeBuf = c.writeBuf[:copy(c.writeBuf, c.writeBuf[n:])]
	}
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return nil
	}
	return err
}

// PendingBytes returns the number of bytes currently buffered for write.
func (c *Conn) PendingBytes() int {
	return len(c.writeBuf)
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}
