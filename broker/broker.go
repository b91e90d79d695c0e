// Package broker implements the Hermes event loop: a single-threaded,
// cooperative accept/read/broadcast/flush/reap/housekeeping/pace cycle
// over non-blocking TCP sockets.
//
// See DESIGN.md for how each phase is grounded; shutdown is driven by
// context.Context cancellation.
package broker

import (
	"context"
	"fmt"
	"log"
	"net"
	"runtime"
	"time"

	"github.com/AlephTX/hermes/netconn"
	"github.com/AlephTX/hermes/ring"
	"github.com/AlephTX/hermes/storage"
	"github.com/AlephTX/hermes/wireproto"
)

const (
	// broadcastQueueCapacity bounds the per-iteration queue of frames
	// collected during the read phase and drained during the broadcast
	// phase; it must be a power of two for package ring.
	broadcastQueueCapacity = 65536

	// idleSleep is the pace-sleep duration when no connections exist.
	idleSleep = 100 * time.Microsecond

	// statsInterval is how often a housekeeping stats line is logged.
	statsInterval = 5 * time.Second
)

// Config is the broker's runtime configuration, already validated (in
// particular StorageCapacity is already confirmed a power of two) by the
// time it reaches New.
type Config struct {
	Bind            string
	StoragePath     string
	StorageCapacity uint64
	Verbose         bool
}

// broadcastEntry is the small fixed-size descriptor queued between the
// read phase and the broadcast phase: a sender id plus a reference to an
// owned copy of the framed bytes. The raw, variable-size frame bytes
// themselves are never stored inline in a ring slot, only referenced.
type broadcastEntry struct {
	senderID uint64
	frame    []byte
}

// Broker owns the listener, the connection table, durable storage, and
// process-wide stats for one Hermes broker process.
type Broker struct {
	cfg      Config
	listener net.Listener
	store    *storage.Storage
	stats    Stats

	conns       map[uint64]*netconn.Conn
	nextID      uint64
	pendingReap []uint64

	queue *ring.Ring[broadcastEntry]

	startTime time.Time
}

// New binds the listener and opens storage. It does not start the loop;
// call Run for that.
func New(cfg Config) (*Broker, error) {
	ln, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return nil, fmt.Errorf("broker: listen %s: %w", cfg.Bind, err)
	}

	store, err := storage.Open(cfg.StoragePath, cfg.StorageCapacity)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("broker: open storage: %w", err)
	}

	return &Broker{
		cfg:      cfg,
		listener: ln,
		store:    store,
		conns:    make(map[uint64]*netconn.Conn),
		queue:    ring.New[broadcastEntry](broadcastQueueCapacity),
	}, nil
}

// Addr returns the listener's bound address, useful when Config.Bind uses
// an ephemeral port (":0") for tests.
func (b *Broker) Addr() net.Addr {
	return b.listener.Addr()
}

// Stats returns the broker's live stats counters.
func (b *Broker) Stats() *Stats {
	return &b.stats
}

// Run executes the broker loop until ctx is canceled, at which point it
// makes one non-blocking flush attempt per connection (bytes the socket
// does not accept at once are discarded), closes every socket, closes
// storage, and returns.
func (b *Broker) Run(ctx context.Context) error {
	b.startTime = time.Now()
	lastStats := b.startTime

	log.Printf("🚀 hermes broker listening on %s (storage=%s)", b.listener.Addr(), b.cfg.StoragePath)

	for {
		select {
		case <-ctx.Done():
			return b.shutdown()
		default:
		}

		b.acceptPhase()
		b.readPhase()
		broadcastCount := b.broadcastPhase()
		b.flushPhase()
		b.reapPhase()
		b.housekeeping(&lastStats)
		b.pace(broadcastCount)
	}
}

// acceptPhase drains the listener non-blockingly. Go's net.Listener has
// no native non-blocking Accept, so a deadline of "now" is used the same
// way Conn.TryRead emulates WouldBlock for reads: Accept returns
// immediately once no connection is already queued in the kernel backlog.
func (b *Broker) acceptPhase() {
	tl, ok := b.listener.(*net.TCPListener)
	if ok {
		tl.SetDeadline(time.Now())
	}

	for {
		c, err := b.listener.Accept()
		if err != nil {
			return
		}

		conn, err := netconn.New(b.nextID, c)
		if err != nil {
			log.Printf("⚠️ accept: %v", err)
			c.Close()
			continue
		}

		id := b.nextID
		b.nextID++
		b.conns[id] = conn

		b.stats.ConnectionsNew.Add(1)
		b.stats.ConnectionsLive.Add(1)

		if b.cfg.Verbose {
			log.Printf("✅ [%d] connected: %s", id, conn.Addr)
		}
	}
}

// readPhase reads from every connection, decodes complete frames, applies
// role inference, persists Publish frames to storage, and pushes them
// onto the broadcast queue. Transport errors that signal peer loss queue
// the connection id for reaping.
func (b *Broker) readPhase() {
	for id, c := range b.conns {
		n, err := c.TryRead()
		if err == netconn.ErrWouldBlock {
			continue
		}
		if err != nil {
			if netconn.IsPeerLost(err) {
				if b.cfg.Verbose {
					log.Printf("🔌 [%d] peer lost: %v", id, err)
				}
			} else {
				log.Printf("⚠️ [%d] read error: %v", id, err)
			}
			b.pendingReap = append(b.pendingReap, id)
			continue
		}
		if n == 0 {
			continue
		}

		b.decodeAndQueue(id, c)
	}
}

func (b *Broker) decodeAndQueue(id uint64, c *netconn.Conn) {
	buf := c.Readable()
	dec := wireproto.NewDecoder(buf)
	consumed := 0

	for {
		h, payload, ok := dec.Next()
		if !ok {
			break
		}
		frameLen := wireproto.HeaderSize + len(payload)
		frameStart := consumed
		consumed += frameLen

		b.stats.MessagesIn.Add(1)
		b.stats.BytesIn.Add(uint64(frameLen))
		c.MessagesIn++

		switch wireproto.MsgType(h.MsgType) {
		case wireproto.MsgPublish:
			if c.Role == netconn.RoleUnknown {
				c.Role = netconn.RolePublisher
			}

			frame := make([]byte, frameLen)
			copy(frame, buf[frameStart:consumed])

			if _, ok := b.store.Write(frame); !ok {
				// Storage-full: skip persistence for this frame, broadcast
				// proceeds regardless; persistence here is best-effort.
				if b.cfg.Verbose {
					log.Printf("⚠️ [%d] storage full, skipping persistence for seq=%d", id, h.Sequence)
				}
			}

			if !b.queue.Push(broadcastEntry{senderID: id, frame: frame}) {
				// The broadcast queue is drained every iteration right after
				// it's filled, so overflow only happens if one read phase,
				// across all connections, decodes more than
				// broadcastQueueCapacity frames.
				b.stats.MessagesDropped.Add(1)
			}

		case wireproto.MsgSubscribe:
			c.Role = netconn.RoleSubscriber

		case wireproto.MsgHeartbeat:
			// Acknowledged implicitly: liveness only, no broadcast.

		default:
			// Unknown/Ack/Batch at the top level: ignored by the broker.
		}
	}

	c.Consume(consumed)
}

// broadcastPhase drains the queue built up during readPhase, delivering
// each entry to every connection except its sender. It returns the number
// of entries drained, used to decide whether to pace-sleep this
// iteration.
func (b *Broker) broadcastPhase() int {
	drained := 0

	for {
		entry, ok := b.queue.Pop()
		if !ok {
			break
		}
		drained++

		for id, c := range b.conns {
			if id == entry.senderID {
				continue // never echo back to the sender
			}

			switch c.Send(entry.frame) {
			case netconn.SendOK, netconn.SendBuffered:
				b.stats.MessagesOut.Add(1)
				b.stats.BytesOut.Add(uint64(len(entry.frame)))
			case netconn.SendDropped:
				b.stats.MessagesDropped.Add(1)
			case netconn.SendErr:
				b.stats.BroadcastErrors.Add(1)
				// A send error does not itself reap the
				// connection; the next read cycle surfaces the failure.
			}
		}
	}

	return drained
}

// flushPhase drains every connection's pending write buffer
// non-blockingly.
func (b *Broker) flushPhase() {
	for _, c := range b.conns {
		c.Flush()
	}
}

// reapPhase removes every connection queued for removal during
// readPhase.
func (b *Broker) reapPhase() {
	if len(b.pendingReap) == 0 {
		return
	}
	for _, id := range b.pendingReap {
		c, ok := b.conns[id]
		if !ok {
			continue
		}
		delete(b.conns, id)
		c.Close()
		b.stats.ConnectionsLive.Add(^uint64(0)) // atomic decrement

		if b.cfg.Verbose {
			log.Printf("❌ [%d] disconnected: %s (in=%d out=%d)", id, c.Addr, c.MessagesIn, c.MessagesOut)
		}
	}
	b.pendingReap = b.pendingReap[:0]
}

// housekeeping logs a stats snapshot every statsInterval.
func (b *Broker) housekeeping(lastStats *time.Time) {
	if time.Since(*lastStats) < statsInterval {
		return
	}
	b.stats.LogReport(time.Since(b.startTime))
	*lastStats = time.Now()
}

// pace sleeps when idle, yields when
// connected-but-quiet, and busy-poll when frames were just broadcast.
func (b *Broker) pace(broadcastCount int) {
	switch {
	case len(b.conns) == 0:
		time.Sleep(idleSleep)
	case broadcastCount == 0:
		runtime.Gosched()
	}
}

// shutdown flushes every connection, closes every socket, and closes
// storage. It is the Go-idiomatic resolution of the graceful-shutdown
// follow-up the wire protocol alone leaves unspecified.
func (b *Broker) shutdown() error {
	log.Printf("👋 hermes broker shutting down, draining %d connection(s)", len(b.conns))

	for _, c := range b.conns {
		c.Flush()
		c.Close()
	}
	b.conns = nil

	if err := b.store.Close(); err != nil {
		return fmt.Errorf("broker: close storage: %w", err)
	}
	return b.listener.Close()
}
