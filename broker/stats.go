package broker

import (
	"log"
	"sync/atomic"
	"time"
)

// Stats holds the broker's process-wide atomic counters. The counters need
// no happens-before relationship with the data they describe, only
// visibility to whatever goroutine prints them; Go's atomics are
// sequentially consistent, which is more than they need.
type Stats struct {
	MessagesIn      atomic.Uint64
	MessagesOut     atomic.Uint64
	MessagesDropped atomic.Uint64
	BytesIn         atomic.Uint64
	BytesOut        atomic.Uint64
	ConnectionsNew  atomic.Uint64
	ConnectionsLive atomic.Uint64
	BroadcastErrors atomic.Uint64
}

// Snapshot is a point-in-time copy of every counter, convenient for a
// collaborator tool to read without holding references into Stats itself.
type Snapshot struct {
	MessagesIn      uint64
	MessagesOut     uint64
	MessagesDropped uint64
	BytesIn         uint64
	BytesOut        uint64
	ConnectionsNew  uint64
	ConnectionsLive uint64
	BroadcastErrors uint64
}

// Snapshot reads every counter into a plain struct.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		MessagesIn:      s.MessagesIn.Load(),
		MessagesOut:     s.MessagesOut.Load(),
		MessagesDropped: s.MessagesDropped.Load(),
		BytesIn:         s.BytesIn.Load(),
		BytesOut:        s.BytesOut.Load(),
		ConnectionsNew:  s.ConnectionsNew.Load(),
		ConnectionsLive: s.ConnectionsLive.Load(),
		BroadcastErrors: s.BroadcastErrors.Load(),
	}
}

// LogReport emits one stats line via the standard logger, no structured
// logging library involved.
func (s *Stats) LogReport(uptime time.Duration) {
	snap := s.Snapshot()
	rateIn := float64(snap.MessagesIn) / uptime.Seconds()
	rateOut := float64(snap.MessagesOut) / uptime.Seconds()

	log.Printf(
		"📊 stats uptime=%.1fs in=%d (%.1f/s) out=%d (%.1f/s) dropped=%d bytes_in=%dKB bytes_out=%dKB conns=%d errors=%d",
		uptime.Seconds(), snap.MessagesIn, rateIn, snap.MessagesOut, rateOut,
		snap.MessagesDropped, snap.BytesIn/1024, snap.BytesOut/1024,
		snap.ConnectionsLive, snap.BroadcastErrors,
	)
}
