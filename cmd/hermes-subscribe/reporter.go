package main

import (
	"log"
	"time"
)

// reporter accumulates counts, out-of-order gaps, and a running
// min/max/mean latency, printing a summary line every interval.
type reporter struct {
	interval time.Time
	period   time.Duration

	total     uint64
	gaps      uint64
	sumLat    int64
	minLat    int64
	maxLat    int64
	haveLat   bool
	sinceLast uint64
}

func newReporter(period time.Duration) *reporter {
	return &reporter{interval: time.Now(), period: period}
}

func (r *reporter) observe(latencyNs int64) {
	r.total++
	r.sinceLast++
	r.sumLat += latencyNs
	if !r.haveLat || latencyNs < r.minLat {
		r.minLat = latencyNs
	}
	if !r.haveLat || latencyNs > r.maxLat {
		r.maxLat = latencyNs
	}
	r.haveLat = true
}

func (r *reporter) gap(last, got uint64) {
	r.gaps++
	log.Printf("⚠️ sequence gap: expected %d, got %d (missing %d)", last+1, got, got-last-1)
}

func (r *reporter) maybeReport() {
	if time.Since(r.interval) < r.period {
		return
	}
	elapsed := time.Since(r.interval).Seconds()
	rate := float64(r.sinceLast) / elapsed

	var meanLat int64
	if r.sinceLast > 0 {
		meanLat = r.sumLat / int64(r.sinceLast)
	}

	log.Printf(
		"📈 total=%d rate=%.1f/s gaps=%d latency_ns(min=%d mean=%d max=%d)",
		r.total, rate, r.gaps, r.minLat, meanLat, r.maxLat,
	)

	r.interval = time.Now()
	r.sumLat, r.minLat, r.maxLat, r.sinceLast, r.haveLat = 0, 0, 0, 0, false
}

func (r *reporter) final() {
	log.Printf("👋 subscriber stopped: total=%d gaps=%d", r.total, r.gaps)
}
