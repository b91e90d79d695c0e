// Command hermes-publish dials a broker and sends a steady rate of
// Publish frames with monotonically increasing sequence numbers and a
// configurable payload size. It's a synthetic load generator, not part
// of the broker itself.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlephTX/hermes/wireproto"
)

func main() {
	godotenv.Load()

	addr := flag.String("addr", envOr("HERMES_HOST", "127.0.0.1:9999"), "broker address")
	rate := flag.Int("rate", 1000, "publish frames per second")
	payloadSize := flag.Int("payload", 72, "payload size in bytes")
	count := flag.Int("count", 0, "stop after this many frames (0 = unbounded)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	payload := make([]byte, *payloadSize)
	enc := wireproto.NewEncoder(wireproto.HeaderSize + *payloadSize)

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	var sent int

	log.Printf("📤 publishing to %s at %d/s, payload=%dB", *addr, *rate, *payloadSize)

	for {
		select {
		case <-ctx.Done():
			log.Printf("👋 publisher stopped after %d frames", sent)
			return
		case <-ticker.C:
			enc.Reset()
			frame, ok := enc.Encode(wireproto.MsgPublish, seq, payload)
			if !ok {
				log.Fatalf("encode: payload too large")
			}
			if _, err := conn.Write(frame); err != nil {
				log.Fatalf("write seq=%d: %v", seq, err)
			}
			seq++
			sent++
			if *count > 0 && sent >= *count {
				log.Printf("✅ sent %d frames", sent)
				return
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
