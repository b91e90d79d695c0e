// Command hermes-subscribe dials a broker, sends a Subscribe control
// frame, decodes the incoming stream, and prints a periodic rate/gap
// report: counts and a running min/max/mean end-to-end latency (receive
// time minus the frame's encode timestamp), never a full histogram.
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

const readChunk = 64 * 1024

func main() {
	godotenv.Load()

	addr := flag.String("addr", envOr("HERMES_HOST", "127.0.0.1:9999"), "broker address")
	reportEvery := flag.Duration("report", 5*time.Second, "report interval")
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

	enc := wireproto.NewEncoder(wireproto.HeaderSize)
	sub, ok := enc.Encode(wireproto.MsgSubscribe, 0, nil)
	if !ok {
		log.Fatal("encode subscribe frame")
	}
	if _, err := conn.Write(sub); err != nil {
		log.Fatalf("send subscribe: %v", err)
	}
	log.Printf("📡 subscribed to %s", *addr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	rep := newReporter(*reportEvery)
	buf := make([]byte, 0, readChunk)
	readBuf := make([]byte, readChunk)

	var lastSeq uint64
	var haveLastSeq bool

	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
		}
		if err != nil {
			if ctx.Err() != nil {
				rep.final()
				return
			}
			log.Fatalf("read: %v", err)
		}

		consumed := 0
		dec := wireproto.NewDecoder(buf)
		for {
			h, payload, ok := dec.Next()
			if !ok {
				break
			}
			consumed += wireproto.HeaderSize + len(payload)

			now := time.Now().UnixNano()
			if haveLastSeq && h.Sequence != lastSeq+1 {
				rep.gap(lastSeq, h.Sequence)
			}
			lastSeq = h.Sequence
			haveLastSeq = true

			rep.observe(now - int64(h.TimestampNs))
		}
		buf = buf[:copy(buf, buf[consumed:])]

		rep.maybeReport()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
