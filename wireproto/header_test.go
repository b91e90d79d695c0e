package wireproto

import "testing"

func TestHeaderSize(t *testing.T) {
	if HeaderSize != 32 {
		t.Fatalf("HeaderSize = %d, want 32", HeaderSize)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:       Magic,
		Version:     Version,
		MsgType:     uint8(MsgPublish),
		Sequence:    42,
		TimestampNs: 123456789,
		PayloadLen:  100,
	}

	buf := make([]byte, HeaderSize)
	PutHeader(buf, &h)

	parsed, ok := ReadHeader(buf)
	if !ok {
		t.Fatal("ReadHeader failed on valid header")
	}
	if parsed.Sequence != 42 || parsed.PayloadLen != 100 {
		t.Fatalf("roundtrip mismatch: %+v", parsed)
	}

	cast := HeaderFromBytes(buf)
	if cast == nil {
		t.Fatal("HeaderFromBytes failed on valid header")
	}
	if cast.Sequence != 42 || cast.PayloadLen != 100 {
		t.Fatalf("cast mismatch: %+v", *cast)
	}
}

func TestIsValid(t *testing.T) {
	cases := []struct {
		name string
		h    Header
		want bool
	}{
		{"valid", Header{Magic: Magic, Version: Version, PayloadLen: 0}, true},
		{"valid-max-payload", Header{Magic: Magic, Version: Version, PayloadLen: MaxPayloadSize}, true},
		{"bad-magic", Header{Magic: 0, Version: Version}, false},
		{"bad-version", Header{Magic: Magic, Version: 2}, false},
		{"payload-too-large", Header{Magic: Magic, Version: Version, PayloadLen: MaxPayloadSize + 1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.h.IsValid(); got != c.want {
				t.Fatalf("IsValid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	// checksum of empty payload: a=1, b=0 -> (0<<16)|1 == 1
	if got := Checksum(nil); got != 1 {
		t.Fatalf("Checksum(nil) = %d, want 1", got)
	}

	payload := []byte("hello")
	var a, b uint32 = 1, 0
	for _, x := range payload {
		a += uint32(x)
		b += a
	}
	want := (b << 16) | a
	if got := Checksum(payload); got != want {
		t.Fatalf("Checksum(%q) = %d, want %d", payload, got, want)
	}
}

func TestHeaderFromBytesTooShort(t *testing.T) {
	if HeaderFromBytes(make([]byte, HeaderSize-1)) != nil {
		t.Fatal("expected nil for short buffer")
	}
	if _, ok := ReadHeader(make([]byte, HeaderSize-1)); ok {
		t.Fatal("expected ok=false for short buffer")
	}
}
