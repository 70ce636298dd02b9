package frame

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{Type: Request, Function: 0x13, Body: []byte{0x05, 0x20, 0x01, 0xff, 0x00}}

	wire, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if wire[0] != SOF {
		t.Fatalf("expected SOF prefix, got 0x%02x", wire[0])
	}

	p := &Parser{}
	var got *Frame
	for _, b := range wire[1:] {
		fr, err := p.Feed(b)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if fr != nil {
			got = fr
		}
	}

	if got == nil {
		t.Fatal("expected a decoded frame")
	}
	if got.Type != f.Type || got.Function != f.Function {
		t.Fatalf("decoded frame mismatch: %+v != %+v", got, f)
	}
	if len(got.Body) != len(f.Body) {
		t.Fatalf("decoded body length mismatch: %d != %d", len(got.Body), len(f.Body))
	}
	for i := range f.Body {
		if got.Body[i] != f.Body[i] {
			t.Fatalf("decoded body[%d] mismatch: 0x%02x != 0x%02x", i, got.Body[i], f.Body[i])
		}
	}
}

func TestChecksumDetectsSingleBitFlip(t *testing.T) {
	f := &Frame{Type: Response, Function: 0x02, Body: []byte{0x01, 0x02, 0x03}}
	wire, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip a single bit in the body.
	wire[5] ^= 0x01

	p := &Parser{}
	var gotErr error
	for _, b := range wire[1:] {
		if _, err := p.Feed(b); err != nil {
			gotErr = err
		}
	}
	if gotErr != ErrBadChecksum {
		t.Fatalf("expected ErrBadChecksum, got %v", gotErr)
	}
}

func TestChecksumSelfInverse(t *testing.T) {
	f := &Frame{Type: Request, Function: 0x46, Body: []byte{0xaa, 0x55, 0x00, 0xff}}
	wire, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	length := wire[1]
	typ := wire[2]
	fn := wire[3]
	body := wire[4 : len(wire)-1]
	sum := wire[len(wire)-1]

	if checksum(length, typ, fn, body) != sum {
		t.Fatalf("checksum mismatch on direct recomputation")
	}
	// XOR-ing the checksum byte back into the stream cancels every other
	// byte out, leaving 0x00 in place of the 0xff seed.
	recomputed := checksum(length, typ, fn, append(append([]byte{}, body...), sum))
	if recomputed != 0x00 {
		t.Fatalf("checksum not self-inverse: got 0x%02x want 0x00", recomputed)
	}
}

func TestBadPreambleBytesAreRejected(t *testing.T) {
	p := &Parser{}
	if _, err := p.Feed(2); err == nil {
		t.Fatal("expected error for length < 3")
	}
	// Parser should have reset and be usable again.
	if _, err := p.Feed(3); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}
