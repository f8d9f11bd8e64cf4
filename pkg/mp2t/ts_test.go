package mp2t

import (
	"bytes"
	"testing"
)

// TestPayload183Bytes reproduces spec.md §8's "TS 183-byte payload" worked
// example: a TS packet whose payload is exactly 183 bytes begins
// 47 00 50 31 00 (adaptation_field_length = 0).
func TestPayload183Bytes(t *testing.T) {
	w := NewWriter(StreamTypeAVC)
	data := make([]byte, 345)
	for i := range data {
		data[i] = 0xAF
	}
	pes := &PesPacket{StreamID: 0xE0, PTS: 0, HasPTS: true, IsKeyFrame: true, Data: data}

	out := w.WritePes(pes, true)
	if len(out) != 2*PacketSize {
		t.Fatalf("got %d bytes, want %d (2 ts packets)", len(out), 2*PacketSize)
	}

	second := out[PacketSize : PacketSize+5]
	want := []byte{0x47, 0x00, 0x50, 0x31, 0x00}
	if !bytes.Equal(second, want) {
		t.Fatalf("second packet prefix = % X, want % X", second, want)
	}
}

// TestContinuityCounterIncrements checks testable property 6: the
// continuity counter for a pid increments by 1 mod 16 on each
// payload-carrying packet.
func TestContinuityCounterIncrements(t *testing.T) {
	w := NewWriter(StreamTypeAVC)
	data := make([]byte, 600)
	pes := &PesPacket{StreamID: 0xE0, PTS: 0, HasPTS: true, Data: data}

	out := w.WritePes(pes, false)
	n := len(out) / PacketSize
	if n < 2 {
		t.Fatalf("expected multiple ts packets, got %d", n)
	}
	for i := 0; i < n; i++ {
		cc := out[i*PacketSize+3] & 0x0F
		if int(cc) != i%16 {
			t.Errorf("packet %d continuity counter = %d, want %d", i, cc, i%16)
		}
	}
}

// TestPATPMTByteLayout reproduces ts_writer_unittest.cc's InitializeVideoH264
// / NewSegment PAT+PMT byte vectors for this muxer's fixed PIDs.
func TestPATPMTByteLayout(t *testing.T) {
	w := NewWriter(StreamTypeAVC)
	out := w.NewSegment()
	if len(out) != 2*PacketSize {
		t.Fatalf("got %d bytes, want %d", len(out), 2*PacketSize)
	}

	pat := out[:PacketSize]
	wantPatPrefix := []byte{0x47, 0x40, 0x00, 0x30, 0xA6, 0x00}
	if !bytes.Equal(pat[:6], wantPatPrefix) {
		t.Fatalf("pat prefix = % X, want % X", pat[:6], wantPatPrefix)
	}
	wantPatPayload := []byte{
		0x00, 0x00, 0xB0, 0x0D, 0x00, 0x00, 0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE0, 0x20,
	}
	gotPatPayload := pat[6+165 : 6+165+len(wantPatPayload)]
	if !bytes.Equal(gotPatPayload, wantPatPayload) {
		t.Fatalf("pat payload = % X, want % X", gotPatPayload, wantPatPayload)
	}

	pmt := out[PacketSize:]
	wantPmtPrefix := []byte{0x47, 0x40, 0x20, 0x30, 0xA1, 0x00}
	if !bytes.Equal(pmt[:6], wantPmtPrefix) {
		t.Fatalf("pmt prefix = % X, want % X", pmt[:6], wantPmtPrefix)
	}
	wantPmtPayload := []byte{
		0x00, 0x02, 0xB0, 0x12, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0xE0, 0x50, 0xF0, 0x00,
		0x1B, 0xE0, 0x50, 0xF0, 0x00,
	}
	gotPmtPayload := pmt[6+160 : 6+160+len(wantPmtPayload)]
	if !bytes.Equal(gotPmtPayload, wantPmtPayload) {
		t.Fatalf("pmt payload = % X, want % X", gotPmtPayload, wantPmtPayload)
	}
}

// TestNonMonotonicPTSFatal checks that a video pid's decreasing DTS is
// rejected, per spec.md §4.5's "non-monotonic PTS within a PID is fatal".
func TestNonMonotonicPTSFatal(t *testing.T) {
	if st := CheckMonotonic(1000, true, 500); st == nil {
		t.Fatal("expected a fatal status for decreasing dts")
	}
	if st := CheckMonotonic(1000, true, 1000); st != nil {
		t.Fatalf("equal dts should not be fatal: %v", st)
	}
}
