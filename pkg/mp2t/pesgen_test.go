package mp2t

import (
	"bytes"
	"testing"

	"github.com/go-webdl/packager/pkg/stream"
)

// TestConvertVideoEscapesEncryptedPayload checks that a Sample-AES-encrypted
// H.264 sample has any accidental 00 00 <=3 start-code-like sequence in its
// ciphertext escaped before framing, while a clear sample's bytes (which
// already contain no such run by construction) pass through unescaped.
func TestConvertVideoEscapesEncryptedPayload(t *testing.T) {
	g := NewPesPacketGenerator(0)
	info := &stream.StreamInfo{Type: stream.Video, CodecTag: "avc1", NALUnitLengthSize: 4, TimeScale: 1000}
	if st := g.Initialize(info); st != nil {
		t.Fatalf("initialize: %v", st)
	}

	// One length-prefixed NAL unit (type 1, non-IDR slice) whose payload
	// contains an accidental 00 00 01 run, as Sample-AES ciphertext might.
	nalBody := []byte{0x01, 0xAA, 0x00, 0x00, 0x01, 0xBB}
	lengthPrefixed := append([]byte{0x00, 0x00, 0x00, byte(len(nalBody))}, nalBody...)

	clear := &stream.MediaSample{Payload: append([]byte{}, lengthPrefixed...), IsEncrypted: false}
	out, st := g.convertVideo(clear)
	if st != nil {
		t.Fatalf("convertVideo (clear): %v", st)
	}
	if !bytes.Contains(out, []byte{0x00, 0x00, 0x01, 0xBB}) {
		t.Error("clear sample's bytes must pass through without escaping")
	}

	encrypted := &stream.MediaSample{Payload: append([]byte{}, lengthPrefixed...), IsEncrypted: true}
	out, st = g.convertVideo(encrypted)
	if st != nil {
		t.Fatalf("convertVideo (encrypted): %v", st)
	}
	if bytes.Contains(out, []byte{0x00, 0x00, 0x01, 0xBB}) {
		t.Error("encrypted sample's accidental 00 00 01 run must be escaped")
	}
	if !bytes.Contains(out, []byte{0x00, 0x00, 0x03, 0x01, 0xBB}) {
		t.Error("expected the escape byte 0x03 inserted after the accidental run")
	}
}
