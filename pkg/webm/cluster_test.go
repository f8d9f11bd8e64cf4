package webm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-webdl/packager/pkg/stream"
)

func TestClusterTimecodeAndSimpleBlock(t *testing.T) {
	cb := NewClusterBuilder(1, 1000) // 1000 ticks/sec -> 1 tick = 1ms
	cb.AddSample(&stream.MediaSample{DTS: 5000, IsKeyFrame: true, Payload: []byte{0xDE, 0xAD}})
	cb.AddSample(&stream.MediaSample{DTS: 5040, IsKeyFrame: false, Payload: []byte{0xBE, 0xEF}})

	out := cb.Finalize()
	if !bytes.Equal(out[0:4], idCluster) {
		t.Fatalf("cluster id = % X, want % X", out[0:4], idCluster)
	}

	tcIdx := bytes.Index(out, idTimecode)
	if tcIdx < 0 {
		t.Fatal("Timecode element not found")
	}
	// Timecode element: id(1) + size(1, value<128) + 1-byte payload (5000ms
	// needs 2 bytes though - recompute via encodeUint).
	tcLen := int(out[tcIdx+1] &^ 0x80)
	tcVal := uint64(0)
	for i := 0; i < tcLen; i++ {
		tcVal = tcVal<<8 | uint64(out[tcIdx+2+i])
	}
	if tcVal != 5000 {
		t.Fatalf("cluster timecode = %d, want 5000", tcVal)
	}

	firstBlockIdx := bytes.Index(out, idSimpleBlock)
	if firstBlockIdx < 0 {
		t.Fatal("first SimpleBlock not found")
	}
	secondBlockIdx := bytes.Index(out[firstBlockIdx+1:], idSimpleBlock)
	if secondBlockIdx < 0 {
		t.Fatal("second SimpleBlock not found")
	}
	secondBlockIdx += firstBlockIdx + 1

	// SimpleBlock body: vint(track#, 1 byte here) + int16 relative timecode
	// + flags + payload.
	secondSizeLen := 1 // body is short enough for a 1-byte size vint
	relPos := secondBlockIdx + 1 + secondSizeLen + 1
	rel := int16(binary.BigEndian.Uint16(out[relPos : relPos+2]))
	if rel != 40 {
		t.Fatalf("second block relative timecode = %d, want 40", rel)
	}
	flagsPos := relPos + 2
	if out[flagsPos] != 0 {
		t.Fatalf("second block flags = %#x, want 0 (not a keyframe)", out[flagsPos])
	}
	payload := out[flagsPos+1 : flagsPos+3]
	if !bytes.Equal(payload, []byte{0xBE, 0xEF}) {
		t.Fatalf("second block payload = % X, want BE EF", payload)
	}
}

func TestClusterOverflowDetection(t *testing.T) {
	cb := NewClusterBuilder(1, 1000)
	cb.AddSample(&stream.MediaSample{DTS: 0, IsKeyFrame: true, Payload: []byte{0x01}})

	if cb.Overflows(30000) {
		t.Fatal("30000ms span should fit in a signed 16-bit relative timecode")
	}
	if !cb.Overflows(40000) {
		t.Fatal("40000ms span should overflow a signed 16-bit relative timecode")
	}
}
