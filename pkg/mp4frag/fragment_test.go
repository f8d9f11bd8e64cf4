package mp4frag

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-webdl/packager/pkg/stream"
)

func TestUnencryptedFragmentLayout(t *testing.T) {
	fb := NewFragmentBuilder(1, 90000, 0)
	fb.AddSample(&stream.MediaSample{
		DTS: 0, PTS: 0, Duration: 1000, IsKeyFrame: true,
		Payload: []byte{0xAA, 0xBB, 0xCC, 0xDD},
	})

	out, nextBase, err := fb.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if nextBase != 1000 {
		t.Fatalf("nextBase = %d, want 1000", nextBase)
	}

	moofSize := int(binary.BigEndian.Uint32(out[0:4]))
	if !bytes.Equal(out[4:8], []byte("moof")) {
		t.Fatalf("expected moof at offset 0, got %q", out[4:8])
	}

	mdatStart := moofSize
	if !bytes.Equal(out[mdatStart+4:mdatStart+8], []byte("mdat")) {
		t.Fatalf("expected mdat at offset %d, got %q", mdatStart, out[mdatStart+4:mdatStart+8])
	}
	mdatPayload := out[mdatStart+8:]
	if !bytes.Equal(mdatPayload, []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Fatalf("mdat payload = % X, want AA BB CC DD", mdatPayload)
	}

	// trun is the last box inside traf, the last box inside moof. Its
	// data_offset field (4 bytes after version/flags+sample_count) must
	// equal the byte distance from moof's start to the first mdat payload
	// byte: the whole moof box plus mdat's 8-byte header.
	trunIdx := bytes.LastIndex(out[:moofSize], []byte("trun"))
	if trunIdx < 0 {
		t.Fatal("trun box not found")
	}
	dataOffsetPos := trunIdx + 4 + 4 + 4
	gotDataOffset := binary.BigEndian.Uint32(out[dataOffsetPos : dataOffsetPos+4])
	wantDataOffset := uint32(moofSize + 8)
	if gotDataOffset != wantDataOffset {
		t.Fatalf("trun data_offset = %d, want %d", gotDataOffset, wantDataOffset)
	}

	sampleFlagsPos := dataOffsetPos + 4 + 4 + 4 // sample_duration, sample_size, then sample_flags
	gotFlags := binary.BigEndian.Uint32(out[sampleFlagsPos : sampleFlagsPos+4])
	if gotFlags != syncSampleFlags {
		t.Fatalf("sample_flags = %#x, want %#x (sync sample)", gotFlags, syncSampleFlags)
	}
}

func TestCencSaioPointsAtSencIV(t *testing.T) {
	fb := NewFragmentBuilder(2, 90000, 5000)
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	fb.AddSample(&stream.MediaSample{
		DTS: 5000, PTS: 5000, Duration: 1000, IsKeyFrame: true, IsEncrypted: true,
		Payload:       []byte{0x01, 0x02, 0x03, 0x04},
		DecryptConfig: &stream.DecryptConfig{Scheme: stream.CENC, IV: iv},
	})

	out, nextBase, err := fb.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if nextBase != 6000 {
		t.Fatalf("nextBase = %d, want 6000", nextBase)
	}

	moofSize := int(binary.BigEndian.Uint32(out[0:4]))
	saioIdx := bytes.Index(out[:moofSize], []byte("saio"))
	if saioIdx < 0 {
		t.Fatal("saio box not found")
	}
	offsetPos := saioIdx + 4 + 4 + 4 // type, version/flags, entry_count
	gotOffset := binary.BigEndian.Uint32(out[offsetPos : offsetPos+4])

	ivBytes := out[gotOffset : gotOffset+8]
	if !bytes.Equal(ivBytes, iv) {
		t.Fatalf("saio offset %d does not point at senc's IV: got % X, want % X", gotOffset, ivBytes, iv)
	}
}
