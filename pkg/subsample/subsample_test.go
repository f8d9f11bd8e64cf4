package subsample

import "testing"

func entriesEqual(t *testing.T, got []spanPair, want []spanPair) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d entries %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("entry[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

type spanPair struct {
	clear  uint16
	cipher uint32
}

// TestAV1SubsampleScenario reproduces spec.md §8's literal AV1 example: two
// tiles at offsets {4, 11} with sizes {6, 33} in a 50-byte sample yield
// {(12,32),(6,0)}.
func TestAV1SubsampleScenario(t *testing.T) {
	got := GenerateAV1Subsamples(50, []AV1Tile{{Offset: 4, Size: 6}, {Offset: 11, Size: 33}}, false)
	var pairs []spanPair
	for _, e := range got {
		pairs = append(pairs, spanPair{e.ClearBytes, e.CipherBytes})
	}
	entriesEqual(t, pairs, []spanPair{{12, 32}, {6, 0}})
}

// TestVP9SuperframeScenario reproduces spec.md §8's literal VP9 example: two
// sub-frames of sizes {10, 34} with uncompressed-header sizes {4, 1} in a
// 50-byte sample yield {(12,32),(6,0)} (the trailing 6 bytes are the
// superframe index).
func TestVP9SuperframeScenario(t *testing.T) {
	got := GenerateVP9Subsamples(50, []VPxFrameInfo{
		{FrameSize: 10, UncompressedHeaderSize: 4},
		{FrameSize: 34, UncompressedHeaderSize: 1},
	}, false)
	var pairs []spanPair
	for _, e := range got {
		pairs = append(pairs, spanPair{e.ClearBytes, e.CipherBytes})
	}
	entriesEqual(t, pairs, []spanPair{{12, 32}, {6, 0}})
}

// TestVP9CbcsNoAlignment verifies cbcs disables 16-byte block alignment:
// the same sub-frames yield unaligned cipher spans.
func TestVP9CbcsNoAlignment(t *testing.T) {
	got := GenerateVP9Subsamples(50, []VPxFrameInfo{
		{FrameSize: 10, UncompressedHeaderSize: 4},
		{FrameSize: 34, UncompressedHeaderSize: 1},
	}, true)
	var pairs []spanPair
	for _, e := range got {
		pairs = append(pairs, spanPair{e.ClearBytes, e.CipherBytes})
	}
	entriesEqual(t, pairs, []spanPair{{4, 6}, {1, 33}, {6, 0}})
}

// TestSubsampleTotality checks testable property 2: the sum of every
// (clear+cipher) span equals the sample payload size.
func TestSubsampleTotality(t *testing.T) {
	entries := GenerateAV1Subsamples(50, []AV1Tile{{Offset: 4, Size: 6}, {Offset: 11, Size: 33}}, false)
	var total uint64
	for _, e := range entries {
		total += uint64(e.ClearBytes) + uint64(e.CipherBytes)
	}
	if total != 50 {
		t.Errorf("subsample totality violated: sum=%d, want 50", total)
	}
}

// TestPatternAlignment checks testable property 3: under non-cbcs schemes,
// every cipher_bytes value is a multiple of 16.
func TestPatternAlignment(t *testing.T) {
	entries := GenerateAV1Subsamples(50, []AV1Tile{{Offset: 4, Size: 6}, {Offset: 11, Size: 33}}, false)
	for _, e := range entries {
		if e.CipherBytes%16 != 0 {
			t.Errorf("cipher span %d is not 16-byte aligned", e.CipherBytes)
		}
	}
}

// TestAACSubsamples covers spec.md §4.3's AAC Sample-AES rule.
func TestAACSubsamples(t *testing.T) {
	got := GenerateAACSubsamples(100, false)
	if len(got) != 1 || got[0].ClearBytes != 16 || got[0].CipherBytes != 84 {
		t.Fatalf("got %+v, want {16,84}", got)
	}
	small := GenerateAACSubsamples(20, false)
	if len(small) != 1 || small[0].ClearBytes != 20 || small[0].CipherBytes != 0 {
		t.Fatalf("got %+v for small frame, want fully clear", small)
	}
	if GenerateAACSubsamples(100, true) != nil {
		t.Fatal("cenc AAC must be full-sample (nil subsamples)")
	}
}
