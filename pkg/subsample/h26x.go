package subsample

import (
	"github.com/go-webdl/packager/pkg/nalconv"
	"github.com/go-webdl/packager/pkg/stream"
)

// SliceHeaderSizer returns the number of bytes (including the NAL header
// byte) that make up naluType's slice header and must stay in the clear,
// mirroring original_source/packager/media/codecs/video_slice_header_parser.h's
// VideoSliceHeaderParser.GetHeaderSize. Callers inject a codec-specific
// implementation (H.264 or H.265) built from the stream's parameter sets.
type SliceHeaderSizer interface {
	HeaderSize(unit nalconv.Unit) (int64, error)
}

// GenerateH26xSubsamples builds the CENC subsample list for one H.264/H.265
// sample, already split into length-prefixed NAL units. Non-slice NALs stay
// fully clear; for each slice NAL, sizer reports how many leading bytes are
// the (clear) slice header, and the remainder is encrypted.
func GenerateH26xSubsamples(units []nalconv.Unit, lengthPrefixSize int, isSlice func(nalconv.Unit) bool, sizer SliceHeaderSizer, cbcs bool) ([]stream.SubsampleEntry, error) {
	var spans []rawSpan
	for _, u := range units {
		total := uint64(lengthPrefixSize + len(u.Data))
		if !isSlice(u) {
			spans = append(spans, rawSpan{clear: total})
			continue
		}
		headerSize, err := sizer.HeaderSize(u)
		if err != nil {
			return nil, err
		}
		clear := uint64(lengthPrefixSize) + uint64(headerSize)
		if clear > total {
			clear = total
		}
		spans = append(spans, rawSpan{clear: clear, cipher: total - clear})
	}
	return alignAndMerge(spans, !cbcs), nil
}

// appleSampleAESMinProtected is the smallest H.26x NAL (in bytes, including
// its length prefix) Apple's Sample-AES spec allows to be partially
// encrypted; anything at or below it is forwarded fully clear, per spec.md
// §4.3: "NALs ≤48 bytes are fully clear".
const appleSampleAESMinProtected = 48

// appleSampleAESClearLead is the number of leading bytes (after the length
// prefix) Apple Sample-AES always leaves clear in a protected H.26x NAL.
const appleSampleAESClearLead = 32

// GenerateAppleSampleAESH26xSubsamples implements spec.md §4.3's Apple
// Sample-AES rule for H.264/H.265: NALs at or below 48 bytes are fully
// clear; otherwise the length prefix plus the first 32 bytes are clear and
// the remainder, rounded down to whole 16-byte blocks, is encrypted.
func GenerateAppleSampleAESH26xSubsamples(units []nalconv.Unit, lengthPrefixSize int) []stream.SubsampleEntry {
	var spans []rawSpan
	for _, u := range units {
		total := uint64(lengthPrefixSize + len(u.Data))
		if total <= appleSampleAESMinProtected {
			spans = append(spans, rawSpan{clear: total})
			continue
		}
		clear := uint64(lengthPrefixSize + appleSampleAESClearLead)
		cipher := total - clear
		aligned := (cipher / blockSize) * blockSize
		spans = append(spans, rawSpan{clear: clear + (cipher - aligned), cipher: aligned})
	}
	// Apple Sample-AES spans are already block-aligned per-NAL above; no
	// further cross-NAL alignment or clear-run merging applies.
	var out []stream.SubsampleEntry
	for _, sp := range spans {
		out = append(out, splitClearRun(sp.clear, sp.cipher)...)
	}
	return out
}
