package subsample

import "github.com/go-webdl/packager/pkg/stream"

// VPxFrameInfo describes one (super)frame's sub-frame layout, as produced by
// a VPx bitstream parser, mirroring
// original_source/packager/media/codecs/vpx_parser.h's VPxFrameInfo struct.
type VPxFrameInfo struct {
	FrameSize              uint64
	UncompressedHeaderSize uint64
}

// GenerateVP9Subsamples builds the subsample list for one VP9 sample, given
// its parsed sub-frames and the total sample size (frames plus any trailing
// superframe index, which stays fully clear). cbcs disables 16-byte block
// alignment, per spec.md §4.3.
func GenerateVP9Subsamples(sampleSize uint64, frames []VPxFrameInfo, cbcs bool) []stream.SubsampleEntry {
	var spans []rawSpan
	var consumed uint64
	for _, f := range frames {
		spans = append(spans, rawSpan{
			clear:  f.UncompressedHeaderSize,
			cipher: f.FrameSize - f.UncompressedHeaderSize,
		})
		consumed += f.FrameSize
	}
	if trailing := sampleSize - consumed; trailing > 0 {
		spans = append(spans, rawSpan{clear: trailing})
	}
	return alignAndMerge(spans, !cbcs)
}
