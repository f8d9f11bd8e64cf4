// Package subsample computes (clear_bytes, cipher_bytes) subsample spans for
// encrypted MediaSamples, per spec.md §4.3.
//
// Grounded on
// original_source/packager/media/crypto/subsample_generator.h (the
// SubsampleGenerator class: per-codec dispatch to
// GenerateSubsamplesFrom{VPx,H26x,AV1}Frame, vp9_subsample_encryption flag,
// align_protected_data_ flag for cbcs) and
// original_source/packager/media/codecs/vpx_parser.h (VPxFrameInfo's
// frame_size/uncompressed_header_size fields, reused below as VPxFrameInfo).
package subsample

import "github.com/go-webdl/packager/pkg/stream"

const blockSize = 16
const maxClearRun = 65535 // SubsampleEntry.ClearBytes is a uint16.

// rawSpan is one (clear, cipher) span before 16-byte alignment and
// clear-merge is applied.
type rawSpan struct {
	clear  uint64
	cipher uint64
}

// alignAndMerge converts a sequence of raw (clear, cipher) spans covering a
// whole sample into the final subsample list: for cbcs no alignment is
// applied; for every other scheme each cipher span is rounded down to a
// 16-byte boundary, the residue folds into that span's own clear count, and
// any resulting clear-only span merges forward into the next cipher-bearing
// span (a clear-only span at the very end of the sample, e.g. a VP9
// superframe index, has no "next" and is emitted standalone). Clear-only
// runs longer than 65535 bytes are split into multiple entries so every
// ClearBytes value fits in a uint16, per spec.md §4.3's "big clear-only
// segments" rule.
func alignAndMerge(spans []rawSpan, blockAligned bool) []stream.SubsampleEntry {
	if blockAligned {
		for i := range spans {
			cipher := spans[i].cipher
			aligned := (cipher / blockSize) * blockSize
			spans[i].clear += cipher - aligned
			spans[i].cipher = aligned
		}
	}

	var merged []rawSpan
	var pendingClear uint64
	for _, sp := range spans {
		if sp.cipher == 0 {
			pendingClear += sp.clear
			continue
		}
		merged = append(merged, rawSpan{clear: pendingClear + sp.clear, cipher: sp.cipher})
		pendingClear = 0
	}

	var out []stream.SubsampleEntry
	for _, sp := range merged {
		out = append(out, splitClearRun(sp.clear, sp.cipher)...)
	}
	if pendingClear > 0 {
		out = append(out, splitClearRun(pendingClear, 0)...)
	}
	return out
}

// splitClearRun emits clear as a run of <=maxClearRun chunks, attaching
// cipher to the final chunk only.
func splitClearRun(clear, cipher uint64) []stream.SubsampleEntry {
	if clear <= maxClearRun {
		return []stream.SubsampleEntry{{ClearBytes: uint16(clear), CipherBytes: uint32(cipher)}}
	}
	var out []stream.SubsampleEntry
	for clear > maxClearRun {
		out = append(out, stream.SubsampleEntry{ClearBytes: maxClearRun})
		clear -= maxClearRun
	}
	out = append(out, stream.SubsampleEntry{ClearBytes: uint16(clear), CipherBytes: uint32(cipher)})
	return out
}
