package subsample

import "github.com/go-webdl/packager/pkg/stream"

// aacClearLead is the number of leading clear bytes in a Sample-AES
// protected AAC frame, per spec.md §4.3: "AAC (Sample-AES): first 16 bytes
// clear, remainder encrypted".
const aacClearLead = 16

// aacMinProtected is the smallest AAC frame size eligible for partial
// encryption; shorter frames are forwarded fully clear, matching the H.26x
// "frames below the minimum size are fully clear" rule applied to audio.
const aacMinProtected = 32

// GenerateAACSubsamples builds the Sample-AES subsample for one AAC frame.
// Returns nil (full-sample encryption, i.e. CENC with no subsamples) when
// cenc is true, since CENC audio is always full-sample per spec.md §4.3.
func GenerateAACSubsamples(sampleSize uint64, cenc bool) []stream.SubsampleEntry {
	if cenc {
		return nil
	}
	if sampleSize <= aacMinProtected {
		return []stream.SubsampleEntry{{ClearBytes: uint16(sampleSize)}}
	}
	return []stream.SubsampleEntry{{ClearBytes: aacClearLead, CipherBytes: uint32(sampleSize - aacClearLead)}}
}
