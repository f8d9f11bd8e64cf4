package subsample

import "github.com/go-webdl/packager/pkg/stream"

// AV1Tile is one tile-group payload span within an AV1 sample; everything
// outside the union of tile spans is OBU/header bytes and stays clear, per
// spec.md §4.3's AV1 rule.
type AV1Tile struct {
	Offset uint64
	Size   uint64
}

// GenerateAV1Subsamples builds the subsample list for one AV1 sample from
// its tile-group spans, assumed ordered and non-overlapping by Offset.
func GenerateAV1Subsamples(sampleSize uint64, tiles []AV1Tile, cbcs bool) []stream.SubsampleEntry {
	var spans []rawSpan
	var cursor uint64
	for _, t := range tiles {
		spans = append(spans, rawSpan{clear: t.Offset - cursor, cipher: t.Size})
		cursor = t.Offset + t.Size
	}
	if trailing := sampleSize - cursor; trailing > 0 {
		spans = append(spans, rawSpan{clear: trailing})
	}
	return alignAndMerge(spans, !cbcs)
}
