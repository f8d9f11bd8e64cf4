package subsample

import (
	"github.com/go-webdl/packager/pkg/nalconv"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// VPxParser parses one VP9 sample (possibly a superframe) into its
// constituent sub-frames, mirroring
// original_source/packager/media/codecs/vpx_parser.h's VPxParser interface.
type VPxParser interface {
	Parse(frame []byte) ([]VPxFrameInfo, error)
}

// AV1Parser parses one AV1 sample into its tile-group spans, mirroring
// original_source/packager/media/codecs/av1_parser.cc's role.
type AV1Parser interface {
	Parse(frame []byte) ([]AV1Tile, error)
}

// SliceHeaderSizer's HeaderSize also returns a plain error (see h26x.go);
// all three parser interfaces here report failures as plain errors rather
// than *status.Status since they are internal parsing primitives, not
// pipeline-visible operations. Generate wraps them into a Status.

// Generator computes subsample spans for one encrypted track, dispatching
// by codec the way original_source/packager/media/crypto/subsample_generator.h's
// SubsampleGenerator does (GenerateSubsamplesFrom{VPx,H26x,AV1}Frame).
type Generator struct {
	vp9SubsampleEncryption bool

	codecTag       string
	scheme         stream.ProtectionScheme
	naluLengthSize uint8

	vpxParser VPxParser
	av1Parser AV1Parser
	sizer     SliceHeaderSizer
}

// New constructs a Generator. vp9SubsampleEncryption mirrors the
// constructor parameter of the same name in subsample_generator.h: when
// false, VP9 samples are always fully encrypted regardless of scheme.
func New(vp9SubsampleEncryption bool) *Generator {
	return &Generator{
		vp9SubsampleEncryption: vp9SubsampleEncryption,
		vpxParser:              VP9SuperframeParser{},
		av1Parser:              AV1OBUParser{},
	}
}

// Initialize configures the generator for one stream, per
// SubsampleGenerator::Initialize. sizer must be supplied when the stream is
// H.264/H.265; vpxParser/av1Parser may be nil to keep the defaults New
// installed (InjectVpxParserForTesting's Go equivalent: pass a non-nil value
// to override).
func (g *Generator) Initialize(scheme stream.ProtectionScheme, info *stream.StreamInfo, vpxParser VPxParser, av1Parser AV1Parser, sizer SliceHeaderSizer) *status.Status {
	g.scheme = scheme
	g.codecTag = info.CodecTag
	g.naluLengthSize = info.NALUnitLengthSize
	if vpxParser != nil {
		g.vpxParser = vpxParser
	}
	if av1Parser != nil {
		g.av1Parser = av1Parser
	}
	g.sizer = sizer
	return nil
}

// Generate computes the subsample list for one sample's payload. An empty,
// non-nil-error result means full-sample encryption (no subsamples
// attached), matching SubsampleGenerator::GenerateSubsamples's "empty on
// full sample encrypted" contract.
func (g *Generator) Generate(payload []byte) ([]stream.SubsampleEntry, *status.Status) {
	switch g.codecTag {
	case "vp09":
		if !g.vp9SubsampleEncryption {
			return nil, nil
		}
		frames, err := g.vpxParser.Parse(payload)
		if err != nil {
			return nil, status.Wrap(status.EncryptionError, err, "failed to parse vp9 frame")
		}
		return GenerateVP9Subsamples(uint64(len(payload)), frames, g.scheme == stream.CBCS), nil

	case "av01":
		tiles, err := g.av1Parser.Parse(payload)
		if err != nil {
			return nil, status.Wrap(status.EncryptionError, err, "failed to parse av1 obus")
		}
		return GenerateAV1Subsamples(uint64(len(payload)), tiles, g.scheme == stream.CBCS), nil

	case "avc1", "avc3", "hvc1", "hev1":
		units, err := nalconv.SplitLengthPrefixed(payload, g.naluLengthSize)
		if err != nil {
			return nil, status.Wrap(status.EncryptionError, err, "failed to split nal units")
		}
		isSlice := func(u nalconv.Unit) bool {
			if g.codecTag == "hvc1" || g.codecTag == "hev1" {
				return nalconv.IsHEVCSlice(nalconv.HEVCNaluType(u))
			}
			return nalconv.IsAVCSlice(nalconv.AVCNaluType(u))
		}
		if g.scheme == stream.AppleSampleAES {
			return GenerateAppleSampleAESH26xSubsamples(units, int(g.naluLengthSize)), nil
		}
		entries, err := GenerateH26xSubsamples(units, int(g.naluLengthSize), isSlice, g.sizer, g.scheme == stream.CBCS)
		if err != nil {
			return nil, status.Wrap(status.EncryptionError, err, "failed to compute h26x subsamples")
		}
		return entries, nil

	case "mp4a":
		if g.scheme == stream.AppleSampleAES {
			return GenerateAACSubsamples(uint64(len(payload)), false), nil
		}
		return nil, nil

	default:
		return nil, nil
	}
}
