package webm

import (
	"fmt"

	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// timecodeScale is the EBML Info TimecodeScale in nanoseconds per tick: one
// million nanoseconds, i.e. one tick per millisecond, matching libwebm's
// default and letting
// Cluster/SimpleBlock timecodes be plain milliseconds.
const timecodeScale = 1_000_000

// codecID maps a StreamInfo.CodecTag onto the WebM CodecID string, per the
// Matroska CodecID registry's "V_"/"A_" track-entry convention.
func codecID(tag string) (string, error) {
	switch tag {
	case "vp8":
		return "V_VP8", nil
	case "vp9", "vp09":
		return "V_VP9", nil
	case "av01", "av1":
		return "V_AV1", nil
	case "opus":
		return "A_OPUS", nil
	case "vorbis":
		return "A_VORBIS", nil
	default:
		return "", fmt.Errorf("webm: codec %q: %w", tag, status.ErrUnknownCodec)
	}
}

// InitSegmentBuilder builds the EBML header plus the open (unknown-size)
// Segment element carrying Info and Tracks, written once per track before
// any Cluster, mirroring webm_muxer.h's InitializeMuxer step.
type InitSegmentBuilder struct {
	TrackNumber uint64
	Info        *stream.StreamInfo
}

func (b *InitSegmentBuilder) buildEBMLHeader() []byte {
	return master(idEBML,
		uintElement(idEBMLVersion, 1),
		uintElement(idEBMLReadVersion, 1),
		uintElement(idEBMLMaxIDLength, 4),
		uintElement(idEBMLMaxSizeLength, 8),
		stringElement(idDocType, "webm"),
		uintElement(idDocTypeVersion, 4),
		uintElement(idDocTypeReadVersion, 2),
	)
}

func (b *InitSegmentBuilder) buildInfo() []byte {
	return master(idInfo,
		uintElement(idTimecodeScale, timecodeScale),
		stringElement(idMuxingApp, "go-webdl/packager"),
		stringElement(idWritingApp, "go-webdl/packager"),
	)
}

func (b *InitSegmentBuilder) buildTrackEntry() ([]byte, error) {
	id, err := codecID(b.Info.CodecTag)
	if err != nil {
		return nil, err
	}

	children := []([]byte){
		uintElement(idTrackNumber, b.TrackNumber),
		uintElement(idTrackUID, b.TrackNumber),
		stringElement(idCodecID, id),
	}

	switch b.Info.Type {
	case stream.Video:
		children = append(children, uintElement(idTrackType, trackTypeVideo))
		children = append(children, master(idVideo,
			uintElement(idPixelWidth, uint64(b.Info.Width)),
			uintElement(idPixelHeight, uint64(b.Info.Height)),
		))
	case stream.Audio:
		children = append(children, uintElement(idTrackType, trackTypeAudio))
		children = append(children, master(idAudio,
			element(idSamplingFrequency, encodeFloat64(float64(b.Info.SamplingFreq))),
			uintElement(idChannels, uint64(b.Info.Channels)),
			uintElement(idBitDepth, uint64(b.Info.SampleBits)),
		))
	default:
		return nil, fmt.Errorf("webm: unsupported track type %v: %w", b.Info.Type, status.ErrInvalidParam)
	}

	if len(b.Info.CodecConfig) > 0 {
		children = append(children, element(idCodecPrivate, b.Info.CodecConfig))
	}

	return master(idTrackEntry, children...), nil
}

// Build returns the EBML header followed by an open Segment element (an
// unknown-size vint, since Clusters are appended afterward one at a time)
// containing Info and Tracks.
func (b *InitSegmentBuilder) Build() ([]byte, error) {
	trackEntry, err := b.buildTrackEntry()
	if err != nil {
		return nil, err
	}
	tracks := master(idTracks, trackEntry)
	info := b.buildInfo()

	segmentBody := append(append([]byte(nil), info...), tracks...)
	segment := append(append([]byte(nil), idSegment...), unknownSize()...)
	segment = append(segment, segmentBody...)

	out := append(b.buildEBMLHeader(), segment...)
	return out, nil
}
