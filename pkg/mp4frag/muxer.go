package mp4frag

import (
	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// Sink receives the init segment once and one moof+mdat byte stream per
// fragment. Mirrors pkg/mp2t.Sink's Rotate/Write contract; WriteInit is
// split out since an fMP4 init segment is written exactly once, unlike the
// TS muxer's PAT/PMT which repeats at every segment boundary.
type Sink interface {
	WriteInit(p []byte) error
	Rotate(segmentNumber uint32) error
	Write(p []byte) error
}

// Muxer is the fragmented-MP4 equivalent of pkg/mp2t.Segmenter: a terminal
// Handler (no output ports) that turns one track's StreamInfo/MediaSample/
// SegmentInfo messages into an init segment plus a moof+mdat fragment per
// segment boundary, per spec.md §4.6 and fragmenter.h's
// InitializeFragment/AddSample/FinalizeFragment contract.
type Muxer struct {
	handler.Node

	sink Sink

	trackID uint32

	frag                *FragmentBuilder
	baseMediaDecodeTime uint64
	timescale           uint32

	havePrevDTS bool
	prevDTS     int64

	// info and initWritten defer init-segment construction until the first
	// sample's DecryptConfig is known, when the stream is encrypted: tenc's
	// KeyID/pattern/constant-IV fields travel on DecryptConfig
	// (pkg/stream.DecryptConfig), not on StreamInfo.
	info        *stream.StreamInfo
	initWritten bool
}

// NewMuxer constructs a Muxer for trackID, writing to sink.
func NewMuxer(trackID uint32, sink Sink) *Muxer {
	return &Muxer{Node: handler.InitNode(nil), trackID: trackID, sink: sink}
}

func (m *Muxer) Initialize() *status.Status { return nil }

func (m *Muxer) Process(data *stream.StreamData) *status.Status {
	switch data.Type {
	case stream.StreamInfoData:
		return m.onStreamInfo(data.StreamInfo)
	case stream.MediaSampleData:
		return m.onMediaSample(data.MediaSample)
	case stream.SegmentInfoData:
		return m.onSegmentInfo(data.SegmentInfo)
	default:
		return nil
	}
}

// OnFlushRequest is a terminal no-op, matching pkg/mp2t.Segmenter: a Muxer
// is always the last stage of its branch of the handler graph.
func (m *Muxer) OnFlushRequest(inputPort int) *status.Status {
	return nil
}

func (m *Muxer) onStreamInfo(info *stream.StreamInfo) *status.Status {
	m.timescale = info.TimeScale
	m.info = info
	m.frag = NewFragmentBuilder(m.trackID, info.TimeScale, 0)

	if info.Encrypted {
		// Deferred: tenc's KeyID/pattern/constant-IV come from the first
		// sample's DecryptConfig, written once that sample arrives.
		return nil
	}
	return m.writeInitSegment(nil)
}

func (m *Muxer) writeInitSegment(dc *stream.DecryptConfig) *status.Status {
	builder := &InitSegmentBuilder{
		TrackID:    m.trackID,
		Info:       m.info,
		StreamName: m.info.Type.String(),
	}
	if dc != nil {
		builder.Key = &stream.EncryptionKey{KeyID: dc.KeyID}
		builder.Scheme = dc.Scheme
		builder.ConstantIV = dc.ConstantIV
		builder.CryptByteBlock = dc.CryptByteBlock
		builder.SkipByteBlock = dc.SkipByteBlock
	}
	initSeg, err := builder.Build()
	if err != nil {
		return status.Wrap(status.Internal, err, "mp4frag: building init segment")
	}
	if err := m.sink.WriteInit(initSeg); err != nil {
		return status.Wrap(status.FileFailure, err, "mp4frag: writing init segment")
	}
	m.initWritten = true
	return nil
}

func (m *Muxer) onMediaSample(sample *stream.MediaSample) *status.Status {
	if st := CheckMonotonic(m.prevDTS, m.havePrevDTS, sample.DTS); !status.Ok(st) {
		return st
	}
	m.prevDTS, m.havePrevDTS = sample.DTS, true

	if !m.initWritten && sample.IsEncrypted {
		if st := m.writeInitSegment(sample.DecryptConfig); !status.Ok(st) {
			return st
		}
	}

	if m.frag == nil {
		m.frag = NewFragmentBuilder(m.trackID, m.timescale, 0)
	}
	m.frag.AddSample(sample)
	return nil
}

func (m *Muxer) onSegmentInfo(info *stream.SegmentInfo) *status.Status {
	out, nextBase, err := m.frag.Finalize()
	if err != nil {
		return status.Wrap(status.Internal, err, "mp4frag: finalizing fragment")
	}
	if out != nil {
		if err := m.sink.Rotate(info.SegmentNumber); err != nil {
			return status.Wrap(status.FileFailure, err, "mp4frag: rotating segment")
		}
		if err := m.sink.Write(out); err != nil {
			return status.Wrap(status.FileFailure, err, "mp4frag: writing fragment")
		}
	}
	m.baseMediaDecodeTime = nextBase
	m.frag = NewFragmentBuilder(m.trackID, m.timescale, m.baseMediaDecodeTime)
	return nil
}

// CheckMonotonic mirrors pkg/mp2t.CheckMonotonic: a track's DTS must never
// decrease, per spec.md §4.6's ordering invariant (shared across container
// muxers).
func CheckMonotonic(prevDTS int64, havePrev bool, dts int64) *status.Status {
	if havePrev && dts < prevDTS {
		return status.Wrap(status.InvalidArgument, status.ErrNonMonotonicTimestamp,
			"mp4frag: dts went backwards")
	}
	return nil
}
