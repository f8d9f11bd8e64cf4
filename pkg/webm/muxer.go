package webm

import (
	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// Sink receives the init segment once (EBML header + open Segment carrying
// Info/Tracks) and one Cluster byte stream per fragment, mirroring
// pkg/mp4frag.Sink's WriteInit/Rotate/Write contract.
type Sink interface {
	WriteInit(p []byte) error
	Rotate(segmentNumber uint32) error
	Write(p []byte) error
}

// Muxer is the WebM equivalent of pkg/mp2t.Segmenter and
// pkg/mp4frag.Muxer: a terminal Handler that turns one track's
// StreamInfo/MediaSample/SegmentInfo messages into an EBML init segment
// plus one Cluster per segment boundary, per webm_muxer.h's
// InitializeMuxer/AddMediaSample/FinalizeSegment contract.
type Muxer struct {
	handler.Node

	sink Sink

	trackNumber uint64
	timescale   uint32

	cluster *ClusterBuilder

	havePrevDTS bool
	prevDTS     int64

	initWritten bool
}

// NewMuxer constructs a Muxer for trackNumber, writing to sink.
func NewMuxer(trackNumber uint64, sink Sink) *Muxer {
	return &Muxer{Node: handler.InitNode(nil), trackNumber: trackNumber, sink: sink}
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

// OnFlushRequest is a terminal no-op, matching pkg/mp2t.Segmenter and
// pkg/mp4frag.Muxer: a Muxer is always the last stage of its branch.
func (m *Muxer) OnFlushRequest(inputPort int) *status.Status {
	return nil
}

func (m *Muxer) onStreamInfo(info *stream.StreamInfo) *status.Status {
	m.timescale = info.TimeScale
	m.cluster = NewClusterBuilder(m.trackNumber, info.TimeScale)

	builder := &InitSegmentBuilder{TrackNumber: m.trackNumber, Info: info}
	initSeg, err := builder.Build()
	if err != nil {
		return status.Wrap(status.Internal, err, "webm: building init segment")
	}
	if err := m.sink.WriteInit(initSeg); err != nil {
		return status.Wrap(status.FileFailure, err, "webm: writing init segment")
	}
	m.initWritten = true
	return nil
}

func (m *Muxer) onMediaSample(sample *stream.MediaSample) *status.Status {
	if st := CheckMonotonic(m.prevDTS, m.havePrevDTS, sample.DTS); !status.Ok(st) {
		return st
	}
	m.prevDTS, m.havePrevDTS = sample.DTS, true

	if m.cluster == nil {
		m.cluster = NewClusterBuilder(m.trackNumber, m.timescale)
	}

	// A cluster whose span would overflow SimpleBlock's signed 16-bit
	// relative timecode must be flushed early, independent of the next
	// SegmentInfo boundary.
	if m.cluster.Overflows(sample.DTS) {
		if st := m.flushCluster(0); !status.Ok(st) {
			return st
		}
		m.cluster = NewClusterBuilder(m.trackNumber, m.timescale)
	}

	m.cluster.AddSample(sample)
	return nil
}

func (m *Muxer) onSegmentInfo(info *stream.SegmentInfo) *status.Status {
	if st := m.flushCluster(info.SegmentNumber); !status.Ok(st) {
		return st
	}
	m.cluster = NewClusterBuilder(m.trackNumber, m.timescale)
	return nil
}

func (m *Muxer) flushCluster(segmentNumber uint32) *status.Status {
	if m.cluster == nil || m.cluster.Empty() {
		return nil
	}
	out := m.cluster.Finalize()
	if err := m.sink.Rotate(segmentNumber); err != nil {
		return status.Wrap(status.FileFailure, err, "webm: rotating segment")
	}
	if err := m.sink.Write(out); err != nil {
		return status.Wrap(status.FileFailure, err, "webm: writing cluster")
	}
	return nil
}

// CheckMonotonic mirrors pkg/mp2t.CheckMonotonic and pkg/mp4frag.CheckMonotonic:
// a track's DTS must never decrease.
func CheckMonotonic(prevDTS int64, havePrev bool, dts int64) *status.Status {
	if havePrev && dts < prevDTS {
		return status.Wrap(status.InvalidArgument, status.ErrNonMonotonicTimestamp,
			"webm: dts went backwards")
	}
	return nil
}
