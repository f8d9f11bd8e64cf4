package mp2t

import (
	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// Sink receives the TS byte stream a Segmenter produces. Rotate closes the
// current segment (if any is open) and opens segmentNumber's output; for
// single-file output the caller's Sink implementation may treat Rotate as a
// no-op boundary marker and keep writing to the same underlying file, per
// spec.md §4.5.3's "for single-file output, segments are logical only".
type Sink interface {
	Rotate(segmentNumber uint32) error
	Write(p []byte) error
}

// Segmenter is the MPEG-2 TS muxer: a terminal Handler (mirroring
// ts_muxer.h's TsMuxer, a Muxer subclass with no downstream output) that
// turns one elementary stream's MediaSamples into TS packets and rotates
// segments on SegmentInfo boundaries.
type Segmenter struct {
	handler.Node

	sink Sink

	pesGen *PesPacketGenerator
	ts     *Writer

	streamType   stream.Type
	havePrevDTS  bool
	prevDTS      int64
	crossSegment bool
}

// NewSegmenter constructs a Segmenter writing to sink. transportStreamTimestampOffset
// is forwarded to the PesPacketGenerator, per spec.md §4.5.1.
func NewSegmenter(sink Sink, transportStreamTimestampOffset int64) *Segmenter {
	return &Segmenter{
		Node:   handler.InitNode(nil),
		sink:   sink,
		pesGen: NewPesPacketGenerator(transportStreamTimestampOffset),
	}
}

func (s *Segmenter) Initialize() *status.Status { return nil }

func (s *Segmenter) Process(data *stream.StreamData) *status.Status {
	switch data.Type {
	case stream.StreamInfoData:
		return s.onStreamInfo(data.StreamInfo)
	case stream.MediaSampleData:
		return s.onMediaSample(data.MediaSample)
	case stream.SegmentInfoData:
		return s.onSegmentInfo(data.SegmentInfo)
	default:
		return nil
	}
}

// OnFlushRequest is a terminal no-op: a Segmenter has no output ports to
// propagate flush to (ts_muxer.h's TsMuxer is always the last stage of its
// branch of the handler graph).
func (s *Segmenter) OnFlushRequest(inputPort int) *status.Status {
	return nil
}

func (s *Segmenter) onStreamInfo(info *stream.StreamInfo) *status.Status {
	s.streamType = info.Type
	var st uint8
	switch info.Type {
	case stream.Video:
		st = StreamTypeAVC
	case stream.Audio:
		st = StreamTypeAAC
	default:
		return status.New(status.InvalidArgument, "mp2t: unsupported stream type %s", info.Type)
	}
	s.ts = NewWriter(st)
	return s.pesGen.Initialize(info)
}

func (s *Segmenter) onMediaSample(sample *stream.MediaSample) *status.Status {
	if s.streamType == stream.Video {
		if st := CheckMonotonic(s.prevDTS, s.havePrevDTS, sample.DTS); !status.Ok(st) {
			return st
		}
	}
	s.prevDTS, s.havePrevDTS = sample.DTS, true

	if st := s.pesGen.PushSample(sample); !status.Ok(st) {
		return st
	}
	for s.pesGen.NumberOfReadyPesPackets() > 0 {
		pes := s.pesGen.GetNextPesPacket()
		needPCR := (s.streamType == stream.Video && pes.IsKeyFrame) || s.crossSegment
		s.crossSegment = false
		if err := s.sink.Write(s.ts.WritePes(pes, needPCR)); err != nil {
			return status.Wrap(status.FileFailure, err, "mp2t: writing ts packets")
		}
	}
	return nil
}

// onSegmentInfo rotates to the next segment file. Any sample already
// pushed to pesGen has already produced its PesPacket (PushSample never
// buffers across samples), so there is no partial PES to flush here;
// video's "segments start on an access unit" invariant is enforced upstream
// by ChunkingHandler only closing segments at key frames.
func (s *Segmenter) onSegmentInfo(info *stream.SegmentInfo) *status.Status {
	if err := s.sink.Rotate(info.SegmentNumber); err != nil {
		return status.Wrap(status.FileFailure, err, "mp2t: rotating segment")
	}
	if err := s.sink.Write(s.ts.NewSegment()); err != nil {
		return status.Wrap(status.FileFailure, err, "mp2t: writing pat/pmt")
	}
	s.crossSegment = true
	return nil
}
