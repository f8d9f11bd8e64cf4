// Package chunking implements ChunkingHandler, injecting SegmentInfo and
// CueEvent boundary messages into a sample stream while forwarding every
// sample unchanged, per spec.md §4.2.
//
// Directly grounded on
// original_source/packager/media/chunking/chunking_handler.h: the field
// names below (segmentDuration/subsegmentDuration/currentSegmentIndex/
// segmentStartTime) mirror its private state, translated from the
// optional<int64_t>/-1-sentinel C++ idiom into Go's explicit
// bool-for-started idiom.
package chunking

import (
	"log/slog"

	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// Params configures a ChunkingHandler, per spec.md §6's chunking_params.
type Params struct {
	SegmentDurationSeconds    float64
	SubsegmentDurationSeconds float64
}

// Handler splits incoming samples into segments and subsegments using the
// consistent chunking algorithm (spec.md §4.2): a consistent chunkable
// boundary is the first key-frame (video) or any sample (audio) whose dts
// falls in a different segment_duration bucket than its predecessor.
type Handler struct {
	handler.Node

	params Params

	streamIndex int
	streamType stream.Type
	timeScale  uint32

	segmentDuration    int64
	subsegmentDuration int64

	currentSegmentIndex    int64
	currentSubsegmentIndex int64

	segmentStarted    bool
	segmentStartTime  int64
	subsegmentStarted bool
	subsegmentStartTime int64

	lastDTS      int64
	lastDuration int64
	haveLastDTS  bool
}

// New constructs a ChunkingHandler. logger may be nil (defaults to
// slog.Default()).
func New(params Params, logger *slog.Logger) *Handler {
	return &Handler{Node: handler.InitNode(logger), params: params}
}

func (h *Handler) Initialize() *status.Status {
	return nil
}

func (h *Handler) subsegmentEnabled() bool {
	return h.subsegmentDuration > 0 && h.subsegmentDuration != h.segmentDuration
}

func (h *Handler) Process(data *stream.StreamData) *status.Status {
	switch data.Type {
	case stream.StreamInfoData:
		return h.onStreamInfo(data)
	case stream.CueEventData:
		return h.onCueEvent(data)
	case stream.MediaSampleData:
		return h.onMediaSample(data)
	default:
		return h.Dispatch(data)
	}
}

func (h *Handler) onStreamInfo(data *stream.StreamData) *status.Status {
	info := data.StreamInfo
	h.streamIndex = data.StreamIndex
	h.streamType = info.Type
	h.timeScale = info.TimeScale
	h.segmentDuration = int64(h.params.SegmentDurationSeconds * float64(info.TimeScale))
	h.subsegmentDuration = int64(h.params.SubsegmentDurationSeconds * float64(info.TimeScale))
	h.currentSegmentIndex = -1
	h.currentSubsegmentIndex = -1
	return h.Dispatch(data)
}

// isChunkable reports whether dts is a consistent chunkable boundary: the
// bucket floor(dts/duration) differs from the previous sample's bucket, and
// (for video) the sample is a key-frame. Audio is chunkable at every sample.
func (h *Handler) isChunkable(dts int64, isKeyFrame bool, duration int64) bool {
	if duration <= 0 {
		return false
	}
	if h.streamType == stream.Video && !isKeyFrame {
		return false
	}
	if !h.haveLastDTS {
		return false
	}
	return bucket(dts, duration) != bucket(h.lastDTS, duration)
}

func bucket(t, duration int64) int64 {
	if t >= 0 {
		return t / duration
	}
	// Floor division for negative t, matching floor(t/N) semantics.
	q := t / duration
	if t%duration != 0 {
		q--
	}
	return q
}

func (h *Handler) onMediaSample(data *stream.StreamData) *status.Status {
	sample := data.MediaSample
	dts := sample.DTS

	// A video stream must not start its first segment on a non-key frame:
	// drop leading non-key samples entirely until the first key frame
	// arrives, per chunking_handler_unittest.cc's
	// VideoAndSubsegmentAndNonzeroStart case ("the first sample is
	// discarded - not key frame").
	if h.streamType == stream.Video && !h.segmentStarted && !sample.IsKeyFrame {
		return nil
	}

	if h.haveLastDTS && dts < h.lastDTS {
		return status.Wrap(status.Internal, status.ErrNonMonotonicTimestamp,
			"chunking handler received non-monotonic dts")
	}
	if sample.Duration > 1<<62 {
		return status.New(status.Internal, "sample duration overflow")
	}

	if !h.segmentStarted {
		h.startSegment(dts)
	} else {
		if h.isChunkable(dts, sample.IsKeyFrame, h.segmentDuration) {
			if s := h.endSegment(dts); !status.Ok(s) {
				return s
			}
			h.startSegment(dts)
		} else if h.subsegmentEnabled() && h.isChunkable(dts, sample.IsKeyFrame, h.subsegmentDuration) {
			if s := h.endSubsegment(dts); !status.Ok(s) {
				return s
			}
			h.startSubsegment(dts)
		}
	}

	h.lastDTS = dts
	h.lastDuration = int64(sample.Duration)
	h.haveLastDTS = true

	return h.Dispatch(data)
}

func (h *Handler) startSegment(dts int64) {
	h.segmentStarted = true
	h.segmentStartTime = dts
	h.currentSegmentIndex++
	if h.subsegmentEnabled() {
		h.startSubsegment(dts)
	}
}

func (h *Handler) startSubsegment(dts int64) {
	h.subsegmentStarted = true
	h.subsegmentStartTime = dts
	h.currentSubsegmentIndex++
}

func (h *Handler) endSegment(dts int64) *status.Status {
	if !h.segmentStarted {
		return nil
	}
	info := &stream.SegmentInfo{
		StartTime:     h.segmentStartTime,
		Duration:      dts - h.segmentStartTime,
		SegmentNumber: uint32(h.currentSegmentIndex),
	}
	h.segmentStarted = false
	h.subsegmentStarted = false
	return h.Dispatch(stream.NewSegmentInfoData(h.streamIndex, info))
}

func (h *Handler) endSubsegment(dts int64) *status.Status {
	if !h.subsegmentStarted {
		return nil
	}
	info := &stream.SegmentInfo{
		StartTime:     h.subsegmentStartTime,
		Duration:      dts - h.subsegmentStartTime,
		IsSubsegment:  true,
		SegmentNumber: uint32(h.currentSubsegmentIndex),
	}
	h.subsegmentStarted = false
	return h.Dispatch(stream.NewSegmentInfoData(h.streamIndex, info))
}

// onCueEvent closes the current segment immediately (even mid-GoP), forwards
// the cue, and resets segment bookkeeping so the next sample opens a new
// segment. That segment starts at the next sample's DTS; the cue's
// TimeInSeconds is not used to set its start time.
func (h *Handler) onCueEvent(data *stream.StreamData) *status.Status {
	if s := h.endSegment(h.lastDTS); !status.Ok(s) {
		return s
	}
	if s := h.Dispatch(data); !status.Ok(s) {
		return s
	}
	h.segmentStarted = false
	h.currentSegmentIndex = -1
	h.currentSubsegmentIndex = -1
	return nil
}

// OnFlushRequest closes any open segment with its accumulated duration and
// forwards it, then propagates flush downstream.
func (h *Handler) OnFlushRequest(inputPort int) *status.Status {
	end := h.lastDTS + h.lastDuration
	if h.subsegmentStarted && h.subsegmentEnabled() {
		if s := h.endSubsegment(end); !status.Ok(s) {
			return s
		}
	}
	if h.segmentStarted {
		if s := h.endSegment(end); !status.Ok(s) {
			return s
		}
	}
	return h.DispatchFlush()
}
