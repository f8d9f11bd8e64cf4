package chunking

import (
	"testing"

	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// sink records every StreamData it receives, for assertions.
type sink struct {
	handler.Node
	received []*stream.StreamData
}

func newSink() *sink { return &sink{Node: handler.InitNode(nil)} }

func (s *sink) Initialize() *status.Status { return nil }
func (s *sink) Process(data *stream.StreamData) *status.Status {
	s.received = append(s.received, data)
	return nil
}
func (s *sink) OnFlushRequest(int) *status.Status { return nil }

func wire(t *testing.T, h *Handler, s *sink) {
	t.Helper()
	if err := h.AddOutput(0, s, 0); err != nil {
		t.Fatalf("wiring failed: %v", err)
	}
}

// TestAudioNoSubsegmentsFlush reproduces spec.md §8's literal audio scenario:
// StreamInfo (time-scale 800), 5 samples at dts {0,300,600,900,1200} each
// duration 300, segment=1s. Expected: StreamInfo, 3 samples, a SegmentInfo
// closing at 900, 2 more samples, then on flush a SegmentInfo{900,600}.
func TestAudioNoSubsegmentsFlush(t *testing.T) {
	h := New(Params{SegmentDurationSeconds: 1.0}, nil)
	s := newSink()
	wire(t, h, s)
	if st := h.Initialize(); !status.Ok(st) {
		t.Fatalf("initialize: %v", st)
	}

	info := &stream.StreamInfo{Type: stream.Audio, TimeScale: 800}
	if st := h.Process(stream.NewStreamInfoData(0, info)); !status.Ok(st) {
		t.Fatalf("process stream info: %v", st)
	}

	dtsSeq := []int64{0, 300, 600, 900, 1200}
	for _, dts := range dtsSeq {
		sample := &stream.MediaSample{DTS: dts, Duration: 300, IsKeyFrame: true}
		if st := h.Process(stream.NewMediaSampleData(0, sample)); !status.Ok(st) {
			t.Fatalf("process sample@%d: %v", dts, st)
		}
	}
	if st := h.OnFlushRequest(0); !status.Ok(st) {
		t.Fatalf("flush: %v", st)
	}

	var gotSegments []*stream.SegmentInfo
	var gotSampleDTS []int64
	for _, d := range s.received {
		switch d.Type {
		case stream.SegmentInfoData:
			gotSegments = append(gotSegments, d.SegmentInfo)
		case stream.MediaSampleData:
			gotSampleDTS = append(gotSampleDTS, d.MediaSample.DTS)
		}
	}

	wantSampleDTS := []int64{0, 300, 600, 900, 1200}
	if len(gotSampleDTS) != len(wantSampleDTS) {
		t.Fatalf("got %d samples, want %d", len(gotSampleDTS), len(wantSampleDTS))
	}
	for i, want := range wantSampleDTS {
		if gotSampleDTS[i] != want {
			t.Errorf("sample[%d] dts = %d, want %d", i, gotSampleDTS[i], want)
		}
	}

	if len(gotSegments) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(gotSegments), gotSegments)
	}
	if gotSegments[0].StartTime != 0 || gotSegments[0].Duration != 900 {
		t.Errorf("segment[0] = %+v, want {start:0 dur:900}", gotSegments[0])
	}
	if gotSegments[1].StartTime != 900 || gotSegments[1].Duration != 600 {
		t.Errorf("segment[1] = %+v, want {start:900 dur:600}", gotSegments[1])
	}

	// The SegmentInfo must be emitted before sample@900 (interleaving check).
	segIdx, sampleIdx := -1, -1
	for i, d := range s.received {
		if d.Type == stream.SegmentInfoData && segIdx == -1 {
			segIdx = i
		}
		if d.Type == stream.MediaSampleData && d.MediaSample.DTS == 900 {
			sampleIdx = i
		}
	}
	if segIdx == -1 || sampleIdx == -1 || segIdx > sampleIdx {
		t.Errorf("expected SegmentInfo before sample@900, got segIdx=%d sampleIdx=%d", segIdx, sampleIdx)
	}
}

// TestNonMonotonicDTSFatal covers spec.md §4.2's failure mode: a
// non-monotonic dts is fatal.
func TestNonMonotonicDTSFatal(t *testing.T) {
	h := New(Params{SegmentDurationSeconds: 1.0}, nil)
	s := newSink()
	wire(t, h, s)
	h.Initialize()
	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Audio, TimeScale: 800}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 300, Duration: 300}))
	st := h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 100, Duration: 300}))
	if status.Ok(st) {
		t.Fatal("expected failure for non-monotonic dts")
	}
}

// TestVideoDropsLeadingNonKeyFrame reproduces spec.md §8's "Video with
// subsegment, non-zero start" scenario: the first sample, a non-key frame,
// is discarded rather than used to start a segment; the segment instead
// starts at the first key frame.
func TestVideoDropsLeadingNonKeyFrame(t *testing.T) {
	h := New(Params{SegmentDurationSeconds: 1.0, SubsegmentDurationSeconds: 0.5}, nil)
	s := newSink()
	wire(t, h, s)
	h.Initialize()
	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Video, TimeScale: 1000}))

	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 12345, Duration: 300, IsKeyFrame: false}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 12645, Duration: 300, IsKeyFrame: true}))
	h.OnFlushRequest(0)

	var gotSampleDTS []int64
	for _, d := range s.received {
		if d.Type == stream.MediaSampleData {
			gotSampleDTS = append(gotSampleDTS, d.MediaSample.DTS)
		}
	}

	if len(gotSampleDTS) != 1 || gotSampleDTS[0] != 12645 {
		t.Fatalf("got forwarded sample dts %v, want only [12645] (leading non-key sample dropped)", gotSampleDTS)
	}
}

// TestCueEventClosesSegmentImmediately covers spec.md §8's CueEvent scenario:
// a cue mid-GoP closes the segment right away and restarts bookkeeping.
func TestCueEventClosesSegmentImmediately(t *testing.T) {
	h := New(Params{SegmentDurationSeconds: 1.0}, nil)
	s := newSink()
	wire(t, h, s)
	h.Initialize()
	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Video, TimeScale: 1000}))

	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 12345, Duration: 300, IsKeyFrame: true}))
	h.Process(stream.NewCueEventData(0, &stream.CueEvent{TimeInSeconds: float64(12345+300) / 1000}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 12645, Duration: 300, IsKeyFrame: true}))

	var gotCue bool
	var segCount int
	for _, d := range s.received {
		if d.Type == stream.CueEventData {
			gotCue = true
		}
		if d.Type == stream.SegmentInfoData {
			segCount++
		}
	}
	if !gotCue {
		t.Error("expected CueEvent to be forwarded")
	}
	if segCount != 1 {
		t.Errorf("expected exactly 1 SegmentInfo before flush, got %d", segCount)
	}
}
