package webm

import (
	"bytes"
	"testing"

	"github.com/go-webdl/packager/pkg/stream"
)

type fakeSink struct {
	init     []byte
	rotated  []uint32
	clusters [][]byte
}

func (f *fakeSink) WriteInit(p []byte) error {
	f.init = append([]byte(nil), p...)
	return nil
}

func (f *fakeSink) Rotate(segmentNumber uint32) error {
	f.rotated = append(f.rotated, segmentNumber)
	return nil
}

func (f *fakeSink) Write(p []byte) error {
	f.clusters = append(f.clusters, append([]byte(nil), p...))
	return nil
}

func TestMuxerWritesInitOnceAndRotatesPerSegment(t *testing.T) {
	sink := &fakeSink{}
	m := NewMuxer(1, sink)

	info := &stream.StreamInfo{
		Type: stream.Video, CodecTag: "vp9", TimeScale: 1000,
		Width: 1280, Height: 720,
	}
	if st := m.Process(&stream.StreamData{Type: stream.StreamInfoData, StreamInfo: info}); st != nil {
		t.Fatalf("onStreamInfo: %v", st)
	}
	if sink.init == nil {
		t.Fatal("init segment not written")
	}
	if !bytes.Equal(sink.init[0:4], idEBML) {
		t.Fatalf("init segment does not start with EBML id: % X", sink.init[0:4])
	}

	sample := &stream.MediaSample{DTS: 0, IsKeyFrame: true, Payload: []byte{1, 2, 3}}
	if st := m.Process(&stream.StreamData{Type: stream.MediaSampleData, MediaSample: sample}); st != nil {
		t.Fatalf("onMediaSample: %v", st)
	}

	segInfo := &stream.SegmentInfo{SegmentNumber: 1}
	if st := m.Process(&stream.StreamData{Type: stream.SegmentInfoData, SegmentInfo: segInfo}); st != nil {
		t.Fatalf("onSegmentInfo: %v", st)
	}

	if len(sink.rotated) != 1 || sink.rotated[0] != 1 {
		t.Fatalf("rotated = %v, want [1]", sink.rotated)
	}
	if len(sink.clusters) != 1 {
		t.Fatalf("clusters written = %d, want 1", len(sink.clusters))
	}
	if !bytes.Equal(sink.clusters[0][0:4], idCluster) {
		t.Fatalf("cluster id = % X, want % X", sink.clusters[0][0:4], idCluster)
	}

	// An empty trailing segment boundary (no samples since the last one)
	// must not emit a second, empty cluster.
	segInfo2 := &stream.SegmentInfo{SegmentNumber: 2}
	if st := m.Process(&stream.StreamData{Type: stream.SegmentInfoData, SegmentInfo: segInfo2}); st != nil {
		t.Fatalf("onSegmentInfo (empty): %v", st)
	}
	if len(sink.clusters) != 1 {
		t.Fatalf("clusters written after empty boundary = %d, want 1", len(sink.clusters))
	}
}

func TestMuxerRejectsNonMonotonicDTS(t *testing.T) {
	sink := &fakeSink{}
	m := NewMuxer(1, sink)
	info := &stream.StreamInfo{Type: stream.Audio, CodecTag: "opus", TimeScale: 48000, Channels: 2, SamplingFreq: 48000, SampleBits: 16}
	m.Process(&stream.StreamData{Type: stream.StreamInfoData, StreamInfo: info})

	m.Process(&stream.StreamData{Type: stream.MediaSampleData, MediaSample: &stream.MediaSample{DTS: 1000, Payload: []byte{1}}})
	st := m.Process(&stream.StreamData{Type: stream.MediaSampleData, MediaSample: &stream.MediaSample{DTS: 500, Payload: []byte{2}}})
	if st == nil {
		t.Fatal("expected non-monotonic DTS to be rejected")
	}
}
