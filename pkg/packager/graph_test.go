package packager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-webdl/packager/pkg/chunking"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

func TestBuildPipelineMP4SkipEncryptionWritesFiles(t *testing.T) {
	dir := t.TempDir()
	desc := &StreamDescriptor{
		Output:         filepath.Join(dir, "video.m4s"),
		InitSegment:    filepath.Join(dir, "init.mp4"),
		Container:      MP4Container,
		SkipEncryption: true,
	}
	params := &JobParams{
		Chunking: chunking.Params{SegmentDurationSeconds: 2},
	}

	head, closer, err := BuildPipeline(desc, params, 1)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	defer closer.Close()

	info := &stream.StreamInfo{
		Type: stream.Video, CodecTag: "avc1", TimeScale: 90000,
		Width: 640, Height: 360,
	}
	if st := head.Process(&stream.StreamData{Type: stream.StreamInfoData, StreamInfo: info}); !status.Ok(st) {
		t.Fatalf("StreamInfo: %v", st)
	}

	for i := 0; i < 3; i++ {
		sample := &stream.MediaSample{
			DTS: int64(i) * 3000, PTS: int64(i) * 3000, Duration: 3000,
			IsKeyFrame: i == 0, Payload: []byte{0x00, 0x00, 0x00, 0x01, 0x65},
		}
		if st := head.Process(&stream.StreamData{Type: stream.MediaSampleData, MediaSample: sample}); !status.Ok(st) {
			t.Fatalf("MediaSample %d: %v", i, st)
		}
	}

	if st := head.OnFlushRequest(0); !status.Ok(st) {
		t.Fatalf("OnFlushRequest: %v", st)
	}

	if _, err := os.Stat(desc.InitSegment); err != nil {
		t.Fatalf("init segment not written: %v", err)
	}
	if _, err := os.Stat(desc.Output); err != nil {
		t.Fatalf("fragment output not written: %v", err)
	}
}

func TestBuildPipelineRejectsMissingOutput(t *testing.T) {
	desc := &StreamDescriptor{Container: MP4Container}
	_, _, err := BuildPipeline(desc, &JobParams{}, 1)
	if err == nil {
		t.Fatal("expected error for descriptor with neither output nor segment_template")
	}
}

func TestBuildPipelineRejectsBadSegmentTemplate(t *testing.T) {
	desc := &StreamDescriptor{SegmentTemplate: "chunk.m4s", Container: MP4Container}
	_, _, err := BuildPipeline(desc, &JobParams{}, 1)
	if err == nil {
		t.Fatal("expected error for segment_template missing $Number$/$Time$")
	}
}
