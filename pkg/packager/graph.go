package packager

import (
	"fmt"
	"io"

	"github.com/go-webdl/packager/pkg/chunking"
	"github.com/go-webdl/packager/pkg/crypto"
	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/mp2t"
	"github.com/go-webdl/packager/pkg/mp4frag"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/webm"
)

// BuildPipeline wires chunking.Handler -> [crypto.Handler, unless
// SkipEncryption] -> the muxer selected by desc.Container into one branch
// of the media-handler graph (spec.md §4.1), using handler.Graph to
// validate the wiring (acyclic, every output connected) and to run
// Initialize on every node in one pass. No Origin is registered on the
// returned Graph: demuxing -input into StreamData is out of scope for this
// port (SPEC_FULL.md's Non-goals), so the caller feeds the returned head
// handler directly via Process/OnFlushRequest rather than via Graph.Run.
//
// trackID is the muxer-level track identifier (fMP4 track_ID / WebM
// TrackNumber); TSContainer streams ignore it, since pkg/mp2t writes every
// stream on its fixed ElementaryPid.
func BuildPipeline(desc *StreamDescriptor, params *JobParams, trackID uint32) (handler.Handler, io.Closer, error) {
	if err := validateDescriptor(desc); err != nil {
		return nil, nil, err
	}

	muxerHandler, closer, err := buildMuxer(desc, params, trackID)
	if err != nil {
		return nil, nil, err
	}

	chunkingHandler := chunking.New(params.Chunking, params.Logger)

	g := handler.NewGraph()
	g.AddNode(chunkingHandler)
	g.AddNode(muxerHandler)

	var head handler.Handler = chunkingHandler
	if desc.SkipEncryption {
		if err := g.Connect(chunkingHandler, 0, muxerHandler, 0); err != nil {
			return nil, nil, err
		}
	} else {
		cryptoHandler := crypto.New(params.Encryption, params.KeySource, params.Sizer, params.Logger)
		g.AddNode(cryptoHandler)
		if err := g.Connect(chunkingHandler, 0, cryptoHandler, 0); err != nil {
			return nil, nil, err
		}
		if err := g.Connect(cryptoHandler, 0, muxerHandler, 0); err != nil {
			return nil, nil, err
		}
	}

	if st := g.Initialize(); !status.Ok(st) {
		return nil, nil, st
	}

	return head, closer, nil
}

func validateDescriptor(desc *StreamDescriptor) error {
	if desc.SegmentTemplate != "" {
		if err := ValidateSegmentTemplate(desc.SegmentTemplate); err != nil {
			return err
		}
	}
	if desc.Output == "" && desc.SegmentTemplate == "" {
		return fmt.Errorf("packager: stream descriptor needs either output or segment_template")
	}
	return nil
}

func buildMuxer(desc *StreamDescriptor, params *JobParams, trackID uint32) (handler.Handler, io.Closer, error) {
	switch desc.Container {
	case TSContainer:
		sink := NewTSFileSink(desc)
		return mp2t.NewSegmenter(sink, params.TransportStreamTimestampOffset), sink, nil
	case MP4Container:
		sink := NewFragmentedFileSink(desc)
		return mp4frag.NewMuxer(trackID, sink), sink, nil
	case WebMContainer:
		sink := NewFragmentedFileSink(desc)
		return webm.NewMuxer(uint64(trackID), sink), sink, nil
	default:
		return nil, nil, fmt.Errorf("packager: unsupported container format %v", desc.Container)
	}
}
