// Package packager defines the external interface of the packaging tool:
// StreamDescriptor and the other configuration structs a CLI (or any other
// caller) fills in, the $Number$/$Time$ segment-template validator that
// gates segment-path computation, and the Sink/pipeline wiring that turns
// one stream descriptor into a running chunking -> [encryption] -> muxer
// chain feeding real files, per spec.md §6.
package packager

import (
	"log/slog"

	"github.com/go-webdl/packager/pkg/chunking"
	"github.com/go-webdl/packager/pkg/crypto"
	"github.com/go-webdl/packager/pkg/subsample"
)

// ContainerFormat selects which muxer a StreamDescriptor's output uses.
type ContainerFormat int

const (
	UnknownContainer ContainerFormat = iota
	TSContainer
	MP4Container
	WebMContainer
)

// StreamDescriptor is the per-output-stream configuration a caller supplies,
// mirroring spec.md §6's stream-descriptor fields. Input is an opaque label
// here (a caller-specific path or URI); this package does not open it.
type StreamDescriptor struct {
	Input          string
	StreamSelector string // "audio" | "video" | "text" | a zero-based index
	Output         string // single-file sink path, empty if SegmentTemplate is set
	SegmentTemplate string // "$Number$"/"$Time$" multi-segment sink path
	InitSegment    string // init-segment path, required when SegmentTemplate is set for fMP4/WebM

	Language         string // BCP-47, also accepts ISO-639-2
	DRMLabel         string
	HLSGroupID       string
	HLSName          string
	HLSPlaylistName  string
	TrickPlayFactor  uint32
	SkipEncryption   bool

	Container ContainerFormat
}

// JobParams bundles the shared, cross-stream configuration a packaging run
// needs: chunking/encryption policy, the key source, and the optional
// slice-header sizer required for CENC subsample generation on H.264/H.265.
type JobParams struct {
	Chunking   chunking.Params
	Encryption crypto.Params
	KeySource  crypto.KeySource
	Sizer      subsample.SliceHeaderSizer
	Logger     *slog.Logger

	// TransportStreamTimestampOffset is forwarded to pkg/mp2t.NewSegmenter
	// for TSContainer streams; ignored otherwise.
	TransportStreamTimestampOffset int64
}

// Notifier receives lifecycle events for one stream's packaging run,
// mirroring webm_muxer.h's FireOnMediaStartEvent/FireOnMediaEndEvent hooks
// generalized across all three muxer families.
type Notifier interface {
	// OnMediaStart fires once the stream's StreamInfo is known and the init
	// segment (if any) has been written.
	OnMediaStart(desc *StreamDescriptor)

	// OnMediaEnd fires once the stream has been fully flushed.
	OnMediaEnd(desc *StreamDescriptor)

	// OnSegmentWritten fires after each segment boundary is flushed to the
	// sink, reporting the segment's wall-clock duration in seconds.
	OnSegmentWritten(desc *StreamDescriptor, segmentNumber uint32, durationSeconds float64)
}

// NopNotifier implements Notifier with no-ops, the default when a caller
// has no use for lifecycle events.
type NopNotifier struct{}

func (NopNotifier) OnMediaStart(*StreamDescriptor)                                {}
func (NopNotifier) OnMediaEnd(*StreamDescriptor)                                   {}
func (NopNotifier) OnSegmentWritten(*StreamDescriptor, uint32, float64) {}
