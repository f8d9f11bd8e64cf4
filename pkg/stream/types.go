// Package stream defines the data model exchanged between media handlers:
// StreamInfo, MediaSample, DecryptConfig, SegmentInfo/CueEvent, and the
// StreamData tagged union that carries them along numbered ports.
//
// The shapes here generalize github.com/go-webdl/smoothstreaming's
// MoovProcessor fields (Width/Height/Timescale/Language/CodecPrivateData/
// Protected/KID) from a one-shot Smooth Streaming init-segment builder into
// the reusable, immutable record the whole pipeline passes downstream.
package stream

import (
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Type is the media type of a track.
type Type int

const (
	UnknownType Type = iota
	Video
	Audio
	Text
)

func (t Type) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// H26xFraming describes how a video track's NAL units are delimited.
type H26xFraming int

const (
	UnknownFraming H26xFraming = iota
	AnnexB
	LengthPrefixed
)

// StreamInfo is the invariant metadata of one track, produced once by a
// demuxer at the start of a graph run and observed read-only by every
// downstream handler. StreamInfo is shared-immutable: Clone is the only way
// to derive a modified copy, matching the "shared ownership" design note
// (an arena-backed, reference-counted record in the source; here a plain
// value type is sufficient since Go's GC already keeps CodecPrivateData
// alive for every holder).
type StreamInfo struct {
	StreamIndex int
	Type        Type
	CodecTag    string
	CodecConfig []byte
	TimeScale   uint32
	Duration    uint64 // 0 when unknown
	Language    language.Base
	Encrypted   bool

	// Video-only fields.
	Width             uint32
	Height            uint32
	PixelAspectNum    uint32
	PixelAspectDen    uint32
	NALUnitLengthSize uint8
	Framing           H26xFraming
	TrickPlayFactor   uint32
	PlaybackRate      uint32

	// Audio-only fields.
	SampleBits     uint8
	Channels       uint16
	SamplingFreq   uint32
	SeekPrerollNs  uint64
	CodecDelayNs   uint64
	MaxBitrate     uint32
	AvgBitrate     uint32

	// Timestamp-adjustment supplements (spec.md §9 "Timestamp adjustment").
	EditListOffset        int64
	ResetCompositionOffset bool
}

// Clone returns a copy of info. Downstream handlers that need to override a
// field (language rewrite, setting Encrypted) must Clone rather than mutate
// the StreamInfo they received, since it may be shared with sibling
// handlers fed by a Replicator.
func (info StreamInfo) Clone() *StreamInfo {
	out := info
	if info.CodecConfig != nil {
		out.CodecConfig = append([]byte(nil), info.CodecConfig...)
	}
	return &out
}

// SideDataType identifies the kind of auxiliary payload carried alongside a
// MediaSample, when present.
type SideDataType int

const (
	NoSideData SideDataType = iota
	VPxSuperframeIndex
	AV1TemporalDelimiter
)

// MediaSample is one elementary access unit. Payload is owned by the
// sample; handlers must treat it as copy-on-write and must never mutate a
// sample after handing it downstream (the Replicator broadcasts the same
// backing array to multiple consumers).
type MediaSample struct {
	DTS          int64
	PTS          int64
	Duration     uint64
	IsKeyFrame   bool
	IsEncrypted  bool
	Payload      []byte
	SideData     []byte
	SideDataType SideDataType
	DecryptConfig *DecryptConfig

	// refCount tracks how many output ports a Replicator has fanned this
	// sample out to, so EnsureOwned knows when Payload is still exclusive.
	refCount int32
}

// Retain marks the sample as shared across n additional consumers; called by
// Replicator.Dispatch once per fan-out edge beyond the first.
func (s *MediaSample) Retain(n int32) {
	atomic.AddInt32(&s.refCount, n)
}

// Clone returns a deep copy of the sample's metadata; Payload is shared
// (copy-on-write) until a handler actually needs to mutate bytes, in which
// case it must call EnsureOwned first.
func (s *MediaSample) Clone() *MediaSample {
	out := *s
	if s.DecryptConfig != nil {
		dc := *s.DecryptConfig
		out.DecryptConfig = &dc
	}
	return &out
}

// EnsureOwned returns a MediaSample whose Payload is not aliased with any
// other sample, copying Payload only if refCount indicates sharing. The
// Replicator increments refCount once per fan-out edge; a handler that needs
// to encrypt in place calls EnsureOwned so it never corrupts a sibling's
// view of the same bytes.
func (s *MediaSample) EnsureOwned() {
	if atomic.LoadInt32(&s.refCount) <= 1 {
		return
	}
	s.Payload = append([]byte(nil), s.Payload...)
}

// ProtectionScheme identifies a CENC or Sample-AES protection scheme.
type ProtectionScheme int

const (
	UnknownScheme ProtectionScheme = iota
	CENC
	CENS
	CBC1
	CBCS
	AppleSampleAES
)

func (p ProtectionScheme) String() string {
	switch p {
	case CENC:
		return "cenc"
	case CENS:
		return "cens"
	case CBC1:
		return "cbc1"
	case CBCS:
		return "cbcs"
	case AppleSampleAES:
		return "apple-sample-aes"
	default:
		return "unknown"
	}
}

// SubsampleEntry is one (clear, cipher) span pair, ordered as they occur in
// a sample's payload.
type SubsampleEntry struct {
	ClearBytes  uint16
	CipherBytes uint32
}

// DecryptConfig carries everything a downstream container writer needs to
// signal (CENC) or has already used to encrypt (Sample-AES) one MediaSample.
type DecryptConfig struct {
	KeyID       [16]byte
	IV          []byte // 8 or 16 bytes, or empty when ConstantIV is used.
	ConstantIV  []byte // cbcs constant-IV policy; mutually exclusive with per-sample IV.
	Subsamples  []SubsampleEntry
	Scheme      ProtectionScheme
	CryptByteBlock uint8
	SkipByteBlock  uint8
}

// TotalSize returns the sum of all subsample clear+cipher spans, which must
// equal the owning sample's payload size whenever Subsamples is non-empty
// (testable property 2, "subsample totality").
func (dc *DecryptConfig) TotalSize() uint64 {
	var total uint64
	for _, s := range dc.Subsamples {
		total += uint64(s.ClearBytes) + uint64(s.CipherBytes)
	}
	return total
}

// SegmentInfo marks a segment (or subsegment) boundary.
type SegmentInfo struct {
	StartTime    int64
	Duration     int64
	IsSubsegment bool
	IsEncrypted  bool
	SegmentNumber uint32
}

// CueEvent marks an externally-requested segment boundary (e.g. an ad
// break), honoured by ChunkingHandler even mid-GoP.
type CueEvent struct {
	TimeInSeconds float64
}

// TextSample carries a passthrough subtitle payload (TTML or WebVTT),
// sniffed on a UTF-8 prefix per spec.md §6; the packager does not parse
// subtitle contents beyond that sniff.
type TextSample struct {
	DTS     int64
	PTS     int64
	Duration uint64
	Payload []byte
}

// MediaEventType distinguishes the kinds of out-of-band notification a
// handler may emit (e.g. key rotation) via Dispatch, alongside ordinary
// sample data.
type MediaEventType int

const (
	UnknownEvent MediaEventType = iota
	KeyRotationEvent
)

// MediaEvent is an out-of-band notification, such as the key-update
// side-band described in spec.md §4.4's key-rotation paragraph.
type MediaEvent struct {
	Type  MediaEventType
	KeyID [16]byte
}

// DataType tags which field of StreamData is populated.
type DataType int

const (
	NoData DataType = iota
	StreamInfoData
	MediaSampleData
	TextSampleData
	SegmentInfoData
	CueEventData
	MediaEventData
)

// StreamData is the tagged union carried along one numbered output port.
// Exactly one of the typed fields is populated, selected by Type.
type StreamData struct {
	StreamIndex int
	Type        DataType

	StreamInfo  *StreamInfo
	MediaSample *MediaSample
	TextSample  *TextSample
	SegmentInfo *SegmentInfo
	CueEvent    *CueEvent
	MediaEvent  *MediaEvent
}

func NewStreamInfoData(streamIndex int, info *StreamInfo) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: StreamInfoData, StreamInfo: info}
}

func NewMediaSampleData(streamIndex int, sample *MediaSample) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: MediaSampleData, MediaSample: sample}
}

func NewSegmentInfoData(streamIndex int, info *SegmentInfo) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: SegmentInfoData, SegmentInfo: info}
}

func NewCueEventData(streamIndex int, event *CueEvent) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: CueEventData, CueEvent: event}
}

// EncryptionKey is the key material resolved for a given stream label or
// crypto period: key-id, key bytes, an IV seed, and optional per-DRM-system
// init data blobs (one per protection system, e.g. a PSSH payload).
type EncryptionKey struct {
	KeyID          [16]byte
	Key            []byte
	IVSeed         []byte
	ProtectionSystems []ProtectionSystemData
}

// ProtectionSystemData is one DRM system's init-data blob, identified by its
// system ID UUID (as used for PSSH boxes).
type ProtectionSystemData struct {
	SystemID uuid.UUID
	Data     []byte
}
