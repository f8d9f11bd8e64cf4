package mp2t

import (
	"encoding/binary"

	"github.com/go-webdl/packager/pkg/nalconv"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// h264AUDNalu is a complete Annex-B access-unit-delimiter NAL unit
// (nal_ref_idc=0, nal_unit_type=9, primary_pic_type=7 "any slice type"),
// inserted ahead of every H.264 access unit per spec.md §4.5's PES
// conversion step. NAL unit type 9 is the ITU-T H.264 AUD type (Table 7-1);
// built from its raw header/payload bytes rather than a named library
// constant, since go-webdl/media-codec's avc package is only ever observed
// in the pack dispatching on NALU_SPS/NALU_PPS (moov_processor.go), never
// NALU_AUD.
var h264AUDNalu = append(append([]byte{}, annexBStartCode...), 0x09, 0xF0)

// hevcAUDNalu is the H.265 equivalent (nal_unit_type=35, the HEVC AUD type).
var hevcAUDNalu = append(append([]byte{}, annexBStartCode...), byte(35<<1), 0x00, 0x50)

// PesPacketGenerator converts MediaSamples into PesPackets, rescaling
// timestamps to the fixed MPEG-2 time scale and reshaping the codec payload
// into the form each elementary stream type expects on the wire: Annex-B
// with AUD/parameter-set insertion for H.264/H.265, ADTS-wrapped frames for
// AAC. Mirrors pes_packet_generator.h's PesPacketGenerator.
type PesPacketGenerator struct {
	transportStreamTimestampOffset int64
	timescaleScale                 float64

	streamType stream.Type
	codecTag   string
	streamID   byte

	// H.26x framing.
	lengthSize uint8
	sps, pps   [][]byte
	vps        [][]byte
	isHEVC     bool

	// AAC ADTS header template, derived once from the codec config.
	adtsProfile, adtsFreqIdx, adtsChannels byte
	hasADTS                                bool

	pending []*PesPacket
}

// NewPesPacketGenerator constructs a generator. transportStreamTimestampOffset
// compensates for possibly-negative input timestamps, per
// pes_packet_generator.h's constructor parameter.
func NewPesPacketGenerator(transportStreamTimestampOffset int64) *PesPacketGenerator {
	return &PesPacketGenerator{transportStreamTimestampOffset: transportStreamTimestampOffset}
}

// Initialize resets the generator's state for a new elementary stream.
func (g *PesPacketGenerator) Initialize(info *stream.StreamInfo) *status.Status {
	g.streamType = info.Type
	g.codecTag = info.CodecTag
	g.timescaleScale = float64(TimeScale) / float64(info.TimeScale)
	g.lengthSize = info.NALUnitLengthSize
	g.sps, g.pps, g.vps, g.isHEVC = nil, nil, nil, false
	g.hasADTS = false
	g.pending = nil

	switch info.Type {
	case stream.Video:
		g.streamID = VideoStreamID
		switch info.CodecTag {
		case "avc1", "avc3":
			g.sps, g.pps = nalconv.ExtractAVCParameterSets(info.CodecConfig)
		case "hvc1", "hev1":
			g.isHEVC = true
			g.vps, g.sps, g.pps = nalconv.ExtractHEVCParameterSets(info.CodecConfig)
		default:
			return status.New(status.InvalidArgument, "mp2t: unsupported video codec %q", info.CodecTag)
		}
	case stream.Audio:
		g.streamID = AudioStreamIDBase
		switch info.CodecTag {
		case "mp4a":
			if err := g.initADTS(info.CodecConfig); err != nil {
				return status.Wrap(status.ParserFailure, err, "mp2t: parsing AAC AudioSpecificConfig")
			}
		default:
			return status.New(status.InvalidArgument, "mp2t: unsupported audio codec %q", info.CodecTag)
		}
	default:
		return status.New(status.InvalidArgument, "mp2t: unsupported stream type %s", info.Type)
	}
	return nil
}

// rescale converts a timestamp from the input time scale to the MPEG-2
// 90kHz clock and applies the configured offset.
func (g *PesPacketGenerator) rescale(ts int64) int64 {
	return int64(float64(ts)*g.timescaleScale) + g.transportStreamTimestampOffset
}

// PushSample converts one MediaSample into a ready PesPacket. Video samples
// map one-to-one onto PES packets (each is a full access unit already);
// audio samples are likewise emitted as one PES per sample, since the
// segmenter is free to start an audio PES anywhere (spec.md §4.5.3) and
// batching ADTS frames into a single PES is an optimization the original
// implementation does not require for correctness.
func (g *PesPacketGenerator) PushSample(sample *stream.MediaSample) *status.Status {
	var payload []byte
	var err *status.Status
	switch g.streamType {
	case stream.Video:
		payload, err = g.convertVideo(sample)
	case stream.Audio:
		payload, err = g.convertAudio(sample)
	default:
		return status.New(status.Internal, "mp2t: generator not initialized")
	}
	if err != nil {
		return err
	}

	pts := g.rescale(sample.PTS)
	dts := g.rescale(sample.DTS)
	pes := &PesPacket{
		StreamID:   g.streamID,
		PTS:        pts,
		HasPTS:     true,
		DTS:        dts,
		HasDTS:     true,
		IsKeyFrame: sample.IsKeyFrame,
		Data:       payload,
	}
	g.pending = append(g.pending, pes)
	return nil
}

// convertVideo rewrites a length-prefixed sample into Annex-B, inserting an
// AUD ahead of the access unit and the stream's parameter sets ahead of a
// key frame, mirroring NalUnitToByteStreamConverter's role in
// pes_packet_generator.h.
func (g *PesPacketGenerator) convertVideo(sample *stream.MediaSample) ([]byte, *status.Status) {
	units, err := nalconv.SplitLengthPrefixed(sample.Payload, g.lengthSize)
	if err != nil {
		return nil, status.Wrap(status.ParserFailure, err, "mp2t: splitting length-prefixed video sample")
	}

	var out []byte
	if g.isHEVC {
		out = append(out, hevcAUDNalu...)
	} else {
		out = append(out, h264AUDNalu...)
	}
	if sample.IsKeyFrame {
		if g.isHEVC {
			for _, nalu := range g.vps {
				out = append(out, annexBStartCode...)
				out = append(out, nalu...)
			}
		}
		for _, nalu := range g.sps {
			out = append(out, annexBStartCode...)
			out = append(out, nalu...)
		}
		for _, nalu := range g.pps {
			out = append(out, annexBStartCode...)
			out = append(out, nalu...)
		}
	}
	for _, u := range units {
		out = append(out, annexBStartCode...)
		data := u.Data
		if sample.IsEncrypted {
			// Sample-AES ciphertext can accidentally contain a start-code-like
			// sequence; escape it the same way an encoder would escape a
			// clear RBSP, per nal_unit_to_byte_stream_converter.h's
			// escape_encrypted_nalu behavior.
			data = nalconv.EscapeNalByteSequence(data)
		}
		out = append(out, data...)
	}
	return out, nil
}

func (g *PesPacketGenerator) convertAudio(sample *stream.MediaSample) ([]byte, *status.Status) {
	if !g.hasADTS {
		return sample.Payload, nil
	}
	header := adtsHeader(g.adtsProfile, g.adtsFreqIdx, g.adtsChannels, len(sample.Payload))
	return append(header, sample.Payload...), nil
}

// NumberOfReadyPesPackets reports how many PesPackets can be popped with
// GetNextPesPacket.
func (g *PesPacketGenerator) NumberOfReadyPesPackets() int {
	return len(g.pending)
}

// GetNextPesPacket removes and returns the oldest ready PesPacket.
func (g *PesPacketGenerator) GetNextPesPacket() *PesPacket {
	if len(g.pending) == 0 {
		return nil
	}
	p := g.pending[0]
	g.pending = g.pending[1:]
	return p
}

// Flush is a no-op: this generator never holds a sample back waiting for
// more data (unlike pes_packet_generator.h's audio coalescing path), so
// every pushed sample is already a ready PesPacket. Kept as a named method
// so callers mirror the original's Initialize/PushSample/Flush sequence.
func (g *PesPacketGenerator) Flush() *status.Status {
	return nil
}

// initADTS parses a 2-byte MPEG-4 AudioSpecificConfig (ISO/IEC 14496-3)
// into the fields an ADTS header needs: 5-bit object type, 4-bit sampling
// frequency index, 4-bit channel configuration. This is the fixed bit
// layout defined by the MPEG-4 Audio standard, not a library API.
func (g *PesPacketGenerator) initADTS(codecConfig []byte) error {
	if len(codecConfig) < 2 {
		return errShortAudioConfig
	}
	cfg := binary.BigEndian.Uint16(codecConfig)
	objectType := byte(cfg>>11) & 0x1F
	freqIdx := byte(cfg>>7) & 0x0F
	channels := byte(cfg>>3) & 0x0F
	g.adtsProfile = objectType - 1 // ADTS profile field is AOT-1.
	g.adtsFreqIdx = freqIdx
	g.adtsChannels = channels
	g.hasADTS = true
	return nil
}

type mp2tError string

func (e mp2tError) Error() string { return string(e) }

const errShortAudioConfig = mp2tError("mp2t: AudioSpecificConfig shorter than 2 bytes")

// adtsHeader builds the fixed 7-byte ADTS header (no CRC) for one AAC raw
// frame of frameLen bytes, per ISO/IEC 13818-7 Annex B's fixed+variable
// header layout.
func adtsHeader(profile, freqIdx, channels byte, frameLen int) []byte {
	frameLength := frameLen + 7
	h := make([]byte, 7)
	h[0] = 0xFF
	h[1] = 0xF1 // MPEG-4, layer 00, no CRC.
	h[2] = (profile << 6) | (freqIdx << 2) | ((channels >> 2) & 0x01)
	h[3] = ((channels & 0x03) << 6) | byte(frameLength>>11)
	h[4] = byte(frameLength >> 3)
	h[5] = byte(frameLength<<5) | 0x1F
	h[6] = 0xFC
	return h
}
