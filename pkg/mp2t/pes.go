// Package mp2t implements the MPEG-2 TS muxer: PES packetization, 188-byte
// TS packetization (PAT/PMT/PES), and SegmentInfo-driven segment rotation,
// per spec.md §4.5.
//
// Grounded on original_source/packager/media/formats/mp2t/pes_packet.h (the
// PesPacket field set: stream_id, optional pts/dts, is_key_frame, payload)
// and original_source/packager/media/formats/mp2t/ts_writer_unittest.cc,
// whose byte literals fix the exact bit layout implemented here.
package mp2t

// MPEG-2 time scale all PES timestamps are rescaled to, per spec.md §4.5.
const TimeScale = 90000

// Video/audio PES stream IDs, per spec.md §4.5.
const (
	VideoStreamID     byte = 0xE0
	AudioStreamIDBase  byte = 0xC0 // 0xC0-0xCF, one per audio elementary stream.
)

// PesPacket carries one Packetized Elementary Stream packet, mirroring
// pes_packet.h's field set. HasPTS/HasDTS report whether their respective
// timestamp was ever set; -1 means "not set", matching the original's
// sentinel convention translated into a bool here since Go lacks a natural
// negative-is-absent int64 idiom for values that are legitimately 0.
type PesPacket struct {
	StreamID   byte
	PTS        int64
	HasPTS     bool
	DTS        int64
	HasDTS     bool
	IsKeyFrame bool
	Data       []byte
}

// Bytes serializes p into a PES packet, following spec.md §4.5's law "dts is
// present ⇒ pts is present; dts == pts ⇒ only pts is encoded" (testable
// property 5). The PES_packet_length field is zeroed when the full length
// exceeds 65535, per spec.md §4.5's allowance for video PES packets.
func (p *PesPacket) Bytes() []byte {
	hasDTS := p.HasDTS && p.HasPTS && p.DTS != p.PTS

	headerDataLength := 0
	if p.HasPTS {
		headerDataLength += 5
	}
	if hasDTS {
		headerDataLength += 5
	}

	pesLength := 3 + headerDataLength + len(p.Data)
	if pesLength > 0xFFFF {
		pesLength = 0
	}

	out := make([]byte, 0, 9+headerDataLength+len(p.Data))
	out = append(out, 0x00, 0x00, 0x01, p.StreamID)
	out = append(out, byte(pesLength>>8), byte(pesLength))
	out = append(out, 0x80) // '10' fixed, no scrambling/priority/copyright flags.

	pdi := byte(0x00)
	switch {
	case p.HasPTS && hasDTS:
		pdi = 0xC0
	case p.HasPTS:
		pdi = 0x80
	}
	out = append(out, pdi, byte(headerDataLength))

	if p.HasPTS {
		nibble := byte(0x2)
		if hasDTS {
			nibble = 0x3
		}
		out = appendTimestamp(out, nibble, uint64(p.PTS))
	}
	if hasDTS {
		out = appendTimestamp(out, 0x1, uint64(p.DTS))
	}

	return append(out, p.Data...)
}

// appendTimestamp appends the 5-byte PTS/DTS field for ts (a 33-bit value),
// tagged with the 4-bit nibble fixed by the PES syntax ('0010' PTS-only,
// '0011' PTS-with-DTS, '0001' DTS). Verified byte-for-byte against
// ts_writer_unittest.cc's AddPesPacket/PesPtsZeroNoDts expectations and
// spec.md §8's "21 00 01 00 01" zero-PTS worked example.
func appendTimestamp(buf []byte, nibble byte, ts uint64) []byte {
	b0 := (nibble << 4) | (byte((ts>>29)&0x07) << 1) | 1
	b1 := byte((ts >> 22) & 0xFF)
	b2 := (byte((ts>>15)&0x7F) << 1) | 1
	b3 := byte((ts >> 7) & 0xFF)
	b4 := (byte(ts&0x7F) << 1) | 1
	return append(buf, b0, b1, b2, b3, b4)
}
