package mp2t

import "github.com/go-webdl/packager/pkg/status"

// PacketSize is the fixed size of an MPEG-2 TS packet.
const PacketSize = 188

// Single-program, single-elementary-stream PIDs, matching
// ts_writer_unittest.cc's fixture values (PMT at 0x20, the lone elementary
// stream at 0x50); ts_muxer.h documents TsMuxer as exactly this shape.
const (
	PatPid           uint16 = 0x00
	PmtPid           uint16 = 0x20
	ElementaryPid    uint16 = 0x50
	maxPayload              = PacketSize - 4 // bytes available after the 4-byte TS header.
	pcrAdaptationCost       = 7              // flags byte + 6-byte PCR.
)

// Stream types carried in the PMT, per ISO/IEC 13818-1 Table 2-34.
const (
	StreamTypeAVC uint8 = 0x1B
	StreamTypeAAC uint8 = 0x0F
)

// Writer packetizes PAT/PMT/PES into 188-byte TS packets for a single
// program, single elementary stream, mirroring ts_writer.h's TsWriter
// (its byte layout is fixed by ts_writer_unittest.cc's test vectors).
type Writer struct {
	streamType uint8

	patCC byte
	pmtCC byte
	esCC  byte
}

// NewWriter constructs a Writer for one elementary stream of streamType.
func NewWriter(streamType uint8) *Writer {
	return &Writer{streamType: streamType}
}

// NewSegment resets per-pid continuity counters (each segment file starts
// its own counter sequence, per ts_writer_unittest.cc's NewSegment test) and
// returns the PAT+PMT packets that open every segment.
func (w *Writer) NewSegment() []byte {
	w.patCC, w.pmtCC, w.esCC = 0, 0, 0
	var out []byte
	out = append(out, w.packetizeSection(PatPid, &w.patCC, buildPAT(PmtPid))...)
	out = append(out, w.packetizeSection(PmtPid, &w.pmtCC, buildPMT(w.streamType, ElementaryPid))...)
	return out
}

// packetizeSection wraps a single PSI section (PAT or PMT) in one TS
// packet, stuffed with 0xFF padding, per the PAT/PMT test vectors.
func (w *Writer) packetizeSection(pid uint16, cc *byte, section []byte) []byte {
	pkt := make([]byte, 0, PacketSize)
	pkt = append(pkt, 0x47, 0x40|byte(pid>>8), byte(pid), 0x30|(*cc&0x0F))
	*cc = (*cc + 1) & 0x0F

	afl := 183 - len(section)
	pkt = append(pkt, byte(afl), 0x00)
	for i := 1; i < afl; i++ {
		pkt = append(pkt, 0xFF)
	}
	pkt = append(pkt, section...)
	return pkt
}

// WritePes packetizes one PesPacket into one or more 188-byte TS packets.
// needPCR requests a PCR-bearing adaptation field on the first packet
// (spec.md §4.5: video key frames, or the first PES after a segment cut).
// Failure: a PES longer than fits is simply split across more packets; the
// only fatal condition here is the caller's own non-monotonic PTS check,
// enforced by the segmenter before WritePes is called.
func (w *Writer) WritePes(pes *PesPacket, needPCR bool) []byte {
	remaining := pes.Bytes()
	var out []byte
	first := true
	for len(remaining) > 0 {
		pkt := make([]byte, 0, PacketSize)
		pusi := byte(0)
		if first {
			pusi = 0x40
		}
		pkt = append(pkt, 0x47, pusi|byte(ElementaryPid>>8), byte(ElementaryPid), 0x30|(w.esCC&0x0F))
		w.esCC = (w.esCC + 1) & 0x0F

		wantPCR := first && needPCR
		switch {
		case !wantPCR && len(remaining) >= maxPayload:
			pkt[3] = (pkt[3] &^ 0x30) | 0x10 // payload only, no adaptation field.
			pkt = append(pkt, remaining[:maxPayload]...)
			remaining = remaining[maxPayload:]
		default:
			payloadLen := len(remaining)
			if wantPCR {
				maxFirst := 183 - pcrAdaptationCost
				if payloadLen > maxFirst {
					payloadLen = maxFirst
				}
			}
			afl := 183 - payloadLen
			if afl == 0 {
				pkt = append(pkt, 0x00)
			} else {
				content := 1
				if wantPCR {
					content += 6
				}
				pkt = append(pkt, byte(afl))
				flags := byte(0)
				if wantPCR {
					flags = 0x10
				}
				pkt = append(pkt, flags)
				if wantPCR {
					pkt = appendPCR(pkt, uint64(pes.PTS))
				}
				for i := 0; i < afl-content; i++ {
					pkt = append(pkt, 0xFF)
				}
			}
			pkt = append(pkt, remaining[:payloadLen]...)
			remaining = remaining[payloadLen:]
		}

		for len(pkt) < PacketSize {
			pkt = append(pkt, 0xFF)
		}
		out = append(out, pkt...)
		first = false
	}
	return out
}

// appendPCR appends a 6-byte PCR field for a base-only clock value (the
// 27MHz extension field is left at 0, matching how video key-frame PCR
// insertion is modelled here: pcrBase is the sample's 90kHz PTS).
func appendPCR(buf []byte, pcrBase uint64) []byte {
	base := pcrBase & 0x1FFFFFFFF
	ext := uint16(0)
	b := make([]byte, 6)
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base<<7) | 0x7E | byte(ext>>8)
	b[5] = byte(ext)
	return append(buf, b...)
}

func buildPAT(pmtPid uint16) []byte {
	body := []byte{
		0x00, 0x00, // transport_stream_id
		0xC1, 0x00, 0x00, // version 0 / current_next_indicator 1, section_number, last_section_number
		0x00, 0x01, // program_number = 1
		0xE0 | byte(pmtPid>>8), byte(pmtPid),
	}
	return finishSection(0x00, body)
}

func buildPMT(streamType uint8, esPid uint16) []byte {
	body := []byte{
		0x00, 0x01, // program_number
		0xC1, 0x00, 0x00, // version/current_next, section_number, last_section_number
		0xE0 | byte(esPid>>8), byte(esPid), // reserved | PCR_PID
		0xF0, 0x00, // reserved | program_info_length (no descriptors)
		streamType,
		0xE0 | byte(esPid>>8), byte(esPid), // reserved | elementary_PID
		0xF0, 0x00, // reserved | ES_info_length
	}
	return finishSection(0x02, body)
}

// finishSection wraps body with its table_id, section_length, CRC32, and
// leading pointer_field, per ts_writer_unittest.cc's PAT/PMT byte layout.
func finishSection(tableID byte, body []byte) []byte {
	sectionLen := len(body) + 4 // + CRC32
	table := []byte{tableID, 0xB0 | byte(sectionLen>>8), byte(sectionLen)}
	table = append(table, body...)
	crc := crc32MPEG2(table)
	table = append(table, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	return append([]byte{0x00}, table...)
}

// CheckMonotonic returns a fatal status if pts is not >= prevPTS, per
// spec.md §4.5's "non-monotonic PTS within a PID is fatal" rule.
func CheckMonotonic(prevPTS int64, havePrev bool, pts int64) *status.Status {
	if havePrev && pts < prevPTS {
		return status.Wrap(status.ParserFailure, status.ErrNonMonotonicTimestamp, "mp2t: pts decreased within pid")
	}
	return nil
}
