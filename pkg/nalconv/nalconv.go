// Package nalconv provides shared NAL-unit helpers used by the subsample
// generator and the MP4 fragmenter: Annex-B <-> length-prefixed conversion,
// NAL type dispatch, and SPS/PPS/VPS extraction for H.264/H.265.
//
// Grounded on moov_processor.go's CreateAvcCMp4Box/CreateHvcCMp4Box, which
// split CodecPrivateData on the 00 00 00 01 Annex-B start code and dispatch
// on avc.GetNaluType/hevc.GetNaluType; the same split-and-dispatch shape is
// generalized here into a reusable parser over arbitrary sample payloads
// instead of a one-shot codec-private-data blob.
package nalconv

import (
	"bytes"
	"encoding/binary"

	"github.com/go-webdl/media-codec/avc"
	"github.com/go-webdl/media-codec/hevc"
)

var startCode = []byte{0, 0, 0, 1}
var startCode3 = []byte{0, 0, 1}

// Unit is one NAL unit as found in a sample payload, with its header byte
// already split out for convenience.
type Unit struct {
	Header byte
	Data   []byte // includes Header as Data[0]
}

// SplitAnnexB splits an Annex-B byte stream (long or short start codes) into
// its constituent NAL units. lenientMode permits a 3-byte 00 00 01 start
// code in addition to the standard 4-byte form; it has no effect on
// emulation-prevention bytes.
func SplitAnnexB(payload []byte, lenientMode bool) []Unit {
	var units []Unit
	offsets := findStartCodes(payload, lenientMode)
	for i, start := range offsets {
		end := len(payload)
		if i+1 < len(offsets) {
			end = offsets[i+1].pos
		}
		data := payload[start.pos+start.length : end]
		// Trim a trailing start code prefix accidentally included when two
		// start codes are adjacent with no NAL payload between them.
		data = bytes.TrimRight(data, "\x00")
		if len(data) == 0 {
			continue
		}
		units = append(units, Unit{Header: data[0], Data: data})
	}
	return units
}

type startCodeHit struct {
	pos    int
	length int
}

func findStartCodes(payload []byte, lenientMode bool) []startCodeHit {
	var hits []startCodeHit
	i := 0
	for i < len(payload) {
		if bytes.HasPrefix(payload[i:], startCode) {
			hits = append(hits, startCodeHit{pos: i, length: 4})
			i += 4
			continue
		}
		if lenientMode && bytes.HasPrefix(payload[i:], startCode3) {
			hits = append(hits, startCodeHit{pos: i, length: 3})
			i += 3
			continue
		}
		i++
	}
	return hits
}

// SplitLengthPrefixed splits a length-prefixed (AVCC/HVCC style) byte stream
// into NAL units, where each unit is preceded by a big-endian length field
// of lengthSize bytes (1, 2, or 4), per StreamInfo.NALUnitLengthSize.
func SplitLengthPrefixed(payload []byte, lengthSize uint8) ([]Unit, error) {
	var units []Unit
	i := 0
	for i < len(payload) {
		if i+int(lengthSize) > len(payload) {
			return nil, errShortRead
		}
		var n int
		switch lengthSize {
		case 1:
			n = int(payload[i])
		case 2:
			n = int(binary.BigEndian.Uint16(payload[i : i+2]))
		case 4:
			n = int(binary.BigEndian.Uint32(payload[i : i+4]))
		default:
			return nil, errBadLengthSize
		}
		i += int(lengthSize)
		if i+n > len(payload) {
			return nil, errShortRead
		}
		data := payload[i : i+n]
		if len(data) > 0 {
			units = append(units, Unit{Header: data[0], Data: data})
		}
		i += n
	}
	return units, nil
}

var errShortRead = &nalError{"nal unit length exceeds remaining payload"}
var errBadLengthSize = &nalError{"unsupported nal length size"}

type nalError struct{ msg string }

func (e *nalError) Error() string { return e.msg }

// AVCNaluType returns the NAL unit type for an H.264 Unit.
func AVCNaluType(u Unit) avc.NaluType {
	return avc.GetNaluType(u.Header)
}

// HEVCNaluType returns the NAL unit type for an H.265/HEVC Unit.
func HEVCNaluType(u Unit) hevc.NaluType {
	return hevc.GetNaluType(u.Header)
}

// IsAVCSlice reports whether naluType is a coded-slice type (VCL NAL unit)
// whose leading bytes carry a slice header subsample generation must skip
// over, per spec.md §4.3's H.264/H.265 clear-bytes rule. NAL unit types 1-5
// are the H.264 slice types (ITU-T H.264 Table 7-1); this is a property of
// the bitstream format, not of any particular library's enum.
func IsAVCSlice(t avc.NaluType) bool {
	v := int(t)
	return v >= 1 && v <= 5
}

// IsHEVCSlice reports whether naluType is a VCL (coded-slice) NAL unit type.
// H.265 VCL NAL unit types occupy 0-31 (ITU-T H.265 Table 7-1).
func IsHEVCSlice(t hevc.NaluType) bool {
	v := int(t)
	return v >= 0 && v <= 31
}

// EscapeNalByteSequence inserts an emulation-prevention byte (0x03) after
// every run of two 0x00 bytes immediately followed by a byte <= 3, per
// ITU-T H.264 §7.4.1.1. Mirrors EscapeNalByteSequence in
// nal_unit_to_byte_stream_converter.h; used to escape the accidental
// 0x000000/0x000001/0x000002/0x000003 sequences Sample-AES ciphertext can
// introduce into an otherwise clean NAL unit. Safe to call on already-escaped
// data (it is OK to "re-escape"); cannot escape in place since escaping can
// only grow the buffer.
func EscapeNalByteSequence(input []byte) []byte {
	out := make([]byte, 0, len(input)+len(input)/3+1)
	zeroRun := 0
	for _, b := range input {
		if zeroRun >= 2 && b <= 3 {
			out = append(out, 0x03)
			zeroRun = 0
		}
		out = append(out, b)
		if b == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}
	return out
}

// ExtractAVCParameterSets splits codecPrivateData (Annex-B) into SPS/PPS
// records, mirroring moov_processor.go's CreateAvcCMp4Box.
func ExtractAVCParameterSets(codecPrivateData []byte) (sps, pps [][]byte) {
	for _, u := range SplitAnnexB(codecPrivateData, false) {
		switch AVCNaluType(u) {
		case avc.NALU_SPS:
			sps = append(sps, u.Data)
		case avc.NALU_PPS:
			pps = append(pps, u.Data)
		}
	}
	return
}

// ExtractHEVCParameterSets splits codecPrivateData (Annex-B) into VPS/SPS/PPS
// records, mirroring moov_processor.go's CreateHvcCMp4Box.
func ExtractHEVCParameterSets(codecPrivateData []byte) (vps, sps, pps [][]byte) {
	for _, u := range SplitAnnexB(codecPrivateData, false) {
		switch HEVCNaluType(u) {
		case hevc.NALU_VPS:
			vps = append(vps, u.Data)
		case hevc.NALU_SPS:
			sps = append(sps, u.Data)
		case hevc.NALU_PPS:
			pps = append(pps, u.Data)
		}
	}
	return
}
