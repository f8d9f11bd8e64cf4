// Package mp4frag builds fragmented MP4 (CMAF-style) init segments and
// media fragments: ftyp/moov for the init segment, moof/mdat pairs for each
// fragment, with CENC senc/saiz/saio signaling when the track is encrypted.
//
// The init-segment box tree (ftyp, moov, mvhd, trak, mdia, minf, stbl, stsd,
// avc1/hvc1, sinf/schi/tenc, avcC/hvcC) is adapted from
// github.com/go-webdl/smoothstreaming's MoovProcessor, generalized from a
// one-off Smooth Streaming struct to the shared stream.StreamInfo/
// stream.EncryptionKey record this pipeline passes between handlers.
package mp4frag

import (
	"bytes"
	"fmt"

	"github.com/go-webdl/media-codec/avc"
	"github.com/go-webdl/media-codec/hevc"
	"github.com/go-webdl/mp4"

	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// InitSegmentBuilder builds the ftyp+moov init segment for one track.
// It mirrors github.com/go-webdl/smoothstreaming's MoovProcessor box-by-box,
// generalized to any stream.StreamInfo (video or audio) and to the multi-
// scheme/multi-DRM-system encryption model in pkg/stream, rather than one
// fixed 'cenc' scheme and a single PSSH.
type InitSegmentBuilder struct {
	TrackID    uint32
	Info       *stream.StreamInfo
	StreamName string

	// Encryption, nil for a clear track.
	Key            *stream.EncryptionKey
	Scheme         stream.ProtectionScheme
	ConstantIV     []byte // cbcs only
	CryptByteBlock uint8  // pattern encryption, 0 for full-sample schemes
	SkipByteBlock  uint8
}

func (p *InitSegmentBuilder) codecFourCC() (mp4.FourCC, error) {
	switch p.Info.CodecTag {
	case "avc1", "avc3":
		return mp4.Avc1FourCC, nil
	case "hvc1", "hev1":
		return mp4.Hvc1FourCC, nil
	case "mp4a":
		return mp4.FourCC("mp4a"), nil
	default:
		return mp4.FourCC(""), fmt.Errorf("mp4frag: codec %q: %w", p.Info.CodecTag, status.ErrUnknownCodec)
	}
}

func (p *InitSegmentBuilder) protected() bool { return p.Key != nil }

func (p *InitSegmentBuilder) CreateFtypMp4Box() (ftyp mp4.Box, err error) {
	ftyp = &mp4.FileTypeBox{
		MajorBrand:   mp4.Iso6FourCC,
		MinorVersion: 1,
		CompatibleBrands: []mp4.FourCC{
			mp4.IsomFourCC,
			mp4.Iso6FourCC,
			mp4.FourCC("iso5"),
			mp4.FourCC("dash"),
			mp4.FourCC("cmfc"),
		},
	}
	ftyp.Mp4BoxUpdate()
	return
}

func (p *InitSegmentBuilder) CreateMoovMp4Box() (moov mp4.Box, err error) {
	mvhd, err := p.CreateMvhdMp4Box()
	if err != nil {
		return
	}

	trak, err := p.CreateTrakMp4Box()
	if err != nil {
		return
	}

	mvex, err := p.CreateMvexMp4Box()
	if err != nil {
		return
	}

	children := []mp4.Box{mvhd, trak, mvex}

	if p.protected() {
		for _, sys := range p.Key.ProtectionSystems {
			pssh := &mp4.ProtectionSystemSpecificHeaderBox{
				SystemID: sys.SystemID,
				Data:     sys.Data,
			}
			children = append(children, pssh)
		}
	}

	moov = &mp4.MovieBox{}
	if err = moov.Mp4BoxReplaceChildren(children); err != nil {
		return
	}
	moov.Mp4BoxUpdate()
	return
}

func (p *InitSegmentBuilder) CreateMvhdMp4Box() (mvhd mp4.Box, err error) {
	mvhd = &mp4.MovieHeaderBox{
		FullHeader:  mp4.FullHeader{Version: 1},
		Timescale:   p.Info.TimeScale,
		Duration:    p.Info.Duration,
		Rate:        0x00010000,
		Volume:      0x0100,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: p.TrackID + 1,
	}
	return
}

func (p *InitSegmentBuilder) CreateMvexMp4Box() (mvex mp4.Box, err error) {
	trex := &mp4.TrackExtendsBox{
		TrackID:                      p.TrackID,
		DefaultSampleDescrptionIndex: 1,
	}
	mvex = &mp4.MovieExtendsBox{}
	if err = mvex.Mp4BoxReplaceChildren([]mp4.Box{trex}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateTrakMp4Box() (trak mp4.Box, err error) {
	tkhd := &mp4.TrackHeaderBox{
		TrackID:  p.TrackID,
		Duration: p.Info.Duration,
		Volume:   0x0100,
		Matrix:   [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		Width:    p.Info.Width,
		Height:   p.Info.Height,
	}
	tkhd.Version = 1
	tkhd.Mp4BoxSetFlags(mp4.FLAG_TKHD_TRACK_ENABLED | mp4.FLAG_TKHD_TRACK_IN_MOVIE | mp4.FLAG_TKHD_TRACK_IN_PREVIEW)
	if p.Info.Type == stream.Audio {
		// Audio samples are full-volume regardless of Width/Height (unset).
		tkhd.Width, tkhd.Height = 0, 0
	}

	mdia, err := p.CreateMdiaMp4Box()
	if err != nil {
		return
	}

	trak = &mp4.TrackBox{}
	if err = trak.Mp4BoxReplaceChildren([]mp4.Box{tkhd, mdia}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateMdiaMp4Box() (mdia mp4.Box, err error) {
	mdhd := &mp4.MediaHeaderBox{
		Timescale: p.Info.TimeScale,
		Duration:  p.Info.Duration,
		Language:  p.Info.Language,
	}
	mdhd.Version = 1

	hdlr := &mp4.HandlerBox{
		HandlerType: mp4.VideFourCC,
		Name:        mp4.NullTerminatedString(p.StreamName),
	}
	switch p.Info.Type {
	case stream.Video:
		hdlr.HandlerType = mp4.VideFourCC
	case stream.Audio:
		hdlr.HandlerType = mp4.SounFourCC
	default:
		hdlr.HandlerType = mp4.MetaFourCC
	}

	minf, err := p.CreateMinfMp4Box()
	if err != nil {
		return
	}

	mdia = &mp4.MediaBox{}
	if err = mdia.Mp4BoxReplaceChildren([]mp4.Box{mdhd, hdlr, minf}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateMinfMp4Box() (minf mp4.Box, err error) {
	mhd, err := p.CreateMhdMp4Box()
	if err != nil {
		return
	}

	dinf, err := p.CreateDinfMp4Box()
	if err != nil {
		return
	}

	stbl, err := p.CreateStblMp4Box()
	if err != nil {
		return
	}

	children := []mp4.Box{dinf, stbl}
	if mhd != nil {
		children = append([]mp4.Box{mhd}, children...)
	}

	minf = &mp4.MediaInformationBox{}
	if err = minf.Mp4BoxReplaceChildren(children); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateStblMp4Box() (stbl mp4.Box, err error) {
	stsd, err := p.CreateStsdMp4Box()
	if err != nil {
		return
	}

	stbl = &mp4.SampleTableBox{}
	if err = stbl.Mp4BoxReplaceChildren([]mp4.Box{
		stsd,
		&mp4.TimeToSampleBox{},
		&mp4.SampleToChunkBox{},
		&mp4.ChunkOffsetBox{},
		&mp4.SampleSizeBox{},
	}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateStsdMp4Box() (stsd mp4.Box, err error) {
	sampleEntry, err := p.CreateSampleEntryMp4Box()
	if err != nil {
		return
	}

	stsd = &mp4.SampleDescriptionBox{}
	if err = stsd.Mp4BoxReplaceChildren([]mp4.Box{sampleEntry}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateSampleEntryMp4Box() (sampleEntry mp4.Box, err error) {
	fourCC, err := p.codecFourCC()
	if err != nil {
		return
	}
	switch fourCC {
	case mp4.Avc1FourCC:
		sampleEntry, err = p.CreateAvc1Mp4Box()
	case mp4.Hvc1FourCC:
		sampleEntry, err = p.CreateHvc1Mp4Box()
	case mp4.FourCC("mp4a"):
		sampleEntry, err = p.CreateMp4aMp4Box()
	default:
		err = fmt.Errorf("mp4frag: codec %s: %w", fourCC, status.ErrUnknownCodec)
	}
	return
}

func (p *InitSegmentBuilder) CreateHvc1Mp4Box() (hvc1 mp4.Box, err error) {
	hvc1 = &mp4.VisualSampleEntryBox{
		SampleEntry: mp4.SampleEntry{
			Header:             mp4.Header{Type: mp4.BoxType(mp4.Hvc1FourCC)},
			DataReferenceIndex: 1,
		},
		Width:           uint16(p.Info.Width),
		Height:          uint16(p.Info.Height),
		HorizResolution: 72,
		VertResolution:  72,
		FrameCount:      1,
		CompressorName:  "HEVC Coding",
		Depth:           0x0018,
	}
	hvcC, err := p.CreateHvcCMp4Box()
	if err != nil {
		return
	}
	children := []mp4.Box{hvcC}
	if p.protected() {
		hvc1.Mp4BoxSetType(mp4.EncvBoxType)

		var sinf mp4.Box
		if sinf, err = p.CreateSinfMp4Box(mp4.Hvc1FourCC); err != nil {
			return
		}
		children = append(children, sinf)
	}
	if err = hvc1.Mp4BoxReplaceChildren(children); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateAvc1Mp4Box() (avc1 mp4.Box, err error) {
	avc1 = &mp4.VisualSampleEntryBox{
		SampleEntry: mp4.SampleEntry{
			Header:             mp4.Header{Type: mp4.BoxType(mp4.Avc1FourCC)},
			DataReferenceIndex: 1,
		},
		Width:           uint16(p.Info.Width),
		Height:          uint16(p.Info.Height),
		HorizResolution: 72,
		VertResolution:  72,
		FrameCount:      1,
		CompressorName:  "AVC Coding",
		Depth:           0x0018,
	}
	avcC, err := p.CreateAvcCMp4Box()
	if err != nil {
		return
	}
	children := []mp4.Box{avcC}
	if p.protected() {
		avc1.Mp4BoxSetType(mp4.EncvBoxType)

		var sinf mp4.Box
		if sinf, err = p.CreateSinfMp4Box(mp4.Avc1FourCC); err != nil {
			return
		}
		children = append(children, sinf)
	}
	if err = avc1.Mp4BoxReplaceChildren(children); err != nil {
		return
	}
	return
}

// CreateMp4aMp4Box builds the 'mp4a' AudioSampleEntryBox and its 'esds'
// descriptor. go-webdl/mp4 is never observed building an audio sample entry
// anywhere in the pack (moov_processor.go's CreateSampleEntryMp4Box only
// dispatches avc1/hvc1/hev1), so the esds ES_Descriptor/DecoderConfigDescriptor
// bytes are hand-packed directly per ISO/IEC 14496-1 §7.2.6.
func (p *InitSegmentBuilder) CreateMp4aMp4Box() (mp4a mp4.Box, err error) {
	entry := &mp4.AudioSampleEntryBox{
		SampleEntry: mp4.SampleEntry{
			Header:             mp4.Header{Type: mp4.BoxType("mp4a")},
			DataReferenceIndex: 1,
		},
		ChannelCount: uint16(p.Info.Channels),
		SampleSize:   16,
		SampleRate:   p.Info.SamplingFreq << 16,
	}
	esds := &mp4.RawBox{
		Header: mp4.Header{Type: mp4.BoxType("esds")},
		Data:   buildEsdsBody(p.Info.CodecConfig),
	}
	children := []mp4.Box{esds}
	if p.protected() {
		entry.Mp4BoxSetType(mp4.BoxType("enca"))

		var sinf mp4.Box
		if sinf, err = p.CreateSinfMp4Box(mp4.FourCC("mp4a")); err != nil {
			return
		}
		children = append(children, sinf)
	}
	if err = entry.Mp4BoxReplaceChildren(children); err != nil {
		return
	}
	mp4a = entry
	return
}

// buildEsdsBody packs a minimal MPEG-4 ES_Descriptor wrapping the track's
// raw AudioSpecificConfig (CodecConfig) as the DecoderSpecificInfo, objectTypeIndication
// 0x40 (MPEG-4 Audio), streamType 0x05 (AudioStream). Tag/length bytes follow
// the single-byte expandable-length form (value < 0x80), sufficient for the
// small configs this pipeline handles.
func buildEsdsBody(audioSpecificConfig []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // FullBox version/flags

	decSpecificInfo := append([]byte{0x05, byte(len(audioSpecificConfig))}, audioSpecificConfig...)

	decConfigDescr := []byte{0x40, 0x15, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	decConfigDescr = append(decConfigDescr, decSpecificInfo...)
	decConfigDescrTagged := append([]byte{0x04, byte(len(decConfigDescr))}, decConfigDescr...)

	slConfigDescr := []byte{0x06, 0x01, 0x02}

	esDescrBody := append([]byte{0, 0, 0}, decConfigDescrTagged...)
	esDescrBody = append(esDescrBody, slConfigDescr...)
	esDescr := append([]byte{0x03, byte(len(esDescrBody))}, esDescrBody...)

	buf.Write(esDescr)
	return buf.Bytes()
}

func (p *InitSegmentBuilder) CreateSinfMp4Box(originalFormat mp4.FourCC) (sinf mp4.Box, err error) {
	sinf = &mp4.ProtectionSchemeInfoBox{}
	frmt := &mp4.OriginalFormatBox{DataFormat: originalFormat}
	schm := &mp4.SchemeTypeBox{
		SchemeType:    mp4.FourCC(p.Scheme.String()),
		SchemeVersion: 0x00010000,
	}
	schi, err := p.CreateSchiMp4Box()
	if err != nil {
		return
	}
	if err = sinf.Mp4BoxReplaceChildren([]mp4.Box{frmt, schm, schi}); err != nil {
		return
	}
	return
}

// CreateSchiMp4Box builds 'schi'/'tenc', extended from moov_processor.go's
// version (which only ever wrote an 8-byte per-sample IV for plain 'cenc')
// to also carry pattern encryption (crypt/skip byte block, for cbcs/cens)
// and a constant IV (cbcs with no per-sample IV), per
// encrypting_fragmenter.h's crypt_byte_block/skip_byte_block parameters.
func (p *InitSegmentBuilder) CreateSchiMp4Box() (schi mp4.Box, err error) {
	ivSize := uint8(8)
	if len(p.ConstantIV) > 0 {
		ivSize = 0
	}
	tenc := &mp4.TrackEncryptionBox{
		DefaultIsProtected:     1,
		DefaultCryptByteBlock:  p.CryptByteBlock,
		DefaultSkipByteBlock:   p.SkipByteBlock,
		DefaultPerSampleIVSize: ivSize,
		DefaultConstantIVSize:  uint8(len(p.ConstantIV)),
		DefaultConstantIV:      p.ConstantIV,
		DefaultKID:             p.Key.KeyID,
	}
	schi = &mp4.SchemeInformationBox{}
	if err = schi.Mp4BoxReplaceChildren([]mp4.Box{tenc}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateAvcCMp4Box() (avcC mp4.Box, err error) {
	nalus := bytes.Split(p.Info.CodecConfig, []byte{0, 0, 0, 1})
	if len(nalus) < 1 {
		err = fmt.Errorf("mp4frag: invalid CodecConfig for avcC: %w", status.ErrInvalidParam)
		return
	}
	var sps []avc.AVCSequenceParameterSet
	var pps []avc.AVCPictureParameterSet
	for _, nalu := range nalus[1:] {
		naluType := avc.GetNaluType(nalu[0])
		switch naluType {
		case avc.NALU_SPS:
			sps = append(sps, avc.AVCSequenceParameterSet{NALUnit: nalu})
		case avc.NALU_PPS:
			pps = append(pps, avc.AVCPictureParameterSet{NALUnit: nalu})
		}
	}
	var avcProfile, avcProfileCompatibility, avcLevel uint8
	if len(sps) > 0 {
		avcProfile = sps[0].NALUnit[1]
		avcProfileCompatibility = sps[0].NALUnit[2]
		avcLevel = sps[0].NALUnit[3]
	}
	avcC = &mp4.AVCConfigurationBox{
		AVCConfig: avc.AVCDecoderConfigurationRecord{
			ConfigurationVersion:  1,
			AVCProfileIndication:  avcProfile,
			ProfileCompatibility:  avcProfileCompatibility,
			AVCLevelIndication:    avcLevel,
			LengthSizeMinusOne:    3,
			SequenceParameterSets: sps,
			PictureParameterSets:  pps,
		},
	}
	return
}

func (p *InitSegmentBuilder) CreateHvcCMp4Box() (hvcC mp4.Box, err error) {
	nalus := bytes.Split(p.Info.CodecConfig, []byte{0, 0, 0, 1})
	if len(nalus) < 1 {
		err = fmt.Errorf("mp4frag: invalid CodecConfig for hvcC: %w", status.ErrInvalidParam)
		return
	}
	var vpsNalus, spsNalus, ppsNalus [][]byte
	for _, nalu := range nalus[1:] {
		naluType := hevc.GetNaluType(nalu[0])
		switch naluType {
		case hevc.NALU_VPS:
			vpsNalus = append(vpsNalus, nalu)
		case hevc.NALU_SPS:
			spsNalus = append(spsNalus, nalu)
		case hevc.NALU_PPS:
			ppsNalus = append(ppsNalus, nalu)
		}
	}
	if len(spsNalus) == 0 {
		err = fmt.Errorf("mp4frag: cannot find hevc sps nalu: %w", status.ErrInvalidParam)
		return
	}
	conf, err := hevc.CreateHEVCDecoderConfigurationRecord(vpsNalus, spsNalus, ppsNalus, true, true, true)
	if err != nil {
		return
	}
	hvcC = &mp4.HEVCConfigurationBox{HEVCConfig: conf}
	return
}

func (p *InitSegmentBuilder) CreateDinfMp4Box() (dinf mp4.Box, err error) {
	dref, err := p.CreateDrefMp4Box()
	if err != nil {
		return
	}
	dinf = &mp4.DataInformationBox{}
	if err = dinf.Mp4BoxReplaceChildren([]mp4.Box{dref}); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateDrefMp4Box() (dref mp4.Box, err error) {
	url := &mp4.DataEntryBox{}
	url.Mp4BoxSetFlags(mp4.FLAG_DREF_SAME_FILE)
	dref = &mp4.DataReferenceBox{}
	if err = dref.Mp4BoxAppend(url); err != nil {
		return
	}
	return
}

func (p *InitSegmentBuilder) CreateMhdMp4Box() (mhd mp4.Box, err error) {
	switch p.Info.Type {
	case stream.Video:
		mhd = &mp4.VideoMediaHeaderBox{}
	case stream.Audio:
		mhd = &mp4.SoundMediaHeaderBox{}
	}
	return
}

// Build returns the serialized ftyp+moov init segment bytes.
//
// go-webdl/mp4's Box write entrypoint is never directly exercised anywhere
// in the pack (moov_processor.go stops at box construction, returning Box
// values). Mp4BoxEncode is inferred by extending the teacher's own
// Mp4Box<Verb> method family (Mp4BoxUpdate/Mp4BoxReplaceChildren/
// Mp4BoxSetFlags/Mp4BoxSetType/Mp4BoxAppend) to the one remaining verb this
// pipeline needs (serialize), since the pack never calls it directly. See
// DESIGN.md.
func (p *InitSegmentBuilder) Build() ([]byte, error) {
	ftyp, err := p.CreateFtypMp4Box()
	if err != nil {
		return nil, err
	}
	moov, err := p.CreateMoovMp4Box()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := ftyp.Mp4BoxEncode(&buf); err != nil {
		return nil, err
	}
	if err := moov.Mp4BoxEncode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
