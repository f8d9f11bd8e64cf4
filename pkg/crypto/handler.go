package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"

	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
	"github.com/go-webdl/packager/pkg/subsample"
)

// Params configures an EncryptionHandler, mirroring spec.md §6's
// encryption_params.
type Params struct {
	Scheme                 stream.ProtectionScheme
	ClearLeadSeconds       float64
	CryptoPeriodDurationS  float64
	VP9SubsampleEncryption bool
	ProtectionSystems      []stream.ProtectionSystemData
	Labeler                StreamLabeler // nil uses DefaultStreamLabeler
}

// Handler attaches DecryptConfig (CENC) or encrypts in place (Sample-AES),
// per spec.md §4.4.
type Handler struct {
	handler.Node

	params    Params
	keySource KeySource
	sizer     subsample.SliceHeaderSizer

	streamLabel string
	codecTag    string

	clearLeadDuration int64 // time-scale units; clearLeadOver records when it has elapsed.
	clearLeadOver       bool
	streamStartDTS      int64
	haveStreamStartDTS  bool

	cryptoPeriodDuration  int64
	prevCryptoPeriodIndex int64
	key                   *stream.EncryptionKey

	gen *subsample.Generator
	aes *sampleAESEncryptor
	iv  []byte
}

// New constructs an EncryptionHandler. sizer is required only for H.264/H.265
// streams under CENC schemes, where subsample spans need slice-header sizes.
func New(params Params, keySource KeySource, sizer subsample.SliceHeaderSizer, logger *slog.Logger) *Handler {
	labeler := params.Labeler
	if labeler == nil {
		labeler = DefaultStreamLabeler
	}
	params.Labeler = labeler
	return &Handler{
		Node:      handler.InitNode(logger),
		params:    params,
		keySource: keySource,
		sizer:     sizer,
		gen:       subsample.New(params.VP9SubsampleEncryption),
	}
}

func (h *Handler) Initialize() *status.Status {
	return nil
}

func (h *Handler) Process(data *stream.StreamData) *status.Status {
	switch data.Type {
	case stream.StreamInfoData:
		return h.onStreamInfo(data)
	case stream.MediaSampleData:
		return h.onMediaSample(data)
	default:
		return h.Dispatch(data)
	}
}

func (h *Handler) OnFlushRequest(inputPort int) *status.Status {
	return h.DispatchFlush()
}

func (h *Handler) onStreamInfo(data *stream.StreamData) *status.Status {
	info := data.StreamInfo
	h.streamLabel = h.params.Labeler(info)
	h.codecTag = info.CodecTag
	h.clearLeadDuration = int64(h.params.ClearLeadSeconds * float64(info.TimeScale))
	h.cryptoPeriodDuration = int64(h.params.CryptoPeriodDurationS * float64(info.TimeScale))
	// Period 0 is already served by the key GetKey just resolved, so no
	// rotation event is needed until the timeline crosses into period 1.
	h.prevCryptoPeriodIndex = 0

	key, err := h.keySource.GetKey(h.streamLabel)
	if err != nil {
		return status.Wrap(status.EncryptionError, status.ErrMissingKey, err.Error())
	}
	h.key = key

	if err := h.setupEncryptor(); !status.Ok(err) {
		return err
	}

	h.gen.Initialize(h.params.Scheme, info, nil, nil, h.sizer)

	out := info.Clone()
	out.Encrypted = true
	return h.Dispatch(stream.NewStreamInfoData(data.StreamIndex, out))
}

func (h *Handler) setupEncryptor() *status.Status {
	if h.params.Scheme == stream.AppleSampleAES {
		enc, err := newSampleAESEncryptor(h.key.Key)
		if err != nil {
			return status.Wrap(status.EncryptionError, err, "failed to set up sample-aes encryptor")
		}
		h.aes = enc
	}
	h.iv = freshIV(h.key)
	return nil
}

// freshIV derives a per-key IV: a copy of key.IVSeed at whatever length it
// has, or 16 zero bytes when the key carries no seed. The scheme is not
// consulted.
func freshIV(key *stream.EncryptionKey) []byte {
	if len(key.IVSeed) > 0 {
		iv := make([]byte, len(key.IVSeed))
		copy(iv, key.IVSeed)
		return iv
	}
	return make([]byte, 16)
}

func (h *Handler) cryptoPeriodIndex(dts int64) int64 {
	if h.cryptoPeriodDuration <= 0 {
		return 0
	}
	return dts / h.cryptoPeriodDuration
}

func (h *Handler) onMediaSample(data *stream.StreamData) *status.Status {
	sample := data.MediaSample
	if !h.haveStreamStartDTS {
		h.streamStartDTS = sample.DTS
		h.haveStreamStartDTS = true
	}

	if !h.clearLeadOver {
		clearLeadEnd := h.streamStartDTS + h.clearLeadDuration
		if sample.DTS < clearLeadEnd || !sample.IsKeyFrame {
			return h.Dispatch(data)
		}
		h.clearLeadOver = true
	}

	if h.cryptoPeriodDuration > 0 {
		idx := h.cryptoPeriodIndex(sample.DTS)
		if idx != h.prevCryptoPeriodIndex {
			key, err := h.keySource.GetCryptoPeriodKey(h.streamLabel, idx)
			if err != nil {
				return status.Wrap(status.EncryptionError, status.ErrMissingKey, err.Error())
			}
			h.key = key
			if s := h.setupEncryptor(); !status.Ok(s) {
				return s
			}
			h.prevCryptoPeriodIndex = idx
			event := &stream.StreamData{
				StreamIndex: data.StreamIndex,
				Type:        stream.MediaEventData,
				MediaEvent:  &stream.MediaEvent{Type: stream.KeyRotationEvent, KeyID: h.key.KeyID},
			}
			if s := h.Dispatch(event); !status.Ok(s) {
				return s
			}
		}
	}

	entries, s := h.gen.Generate(sample.Payload)
	if !status.Ok(s) {
		return s
	}

	sample.EnsureOwned()

	dc := &stream.DecryptConfig{
		KeyID:      h.key.KeyID,
		Scheme:     h.params.Scheme,
		Subsamples: entries,
	}

	switch h.params.Scheme {
	case stream.CENC, stream.CENS, stream.CBC1:
		dc.IV = h.ivBytes()
		h.advanceIV(len(sample.Payload))
	case stream.CBCS:
		// cbcs uses a per-key constant IV, not a per-sample counter: IV
		// monotonicity (testable property 4) is defined only for
		// cenc/cens/cbc1.
		dc.ConstantIV = h.iv
	case stream.AppleSampleAES:
		switch {
		case len(entries) > 0:
			h.aes.encryptSubsamples(sample.Payload, entries, h.iv)
		case h.codecTag == "ec-3":
			// E-AC-3 (Dolby Digital Plus): encrypt each syncframe in the
			// access unit independently, per spec.md §4.4.
			h.aes.encryptEac3Frame(sample.Payload, h.iv)
		default:
			h.aes.encryptFullSample(sample.Payload, h.iv)
		}
		if err := h.refreshIV(); err != nil {
			return status.Wrap(status.EncryptionError, err, "failed to generate fresh sample-aes iv")
		}
	default:
		return status.Wrap(status.EncryptionError, status.ErrUnknownScheme, "unsupported protection scheme")
	}

	sample.IsEncrypted = true
	sample.DecryptConfig = dc
	return h.Dispatch(stream.NewMediaSampleData(data.StreamIndex, sample))
}

// ivBytes returns the current 8-byte counter IV, per spec.md §4.4's
// "8-byte counter or 16-byte" IV rule; cbc1/cens/cenc here use the 8-byte
// counter form.
func (h *Handler) ivBytes() []byte {
	iv := make([]byte, 8)
	copy(iv, h.iv)
	return iv
}

// advanceIV increments the IV counter by ceil(size/16) blocks, per spec.md
// §4.4's "IV counter" rule and testable property 4 ("IV monotonicity").
func (h *Handler) advanceIV(size int) {
	blocks := uint64(size+15) / 16
	counter := binary.BigEndian.Uint64(h.iv[:8])
	counter += blocks
	binary.BigEndian.PutUint64(h.iv[:8], counter)
}

// refreshIV replaces h.iv with fresh random bytes, per spec.md §4.4's Apple
// Sample-AES "fresh IV per sample" rule.
func (h *Handler) refreshIV() error {
	iv := make([]byte, len(h.iv))
	if _, err := rand.Read(iv); err != nil {
		return err
	}
	h.iv = iv
	return nil
}
