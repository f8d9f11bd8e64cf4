package crypto

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-webdl/packager/pkg/handler"
	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

type fakeKeySource struct {
	keys map[string]*stream.EncryptionKey
}

func (f *fakeKeySource) GetKey(label string) (*stream.EncryptionKey, error) {
	k, ok := f.keys[label]
	if !ok {
		return nil, errors.New("no key for label " + label)
	}
	return k, nil
}

func (f *fakeKeySource) GetCryptoPeriodKey(label string, idx int64) (*stream.EncryptionKey, error) {
	k := *f.keys[label]
	k.KeyID[0] = byte(idx)
	return &k, nil
}

type sink struct {
	handler.Node
	samples  []*stream.MediaSample
	events   []*stream.MediaEvent
	infos    []*stream.StreamInfo
}

func newSink() *sink { return &sink{Node: handler.InitNode(nil)} }

func (s *sink) Initialize() *status.Status { return nil }
func (s *sink) Process(data *stream.StreamData) *status.Status {
	switch data.Type {
	case stream.MediaSampleData:
		s.samples = append(s.samples, data.MediaSample)
	case stream.MediaEventData:
		s.events = append(s.events, data.MediaEvent)
	case stream.StreamInfoData:
		s.infos = append(s.infos, data.StreamInfo)
	}
	return nil
}
func (s *sink) OnFlushRequest(int) *status.Status { return nil }

func newFakeSource(ivSeed []byte) *fakeKeySource {
	return &fakeKeySource{keys: map[string]*stream.EncryptionKey{
		"AUDIO": {KeyID: [16]byte{9}, Key: make([]byte, 16), IVSeed: ivSeed},
	}}
}

// TestIVMonotonicity checks testable property 4: under cenc, IV increments
// by exactly ceil(prev_size/16) blocks between consecutive samples.
func TestIVMonotonicity(t *testing.T) {
	ks := newFakeSource(make([]byte, 8))
	h := New(Params{Scheme: stream.CENC}, ks, nil, nil)
	s := newSink()
	if err := h.AddOutput(0, s, 0); err != nil {
		t.Fatal(err)
	}
	h.Initialize()

	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Audio, TimeScale: 1000, CodecTag: "mp4a"}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 0, IsKeyFrame: true, Payload: make([]byte, 33)}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 100, IsKeyFrame: true, Payload: make([]byte, 10)}))

	if len(s.samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(s.samples))
	}
	iv0 := binary.BigEndian.Uint64(s.samples[0].DecryptConfig.IV)
	iv1 := binary.BigEndian.Uint64(s.samples[1].DecryptConfig.IV)
	if iv0 != 0 {
		t.Errorf("first sample iv = %d, want 0", iv0)
	}
	wantBlocks := uint64(3) // ceil(33/16) = 3
	if iv1-iv0 != wantBlocks {
		t.Errorf("iv advanced by %d blocks, want %d", iv1-iv0, wantBlocks)
	}
}

// TestClearLead verifies samples before the clear-lead boundary are
// forwarded without a DecryptConfig.
func TestClearLead(t *testing.T) {
	ks := newFakeSource(make([]byte, 8))
	h := New(Params{Scheme: stream.CENC, ClearLeadSeconds: 1.0}, ks, nil, nil)
	s := newSink()
	h.AddOutput(0, s, 0)
	h.Initialize()

	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Audio, TimeScale: 1000, CodecTag: "mp4a"}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 0, IsKeyFrame: true, Payload: make([]byte, 10)}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 500, IsKeyFrame: true, Payload: make([]byte, 10)}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 1200, IsKeyFrame: true, Payload: make([]byte, 10)}))

	if len(s.samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(s.samples))
	}
	if s.samples[0].IsEncrypted || s.samples[1].IsEncrypted {
		t.Error("samples before clear lead boundary must not be encrypted")
	}
	if !s.samples[2].IsEncrypted {
		t.Error("sample past clear lead boundary must be encrypted")
	}
}

// TestAppleSampleAESEac3RoutesThroughSyncframeSplitting checks that an
// ec-3 track under Apple Sample-AES is encrypted via the per-syncframe path
// rather than as a single full-sample span.
func TestAppleSampleAESEac3RoutesThroughSyncframeSplitting(t *testing.T) {
	ks := newFakeSource(make([]byte, 16))
	h := New(Params{Scheme: stream.AppleSampleAES}, ks, nil, nil)
	s := newSink()
	h.AddOutput(0, s, 0)
	h.Initialize()

	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Audio, TimeScale: 1000, CodecTag: "ec-3"}))

	frame := eac3TestFrame()
	payload := append(append([]byte{}, frame...), frame...)
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 0, IsKeyFrame: true, Payload: payload}))

	if len(s.samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(s.samples))
	}
	got := s.samples[0].Payload
	if len(got) != 64 {
		t.Fatalf("got payload length %d, want 64", len(got))
	}
	if string(got[:32]) != string(got[32:]) {
		t.Error("identical syncframes must encrypt identically under per-syncframe chaining")
	}
}

// TestKeyRotationEmitsEvent covers testable property 8: the first sample of
// a new crypto period produces a fresh key-id, signalled via a
// KeyRotationEvent.
func TestKeyRotationEmitsEvent(t *testing.T) {
	ks := newFakeSource(make([]byte, 8))
	h := New(Params{Scheme: stream.CENC, CryptoPeriodDurationS: 1.0}, ks, nil, nil)
	s := newSink()
	h.AddOutput(0, s, 0)
	h.Initialize()

	h.Process(stream.NewStreamInfoData(0, &stream.StreamInfo{Type: stream.Audio, TimeScale: 1000, CodecTag: "mp4a"}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 0, IsKeyFrame: true, Payload: make([]byte, 10)}))
	h.Process(stream.NewMediaSampleData(0, &stream.MediaSample{DTS: 1500, IsKeyFrame: true, Payload: make([]byte, 10)}))

	if len(s.events) != 1 {
		t.Fatalf("got %d key rotation events, want 1", len(s.events))
	}
	if s.events[0].KeyID == s.samples[0].DecryptConfig.KeyID {
		t.Error("rotated key-id must differ from the first period's key-id")
	}
}
