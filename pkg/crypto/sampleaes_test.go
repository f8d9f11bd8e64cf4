package crypto

import "testing"

// eac3TestFrame builds one well-formed 32-byte E-AC-3 syncframe: sync word
// 0x0B77, strmtyp=0/substreamid=0/frmsiz=15 (frame size (15+1)*2=32 bytes),
// followed by a fixed filler pattern for the remaining 28 bytes.
func eac3TestFrame() []byte {
	frame := make([]byte, 32)
	frame[0], frame[1], frame[2], frame[3] = 0x0B, 0x77, 0x00, 0x0F
	for i := 4; i < len(frame); i++ {
		frame[i] = byte(i * 7)
	}
	return frame
}

func TestEac3SyncframeSizesParsesConcatenatedFrames(t *testing.T) {
	payload := append(append([]byte{}, eac3TestFrame()...), eac3TestFrame()...)
	sizes, ok := eac3SyncframeSizes(payload)
	if !ok {
		t.Fatal("expected well-formed access unit to parse")
	}
	if len(sizes) != 2 || sizes[0] != 32 || sizes[1] != 32 {
		t.Fatalf("got sizes %v, want [32 32]", sizes)
	}
}

func TestEac3SyncframeSizesRejectsMalformedInput(t *testing.T) {
	if _, ok := eac3SyncframeSizes([]byte{0x00, 0x00, 0x00, 0x00}); ok {
		t.Fatal("expected parse failure for input missing the sync word")
	}
}

// TestEncryptEac3FrameChainsPerSyncframe verifies each syncframe restarts its
// own CBC chain from iv: two identical plaintext syncframes concatenated
// into one access unit must encrypt to identical ciphertext.
func TestEncryptEac3FrameChainsPerSyncframe(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i * 3)
	}

	enc, err := newSampleAESEncryptor(key)
	if err != nil {
		t.Fatalf("newSampleAESEncryptor: %v", err)
	}

	payload := append(append([]byte{}, eac3TestFrame()...), eac3TestFrame()...)
	enc.encryptEac3Frame(payload, iv)

	if string(payload[:32]) != string(payload[32:]) {
		t.Error("identical syncframes with the same iv must encrypt identically when each resets its own chain")
	}

	// Sanity: encryption actually changed the bytes.
	plain := eac3TestFrame()
	if string(payload[:32]) == string(plain) {
		t.Error("expected the first syncframe's bytes to be encrypted, got plaintext unchanged")
	}
}

// TestEncryptEac3FrameFallsBackOnMalformedInput verifies a payload that
// fails to parse as a concatenation of syncframes is still encrypted (as a
// single full-sample span) rather than silently left untouched.
func TestEncryptEac3FrameFallsBackOnMalformedInput(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)

	enc, err := newSampleAESEncryptor(key)
	if err != nil {
		t.Fatalf("newSampleAESEncryptor: %v", err)
	}

	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	want := make([]byte, len(payload))
	copy(want, payload)
	enc.encryptEac3Frame(payload, iv)

	enc2, _ := newSampleAESEncryptor(key)
	enc2.encryptFullSample(want, iv)

	if string(payload) != string(want) {
		t.Error("malformed access unit should fall back to encryptFullSample's output")
	}
}
