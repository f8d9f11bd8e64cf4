package nalconv

import (
	"bytes"
	"testing"
)

// TestEscapeNalByteSequenceInsertsPreventionByte checks the textbook cases
// from ITU-T H.264 §7.4.1.1: 00 00 00/01/02/03 each get an inserted 0x03
// after the second zero, and runs with no 00 00 <=3 pattern are untouched.
func TestEscapeNalByteSequenceInsertsPreventionByte(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"no run", []byte{0x01, 0x02, 0x03}, []byte{0x01, 0x02, 0x03}},
		{"00 00 00", []byte{0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x03, 0x00}},
		{"00 00 01", []byte{0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x01}},
		{"00 00 02", []byte{0x00, 0x00, 0x02}, []byte{0x00, 0x00, 0x03, 0x02}},
		{"00 00 03", []byte{0x00, 0x00, 0x03}, []byte{0x00, 0x00, 0x03, 0x03}},
		{"00 00 04 not escaped", []byte{0x00, 0x00, 0x04}, []byte{0x00, 0x00, 0x04}},
		{"long zero run", []byte{0x00, 0x00, 0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x01}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := EscapeNalByteSequence(c.in)
			if !bytes.Equal(got, c.want) {
				t.Errorf("EscapeNalByteSequence(% X) = % X, want % X", c.in, got, c.want)
			}
		})
	}
}

// TestEscapeNalByteSequenceIsIdempotentToReescape checks the documented
// "safe to call again" property: re-escaping already-escaped data only adds
// an escape byte where a fresh 00 00 <=3 run appears, never corrupts data.
func TestEscapeNalByteSequenceIsIdempotentToReescape(t *testing.T) {
	once := EscapeNalByteSequence([]byte{0x00, 0x00, 0x01})
	twice := EscapeNalByteSequence(once)
	if !bytes.Equal(once, twice) {
		t.Errorf("re-escaping changed already-escaped data: % X -> % X", once, twice)
	}
}
