package packager

import "testing"

func TestValidateSegmentTemplate(t *testing.T) {
	cases := []struct {
		tmpl    string
		wantErr bool
	}{
		{"chunk-$Number$.m4s", false},
		{"chunk-$Number%05d$.m4s", false},
		{"chunk-$Time$.m4s", false},
		{"chunk.m4s", true},                      // neither token
		{"chunk-$Number$-$Time$.m4s", true},      // both tokens
		{"chunk-$Number%0xd$.m4s", true},         // non-integer width
		{"$RepresentationID$/chunk-$Number$.m4s", false},
	}
	for _, c := range cases {
		err := ValidateSegmentTemplate(c.tmpl)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateSegmentTemplate(%q) error = %v, wantErr %v", c.tmpl, err, c.wantErr)
		}
	}
}

func TestExpandSegmentNumberWidth(t *testing.T) {
	got := ExpandSegmentNumber("chunk-$Number%05d$.m4s", 42)
	if got != "chunk-00042.m4s" {
		t.Fatalf("ExpandSegmentNumber = %q, want chunk-00042.m4s", got)
	}
	got = ExpandSegmentNumber("chunk-$Number$.m4s", 42)
	if got != "chunk-42.m4s" {
		t.Fatalf("ExpandSegmentNumber = %q, want chunk-42.m4s", got)
	}
}

func TestExpandSegmentTime(t *testing.T) {
	got := ExpandSegmentTime("chunk-$Time$.m4s", 900000)
	if got != "chunk-900000.m4s" {
		t.Fatalf("ExpandSegmentTime = %q, want chunk-900000.m4s", got)
	}
}
