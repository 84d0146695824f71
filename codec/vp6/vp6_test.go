package vp6

import "testing"

func TestIDCT4x4DCOnly(t *testing.T) {
	var in [16]int16
	in[0] = 80
	out := idct4x4(in)
	want := int16(10) // (80+4)>>3
	for i, v := range out {
		if v != want {
			t.Fatalf("out[%d] = %d, want %d (pure-DC block must be flat)", i, v, want)
		}
	}
}

func TestIDCT4x4ZeroIsZero(t *testing.T) {
	var in [16]int16
	out := idct4x4(in)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %d, want 0", i, v)
		}
	}
}

func TestClip8(t *testing.T) {
	cases := []struct {
		in   int
		want byte
	}{
		{-5, 0},
		{0, 0},
		{128, 128},
		{255, 255},
		{300, 255},
	}
	for _, c := range cases {
		if got := clip8(c.in); got != c.want {
			t.Errorf("clip8(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDefaultCoeffModelNoZeroProbabilities(t *testing.T) {
	m := DefaultCoeffModel()
	for i, p := range m.DCProbs {
		if p == 0 {
			t.Errorf("DCProbs[%d] = 0, a zero probability would make the bool coder stall", i)
		}
	}
	for c := range m.ACProbs {
		for b := range m.ACProbs[c] {
			for i, p := range m.ACProbs[c][b] {
				if p == 0 {
					t.Errorf("ACProbs[%d][%d][%d] = 0", c, b, i)
				}
			}
		}
	}
}

func TestParseHeaderRejectsEmptyInput(t *testing.T) {
	st := &persistentState{}
	if _, _, err := ParseHeader(nil, st); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParseHeaderRejectsBadVersion(t *testing.T) {
	// Intra bit=0, quant(6)=0, multistream bit=0, then version(5)=0 (out of
	// VP60..VP62 range), forming the first raw-bit-read byte.
	st := &persistentState{}
	if _, _, err := ParseHeader([]byte{0x00, 0x00, 0x00}, st); err == nil {
		t.Fatal("expected error for out-of-range version field")
	}
}

func TestNewAllocatesPool(t *testing.T) {
	d := New(64, 48, 1, nil)
	if d.width != 64 || d.height != 48 {
		t.Fatalf("New: dimensions = %dx%d, want 64x48", d.width, d.height)
	}
}
