package tm2x

import "testing"

func TestDecryptorRoundTrip(t *testing.T) {
	var d decryptor
	d.setState(0x12345678)

	plain := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	buf := append([]byte(nil), plain...)

	d.decrypt(buf)
	if string(buf) == string(plain) {
		t.Fatal("decrypt did not change the buffer")
	}

	// XOR with the same keystream again recovers the original bytes.
	var d2 decryptor
	d2.setState(0x12345678)
	d2.decrypt(buf)
	for i := range buf {
		if buf[i] != plain[i] {
			t.Fatalf("byte %d = %d, want %d after round trip", i, buf[i], plain[i])
		}
	}
}

func TestDecryptorDeterministic(t *testing.T) {
	var a, b decryptor
	a.setState(42)
	b.setState(42)
	if a.key != b.key {
		t.Errorf("setState(42) produced different keys: %v vs %v", a.key, b.key)
	}
}

func TestAddPredByteClips(t *testing.T) {
	cases := []struct {
		base byte
		pred int16
		want byte
	}{
		{250, 10, 255},
		{5, -10, 0},
		{100, 20, 120},
	}
	for _, c := range cases {
		if got := addPredByte(c.base, c.pred); got != c.want {
			t.Errorf("addPredByte(%d, %d) = %d, want %d", c.base, c.pred, got, c.want)
		}
	}
}

func TestPrevByteAtOutOfRangeDefaultsToNeutral(t *testing.T) {
	if got := prevByteAt(nil, 0); got != 128 {
		t.Errorf("prevByteAt(nil, 0) = %d, want 128", got)
	}
	buf := []byte{10, 20, 30}
	if got := prevByteAt(buf, 5); got != 128 {
		t.Errorf("prevByteAt out of range = %d, want 128", got)
	}
	if got := prevByteAt(buf, 1); got != 20 {
		t.Errorf("prevByteAt(buf, 1) = %d, want 20", got)
	}
}

func TestCodingParamsTableShape(t *testing.T) {
	if len(codingParams) != 25 {
		t.Fatalf("codingParams has %d entries, want 25", len(codingParams))
	}
	for i, p := range codingParams {
		if p[1] > 8 || p[3] > 8 {
			t.Errorf("codingParams[%d] = %v has a count field > 8", i, p)
		}
	}
}

func TestNewAllocatesRGBPool(t *testing.T) {
	d := New(16, 8, 1, nil)
	if d.width != 16 || d.height != 8 {
		t.Fatalf("New: dimensions = %dx%d, want 16x8", d.width, d.height)
	}
	f, err := d.pool.Get()
	if err != nil {
		t.Fatalf("pool.Get: %v", err)
	}
	if len(f.Planes) != 1 {
		t.Fatalf("RGB24 frame should have exactly one packed plane, got %d", len(f.Planes))
	}
}

func TestDecodeFrameShortData(t *testing.T) {
	d := New(16, 8, 1, nil)
	if _, err := d.DecodeFrame([]byte{0, 1, 2}); err == nil {
		t.Fatal("expected error decoding a packet shorter than the seed+codebook prefix")
	}
}
