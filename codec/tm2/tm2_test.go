package tm2

import (
	"testing"

	"github.com/ausocean/mediacore/internal/bitio"
)

// buildTree encodes a 2-leaf tree: root is internal (bit 1), its left child
// is a leaf (bit 0) holding lo, its right child a leaf holding hi.
func buildTree(valBits int, lo, hi uint32) []byte {
	bw := bitio.NewBitWriter()
	bw.WriteBits(1, 1) // root: internal
	bw.WriteBits(0, 1) // left: leaf
	bw.WriteBits(lo, valBits)
	bw.WriteBits(0, 1) // right: leaf
	bw.WriteBits(hi, valBits)
	bw.Align()
	return bw.Bytes()
}

func TestReadTreeAndDecodeSymbol(t *testing.T) {
	data := buildTree(8, 0x12, 0x34)

	br := bitio.NewBitReader(data, bitio.MSBFirst)
	root, err := readTree(br, 8)
	if err != nil {
		t.Fatalf("readTree: %v", err)
	}
	if root.leaf {
		t.Fatal("root should be an internal node")
	}

	// decodeSymbol walks fresh bit readers over the remaining serialised
	// path bits (0 then 1) to pick the left, then right leaf.
	left := bitio.NewBitReader([]byte{0x00}, bitio.MSBFirst)
	v, err := decodeSymbol(left, root)
	if err != nil {
		t.Fatalf("decodeSymbol(left): %v", err)
	}
	if v != 0x12 {
		t.Errorf("left symbol = %#x, want 0x12", v)
	}

	right := bitio.NewBitReader([]byte{0x80}, bitio.MSBFirst)
	v, err = decodeSymbol(right, root)
	if err != nil {
		t.Fatalf("decodeSymbol(right): %v", err)
	}
	if v != 0x34 {
		t.Errorf("right symbol = %#x, want 0x34", v)
	}
}

func TestStreamGetTokenMapsThroughDeltas(t *testing.T) {
	s := &stream{tokens: []byte{0, 1, 2}}
	s.deltas[0] = 10
	s.deltas[1] = -5
	s.deltas[2] = 99

	for _, want := range []int32{10, -5, 99} {
		got, err := s.getToken()
		if err != nil {
			t.Fatalf("getToken: %v", err)
		}
		if got != want {
			t.Errorf("getToken = %d, want %d", got, want)
		}
	}
	// Past the end of the token stream, getToken returns a zero delta
	// rather than an error (matching TM2Stream::get_token's padding read).
	got, err := s.getToken()
	if err != nil || got != 0 {
		t.Errorf("getToken past end = (%d, %v), want (0, nil)", got, err)
	}
}

func TestClip8(t *testing.T) {
	cases := []struct {
		in   int
		want byte
	}{{-1, 0}, {0, 0}, {255, 255}, {256, 255}, {100, 100}}
	for _, c := range cases {
		if got := clip8(c.in); got != c.want {
			t.Errorf("clip8(%d) = %d, want %d", c.in, got, c.want)
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
	if f.Planes[0].Stride != 16*3 {
		t.Errorf("plane stride = %d, want %d", f.Planes[0].Stride, 16*3)
	}
}

func TestDecodeFrameShortData(t *testing.T) {
	d := New(16, 8, 1, nil)
	if _, err := d.DecodeFrame([]byte{0x00, 0x01}); err == nil {
		t.Fatal("expected error decoding a truncated frame")
	}
}
