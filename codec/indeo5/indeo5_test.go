package indeo5

import (
	"testing"

	"github.com/ausocean/mediacore/internal/bitio"
)

// encodeIntraHeader builds a minimal valid Indeo 5 GOP+picture header for a
// single-band-luma, single-band-chroma 176x144 intra frame, matching
// DecodePictureHeader's bit layout field for field.
func encodeIntraHeader() []byte {
	bw := bitio.NewBitWriter()
	bw.WriteBits(0x1F, 5) // sync
	bw.WriteBits(0, 3)    // frame type index -> FrameIntra
	bw.WriteBits(0, 8)    // frame number
	bw.WriteBits(0, 8)    // gop flags: no header size, no lock, no tile scale, no align
	bw.WriteBits(0, 2)    // luma band selector -> 1 band
	bw.WriteBits(0, 1)    // chroma band selector -> 1 band
	bw.WriteBits(7, 4)    // size index 7 -> 176x144
	for i := 0; i < 2; i++ {
		bw.WriteBits(0, 1) // half-pel
		bw.WriteBits(0, 1) // mb scale
		bw.WriteBits(0, 1) // block size bit
		bw.WriteBits(0, 1) // extended transform
		bw.WriteBits(0, 2) // band end marker
	}
	bw.Align()         // 43 bits -> pad to 48
	bw.WriteBits(0, 23) // reserved
	bw.WriteBits(0, 1)  // no GOP extension
	bw.Align()          // already byte-aligned at 72 bits
	bw.WriteBits(0, 8)  // picture flags: no size override, no checksum, no extension
	return bw.Bytes()
}

func TestDecodePictureHeaderIntra(t *testing.T) {
	data := encodeIntraHeader()
	br := bitio.NewBitReader(data, bitio.MSBFirst)

	hdr, err := DecodePictureHeader(br)
	if err != nil {
		t.Fatalf("DecodePictureHeader: %v", err)
	}
	if hdr.Type != FrameIntra {
		t.Errorf("Type = %v, want FrameIntra", hdr.Type)
	}
	if hdr.Width != 176 || hdr.Height != 144 {
		t.Errorf("size = %dx%d, want 176x144", hdr.Width, hdr.Height)
	}
	if hdr.LumaBands != 1 {
		t.Errorf("LumaBands = %d, want 1", hdr.LumaBands)
	}
	if hdr.ChromaBands != 1 {
		t.Errorf("ChromaBands = %d, want 1", hdr.ChromaBands)
	}
	if hdr.TileW != 176 || hdr.TileH != 144 {
		t.Errorf("tile size = %dx%d, want 176x144 (defaults to picture size)", hdr.TileW, hdr.TileH)
	}
}

func TestDecodePictureHeaderBadSync(t *testing.T) {
	br := bitio.NewBitReader([]byte{0x00, 0x00}, bitio.MSBFirst)
	if _, err := DecodePictureHeader(br); err == nil {
		t.Fatal("expected error for bad sync pattern")
	}
}

func TestDecodeFrameShortData(t *testing.T) {
	d := New(176, 144, 2, nil)
	if _, err := d.DecodeFrame([]byte{0x00}); err == nil {
		t.Fatal("expected error decoding a truncated frame")
	}
}

func TestNewAllocatesPool(t *testing.T) {
	d := New(64, 48, 1, nil)
	if d.width != 64 || d.height != 48 {
		t.Fatalf("New: dimensions = %dx%d, want 64x48", d.width, d.height)
	}
}
