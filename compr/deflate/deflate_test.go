/*
DESCRIPTION
  deflate_test.go exercises the resumable Inflate state machine: a
  single-shot decode of a canned fixed-Huffman block, and a chunked
  round-trip (small src chunks into a small dst buffer, looping across
  ShortData and OutputFull suspensions) against streams produced by the
  standard library's compress/flate writer, used here purely as a
  fixture generator.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package deflate

import (
	"bytes"
	stdflate "compress/flate"
	"strings"
	"testing"
)

// TestUncompressFixedBlockGolden decodes the canonical fixed-Huffman
// encoding of "Hello, world!" in a single call.
func TestUncompressFixedBlockGolden(t *testing.T) {
	src := []byte{
		0xF3, 0x48, 0xCD, 0xC9, 0xC9, 0xD7, 0x51, 0x28,
		0xCF, 0x2F, 0xCA, 0x49, 0x51, 0x04, 0x00,
	}
	dst := make([]byte, 32)
	n, err := Uncompress(src, dst)
	if err != nil {
		t.Fatalf("Uncompress: %v", err)
	}
	got := string(dst[:n])
	want := "Hello, world!"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func buildRawDeflate(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := stdflate.NewWriter(&buf, stdflate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("flate.Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate.Close: %v", err)
	}
	return buf.Bytes()
}

// decodeChunked drives DecompressData with small src chunks and a small,
// reusable dst buffer, following the suspension contract: ShortData means
// "feed fresh src, same dst, continueBlock=false"; OutputFull means
// "swap in a fresh dst, same src, continueBlock=true".
func decodeChunked(t *testing.T, compressed []byte, chunkSize, dstSize int) []byte {
	t.Helper()
	fl := New()
	dst := make([]byte, dstSize)
	continueBlock := false
	srcOff := 0
	var out []byte

	for iter := 0; ; iter++ {
		if iter > 10000 {
			t.Fatalf("decodeChunked: too many iterations, suspected infinite loop")
		}
		end := srcOff + chunkSize
		if end > len(compressed) {
			end = len(compressed)
		}
		if srcOff >= end {
			t.Fatalf("decodeChunked: ran out of input before Ok")
		}
		chunk := compressed[srcOff:end]

		n, err := fl.DecompressData(chunk, dst, continueBlock)
		switch err {
		case nil:
			out = append(out, dst[:n]...)
			return out
		case ErrShortData:
			srcOff = end
			continueBlock = false
		case ErrOutputFull:
			out = append(out, dst[:n]...)
			dst = make([]byte, dstSize)
			continueBlock = true
		default:
			t.Fatalf("DecompressData: %v", err)
		}
	}
}

func TestDecompressDataChunked(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20))
	compressed := buildRawDeflate(t, payload)

	got := decodeChunked(t, compressed, 5, 9)
	if !bytes.Equal(got, payload) {
		t.Fatalf("decoded payload mismatch: got %d bytes, want %d bytes", len(got), len(payload))
	}
}

func TestDecompressDataChunkedShortPayload(t *testing.T) {
	payload := []byte("aaaaaaaaaaaabbbbbbbbbbbbbbbaaaaabbbbbbb")
	compressed := buildRawDeflate(t, payload)

	got := decodeChunked(t, compressed, 3, 7)
	if !bytes.Equal(got, payload) {
		t.Fatalf("decoded payload mismatch: got %q, want %q", got, payload)
	}
}

// TestDecompressDataStoredBlock forces a stored (uncompressed) block by
// writing incompressible random-looking bytes at the lowest compression
// level, covering the btype 00 path distinct from the fixed/dynamic
// Huffman paths exercised above.
func TestDecompressDataStoredBlock(t *testing.T) {
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i*167 + 13)
	}
	var buf bytes.Buffer
	w, err := stdflate.NewWriter(&buf, stdflate.NoCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("flate.Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate.Close: %v", err)
	}

	dst := make([]byte, len(payload)+16)
	n, err := Uncompress(buf.Bytes(), dst)
	if err != nil {
		t.Fatalf("Uncompress: %v", err)
	}
	if !bytes.Equal(dst[:n], payload) {
		t.Fatalf("stored block decode mismatch: got %d bytes, want %d", n, len(payload))
	}
}
