/*
DESCRIPTION
  gzip_test.go round-trips real gzip members (built with the standard
  library's compress/gzip writer, used here purely as a fixture
  generator) through Decode, checking decompressed content and the
  trailing CRC32/ISIZE validation.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package gzip

import (
	"bytes"
	stdgzip "compress/gzip"
	"strings"
	"testing"
)

func buildGzip(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := stdgzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("gzip.Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip.Close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeLoremIpsum(t *testing.T) {
	payload := []byte(strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit. ", 6))
	member := buildGzip(t, payload)

	got, err := Decode(bytes.NewReader(member), false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("decoded payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	member := buildGzip(t, nil)
	got, err := Decode(bytes.NewReader(member), false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(got))
	}
}

func TestDecodeInvalidHeader(t *testing.T) {
	bad := []byte{0x1F, 0x8B, 0x07, 0, 0, 0, 0, 0, 0, 0} // wrong compression method
	if _, err := Decode(bytes.NewReader(bad), true); err != ErrInvalidHeader {
		t.Fatalf("got %v, want ErrInvalidHeader", err)
	}
}
