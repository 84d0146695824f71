package cinepak

import (
	"testing"

	"github.com/ausocean/mediacore/media"
)

func solidFrame(width, height int, y, u, v uint8) *media.Frame {
	pool := media.NewPool(width, height, media.YUV420P, 1)
	f, err := pool.Get()
	if err != nil {
		panic(err)
	}
	for i := range f.Planes[0].Data {
		f.Planes[0].Data[i] = y
	}
	for i := range f.Planes[1].Data {
		f.Planes[1].Data[i] = u
	}
	for i := range f.Planes[2].Data {
		f.Planes[2].Data[i] = v
	}
	return f
}

func TestEncodeIntraStripHeader(t *testing.T) {
	const w, h = 352, 288
	enc := New(w, h, false, 2)
	frame := solidFrame(w, h, 100, 128, 128)

	data, err := enc.EncodeFrame(frame, true)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if len(data) < 10 {
		t.Fatalf("frame too short: %d bytes", len(data))
	}
	if data[0] != 1 {
		t.Errorf("flags = %d, want 1 (keyframe)", data[0])
	}
	size := getU24BE(data[1:4])
	if int(size) != len(data) {
		t.Errorf("frame size field = %d, want %d", size, len(data))
	}
	stripID := data[10]
	if stripID != stripIntra {
		t.Errorf("first strip id = 0x%02x, want 0x%02x", stripID, stripIntra)
	}
	stripHeight := int(data[18])<<8 | int(data[19])
	if stripHeight != 144 {
		t.Errorf("first strip height = %d, want 144", stripHeight)
	}
	stripWidth := int(data[20])<<8 | int(data[21])
	if stripWidth != w {
		t.Errorf("first strip width = %d, want %d", stripWidth, w)
	}
}

func TestEncodeDecodeRoundTripSolidFrame(t *testing.T) {
	const w, h = 64, 32
	enc := New(w, h, false, 2)
	dec := NewDecoder(w, h, 2)

	frame := solidFrame(w, h, 77, 150, 90)
	data, err := enc.EncodeFrame(frame, true)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	out, err := dec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	var sse int64
	yp := &frame.Planes[0]
	op := &out.Planes[0]
	for i := 0; i < len(yp.Data); i++ {
		d := int64(yp.Data[i]) - int64(op.Data[i])
		sse += d * d
	}
	// A solid frame should quantise to an exact or near-exact reconstruction.
	maxSSE := int64(len(yp.Data)) * 4
	if sse > maxSSE {
		t.Errorf("luma SSE %d exceeds bound %d for a solid input frame", sse, maxSSE)
	}
}

func TestEncodeInterFrameUsesInterStrip(t *testing.T) {
	const w, h = 64, 32
	enc := New(w, h, false, 2)
	frame := solidFrame(w, h, 40, 128, 128)

	if _, err := enc.EncodeFrame(frame, true); err != nil {
		t.Fatalf("intra EncodeFrame: %v", err)
	}
	data, err := enc.EncodeFrame(frame, false)
	if err != nil {
		t.Fatalf("inter EncodeFrame: %v", err)
	}
	if data[0] != 0 {
		t.Errorf("flags = %d, want 0 (interframe)", data[0])
	}
	stripID := data[10]
	if stripID != stripInter {
		t.Errorf("strip id = 0x%02x, want 0x%02x", stripID, stripInter)
	}
}

func TestTrailingUnchanged(t *testing.T) {
	var a, b [256]YUVCode
	for i := range a {
		a[i] = YUVCode{Y: [4]uint8{1, 2, 3, 4}, U: 5, V: 6}
		b[i] = a[i]
	}
	b[0].Y[0] = 99
	n := trailingUnchanged(a, b)
	if n != 255 {
		t.Errorf("trailingUnchanged = %d, want 255", n)
	}
}
