/*
DESCRIPTION
  media.go defines the shared data model every codec front-end and the MOV
  demuxer exchange: pixel formats, pooled planar frames, packets with
  tagged side data, and stream/codec descriptors.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package media holds the data model shared by every decoder, encoder, and
// the MOV demuxer in this module: pixel formats, pooled planar frames,
// packets carrying tagged side data, and stream/codec descriptors.
package media

import (
	"sync"

	"github.com/pkg/errors"
)

// ColorModel identifies a pixel format's color family.
type ColorModel int

const (
	ColorYUV ColorModel = iota
	ColorRGB
	ColorPaletted
	ColorGray
)

// Chromaton describes one pixel-format component's packing.
type Chromaton struct {
	HSS, VSS int  // horizontal/vertical subsampling shift
	Packed   bool // packed (interleaved) vs planar
	Depth    uint8
	Shift    uint8
	CompOffs uint8
	NextElem uint8
}

// PixelFormat is the closed pixel-format record from the data model: color
// model plus submodel, per-component chromatons, element size, endianness,
// and alpha/palette flags.
type PixelFormat struct {
	Model        ColorModel
	YUVSubmodel  string // e.g. "420", "422", "444"; empty outside ColorYUV
	Components   []Chromaton
	ElemSize     int
	BigEndian    bool
	HasAlpha     bool
	HasPalette   bool
}

var (
	YUV420P = PixelFormat{
		Model:       ColorYUV,
		YUVSubmodel: "420",
		Components: []Chromaton{
			{HSS: 0, VSS: 0, Depth: 8},
			{HSS: 1, VSS: 1, Depth: 8},
			{HSS: 1, VSS: 1, Depth: 8},
		},
		ElemSize: 1,
	}
	YUV422P = PixelFormat{
		Model:       ColorYUV,
		YUVSubmodel: "422",
		Components: []Chromaton{
			{HSS: 0, VSS: 0, Depth: 8},
			{HSS: 1, VSS: 0, Depth: 8},
			{HSS: 1, VSS: 0, Depth: 8},
		},
		ElemSize: 1,
	}
	// RGB24 is a single packed plane of interleaved 8-bit R,G,B samples,
	// used by codecs (TM2) whose native color space converts directly to
	// RGB rather than planar YUV.
	RGB24 = PixelFormat{
		Model:      ColorRGB,
		Components: []Chromaton{{Depth: 8, Packed: true, NextElem: 3}},
		ElemSize:   3,
	}
	Gray8 = PixelFormat{
		Model:      ColorGray,
		Components: []Chromaton{{Depth: 8}},
		ElemSize:   1,
	}
	Paletted8 = PixelFormat{
		Model:      ColorPaletted,
		Components: []Chromaton{{Depth: 8}},
		ElemSize:   1,
		HasPalette: true,
	}
)

// Plane is one component's data within a Frame.
type Plane struct {
	Width, Height int
	Stride        int
	Data          []byte
	Offset        int
}

// At returns the byte offset of pixel (x,y) within Data.
func (p *Plane) At(x, y int) int { return p.Offset + y*p.Stride + x }

// validate checks the data-model invariant: stride >= width*elemSize and
// the plane's addressed region lies within Data.
func (p *Plane) validate(elemSize int) error {
	if p.Stride < p.Width*elemSize {
		return errors.Errorf("media: plane stride %d < width*elemSize %d", p.Stride, p.Width*elemSize)
	}
	if p.Offset+p.Stride*p.Height > len(p.Data) {
		return errors.Errorf("media: plane extends past backing buffer (%d+%d*%d > %d)",
			p.Offset, p.Stride, p.Height, len(p.Data))
	}
	return nil
}

// Frame is a reference-counted planar image. When its refcount drops to
// zero it is returned to the Pool that allocated it, following the
// "recycled per decoded frame" lifecycle used for every codec's reference
// list.
type Frame struct {
	Format PixelFormat
	Planes []Plane
	Width, Height int

	pool *Pool
	mu   sync.Mutex
	refs int
}

// Ref increments the frame's reference count.
func (f *Frame) Ref() {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
}

// Unref decrements the reference count, returning the frame to its pool
// once it reaches zero.
func (f *Frame) Unref() {
	f.mu.Lock()
	f.refs--
	done := f.refs <= 0
	f.mu.Unlock()
	if done && f.pool != nil {
		f.pool.put(f)
	}
}

// Validate checks every plane's data-model invariant.
func (f *Frame) Validate() error {
	for i := range f.Planes {
		if err := f.Planes[i].validate(f.Format.ElemSize); err != nil {
			return errors.Wrapf(err, "plane %d", i)
		}
	}
	return nil
}

// Pool allocates Frames in fixed video-info classes (width, height, format)
// and recycles them via Frame.Unref, matching the "each decoder
// owns a pool of up to N buffers" / "get_free returns the first buffer
// with refcount==1 or allocates a new one up to a configured limit".
type Pool struct {
	mu      sync.Mutex
	width   int
	height  int
	format  PixelFormat
	maxSize int
	free    []*Frame
	live    int
}

// NewPool returns a Pool for frames of the given class, allocating no more
// than maxSize live frames at once (0 means unbounded).
func NewPool(width, height int, format PixelFormat, maxSize int) *Pool {
	return &Pool{width: width, height: height, format: format, maxSize: maxSize}
}

// Get returns a free frame with refcount reset to 1, allocating a new one
// if the free list is empty and the pool has headroom.
func (p *Pool) Get() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		f.refs = 1
		return f, nil
	}
	if p.maxSize > 0 && p.live >= p.maxSize {
		return nil, errors.Errorf("media: pool exhausted (limit %d)", p.maxSize)
	}
	f := newFrame(p.width, p.height, p.format)
	f.pool = p
	f.refs = 1
	p.live++
	return f, nil
}

func (p *Pool) put(f *Frame) {
	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()
}

func newFrame(width, height int, format PixelFormat) *Frame {
	planes := make([]Plane, len(format.Components))
	for i, c := range format.Components {
		w := width >> c.HSS
		h := height >> c.VSS
		stride := w * format.ElemSize
		planes[i] = Plane{
			Width: w, Height: h, Stride: stride,
			Data: make([]byte, stride*h),
		}
	}
	return &Frame{Format: format, Planes: planes, Width: width, Height: height, refs: 1}
}

// SideDataKind tags the sum type Packet.SideData carries.
type SideDataKind int

const (
	SideDataNone SideDataKind = iota
	SideDataPalette
)

// SideData is a tagged union; only the field matching Kind is meaningful.
// Palette bytes are always the on-disk 1024-byte (256×4) RGBA layout.
type SideData struct {
	Kind    SideDataKind
	IsNew   bool // Palette: true if this palette differs from the previous one
	Palette [1024]byte
}

// Packet is an opaque coded-data unit plus timing and stream association.
type Packet struct {
	StreamID  int
	Data      []byte
	PTS, DTS  int64
	Duration  int64
	Keyframe  bool
	SideData  []SideData
}

// StreamKind classifies a Stream.
type StreamKind int

const (
	StreamVideo StreamKind = iota
	StreamAudio
	StreamData
)

// CodecInfo describes a stream's codec, generalised over video/audio/data
// via an opaque TypeInfo the concrete codec front-end interprets.
type CodecInfo struct {
	Name      string // codec name tag, e.g. "cinepak", "h264", "indeo5"
	TypeInfo  interface{}
	ExtraData []byte
}

// VideoInfo is the TypeInfo for StreamVideo streams.
type VideoInfo struct {
	Width, Height int
	Flipped       bool
	Format        PixelFormat
}

// Stream is a demuxed track's stable metadata.
type Stream struct {
	ID        int
	Kind      StreamKind
	Info      CodecInfo
	TBNum     uint32
	TBDen     uint32
}

// TimeMS converts a timestamp in this stream's timebase to milliseconds.
func (s *Stream) TimeMS(ts int64) int64 {
	if s.TBDen == 0 {
		return 0
	}
	return ts * 1000 * int64(s.TBNum) / int64(s.TBDen)
}
