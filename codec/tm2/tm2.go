/*
DESCRIPTION
  tm2.go implements a TrueMotion 2 decoder: per-stream-type payload
  parsing (length-prefixed delta tables and a bitstream-serialised Huffman
  tree feeding a token stream), a 4x4 macroblock grid decoded by
  block-type-specific routines, and YCoCg-like to RGB conversion.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tm2 decodes TrueMotion 2 video: seven independent per-stream-type
// payloads (chroma/luma high/low resolution deltas, an additive update
// stream, motion vectors, and block types) each carrying an optional delta
// table and a Huffman tree serialised directly in the bitstream as nested
// leaf/internal nodes, then a 4x4 macroblock grid whose block-type token
// selects which payloads to draw from and how to apply them atop the
// previous frame.
package tm2

import (
	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/internal/bitio"
	"github.com/ausocean/mediacore/internal/mlog"
	"github.com/ausocean/mediacore/media"
)

var (
	ErrInvalidData = errors.New("tm2: invalid data")
	ErrShortData   = errors.New("tm2: short data")
)

// StreamType indexes TM2's seven independent payload streams.
type StreamType int

const (
	StreamCHigh StreamType = iota
	StreamCLow
	StreamLHigh
	StreamLLow
	StreamUpdate
	StreamMotion
	StreamBlockType
	numStreams
)

// BlockType is the per-4x4-macroblock coding mode read from StreamBlockType.
type BlockType int

const (
	BlockHiRes BlockType = iota
	BlockMedRes
	BlockLowRes
	BlockNullRes
	BlockUpdate
	BlockStill
	BlockMotion
	numBlockTypes
)

// treeNode is one node of a TM2 payload's bitstream-serialised Huffman
// tree: either a leaf carrying a value, or an internal node with two
// children, matching the "{is_leaf, if leaf then val_bits, else two
// children}" tree shape used by the Huffman-table bootstrap.
type treeNode struct {
	leaf     bool
	val      byte
	children [2]*treeNode
}

// readTree recursively parses a serialised Huffman tree: a 1 bit means an
// internal node (recurse into both children), a 0 bit means a leaf whose
// value follows in valBits bits.
func readTree(br *bitio.BitReader, valBits int) (*treeNode, error) {
	isInternal, err := br.ReadBool()
	if err != nil {
		return nil, err
	}
	n := &treeNode{}
	if !isInternal {
		n.leaf = true
		v, err := br.Read(valBits)
		if err != nil {
			return nil, err
		}
		n.val = byte(v)
		return n, nil
	}
	left, err := readTree(br, valBits)
	if err != nil {
		return nil, err
	}
	right, err := readTree(br, valBits)
	if err != nil {
		return nil, err
	}
	n.children = [2]*treeNode{left, right}
	return n, nil
}

// decodeSymbol walks the tree one bit at a time for a single token.
func decodeSymbol(br *bitio.BitReader, root *treeNode) (byte, error) {
	n := root
	for !n.leaf {
		b, err := br.ReadBool()
		if err != nil {
			return 0, err
		}
		idx := 0
		if b {
			idx = 1
		}
		n = n.children[idx]
		if n == nil {
			return 0, ErrInvalidData
		}
	}
	return n.val, nil
}

const maxDeltas = 64

// stream holds one payload's decoded delta table and token stream, plus a
// read cursor, matching nihav's TM2Stream.
type stream struct {
	deltas [maxDeltas]int32
	tokens []byte
	pos    int
}

// getToken reads the next token and maps it through the delta table,
// matching TM2Stream::get_token.
func (s *stream) getToken() (int32, error) {
	if s.pos >= len(s.tokens) {
		return 0, nil
	}
	t := s.tokens[s.pos]
	s.pos++
	if int(t) >= len(s.deltas) {
		return 0, errors.Wrap(ErrInvalidData, "token index out of range")
	}
	return s.deltas[t], nil
}

// getBlockType reads the next raw token from the block-type stream.
func (s *stream) getBlockType() (byte, error) {
	if s.pos >= len(s.tokens) {
		return 0, ErrShortData
	}
	t := s.tokens[s.pos]
	s.pos++
	return t, nil
}

// readStreamHeader parses one payload: delta table (odd token counts carry
// one), a serialised Huffman tree, and the token stream itself, following
// TM2Stream::read_header's length-prefixed, 4-byte-aligned-length layout.
func readStreamHeader(data []byte) (*stream, int, error) {
	br := bitio.NewBitReader(data, bitio.MSBFirst)
	s := &stream{}

	lenWords, err := readU32LE(data, 0)
	if err != nil {
		return s, 0, err
	}
	if lenWords == 0 {
		return s, 4, nil
	}
	pos := 4
	ntoks, err := readU32LE(data, pos)
	if err != nil {
		return s, pos, err
	}
	pos += 4

	if ntoks&1 != 0 {
		dlen, n, err := readLenEsc(data, pos)
		if err != nil {
			return s, pos, err
		}
		pos = n
		if dlen > 0 {
			for i := 0; i < int(dlen) && i < maxDeltas; i++ {
				v, err := readI32LE(data, pos)
				if err != nil {
					return s, pos, err
				}
				s.deltas[i] = v
				pos += 4
			}
		}
	}

	_, pos, err = readLenEsc(data, pos)
	if err != nil {
		return s, pos, err
	}
	pos += 4 // algo, unused

	br = bitio.NewBitReader(data[pos:], bitio.MSBFirst)
	root, err := readTree(br, 8)
	if err != nil {
		return s, pos, errors.Wrap(err, "huffman tree")
	}
	treeBytes := (br.Tell() + 7) / 8
	pos += treeBytes

	tokLenWords, err := readU32LE(data, pos)
	if err != nil {
		return s, pos, err
	}
	pos += 4
	if tokLenWords > 0 {
		nsym := int(ntoks) >> 1
		tbr := bitio.NewBitReader(data[pos:], bitio.MSBFirst)
		s.tokens = make([]byte, 0, nsym)
		for i := 0; i < nsym; i++ {
			v, err := decodeSymbol(tbr, root)
			if err != nil {
				return s, pos, errors.Wrap(err, "token decode")
			}
			s.tokens = append(s.tokens, v)
		}
		pos += int(tokLenWords) * 4
	}

	return s, pos, nil
}

func readU32LE(b []byte, pos int) (uint32, error) {
	if pos+4 > len(b) {
		return 0, ErrShortData
	}
	return uint32(b[pos]) | uint32(b[pos+1])<<8 | uint32(b[pos+2])<<16 | uint32(b[pos+3])<<24, nil
}

func readI32LE(b []byte, pos int) (int32, error) {
	v, err := readU32LE(b, pos)
	return int32(v), err
}

const tm2Escape = 0x80000000

// readLenEsc reads a length that may be escaped to a following 32-bit
// value when it equals the sentinel 0x80000000, matching ReadLenEsc.
func readLenEsc(b []byte, pos int) (uint32, int, error) {
	v, err := readU32LE(b, pos)
	if err != nil {
		return 0, pos, err
	}
	pos += 4
	if v == tm2Escape {
		v2, err := readU32LE(b, pos)
		if err != nil {
			return 0, pos, err
		}
		pos += 4
		return v2, pos, nil
	}
	return v, pos, nil
}

// Decoder is a TrueMotion 2 decoder. The zero value is not ready; use New.
type Decoder struct {
	pool    *media.Pool
	log     *mlog.Logger
	width   int
	height  int
	streams [numStreams]*stream
	prevY   []byte
	prevU   []int16
	prevV   []int16
	ystride int
	cstride int
}

// New returns a Decoder allocating RGB output frames sized width x height.
// log may be nil.
func New(width, height int, maxFrames int, log *mlog.Logger) *Decoder {
	return &Decoder{
		pool:   media.NewPool(width, height, media.RGB24, maxFrames),
		log:    log,
		width:  width,
		height: height,
	}
}

func (d *Decoder) warnf(msg string, kv ...interface{}) {
	if d.log != nil {
		d.log.Warnw(msg, kv...)
	}
}

// DecodeFrame parses a TM2 packet (seven length-prefixed payloads in
// StreamType order) and reconstructs the frame.
func (d *Decoder) DecodeFrame(data []byte) (*media.Frame, error) {
	pos := 0
	for i := StreamType(0); i < numStreams; i++ {
		s, consumed, err := readStreamHeader(data[pos:])
		if err != nil {
			d.warnf("tm2: stream payload decode failed", "stream", int(i), "error", err)
			return nil, errors.Wrapf(err, "stream %d", i)
		}
		d.streams[i] = s
		pos += consumed
	}

	ystride := (d.width + 3) &^ 3
	cstride := ystride >> 1
	ysize := ystride * ((d.height + 3) &^ 3)
	csize := cstride * (((d.height + 3) &^ 3) >> 1)

	ydst := make([]byte, ysize)
	udst := make([]int16, csize)
	vdst := make([]int16, csize)

	bw, bh := d.width>>2, d.height>>2
	bt := d.streams[StreamBlockType]
	if len(bt.tokens) != bw*bh {
		d.warnf("tm2: block type count mismatch", "got", len(bt.tokens), "want", bw*bh)
	}

	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			idx, err := bt.getBlockType()
			if err != nil {
				return nil, errors.Wrap(err, "block type")
			}
			if int(idx) >= int(numBlockTypes) {
				return nil, errors.Wrap(ErrInvalidData, "block type out of range")
			}
			if err := d.decodeBlock(BlockType(idx), bx, by, ydst, udst, vdst, ystride, cstride); err != nil {
				return nil, errors.Wrapf(err, "block (%d,%d)", bx, by)
			}
		}
	}

	frame, err := d.pool.Get()
	if err != nil {
		return nil, err
	}
	writeRGB(frame, ydst, udst, vdst, ystride, cstride, d.width, d.height)

	d.prevY, d.prevU, d.prevV = ydst, udst, vdst
	d.ystride, d.cstride = ystride, cstride

	return frame, nil
}

func (d *Decoder) decodeBlock(bt BlockType, bx, by int, ydst []byte, udst, vdst []int16, ystride, cstride int) error {
	yoff := by*4*ystride + bx*4
	coff := by*2*cstride + bx*2

	switch bt {
	case BlockHiRes:
		for i := 0; i < 4; i++ {
			du, err := d.streams[StreamCHigh].getToken()
			if err != nil {
				return err
			}
			dv, err := d.streams[StreamCHigh].getToken()
			if err != nil {
				return err
			}
			applyChromaDelta(udst, vdst, coff, cstride, i, du, dv, d.prevU, d.prevV)
		}
		for i := 0; i < 16; i++ {
			dy, err := d.streams[StreamLHigh].getToken()
			if err != nil {
				return err
			}
			applyLumaDelta(ydst, yoff, ystride, i, dy, d.prevY)
		}
	case BlockMedRes:
		du, err := d.streams[StreamCLow].getToken()
		if err != nil {
			return err
		}
		dv, err := d.streams[StreamCLow].getToken()
		if err != nil {
			return err
		}
		for i := 0; i < 4; i++ {
			applyChromaDelta(udst, vdst, coff, cstride, i, du, dv, d.prevU, d.prevV)
		}
		for i := 0; i < 16; i++ {
			dy, err := d.streams[StreamLHigh].getToken()
			if err != nil {
				return err
			}
			applyLumaDelta(ydst, yoff, ystride, i, dy, d.prevY)
		}
	case BlockLowRes:
		du, err := d.streams[StreamCLow].getToken()
		if err != nil {
			return err
		}
		dv, err := d.streams[StreamCLow].getToken()
		if err != nil {
			return err
		}
		for i := 0; i < 4; i++ {
			applyChromaDelta(udst, vdst, coff, cstride, i, du, dv, d.prevU, d.prevV)
		}
		for _, i := range [4]int{0, 2, 8, 10} {
			dy, err := d.streams[StreamLLow].getToken()
			if err != nil {
				return err
			}
			applyLumaDelta(ydst, yoff, ystride, i, dy, d.prevY)
		}
	case BlockNullRes:
		for i := 0; i < 4; i++ {
			applyChromaDelta(udst, vdst, coff, cstride, i, 0, 0, d.prevU, d.prevV)
		}
	case BlockUpdate:
		for r := 0; r < 2; r++ {
			for x := 0; x < 2; x++ {
				du, err := d.streams[StreamUpdate].getToken()
				if err != nil {
					return err
				}
				dv, err := d.streams[StreamUpdate].getToken()
				if err != nil {
					return err
				}
				idx := coff + r*cstride + x
				udst[idx] = prevC(d.prevU, idx) + int16(du)
				vdst[idx] = prevC(d.prevV, idx) + int16(dv)
			}
		}
		for r := 0; r < 4; r++ {
			for x := 0; x < 4; x++ {
				dy, err := d.streams[StreamUpdate].getToken()
				if err != nil {
					return err
				}
				idx := yoff + r*ystride + x
				ydst[idx] = clip8(int(prevY(d.prevY, idx)) + int(dy))
			}
		}
	case BlockStill:
		copyBlock(ydst, udst, vdst, yoff, coff, ystride, cstride, d.prevY, d.prevU, d.prevV)
	case BlockMotion:
		mvx, err := d.streams[StreamMotion].getToken()
		if err != nil {
			return err
		}
		mvy, err := d.streams[StreamMotion].getToken()
		if err != nil {
			return err
		}
		srcYOff := yoff + int(mvy)*ystride + int(mvx)
		srcCOff := coff + int(mvy/2)*cstride + int(mvx/2)
		copyBlock(ydst, udst, vdst, yoff, coff, ystride, cstride, shiftedY(d.prevY, srcYOff), shiftedC(d.prevU, srcCOff), shiftedC(d.prevV, srcCOff))
	}
	return nil
}

func prevC(prev []int16, idx int) int16 {
	if prev == nil || idx < 0 || idx >= len(prev) {
		return 0
	}
	return prev[idx]
}

func prevY(prev []byte, idx int) byte {
	if prev == nil || idx < 0 || idx >= len(prev) {
		return 0
	}
	return prev[idx]
}

// shiftedY/shiftedC return a view of prev re-based so index 0 corresponds
// to srcOff in the original slice, clamped at the edges, used to realise
// motion-compensated copies via the same copyBlock helper intra blocks use.
func shiftedY(prev []byte, srcOff int) []byte {
	if prev == nil {
		return nil
	}
	if srcOff < 0 {
		srcOff = 0
	}
	if srcOff >= len(prev) {
		srcOff = len(prev) - 1
	}
	return prev[srcOff:]
}

func shiftedC(prev []int16, srcOff int) []int16 {
	if prev == nil {
		return nil
	}
	if srcOff < 0 {
		srcOff = 0
	}
	if srcOff >= len(prev) {
		srcOff = len(prev) - 1
	}
	return prev[srcOff:]
}

func copyBlock(ydst []byte, udst, vdst []int16, yoff, coff, ystride, cstride int, srcY []byte, srcU, srcV []int16) {
	for r := 0; r < 4; r++ {
		for x := 0; x < 4; x++ {
			idx := r*ystride + x
			if idx < len(srcY) {
				ydst[yoff+idx] = srcY[idx]
			}
		}
	}
	for r := 0; r < 2; r++ {
		for x := 0; x < 2; x++ {
			idx := r*cstride + x
			if idx < len(srcU) {
				udst[coff+idx] = srcU[idx]
			}
			if idx < len(srcV) {
				vdst[coff+idx] = srcV[idx]
			}
		}
	}
}

// applyChromaDelta adds a per-2x2-group delta pair to U/V, matching
// DeltaState::apply_c's additive model over the previous frame.
func applyChromaDelta(udst, vdst []int16, coff, cstride, group int, du, dv int32, prevU, prevV []int16) {
	idx := coff + (group/2)*cstride + group%2
	udst[idx] = prevC(prevU, idx) + int16(du)
	vdst[idx] = prevC(prevV, idx) + int16(dv)
}

// applyLumaDelta adds one delta to a 4x4 block's i'th sample (row-major),
// matching DeltaState::apply_y's additive model.
func applyLumaDelta(ydst []byte, yoff, ystride, i int, dy int32, prevY []byte) {
	r, c := i/4, i%4
	idx := yoff + r*ystride + c
	ydst[idx] = clip8(int(prevCByte(prevY, idx)) + int(dy))
}

func prevCByte(prev []byte, idx int) byte {
	if prev == nil || idx < 0 || idx >= len(prev) {
		return 0
	}
	return prev[idx]
}

func clip8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// writeRGB converts TM2's YCoCg-like planes to RGB24:
// R = clip(Y+V), G = clip(Y), B = clip(Y+U).
func writeRGB(frame *media.Frame, y []byte, u, v []int16, ystride, cstride, width, height int) {
	p := &frame.Planes[0]
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			yi := row*ystride + col
			ci := (row/2)*cstride + col/2
			var yy, uu, vv int
			if yi < len(y) {
				yy = int(y[yi])
			}
			if ci < len(u) {
				uu = int(u[ci])
			}
			if ci < len(v) {
				vv = int(v[ci])
			}
			off := p.At(col*3, row)
			if off+2 >= len(p.Data) {
				continue
			}
			p.Data[off] = clip8(yy + vv)
			p.Data[off+1] = clip8(yy)
			p.Data[off+2] = clip8(yy + uu)
		}
	}
}
