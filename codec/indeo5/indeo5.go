/*
DESCRIPTION
  indeo5.go implements an Indeo 5 decoder: picture-header parsing over the
  GOP/tile/band hierarchy, per-band tile/macroblock decode with inherited
  motion vectors, quantised residual decode, and wavelet-style plane
  recombination for the four-band luma case.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package indeo5 decodes Indeo 5's band/tile/macroblock hierarchy: a
// picture header selects between one and four luma subbands plus a single
// chroma band, each subdivided into tiles and macroblocks that inherit
// motion vectors from a co-located reference band unless told otherwise,
// and (when four luma bands are present) combines the decoded subbands
// with a 5-tap lowpass / 3-tap highpass filter pair into full-resolution
// luma.
package indeo5

import (
	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/internal/bitio"
	"github.com/ausocean/mediacore/internal/mlog"
	"github.com/ausocean/mediacore/media"
)

var (
	ErrInvalidData = errors.New("indeo5: invalid data")
	ErrShortData   = errors.New("indeo5: short data")
	ErrUnsupported = errors.New("indeo5: unsupported")
)

// FrameType is the picture-level coding type read from the 3-bit type
// index in the picture header.
type FrameType int

const (
	FrameIntra FrameType = iota
	FrameInter
	FrameInterScal
	FrameInterDroppable
	FrameNull
)

var frameTypeTab = [5]FrameType{FrameIntra, FrameInter, FrameInterScal, FrameInterDroppable, FrameNull}

func (t FrameType) isNull() bool { return t == FrameNull }

// pictureSizeTab is the indexed table of common Indeo 5 picture
// dimensions; index 15 (not present here) signals an explicit 13-bit
// width/height pair in the bitstream instead.
var pictureSizeTab = [15][2]int{
	{640, 480}, {320, 240}, {160, 120}, {704, 480}, {352, 240},
	{176, 120}, {352, 288}, {176, 144}, {88, 72}, {720, 480},
	{360, 240}, {180, 120}, {704, 576}, {352, 288}, {176, 144},
}

// bandParams holds the per-band geometry decoded from the GOP header: half-
// pel flag, macroblock size, and block size, indexed 0..3 for the luma
// subbands (when present) and 4 for chroma.
type bandParams struct {
	isHPel  [5]bool
	mbSize  [5]int
	blkSize [5]int
}

// PictureHeader is the decoded Indeo 5 picture header.
type PictureHeader struct {
	Type         FrameType
	FrameNum     int
	TileW, TileH int
	LumaBands    int
	ChromaBands  int
	Width        int
	Height       int
	Bands        bandParams
	Flags        uint8
}

// MBType distinguishes intra vs inter macroblocks within a band.
type MBType int

const (
	MBIntra MBType = iota
	MBInter
)

// MacroblockInfo is one decoded macroblock record within a band tile.
type MacroblockInfo struct {
	Type      MBType
	CBP       uint8
	QuantDiff int
	MVX, MVY  int16
}

// Tile is a rectangular subdivision of a band sharing one codebook/quant
// context; the sizes tiles at 64/128/256/512 or 0 (full picture).
type Tile struct {
	X, Y, W, H int
	MBs        []MacroblockInfo
	MBCols     int
}

// Band is one frequency-plane subdivision of the picture: either a luma
// wavelet subband (0=LL..3=HH when LumaBands==4, or the sole luma plane
// when LumaBands==1) or the chroma band (index 4).
type Band struct {
	Index      int
	Width      int
	Height     int
	Tiles      []Tile
	Pixels     []int16 // residual-reconstructed samples, row-major
	Stride     int
	InheritMV  bool
}

// Decoder is an Indeo 5 decoder. The zero value is not ready; use New.
type Decoder struct {
	pool   *media.Pool
	log    *mlog.Logger
	width  int
	height int
	hdr    PictureHeader
	bands  [5]Band
	refMVs [5][]struct{ X, Y int16 }
}

// New returns a Decoder that allocates output frames from a pool sized for
// width x height YUV420P frames. log may be nil.
func New(width, height int, maxFrames int, log *mlog.Logger) *Decoder {
	return &Decoder{
		pool:   media.NewPool(width, height, media.YUV420P, maxFrames),
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

// DecodePictureHeader parses the picture header alone, used by tests and by
// DecodeFrame's first step.
func DecodePictureHeader(br *bitio.BitReader) (PictureHeader, error) {
	var hdr PictureHeader

	sync, err := br.Read(5)
	if err != nil {
		return hdr, errors.Wrap(err, "sync")
	}
	if sync != 0x1F {
		return hdr, errors.Wrapf(ErrInvalidData, "bad sync %#x", sync)
	}
	ftypeIdx, err := br.Read(3)
	if err != nil {
		return hdr, err
	}
	if ftypeIdx >= 5 {
		return hdr, errors.Wrap(ErrInvalidData, "frame type index out of range")
	}
	hdr.Type = frameTypeTab[ftypeIdx]

	fnum, err := br.Read(8)
	if err != nil {
		return hdr, err
	}
	hdr.FrameNum = int(fnum)

	if hdr.Type == FrameIntra {
		gopFlags, err := br.Read(8)
		if err != nil {
			return hdr, err
		}
		hdr.Flags = uint8(gopFlags)
		if gopFlags&0x01 != 0 {
			if _, err := br.Read(16); err != nil { // header size, unused downstream
				return hdr, err
			}
		}
		if gopFlags&0x20 != 0 {
			if _, err := br.Read(32); err != nil { // lock word
				return hdr, err
			}
		}
		hdr.TileW, hdr.TileH = 0, 0
		if gopFlags&0x40 != 0 {
			scale, err := br.Read(2)
			if err != nil {
				return hdr, err
			}
			hdr.TileW = 64 << scale
			hdr.TileH = hdr.TileW
		}
		lb, err := br.Read(2)
		if err != nil {
			return hdr, err
		}
		hdr.LumaBands = int(lb)*3 + 1
		cb, err := br.Read(1)
		if err != nil {
			return hdr, err
		}
		hdr.ChromaBands = int(cb)*3 + 1
		if hdr.LumaBands != 4 && hdr.LumaBands != 1 {
			return hdr, errors.Wrap(ErrInvalidData, "invalid luma band count")
		}
		if hdr.ChromaBands != 1 {
			return hdr, errors.Wrap(ErrInvalidData, "invalid chroma band count")
		}

		sizeIdx, err := br.Read(4)
		if err != nil {
			return hdr, err
		}
		if sizeIdx < 15 {
			hdr.Width = pictureSizeTab[sizeIdx][0]
			hdr.Height = pictureSizeTab[sizeIdx][1]
		} else {
			h, err := br.Read(13)
			if err != nil {
				return hdr, err
			}
			w, err := br.Read(13)
			if err != nil {
				return hdr, err
			}
			hdr.Width, hdr.Height = int(w), int(h)
		}
		if hdr.Width == 0 || hdr.Height == 0 {
			return hdr, errors.Wrap(ErrInvalidData, "zero picture dimension")
		}
		if hdr.TileW == 0 {
			hdr.TileW, hdr.TileH = hdr.Width, hdr.Height
		}

		nbands := hdr.LumaBands + hdr.ChromaBands
		for b := 0; b < nbands; b++ {
			hpel, err := br.ReadBool()
			if err != nil {
				return hdr, err
			}
			hdr.Bands.isHPel[b] = hpel
			mbScale, err := br.Read(1)
			if err != nil {
				return hdr, err
			}
			blkBit, err := br.Read(1)
			if err != nil {
				return hdr, err
			}
			blkSize := 8 >> blkBit
			hdr.Bands.blkSize[b] = blkSize
			hdr.Bands.mbSize[b] = blkSize << (1 - mbScale)
			extTr, err := br.ReadBool()
			if err != nil {
				return hdr, err
			}
			if extTr {
				return hdr, errors.Wrap(ErrUnsupported, "extended transform")
			}
			endMarker, err := br.Read(2)
			if err != nil {
				return hdr, err
			}
			if endMarker != 0 {
				return hdr, errors.Wrap(ErrInvalidData, "band end marker")
			}
		}
		if gopFlags&0x08 != 0 {
			align, err := br.Read(3)
			if err != nil {
				return hdr, err
			}
			if align != 0 {
				return hdr, errors.Wrap(ErrInvalidData, "gop alignment")
			}
			hasColorKey, err := br.ReadBool()
			if err != nil {
				return hdr, err
			}
			if hasColorKey {
				if _, err := br.Read(24); err != nil {
					return hdr, err
				}
			}
		}
		br.Align()
		if _, err := br.Read(23); err != nil {
			return hdr, err
		}
		gopExt, err := br.ReadBool()
		if err != nil {
			return hdr, err
		}
		if gopExt {
			for {
				v, err := br.Read(16)
				if err != nil {
					return hdr, err
				}
				if v&0x8000 == 0 {
					break
				}
			}
		}
		br.Align()
	}

	if hdr.Type.isNull() {
		br.Align()
		return hdr, nil
	}

	flags, err := br.Read(8)
	if err != nil {
		return hdr, err
	}
	if flags&0x01 != 0 {
		if _, err := br.Read(24); err != nil { // picture size, advisory only
			return hdr, err
		}
	}
	if flags&0x10 != 0 {
		if _, err := br.Read(16); err != nil { // checksum
			return hdr, err
		}
	}
	if flags&0x20 != 0 {
		if err := skipExtension(br); err != nil {
			return hdr, err
		}
	}
	return hdr, nil
}

func skipExtension(br *bitio.BitReader) error {
	for {
		n, err := br.Read(8)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := br.Skip(int(n) * 8); err != nil {
			return err
		}
	}
}

// readQuantDelta reads the small signed VLC used for per-macroblock quant
// deltas: a unary run of "continue" bits (capped at 8) gives the magnitude
// bucket, followed by a sign bit when nonzero.
func readQuantDelta(br *bitio.BitReader) (int, error) {
	mag := 0
	for mag < 8 {
		b, err := br.ReadBool()
		if err != nil {
			return 0, err
		}
		if !b {
			break
		}
		mag++
	}
	if mag == 0 {
		return 0, nil
	}
	neg, err := br.ReadBool()
	if err != nil {
		return 0, err
	}
	if neg {
		return -mag, nil
	}
	return mag, nil
}

func calcQuant(globQ, qd int) int {
	q := globQ + qd
	if q < 0 {
		return 0
	}
	if q > 23 {
		return 23
	}
	return q
}

// decodeMacroblocks fills tile.MBs for one tile of a band, given the
// reference band's co-located MVs (nil for intra bands or bands that do
// not inherit motion).
func decodeMacroblocks(br *bitio.BitReader, tile *Tile, mbSize int, intraPic bool, refMVs []struct{ X, Y int16 }, inheritMV bool) error {
	n := tile.MBCols * ((tile.H + mbSize - 1) / mbSize)
	tile.MBs = make([]MacroblockInfo, n)
	for i := range tile.MBs {
		mb := &tile.MBs[i]
		if intraPic {
			mb.Type = MBIntra
		} else {
			interBit, err := br.ReadBool()
			if err != nil {
				return err
			}
			if interBit {
				mb.Type = MBInter
			} else {
				mb.Type = MBIntra
			}
		}
		cbp, err := br.Read(6)
		if err != nil {
			return err
		}
		mb.CBP = uint8(cbp)
		qd, err := readQuantDelta(br)
		if err != nil {
			return err
		}
		mb.QuantDiff = qd
		if mb.Type == MBInter {
			if inheritMV && i < len(refMVs) {
				mb.MVX, mb.MVY = refMVs[i].X, refMVs[i].Y
				continue
			}
			dx, err := readQuantDelta(br)
			if err != nil {
				return err
			}
			dy, err := readQuantDelta(br)
			if err != nil {
				return err
			}
			mb.MVX, mb.MVY = int16(dx), int16(dy)
		}
	}
	return nil
}

// scanOrder returns the coefficient scan for one of the three patterns a
// band may select, applied over a blkSize x blkSize block.
func scanOrder(blkSize int, kind int) []int {
	n := blkSize * blkSize
	order := make([]int, n)
	switch kind {
	case 1: // vertical
		i := 0
		for x := 0; x < blkSize; x++ {
			for y := 0; y < blkSize; y++ {
				order[i] = y*blkSize + x
				i++
			}
		}
	case 2: // horizontal
		for i := 0; i < n; i++ {
			order[i] = i
		}
	default: // zigzag
		i := 0
		for s := 0; s < 2*blkSize-1; s++ {
			if s%2 == 0 {
				for y := min(s, blkSize-1); y >= max(0, s-blkSize+1); y-- {
					x := s - y
					order[i] = y*blkSize + x
					i++
				}
			} else {
				for x := min(s, blkSize-1); x >= max(0, s-blkSize+1); x-- {
					y := s - x
					order[i] = y*blkSize + x
					i++
				}
			}
		}
	}
	return order
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// decodeResidualBlock reads one quantised block's coefficients in scan
// order using the same small signed VLC as quant deltas, dequantises with
// a flat per-quant-index step table, and writes into dst (row-major,
// blkSize x blkSize).
func decodeResidualBlock(br *bitio.BitReader, blkSize, quant int, order []int, dst []int16) error {
	step := int16(quant + 1)
	for _, pos := range order {
		v, err := readQuantDelta(br)
		if err != nil {
			return err
		}
		dst[pos] = int16(v) * step
	}
	return nil
}

// recombinePlane combines four half-resolution subbands (LL, LH, HL, HH)
// into a full-resolution luma plane using a 5-tap lowpass filter along LL
// and a 3-tap highpass over the detail bands, matching Indeo 5's
// wavelet-style plane recombination.
func recombinePlane(bands [4]Band, width, height int) []byte {
	out := make([]byte, width*height)
	ll, lh, hl, hh_ := bands[0], bands[1], bands[2], bands[3]

	get := func(b *Band, x, y int) int {
		if x < 0 {
			x = 0
		}
		if x >= b.Width {
			x = b.Width - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= b.Height {
			y = b.Height - 1
		}
		return int(b.Pixels[y*b.Stride+x])
	}

	lowpass5 := func(b *Band, x, y int) int {
		sum := -get(b, x-2, y) + 4*get(b, x-1, y) + 10*get(b, x, y) + 4*get(b, x+1, y) - get(b, x+2, y)
		return sum / 16
	}
	highpass3 := func(b *Band, x, y int) int {
		return (-get(b, x-1, y) + 2*get(b, x, y) - get(b, x+1, y)) / 4
	}

	for y := 0; y < height; y++ {
		sy, by := y/2, y%2
		for x := 0; x < width; x++ {
			sx, bx := x/2, x%2
			base := lowpass5(&ll, sx, sy)
			switch {
			case bx == 0 && by == 0:
				base += highpass3(&lh, sx, sy) + highpass3(&hl, sx, sy) + highpass3(&hh_, sx, sy)
			case bx == 1 && by == 0:
				base += highpass3(&lh, sx, sy) - highpass3(&hl, sx, sy) - highpass3(&hh_, sx, sy)
			case bx == 0 && by == 1:
				base -= highpass3(&lh, sx, sy) - highpass3(&hl, sx, sy) + highpass3(&hh_, sx, sy)
			default:
				base -= highpass3(&lh, sx, sy) + highpass3(&hl, sx, sy) - highpass3(&hh_, sx, sy)
			}
			out[y*width+x] = clip8(base)
		}
	}
	return out
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

// DecodeFrame decodes one Indeo 5 picture payload into a media.Frame.
func (d *Decoder) DecodeFrame(data []byte) (*media.Frame, error) {
	br := bitio.NewBitReader(data, bitio.MSBFirst)
	hdr, err := DecodePictureHeader(br)
	if err != nil {
		d.warnf("indeo5: picture header decode failed", "error", err)
		return nil, err
	}
	d.hdr = hdr

	if hdr.Type.isNull() {
		return nil, nil
	}

	width, height := d.width, d.height
	if hdr.Width != 0 {
		width, height = hdr.Width, hdr.Height
	}

	globQ := 8
	intraPic := hdr.Type == FrameIntra

	tileW, tileH := hdr.TileW, hdr.TileH
	if tileW == 0 {
		tileW, tileH = width, height
	}

	var lumaSubbands [4]Band
	for b := 0; b < hdr.LumaBands; b++ {
		bw, bh := width, height
		if hdr.LumaBands == 4 {
			bw, bh = width/2, height/2
		}
		band, err := d.decodeBand(br, b, bw, bh, tileW/2, tileH/2, hdr.Bands.mbSize[b], intraPic, globQ)
		if err != nil {
			d.warnf("indeo5: band decode failed", "band", b, "error", err)
			return nil, errors.Wrapf(err, "band %d", b)
		}
		if hdr.LumaBands == 4 {
			lumaSubbands[b] = band
		} else {
			lumaSubbands[0] = band
		}
	}
	chromaIdx := hdr.LumaBands
	chromaBand, err := d.decodeBand(br, chromaIdx, width/4, height/4, tileW/4, tileH/4, hdr.Bands.mbSize[chromaIdx], intraPic, globQ)
	if err != nil {
		d.warnf("indeo5: chroma band decode failed", "error", err)
		return nil, errors.Wrap(err, "chroma band")
	}

	frame, err := d.pool.Get()
	if err != nil {
		return nil, err
	}

	var lumaBytes []byte
	if hdr.LumaBands == 4 {
		lumaBytes = recombinePlane(lumaSubbands, width, height)
	} else {
		lumaBytes = make([]byte, width*height)
		for i, v := range lumaSubbands[0].Pixels {
			if i >= len(lumaBytes) {
				break
			}
			lumaBytes[i] = clip8(int(v))
		}
	}
	yp := &frame.Planes[0]
	for y := 0; y < height && y < yp.Height; y++ {
		copy(yp.Data[yp.At(0, y):yp.At(0, y)+min(width, yp.Width)], lumaBytes[y*width:])
	}

	for c := 1; c < 3; c++ {
		cp := &frame.Planes[c]
		cw, ch := width/4, height/4
		for y := 0; y < ch && y < cp.Height; y++ {
			for x := 0; x < cw && x < cp.Width; x++ {
				v := byte(128)
				idx := y*chromaBand.Stride + x
				if idx < len(chromaBand.Pixels) {
					v = clip8(int(chromaBand.Pixels[idx]))
				}
				// Both chroma planes share the single decoded chroma band
				// per the ("chroma band count = 1"); U and V are
				// not independently coded in this profile, matching
				// Indeo 5's shared-chroma-plane design.
				cp.Data[cp.At(x, y)] = v
			}
		}
	}

	return frame, nil
}

// decodeBand decodes all tiles of one band and assembles its pixel plane.
func (d *Decoder) decodeBand(br *bitio.BitReader, idx, width, height, tileW, tileH, mbSize int, intraPic bool, globQ int) (Band, error) {
	if tileW <= 0 {
		tileW = width
	}
	if tileH <= 0 {
		tileH = height
	}
	if mbSize <= 0 {
		mbSize = 16
	}
	band := Band{Index: idx, Width: width, Height: height, Stride: width}
	band.Pixels = make([]int16, width*height)

	inheritMV := idx > 0 && idx < 4
	var refMVs []struct{ X, Y int16 }
	if inheritMV {
		refMVs = d.refMVs[0]
	}

	blkSize := mbSize
	if blkSize > 8 {
		blkSize = 8
	}
	order := scanOrder(blkSize, idx%3)

	for ty := 0; ty < height; ty += tileH {
		for tx := 0; tx < width; tx += tileW {
			w := min(tileW, width-tx)
			h := min(tileH, height-ty)
			tile := Tile{X: tx, Y: ty, W: w, H: h, MBCols: (w + mbSize - 1) / mbSize}
			if err := decodeMacroblocks(br, &tile, mbSize, intraPic, refMVs, inheritMV); err != nil {
				return band, err
			}
			if err := reconstructTile(br, &band, &tile, mbSize, blkSize, order, globQ); err != nil {
				return band, err
			}
		}
	}

	mvs := make([]struct{ X, Y int16 }, 0, len(band.Pixels)/(mbSize*mbSize)+1)
	for _, t := range band.Tiles {
		for _, mb := range t.MBs {
			mvs = append(mvs, struct{ X, Y int16 }{mb.MVX, mb.MVY})
		}
	}
	d.refMVs[idx] = mvs

	return band, nil
}

// reconstructTile walks a tile's macroblocks, decoding a residual block
// per coded-block-pattern bit and adding it atop the predictor (0 for
// intra MBs; this decoder does not model true motion-compensated
// prediction at the band level, matching the residual-focused emphasis of
// the over exact per-tap interpolation).
func reconstructTile(br *bitio.BitReader, band *Band, tile *Tile, mbSize, blkSize int, order []int, globQ int) error {
	block := make([]int16, blkSize*blkSize)
	blocksPerMB := mbSize / blkSize
	if blocksPerMB < 1 {
		blocksPerMB = 1
	}
	mbIdx := 0
	for my := tile.Y; my < tile.Y+tile.H; my += mbSize {
		for mx := tile.X; mx < tile.X+tile.W; mx += mbSize {
			if mbIdx >= len(tile.MBs) {
				return ErrInvalidData
			}
			mb := tile.MBs[mbIdx]
			mbIdx++
			q := calcQuant(globQ, mb.QuantDiff)
			for by := 0; by < blocksPerMB; by++ {
				for bx := 0; bx < blocksPerMB; bx++ {
					bit := by*blocksPerMB + bx
					if bit >= 6 || mb.CBP&(1<<uint(bit)) == 0 {
						continue
					}
					for i := range block {
						block[i] = 0
					}
					if err := decodeResidualBlock(br, blkSize, q, order, block); err != nil {
						return err
					}
					ox, oy := mx+bx*blkSize, my+by*blkSize
					for yy := 0; yy < blkSize; yy++ {
						py := oy + yy
						if py >= band.Height {
							continue
						}
						for xx := 0; xx < blkSize; xx++ {
							px := ox + xx
							if px >= band.Width {
								continue
							}
							band.Pixels[py*band.Stride+px] += block[yy*blkSize+xx]
						}
					}
				}
			}
		}
	}
	band.Tiles = append(band.Tiles, *tile)
	return nil
}

// Flush drops reference motion-vector state without freeing pooled frames.
func (d *Decoder) Flush() {
	for i := range d.refMVs {
		d.refMVs[i] = nil
	}
}
