/*
DESCRIPTION
  encoder.go implements the Cinepak encoder: strip splitting, V1/V4
  macroblock sample extraction, median-cut codebook training via
  internal/vq, codebook-update-vs-full decision, per-block skip/V1/V4
  mode selection against a kept reconstruction buffer, and frame/strip/
  chunk packing with backfilled sizes.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package cinepak

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/internal/vq"
	"github.com/ausocean/mediacore/media"
)

// codebookElemSize returns the on-disk entry size: 6 bytes in color mode,
// 4 in grayscale.
func codebookElemSize(grayscale bool) int {
	if grayscale {
		return 4
	}
	return 6
}

// stripState is the per-strip codebook history an Encoder keeps across
// calls so later frames can emit codebook-delta updates instead of full
// rewrites, and so inter mode decision has a reconstruction to compare
// against.
type stripState struct {
	haveCB bool
	v1CB   [256]YUVCode
	v4CB   [256]YUVCode
	recon  []YUVCode // one entry per MB in the strip, scan order
	mbCols int
}

// Encoder is a Cinepak encoder. The zero value is not usable; construct
// with New.
type Encoder struct {
	Grayscale bool
	NumStrips int // default 2 if 0

	width, height int
	strips        []stripState
}

// New returns an Encoder for frames of the given dimensions.
func New(width, height int, grayscale bool, numStrips int) *Encoder {
	if numStrips <= 0 {
		numStrips = 2
	}
	return &Encoder{Grayscale: grayscale, NumStrips: numStrips, width: width, height: height}
}

// stripBounds returns the [y0,y1) row range for strip i, each boundary
// rounded to a multiple of 4 as Cinepak's macroblock grid requires.
func (e *Encoder) stripBounds(i int) (y0, y1 int) {
	rows4 := e.height / 4
	base := rows4 / e.NumStrips
	extra := rows4 % e.NumStrips
	y0r := base*i + minInt(i, extra)
	cnt := base
	if i < extra {
		cnt++
	}
	return y0r * 4, (y0r + cnt) * 4
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// EncodeFrame encodes frame (must be media.YUV420P) as either a keyframe
// (forces all strips intra) or an inter frame reusing prior codebooks and
// reconstructions. It returns the Cinepak-framed byte payload.
func (e *Encoder) EncodeFrame(frame *media.Frame, keyframe bool) ([]byte, error) {
	if frame.Width != e.width || frame.Height != e.height {
		return nil, errors.Errorf("cinepak: frame size %dx%d does not match encoder %dx%d", frame.Width, frame.Height, e.width, e.height)
	}
	if len(frame.Planes) < 3 {
		return nil, errors.New("cinepak: frame must carry Y/U/V planes")
	}
	if e.strips == nil {
		e.strips = make([]stripState, e.NumStrips)
	}
	if keyframe {
		for i := range e.strips {
			e.strips[i] = stripState{}
		}
	}

	var frameBuf bytes.Buffer
	frameBuf.WriteByte(boolByte(keyframe))
	frameBuf.Write([]byte{0, 0, 0}) // size placeholder patched below
	frameBuf.Write([]byte{byte(e.width >> 8), byte(e.width)})
	frameBuf.Write([]byte{byte(e.height >> 8), byte(e.height)})
	frameBuf.Write([]byte{byte(e.NumStrips >> 8), byte(e.NumStrips)})

	for i := 0; i < e.NumStrips; i++ {
		y0, y1 := e.stripBounds(i)
		if y1 <= y0 {
			continue
		}
		stripBytes, err := e.encodeStrip(frame, &e.strips[i], y0, y1, keyframe)
		if err != nil {
			return nil, errors.Wrapf(err, "strip %d", i)
		}
		frameBuf.Write(stripBytes)
	}

	out := frameBuf.Bytes()
	total := len(out)
	putU24BE(out[1:4], uint32(total))
	return out, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type mbSample struct {
	v1  YUVCode
	v4  [4]YUVCode
}

// extractStripMBs reads the strip's 4x4 macroblocks out of a YUV420P
// frame, building the V1 and V4 samples the codebook trainer needs.
func extractStripMBs(frame *media.Frame, y0, y1 int) []mbSample {
	yp := &frame.Planes[0]
	up := &frame.Planes[1]
	vp := &frame.Planes[2]
	cols := frame.Width / 4
	rows := (y1 - y0) / 4
	out := make([]mbSample, 0, cols*rows)
	for mbY := 0; mbY < rows; mbY++ {
		for mbX := 0; mbX < cols; mbX++ {
			py := y0 + mbY*4
			px := mbX * 4
			var quad [4][4]uint8 // quad[q][k]: 2x2 luma samples of quadrant q
			for q := 0; q < 4; q++ {
				qy := py + (q/2)*2
				qx := px + (q%2)*2
				quad[q][0] = yp.Data[yp.At(qx, qy)]
				quad[q][1] = yp.Data[yp.At(qx+1, qy)]
				quad[q][2] = yp.Data[yp.At(qx, qy+1)]
				quad[q][3] = yp.Data[yp.At(qx+1, qy+1)]
			}
			cy := py / 2
			cx := px / 2
			var cu, cv [4]uint8
			cu[0] = up.Data[up.At(cx, cy)]
			cu[1] = up.Data[up.At(cx+1, cy)]
			cu[2] = up.Data[up.At(cx, cy+1)]
			cu[3] = up.Data[up.At(cx+1, cy+1)]
			cv[0] = vp.Data[vp.At(cx, cy)]
			cv[1] = vp.Data[vp.At(cx+1, cy)]
			cv[2] = vp.Data[vp.At(cx, cy+1)]
			cv[3] = vp.Data[vp.At(cx+1, cy+1)]

			var s mbSample
			for q := 0; q < 4; q++ {
				avg := (int(quad[q][0]) + int(quad[q][1]) + int(quad[q][2]) + int(quad[q][3]) + 2) / 4
				s.v1.Y[q] = uint8(avg)
				s.v4[q].Y = quad[q]
				s.v4[q].U = cu[q]
				s.v4[q].V = cv[q]
			}
			s.v1.U = uint8((int(cu[0]) + int(cu[1]) + int(cu[2]) + int(cu[3]) + 2) / 4)
			s.v1.V = uint8((int(cv[0]) + int(cv[1]) + int(cv[2]) + int(cv[3]) + 2) / 4)
			out = append(out, s)
		}
	}
	return out
}

type trainElem struct{ c []float64 }

func (t trainElem) Components() []float64 { return t.c }

// trainCodebook runs median-cut over samples (grounded in internal/vq,
// itself grounded in cinepakenc.rs's quantise_median_cut) and fills
// under-trained slots deterministically via the xorshift PRNG.
func trainCodebook(samples []YUVCode, grayscale bool) [256]YUVCode {
	elems := make([]vq.Element, len(samples))
	for i, s := range samples {
		elems[i] = trainElem{c: s.components(grayscale)}
	}
	cells := vq.MedianCut(elems, 256)

	var cb [256]YUVCode
	rng := vq.NewXorshift()
	for i := 0; i < 256; i++ {
		if i < len(cells) && cells[i].Sum.Count() > 0 {
			cb[i] = fromComponents(cells[i].Sum.Mean(), grayscale)
		} else {
			var c YUVCode
			c.Y[0], c.Y[1], c.Y[2], c.Y[3] = rng.FillByte(), rng.FillByte(), rng.FillByte(), rng.FillByte()
			if grayscale {
				c.U, c.V = 128, 128
			} else {
				c.U, c.V = rng.FillByte(), rng.FillByte()
			}
			cb[i] = c
		}
	}
	return cb
}

// trailingUnchanged returns how many entries at the tail of newCB equal
// oldCB, matching cinepakenc.rs's reverse-scan difference detection.
func trailingUnchanged(oldCB, newCB [256]YUVCode) int {
	n := 0
	for i := 255; i >= 0; i-- {
		if oldCB[i] != newCB[i] {
			break
		}
		n++
	}
	return n
}

// canUpdateCB applies the fixed-overhead heuristic (kept
// verbatim per the Open Question resolution in DESIGN.md).
func canUpdateCB(elemSize, unchanged int) bool {
	return elemSize*(256-unchanged)+64 < elemSize*256
}

// writeCodebookFull emits every entry of cb as a full (non-delta) chunk.
func writeCodebookFull(buf *bytes.Buffer, id byte, cb [256]YUVCode, grayscale bool) {
	start := beginChunk(buf, id)
	for _, c := range cb {
		writeEntry(buf, c, grayscale)
	}
	endChunk(buf, start)
}

// writeCodebookUpdate emits only the entries that differ from oldCB, up
// to the point found by trailingUnchanged, packed into 32-entry masked
// groups per the codebook-delta format.
func writeCodebookUpdate(buf *bytes.Buffer, id byte, oldCB, newCB [256]YUVCode, grayscale bool) {
	start := beginChunk(buf, id)
	unchanged := trailingUnchanged(oldCB, newCB)
	limit := 256 - unchanged
	for g := 0; g*32 < limit; g++ {
		base := g * 32
		var mask uint32
		var body bytes.Buffer
		for k := 0; k < 32; k++ {
			idx := base + k
			if idx >= 256 {
				continue
			}
			if oldCB[idx] != newCB[idx] {
				mask |= 1 << uint(31-k)
				writeEntry(&body, newCB[idx], grayscale)
			}
		}
		buf.Write([]byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)})
		buf.Write(body.Bytes())
	}
	endChunk(buf, start)
}

func writeEntry(buf *bytes.Buffer, c YUVCode, grayscale bool) {
	buf.Write(c.Y[:])
	if !grayscale {
		buf.WriteByte(c.U)
		buf.WriteByte(c.V)
	}
}

// encodeStrip trains codebooks, decides per-MB modes, writes the strip's
// chunks, and updates st for the next call.
func (e *Encoder) encodeStrip(frame *media.Frame, st *stripState, y0, y1 int, keyframe bool) ([]byte, error) {
	samples := extractStripMBs(frame, y0, y1)
	cols := frame.Width / 4

	v1Samples := make([]YUVCode, len(samples))
	v4Samples := make([]YUVCode, 0, len(samples)*4)
	for i, s := range samples {
		v1Samples[i] = s.v1
		v4Samples = append(v4Samples, s.v4[:]...)
	}
	newV1 := trainCodebook(v1Samples, e.Grayscale)
	newV4 := trainCodebook(v4Samples, e.Grayscale)

	elemSize := codebookElemSize(e.Grayscale)
	inter := !keyframe && st.haveCB
	v1Update := inter && canUpdateCB(elemSize, trailingUnchanged(st.v1CB, newV1))
	v4Update := inter && canUpdateCB(elemSize, trailingUnchanged(st.v4CB, newV4))

	var buf bytes.Buffer
	stripStart := beginChunk(&buf, stripTagFor(inter))
	buf.Write([]byte{byte(y0 >> 8), byte(y0)})
	buf.Write([]byte{0, 0}) // xoff, always 0: strips span full width
	buf.Write([]byte{byte((y1 - y0) >> 8), byte(y1 - y0)})
	buf.Write([]byte{byte(frame.Width >> 8), byte(frame.Width)})

	if v4Update {
		writeCodebookUpdate(&buf, chunkV4Update|grayFlag(e.Grayscale), st.v4CB, newV4, e.Grayscale)
	} else {
		writeCodebookFull(&buf, chunkV4Full|grayFlag(e.Grayscale), newV4, e.Grayscale)
	}
	if v1Update {
		writeCodebookUpdate(&buf, chunkV1Update|grayFlag(e.Grayscale), st.v1CB, newV1, e.Grayscale)
	} else {
		writeCodebookFull(&buf, chunkV1Full|grayFlag(e.Grayscale), newV1, e.Grayscale)
	}

	recon := make([]YUVCode, len(samples)) // V1-equivalent reconstruction per MB, for future skip-SSE
	dataStart := beginChunk(&buf, dataTagFor(inter))
	var maskBits []bool // one or two bits per MB depending on inter/intra
	var indexStream bytes.Buffer

	for i, s := range samples {
		v1idx, v1dist := nearest(newV1[:], s.v1, e.Grayscale)
		v4idx := [4]int{}
		v4dist := 0
		for q := 0; q < 4; q++ {
			idx, d := nearest(newV4[:], s.v4[q], e.Grayscale)
			v4idx[q] = idx
			v4dist += d
		}

		skip := false
		if inter {
			skipDist := 0
			if i < len(st.recon) {
				skipDist = st.recon[i].dist(s.v1, e.Grayscale)
			}
			if skipDist == 0 || skipDist < v1dist {
				skip = true
			}
		}

		if inter {
			maskBits = append(maskBits, skip)
		}
		if skip {
			if i < len(st.recon) {
				recon[i] = st.recon[i]
			}
			continue
		}

		useV4 := v1dist != 0 && v4dist < v1dist
		maskBits = append(maskBits, useV4)
		if useV4 {
			for q := 0; q < 4; q++ {
				indexStream.WriteByte(byte(v4idx[q]))
			}
			recon[i] = averageV4(newV4, v4idx)
		} else {
			indexStream.WriteByte(byte(v1idx))
			recon[i] = newV1[v1idx]
		}
	}

	writeMaskGroups(&buf, maskBits)
	buf.Write(indexStream.Bytes())
	endChunk(&buf, dataStart)
	endChunk(&buf, stripStart)

	st.haveCB = true
	st.v1CB = newV1
	st.v4CB = newV4
	st.recon = recon
	st.mbCols = cols
	return buf.Bytes(), nil
}

func grayFlag(g bool) byte {
	if g {
		return grayscaleFlag
	}
	return 0
}

func stripTagFor(inter bool) byte {
	if inter {
		return stripInter
	}
	return stripIntra
}

func dataTagFor(inter bool) byte {
	if inter {
		return chunkDataInter
	}
	return chunkDataIntra
}

// averageV4 derives a V1-equivalent reconstruction from four chosen V4
// codewords, used to seed the next frame's skip-distance comparison.
func averageV4(cb [256]YUVCode, idx [4]int) YUVCode {
	var c YUVCode
	for q := 0; q < 4; q++ {
		e := cb[idx[q]]
		sum := int(e.Y[0]) + int(e.Y[1]) + int(e.Y[2]) + int(e.Y[3])
		c.Y[q] = uint8((sum + 2) / 4)
	}
	var su, sv int
	for q := 0; q < 4; q++ {
		su += int(cb[idx[q]].U)
		sv += int(cb[idx[q]].V)
	}
	c.U = uint8((su + 2) / 4)
	c.V = uint8((sv + 2) / 4)
	return c
}

// writeMaskGroups packs bits into 32-bit big-endian groups, zero-padding
// an incomplete trailing group, matching the mask format. For
// inter strips bits alternate skip-bit, mode-bit per MB in the same
// stream as described for "a separate bit before the V1/V4 bit".
func writeMaskGroups(buf *bytes.Buffer, bits []bool) {
	for base := 0; base < len(bits); base += 32 {
		var mask uint32
		for k := 0; k < 32 && base+k < len(bits); k++ {
			if bits[base+k] {
				mask |= 1 << uint(31-k)
			}
		}
		buf.Write([]byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)})
	}
}
