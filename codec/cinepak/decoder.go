/*
DESCRIPTION
  decoder.go implements the Cinepak decoder: frame/strip/chunk parsing,
  codebook full/update reconstruction, and mask-bit-driven per-block
  skip/V1/V4 reconstruction into a media.Frame.

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
	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/media"
)

// stripDecodeState is a decoder's per-strip codebook history, needed to
// apply update chunks and to reconstruct skipped inter blocks.
type stripDecodeState struct {
	haveCB bool
	v1CB   [256]YUVCode
	v4CB   [256]YUVCode
	recon  []YUVCode
}

// Decoder is a Cinepak decoder. Construct it with NewDecoder; the zero
// value has no frame pool.
type Decoder struct {
	pool   *media.Pool
	width  int
	height int
	strips []stripDecodeState
}

// NewDecoder returns a Decoder that allocates output frames from a pool sized
// for width x height YUV420P frames.
func NewDecoder(width, height int, maxFrames int) *Decoder {
	return &Decoder{
		pool:   media.NewPool(width, height, media.YUV420P, maxFrames),
		width:  width,
		height: height,
	}
}

// maskBitReader reads sequential bits out of consecutive 32-bit
// big-endian mask groups, MSB first, matching writeMaskGroups.
type maskBitReader struct {
	data []byte
	pos  int // bit position
}

func (m *maskBitReader) bit() (bool, error) {
	byteIdx := m.pos / 8
	if byteIdx >= len(m.data) {
		return false, ErrShortData
	}
	bitIdx := 7 - uint(m.pos%8)
	b := (m.data[byteIdx] >> bitIdx) & 1
	m.pos++
	return b != 0, nil
}

// DecodeFrame parses a Cinepak frame payload and returns the reconstructed
// frame.
func (d *Decoder) DecodeFrame(data []byte) (*media.Frame, error) {
	if len(data) < 10 {
		return nil, ErrShortData
	}
	size := getU24BE(data[1:4])
	if int(size) > len(data) {
		return nil, ErrShortData
	}
	width := int(data[4])<<8 | int(data[5])
	height := int(data[6])<<8 | int(data[7])
	nstrips := int(data[8])<<8 | int(data[9])
	if width != d.width || height != d.height {
		return nil, errors.Errorf("cinepak: frame size %dx%d does not match decoder %dx%d", width, height, d.width, d.height)
	}
	if d.strips == nil || len(d.strips) != nstrips {
		d.strips = make([]stripDecodeState, nstrips)
	}

	frame, err := d.pool.Get()
	if err != nil {
		return nil, err
	}

	pos := 10
	for i := 0; i < nstrips; i++ {
		if pos+12 > int(size) {
			return nil, ErrInvalidData
		}
		id := data[pos]
		ssize := getU24BE(data[pos+1 : pos+4])
		if ssize < 12 || pos+int(ssize) > len(data) {
			return nil, ErrInvalidData
		}
		body := data[pos+4 : pos+int(ssize)]
		yoff := int(body[0])<<8 | int(body[1])
		sheight := int(body[4])<<8 | int(body[5])
		swidth := int(body[6])<<8 | int(body[7])
		if err := d.decodeStrip(&d.strips[i], id, body[8:], frame, yoff, sheight, swidth); err != nil {
			return nil, errors.Wrapf(err, "strip %d", i)
		}
		pos += int(ssize)
	}
	return frame, nil
}

func (d *Decoder) decodeStrip(st *stripDecodeState, id byte, body []byte, frame *media.Frame, y0, sheight, swidth int) error {
	inter := id == stripInter
	cols := swidth / 4
	rows := sheight / 4
	pos := 0

	for pos+4 <= len(body) {
		cid := body[pos]
		if pos+4 > len(body) {
			return ErrShortData
		}
		csize := getU24BE(body[pos+1 : pos+4])
		if csize < 4 || pos+int(csize) > len(body) {
			return ErrInvalidData
		}
		cbody := body[pos+4 : pos+int(csize)]
		grayscale := cid&grayscaleFlag != 0
		baseTag := cid &^ grayscaleFlag

		switch baseTag {
		case chunkV4Full:
			cb, err := readCodebookFull(cbody, grayscale)
			if err != nil {
				return err
			}
			st.v4CB = cb
		case chunkV4Update:
			if err := applyCodebookUpdate(&st.v4CB, cbody, grayscale); err != nil {
				return err
			}
		case chunkV1Full:
			cb, err := readCodebookFull(cbody, grayscale)
			if err != nil {
				return err
			}
			st.v1CB = cb
		case chunkV1Update:
			if err := applyCodebookUpdate(&st.v1CB, cbody, grayscale); err != nil {
				return err
			}
		case chunkDataIntra, chunkDataInter, chunkDataV4Only:
			if err := d.decodeBlocks(st, baseTag, cbody, frame, y0, rows, cols); err != nil {
				return err
			}
		}
		pos += int(csize)
	}
	st.haveCB = true
	_ = inter
	return nil
}

func readCodebookFull(body []byte, grayscale bool) ([256]YUVCode, error) {
	var cb [256]YUVCode
	elemSize := codebookElemSize(grayscale)
	n := len(body) / elemSize
	if n > 256 {
		n = 256
	}
	for i := 0; i < n; i++ {
		cb[i] = readEntry(body[i*elemSize:], grayscale)
	}
	return cb, nil
}

func applyCodebookUpdate(cb *[256]YUVCode, body []byte, grayscale bool) error {
	elemSize := codebookElemSize(grayscale)
	pos := 0
	for g := 0; pos+4 <= len(body) && g*32 < 256; g++ {
		mask := uint32(body[pos])<<24 | uint32(body[pos+1])<<16 | uint32(body[pos+2])<<8 | uint32(body[pos+3])
		pos += 4
		base := g * 32
		for k := 0; k < 32; k++ {
			idx := base + k
			if idx >= 256 {
				continue
			}
			if mask&(1<<uint(31-k)) != 0 {
				if pos+elemSize > len(body) {
					return ErrShortData
				}
				cb[idx] = readEntry(body[pos:], grayscale)
				pos += elemSize
			}
		}
	}
	return nil
}

func readEntry(b []byte, grayscale bool) YUVCode {
	var c YUVCode
	copy(c.Y[:], b[:4])
	if grayscale {
		c.U, c.V = 128, 128
	} else {
		c.U, c.V = b[4], b[5]
	}
	return c
}

func (d *Decoder) decodeBlocks(st *stripDecodeState, tag byte, body []byte, frame *media.Frame, y0, rows, cols int) error {
	n := rows * cols
	if len(st.recon) != n {
		st.recon = make([]YUVCode, n)
	}
	v4Only := tag == chunkDataV4Only
	inter := tag == chunkDataInter

	var mr maskBitReader
	var indexPos int
	if v4Only {
		indexPos = 0
	} else {
		maskBytes := ((n + 31) / 32) * 4
		if maskBytes > len(body) {
			return ErrShortData
		}
		mr = maskBitReader{data: body[:maskBytes]}
		indexPos = maskBytes
	}

	for i := 0; i < n; i++ {
		mbY := i / cols
		mbX := i % cols
		py := y0 + mbY*4
		px := mbX * 4

		var useV4, skip bool
		if v4Only {
			useV4 = true
		} else {
			if inter {
				b, err := mr.bit()
				if err != nil {
					return err
				}
				skip = b
			}
			if !skip {
				b, err := mr.bit()
				if err != nil {
					return err
				}
				useV4 = b
			}
		}

		if skip {
			writeMB(frame, px, py, st.recon[i])
			continue
		}
		if useV4 {
			if indexPos+4 > len(body) {
				return ErrShortData
			}
			var idx [4]int
			for q := 0; q < 4; q++ {
				idx[q] = int(body[indexPos+q])
			}
			indexPos += 4
			writeV4MB(frame, px, py, st.v4CB, idx)
			st.recon[i] = averageV4(st.v4CB, idx)
		} else {
			if indexPos+1 > len(body) {
				return ErrShortData
			}
			idx := int(body[indexPos])
			indexPos++
			c := st.v1CB[idx]
			writeMB(frame, px, py, c)
			st.recon[i] = c
		}
	}
	return nil
}

// writeMB upsamples a single V1-mode YUVCode across the whole 4x4 MB.
func writeMB(frame *media.Frame, px, py int, c YUVCode) {
	yp := &frame.Planes[0]
	up := &frame.Planes[1]
	vp := &frame.Planes[2]
	for q := 0; q < 4; q++ {
		qy := py + (q/2)*2
		qx := px + (q%2)*2
		yp.Data[yp.At(qx, qy)] = c.Y[q]
		yp.Data[yp.At(qx+1, qy)] = c.Y[q]
		yp.Data[yp.At(qx, qy+1)] = c.Y[q]
		yp.Data[yp.At(qx+1, qy+1)] = c.Y[q]
	}
	cy := py / 2
	cx := px / 2
	up.Data[up.At(cx, cy)] = c.U
	up.Data[up.At(cx+1, cy)] = c.U
	up.Data[up.At(cx, cy+1)] = c.U
	up.Data[up.At(cx+1, cy+1)] = c.U
	vp.Data[vp.At(cx, cy)] = c.V
	vp.Data[vp.At(cx+1, cy)] = c.V
	vp.Data[vp.At(cx, cy+1)] = c.V
	vp.Data[vp.At(cx+1, cy+1)] = c.V
}

// writeV4MB places each quadrant's four distinct Y samples and its own
// chroma sample, matching Cinepak's V4 macroblock assembly.
func writeV4MB(frame *media.Frame, px, py int, cb [256]YUVCode, idx [4]int) {
	yp := &frame.Planes[0]
	up := &frame.Planes[1]
	vp := &frame.Planes[2]
	for q := 0; q < 4; q++ {
		e := cb[idx[q]]
		qy := py + (q/2)*2
		qx := px + (q%2)*2
		yp.Data[yp.At(qx, qy)] = e.Y[0]
		yp.Data[yp.At(qx+1, qy)] = e.Y[1]
		yp.Data[yp.At(qx, qy+1)] = e.Y[2]
		yp.Data[yp.At(qx+1, qy+1)] = e.Y[3]
		cy := (py + (q/2)*2) / 2
		cx := (px + (q%2)*2) / 2
		up.Data[up.At(cx, cy)] = e.U
		vp.Data[vp.At(cx, cy)] = e.V
	}
}
