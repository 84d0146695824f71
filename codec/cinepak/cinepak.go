/*
DESCRIPTION
  cinepak.go holds the wire-format constants and chunk-composition helper
  shared by codec/cinepak's encoder and decoder: chunk/strip tag ids, the
  YUVCode codebook entry type and its distance metric, and a
  scope-guard-style chunk writer that reserves a 3-byte size placeholder
  and patches it once the chunk body is known.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cinepak implements the Cinepak vector-quantised video codec: a
// median-cut-trained V1/V4 codebook encoder with matching decoder, strip
// splitting, codebook-delta updates, and per-block skip/V1/V4 mode
// selection.
package cinepak

import (
	"bytes"

	"github.com/pkg/errors"
)

var (
	ErrInvalidData = errors.New("cinepak: invalid data")
	ErrShortData   = errors.New("cinepak: short data")
)

// Strip ids.
const (
	stripIntra = 0x10
	stripInter = 0x11
)

// Codebook chunk ids: V4 full/update, V1 full/update. The 0x04 bit flags
// a grayscale (4-byte) codebook entry rather than the 6-byte color one.
const (
	chunkV4Full   = 0x20
	chunkV4Update = 0x21
	chunkV1Full   = 0x22
	chunkV1Update = 0x23
	grayscaleFlag = 0x04
)

// Image-data chunk ids.
const (
	chunkDataIntra  = 0x30 // mask + V1/V4 indices
	chunkDataInter  = 0x31 // skip-bit + mask + V1/V4 indices
	chunkDataV4Only = 0x32 // no mask, every MB is V4
)

// YUVCode is one codebook entry: four luma samples (the four quadrant
// samples in V4 mode, or the four 2x2-averaged sub-block values in V1
// mode) plus one chroma pair.
type YUVCode struct {
	Y [4]uint8
	U uint8
	V uint8
}

// components returns the entry as a float64 slice for vq.Element, 6-wide
// in color mode and 4-wide (luma only) in grayscale mode.
func (c YUVCode) components(grayscale bool) []float64 {
	if grayscale {
		return []float64{float64(c.Y[0]), float64(c.Y[1]), float64(c.Y[2]), float64(c.Y[3])}
	}
	return []float64{float64(c.Y[0]), float64(c.Y[1]), float64(c.Y[2]), float64(c.Y[3]), float64(c.U), float64(c.V)}
}

// dist is the squared-component-sum distance the VQ model uses for
// nearest-codeword search.
func (c YUVCode) dist(o YUVCode, grayscale bool) int {
	d := 0
	for i := 0; i < 4; i++ {
		diff := int(c.Y[i]) - int(o.Y[i])
		d += diff * diff
	}
	if !grayscale {
		du := int(c.U) - int(o.U)
		dv := int(c.V) - int(o.V)
		d += du*du + dv*dv
	}
	return d
}

func fromComponents(v []float64, grayscale bool) YUVCode {
	clamp := func(f float64) uint8 {
		if f < 0 {
			return 0
		}
		if f > 255 {
			return 255
		}
		return uint8(f + 0.5)
	}
	var c YUVCode
	c.Y[0], c.Y[1], c.Y[2], c.Y[3] = clamp(v[0]), clamp(v[1]), clamp(v[2]), clamp(v[3])
	if grayscale {
		c.U, c.V = 128, 128
	} else {
		c.U, c.V = clamp(v[4]), clamp(v[5])
	}
	return c
}

// nearest does a linear scan returning the first zero-distance hit early,
// matching the nearest-codeword search contract.
func nearest(cb []YUVCode, target YUVCode, grayscale bool) (idx int, d int) {
	best, bestDist := 0, -1
	for i, c := range cb {
		dd := c.dist(target, grayscale)
		if dd == 0 {
			return i, 0
		}
		if bestDist < 0 || dd < bestDist {
			best, bestDist = i, dd
		}
	}
	return best, bestDist
}

func putU24BE(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func getU24BE(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// beginChunk writes a chunk's tag id and a zeroed 3-byte size placeholder,
// returning the offset immediately after the placeholder (where the body
// starts) so endChunk can patch the size once the body is known, a
// scope-guard pattern for backfilled chunk sizes.
func beginChunk(buf *bytes.Buffer, id byte) int {
	buf.WriteByte(id)
	buf.Write([]byte{0, 0, 0})
	return buf.Len()
}

// endChunk patches the size field reserved by beginChunk with the chunk's
// total size (id + size field + body).
func endChunk(buf *bytes.Buffer, bodyStart int) {
	b := buf.Bytes()
	total := len(b) - bodyStart + 4
	putU24BE(b[bodyStart-3:bodyStart], uint32(total))
}
