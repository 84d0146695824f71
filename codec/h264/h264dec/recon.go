/*
NAME
  recon.go

DESCRIPTION
  recon.go reconstructs decoded macroblocks into picture samples: residual
  parsing (7.3.5.3.1) for the CAVLC entropy path, dequantization and
  inverse transform (8.5), DC intra prediction (8.3.1/8.3.3), and writing
  the result into a media.Frame.

  This is a deliberately scoped-down reconstruction pipeline, not a
  conformant decoder: directional intra prediction modes, inter
  prediction/motion compensation, the 8x8 transform, and the deblocking
  filter are not implemented. Macroblocks that need them surface
  ErrUnsupported rather than producing wrong pixels silently.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import (
	"github.com/ausocean/mediacore/codec/h264/h264dec/bits"
	"github.com/ausocean/mediacore/media"
	"github.com/pkg/errors"
)

// levelScale holds table values from 8.5.9's scaling list derivation for
// flat (default) scaling lists: LevelScale4x4[m][i][j] for the three
// distinct weight classes a 4x4 position falls into.
var levelScale = [3][6]int{
	{10, 11, 13, 14, 16, 18},
	{16, 18, 20, 23, 25, 29},
	{13, 14, 16, 18, 20, 23},
}

// levelScaleIdx maps a raster 4x4 coefficient position to its row in
// levelScale, following the m grouping of 8.5.9.
var levelScaleIdx = [16]int{
	0, 2, 0, 2,
	2, 1, 2, 1,
	0, 2, 0, 2,
	2, 1, 2, 1,
}

// zigzag4x4 is the inverse scan of table 8-13 used to place a
// zigzag-ordered coefficient list into raster order.
var zigzag4x4 = [16]int{0, 1, 4, 8, 5, 2, 3, 6, 9, 12, 13, 10, 7, 11, 14, 15}

// dequant4x4 dequantizes a zigzag-ordered 4x4 AC/residual coefficient list
// (coeffs may be shorter than 16; missing entries are zero) into a raster
// order block, following 8.5.12.1. When skipDC is true, position 0 is left
// untouched so the caller can overwrite it with a separately-derived DC
// value (used for Intra16x16 luma and chroma DC blocks).
func dequant4x4(coeffs []int, qp int, skipDC bool) [16]int {
	var raster [16]int
	for zz, v := range coeffs {
		if zz >= 16 || v == 0 {
			continue
		}
		raster[zigzag4x4[zz]] = v
	}
	var out [16]int
	shift := qp / 6
	qidx := qp % 6
	start := 0
	if skipDC {
		start = 1
		out[0] = raster[0]
	}
	for i := start; i < 16; i++ {
		out[i] = (raster[i] * levelScale[levelScaleIdx[i]][qidx]) << uint(shift)
	}
	return out
}

// idct4x4 performs the two-pass 4x4 inverse core transform of 8.5.12.2:
// a column pass, a row pass, then a final rounding right-shift by 6.
func idct4x4(blk [16]int) [16]int {
	transform := func(a, b, c, d int) (int, int, int, int) {
		t0 := a + c
		t1 := a - c
		t2 := (b >> 1) - d
		t3 := b + (d >> 1)
		return t0 + t3, t1 + t2, t1 - t2, t0 - t3
	}
	for i := 0; i < 4; i++ {
		blk[i], blk[i+4], blk[i+8], blk[i+12] = transform(blk[i], blk[i+4], blk[i+8], blk[i+12])
	}
	for r := 0; r < 4; r++ {
		row := blk[r*4 : r*4+4]
		row[0], row[1], row[2], row[3] = transform(row[0], row[1], row[2], row[3])
	}
	var out [16]int
	for i, v := range blk {
		out[i] = (v + 32) >> 6
	}
	return out
}

// hadamardLumaDC performs the Intra16x16 luma DC Hadamard transform and
// scaling of 8.5.10, given the 16 raster-ordered DC coefficients.
func hadamardLumaDC(coeffs [16]int, qp int) [16]int {
	transform := func(a, b, c, d int) (int, int, int, int) {
		t0 := a + c
		t1 := a - c
		t2 := b + d
		t3 := b - d
		return t0 + t2, t1 + t3, t1 - t3, t0 - t2
	}
	blk := coeffs
	for i := 0; i < 4; i++ {
		blk[i], blk[i+4], blk[i+8], blk[i+12] = transform(blk[i], blk[i+4], blk[i+8], blk[i+12])
	}
	for r := 0; r < 4; r++ {
		row := blk[r*4 : r*4+4]
		row[0], row[1], row[2], row[3] = transform(row[0], row[1], row[2], row[3])
	}
	qidx := qp % 6
	var out [16]int
	if qp >= 12 {
		shift := uint(qp/6 - 2)
		mul := levelScale[0][qidx]
		for i, v := range blk {
			out[i] = (v * mul) << shift
		}
	} else {
		shift := uint(2 - qp/6)
		bias := 1 << shift >> 1
		mul := levelScale[0][qidx]
		for i, v := range blk {
			out[i] = (v*mul + bias) >> shift
		}
	}
	return out
}

// hadamardChromaDC performs the chroma DC transform and scaling of 8.5.11
// for ChromaArrayType 1 (2x2 DC block).
func hadamardChromaDC(coeffs [4]int, qp int) [4]int {
	t0 := coeffs[0] + coeffs[2]
	t1 := coeffs[0] - coeffs[2]
	t2 := coeffs[1] + coeffs[3]
	t3 := coeffs[1] - coeffs[3]
	blk := [4]int{t0 + t2, t0 - t2, t1 + t3, t1 - t3}

	qidx := qp % 6
	mul := levelScale[0][qidx]
	var out [4]int
	if qp < 6 {
		for i, v := range blk {
			out[i] = (v * mul) >> 1
		}
	} else {
		shift := uint(qp/6 - 1)
		for i, v := range blk {
			out[i] = (v * mul) << shift
		}
	}
	return out
}

func clip255(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// residual parses 7.3.5.3.1's residual() syntax for currMbAddr via CAVLC,
// storing decoded levels on sliceContext.Slice.SliceData. Only
// ChromaArrayType 1 is supported; other chroma formats are left
// unparsed, which desyncs the bitstream for subsequent macroblocks and is
// reported via ErrUnsupported. CABAC residual decoding (9.3.2.3's UEGk
// binarization) is not implemented, so this is only called for
// EntropyCodingMode 0 streams.
func residual(vid *VideoStream, ctx *SliceContext, br *bits.BitReader, currMbAddr int, predMode mbPartPredMode, chromaArrayType int) error {
	data := ctx.Slice.SliceData
	mb := vid.mbAt(currMbAddr)
	if mb != nil {
		if mb.totalCoeff == nil {
			mb.totalCoeff = make(map[int][]int)
		}
	}

	if predMode == intra16x16 {
		coeffs, totalCoeff, err := residualBlockCAVLC(br, vid, ctx, currMbAddr, false, intra16x16DCLevel, 16, 0)
		if err != nil {
			return errors.Wrap(err, "could not decode Intra16x16DCLevel")
		}
		data.Intra16x16DCLevel = coeffs
		if mb != nil {
			mb.totalCoeff[neighborKeyFor(intra16x16DCLevel)] = []int{totalCoeff}
		}
	}

	numBlocks := 16
	acLevel := intra16x16ACLevel
	if predMode != intra16x16 {
		acLevel = lumaLevel4x4
	}
	maxNumCoef := 16
	if predMode == intra16x16 {
		maxNumCoef = 15
	}
	blocks := make([][]int, numBlocks)
	totals := make([]int, numBlocks)
	for i := 0; i < numBlocks; i++ {
		cbp := CodedBlockPatternLuma(data)
		if cbp&(1<<uint(i/4)) == 0 {
			blocks[i] = make([]int, maxNumCoef)
			continue
		}
		coeffs, totalCoeff, err := residualBlockCAVLC(br, vid, ctx, currMbAddr, false, acLevel, maxNumCoef, i)
		if err != nil {
			return errors.Wrapf(err, "could not decode luma block %d", i)
		}
		blocks[i] = coeffs
		totals[i] = totalCoeff
	}
	if predMode == intra16x16 {
		data.Intra16x16ACLevel = blocks
	} else {
		data.LumaLevel4x4 = blocks
	}
	if mb != nil {
		mb.totalCoeff[neighborKeyFor(acLevel)] = totals
	}

	if chromaArrayType != 1 {
		return errors.Wrapf(ErrUnsupported, "residual: chroma_array_type %d", chromaArrayType)
	}

	// Chroma blocks' TotalCoeff is not recorded into mb.totalCoeff here, so
	// nC derivation for chroma neighbours always falls back to the
	// available-neighbour average/DC rule of 9.2.1 rather than using a
	// decoded neighbour's TotalCoeff directly.
	cbpChroma := CodedBlockPatternChroma(data)
	data.ChromaDCLevel = make([][]int, 2)
	data.ChromaACLevel = make([][][]int, 2)
	for comp := 0; comp < 2; comp++ {
		level := chromaDCLevel
		if cbpChroma == 0 {
			data.ChromaDCLevel[comp] = make([]int, 4)
		} else {
			coeffs, _, err := residualBlockCAVLC(br, vid, ctx, currMbAddr, false, level, 4, comp)
			if err != nil {
				return errors.Wrapf(err, "could not decode ChromaDCLevel component %d", comp)
			}
			data.ChromaDCLevel[comp] = coeffs
		}
		acLevel := cbIntra16x16ACLevel
		if comp == 1 {
			acLevel = crIntra16x16ACLevel
		}
		data.ChromaACLevel[comp] = make([][]int, 4)
		for i := 0; i < 4; i++ {
			if cbpChroma < 2 {
				data.ChromaACLevel[comp][i] = make([]int, 15)
				continue
			}
			coeffs, _, err := residualBlockCAVLC(br, vid, ctx, currMbAddr, false, acLevel, 15, comp*4+i)
			if err != nil {
				return errors.Wrapf(err, "could not decode ChromaACLevel component %d block %d", comp, i)
			}
			data.ChromaACLevel[comp][i] = coeffs
		}
	}
	return nil
}

// ensurePicture lazily allocates vid's frame pool and current frame sized
// to the active SPS's dimensions, following the Pool/Frame lifecycle of
// codec/cinepak's decoder.
func (vid *VideoStream) ensurePicture() error {
	picWidthInMbs := int(vid.SPS.PicWidthInMBSMinus1) + 1
	picHeightInMapUnits := int(vid.SPS.PicHeightInMapUnitsMinus1) + 1
	frameHeightInMbs := picHeightInMapUnits
	if !vid.SPS.FrameMBSOnlyFlag {
		frameHeightInMbs *= 2
	}
	picSizeInMbs := picWidthInMbs * frameHeightInMbs

	if len(vid.mbs) != picSizeInMbs {
		vid.mbs = make([]mbInfo, picSizeInMbs)
	}

	if vid.CurrFrame != nil {
		return nil
	}
	width := picWidthInMbs * 16
	height := frameHeightInMbs * 16
	if vid.FramePool == nil {
		vid.FramePool = media.NewPool(width, height, media.YUV420P, 0)
	}
	frame, err := vid.FramePool.Get()
	if err != nil {
		return errors.Wrap(err, "could not allocate frame")
	}
	vid.CurrFrame = frame
	return nil
}

// reconstructMacroblock reconstructs currMbAddr's samples into vid's
// current frame. Intra macroblocks get DC-only prediction (directional
// modes of 8.3.1.2/8.3.3 are not implemented) plus the residual this
// macroblock's residual() call stored; inter macroblocks are not
// supported and return ErrUnsupported. Deblocking (8.7) is not applied.
func (vid *VideoStream) reconstructMacroblock(ctx *SliceContext, currMbAddr int, chromaArrayType int) error {
	if err := vid.ensurePicture(); err != nil {
		return errors.Wrap(err, "could not prepare picture")
	}
	data := ctx.Slice.SliceData

	if data.MbTypeName == "I_PCM" {
		return vid.writePCM(data, currMbAddr, chromaArrayType)
	}

	sliceType := data.SliceTypeName
	predMode, err := MbPartPredMode(data, sliceType, data.MbType, 0)
	if err != nil {
		return errors.Wrap(err, "could not get mb partition prediction mode")
	}
	if predMode != intra4x4 && predMode != intra8x8 && predMode != intra16x16 {
		return errors.Wrapf(ErrUnsupported, "reconstructMacroblock: inter prediction for mb_type %q", data.MbTypeName)
	}
	if predMode == intra8x8 {
		return errors.Wrap(ErrUnsupported, "reconstructMacroblock: 8x8 transform intra prediction")
	}

	qp := vid.PPS.PicInitQpMinus26 + 26 + data.MbQpDelta

	picWidthInMbs := int(vid.SPS.PicWidthInMBSMinus1) + 1
	mbX := (currMbAddr % picWidthInMbs) * 16
	mbY := (currMbAddr / picWidthInMbs) * 16
	lumaPlane := &vid.CurrFrame.Planes[0]

	predictDC(lumaPlane, mbX, mbY, 16)

	if predMode == intra16x16 {
		dcRaster := hadamardLumaDC(rasterFromZigzagDC(data.Intra16x16DCLevel), qp)
		for blk := 0; blk < 16; blk++ {
			coeffs := [16]int{}
			if blk < len(data.Intra16x16ACLevel) {
				copy16ZigzagAC(coeffs[:], data.Intra16x16ACLevel[blk])
			}
			pos := luma4x4BlkXY[blk]
			dq := dequant4x4(coeffs[:], qp, true)
			dq[0] = dcRaster[pos[1]*4+pos[0]]
			residualBlk := idct4x4(dq)
			addResidualBlock(lumaPlane, mbX+pos[0]*4, mbY+pos[1]*4, residualBlk)
		}
	} else {
		for blk := 0; blk < 16; blk++ {
			var zz []int
			if blk < len(data.LumaLevel4x4) {
				zz = data.LumaLevel4x4[blk]
			}
			dq := dequant4x4(zz, qp, false)
			residualBlk := idct4x4(dq)
			pos := luma4x4BlkXY[blk]
			addResidualBlock(lumaPlane, mbX+pos[0]*4, mbY+pos[1]*4, residualBlk)
		}
	}

	if chromaArrayType == 1 {
		for comp := 0; comp < 2; comp++ {
			plane := &vid.CurrFrame.Planes[1+comp]
			cx, cy := mbX/2, mbY/2
			predictDC(plane, cx, cy, 8)

			var dcIn [4]int
			if comp < len(data.ChromaDCLevel) {
				copy(dcIn[:], data.ChromaDCLevel[comp])
			}
			dcOut := hadamardChromaDC(dcIn, qp)
			for blk := 0; blk < 4; blk++ {
				var zz []int
				if comp < len(data.ChromaACLevel) && blk < len(data.ChromaACLevel[comp]) {
					zz = data.ChromaACLevel[comp][blk]
				}
				dq := dequant4x4(zz, qp, true)
				dq[0] = dcOut[blk]
				residualBlk := idct4x4(dq)
				addResidualBlock(plane, cx+(blk%2)*4, cy+(blk/2)*4, residualBlk)
			}
		}
	}

	markDecoded(vid, currMbAddr, data)
	return nil
}

// predictDC fills a bsize x bsize block at (x,y) in p with the DC
// prediction of 8.3.1.2/8.3.4.1: the average of whichever of the above
// and left boundary samples are available, or the neutral value 128 when
// neither is (the top-left block of the picture).
func predictDC(p *media.Plane, x, y, bsize int) {
	haveAbove := y > 0
	haveLeft := x > 0
	var sum, n int
	if haveAbove {
		for i := 0; i < bsize; i++ {
			sum += int(p.Data[p.At(x+i, y-1)])
			n++
		}
	}
	if haveLeft {
		for i := 0; i < bsize; i++ {
			sum += int(p.Data[p.At(x-1, y+i)])
			n++
		}
	}
	dc := byte(128)
	if n > 0 {
		dc = byte((sum + n/2) / n)
	}
	for j := 0; j < bsize; j++ {
		for i := 0; i < bsize; i++ {
			p.Data[p.At(x+i, y+j)] = dc
		}
	}
}

// addResidualBlock adds a 4x4 residual (raster order) onto p at (x,y),
// clipping to [0,255], following 8.5.13's reconstruction.
func addResidualBlock(p *media.Plane, x, y int, residual [16]int) {
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			off := p.At(x+i, y+j)
			v := int(p.Data[off]) + residual[j*4+i]
			p.Data[off] = clip255(v)
		}
	}
}

// rasterFromZigzagDC places a zigzag-ordered 16-entry Intra16x16 DC level
// list (8.5.6) into raster order for hadamardLumaDC.
func rasterFromZigzagDC(coeffs []int) [16]int {
	var out [16]int
	for zz, v := range coeffs {
		if zz >= 16 {
			break
		}
		out[zigzag4x4[zz]] = v
	}
	return out
}

// copy16ZigzagAC copies a zigzag-ordered AC coefficient list (positions
// 1-15 of the 4x4 scan, position 0 reserved for the separate DC value)
// into a 16-entry zigzag buffer, which is passed to dequant4x4 as is.
func copy16ZigzagAC(dst []int, src []int) {
	for i, v := range src {
		if i+1 >= len(dst) {
			break
		}
		dst[i+1] = v
	}
}

// zigzagFromRaster re-expresses a raster-order 4x4 block back into
// zigzag order, the input order dequant4x4 takes.
func zigzagFromRaster(raster [16]int) []int {
	out := make([]int, 16)
	for zz, pos := range zigzag4x4 {
		out[zz] = raster[pos]
	}
	return out
}

// writePCM copies raw PCM samples (7.3.5.4) directly into the current
// frame, bypassing prediction and the transform entirely, per 8.3.6/8.6.
func (vid *VideoStream) writePCM(data *SliceData, currMbAddr int, chromaArrayType int) error {
	picWidthInMbs := int(vid.SPS.PicWidthInMBSMinus1) + 1
	mbX := (currMbAddr % picWidthInMbs) * 16
	mbY := (currMbAddr / picWidthInMbs) * 16
	lumaPlane := &vid.CurrFrame.Planes[0]
	for i, v := range data.PcmSampleLuma {
		if i >= 256 {
			break
		}
		x, y := mbX+i%16, mbY+i/16
		lumaPlane.Data[lumaPlane.At(x, y)] = byte(v)
	}
	if chromaArrayType == 1 {
		for comp := 0; comp < 2; comp++ {
			plane := &vid.CurrFrame.Planes[1+comp]
			base := comp * 64
			for i := 0; i < 64 && base+i < len(data.PcmSampleChroma); i++ {
				x, y := mbX/2+i%8, mbY/2+i/8
				plane.Data[plane.At(x, y)] = byte(data.PcmSampleChroma[base+i])
			}
		}
	}
	markDecoded(vid, currMbAddr, data)
	return nil
}

// markDecoded records currMbAddr's CAVLC-relevant state (6.4.11, 9.2.1)
// into vid.mbs once reconstruction completes, so later macroblocks'
// neighbour derivation sees real data instead of always defaulting to
// "unavailable".
func markDecoded(vid *VideoStream, currMbAddr int, data *SliceData) {
	mb := vid.mbAt(currMbAddr)
	if mb == nil {
		return
	}
	mb.decoded = true
	mb.mbType = mbTypeCategory(data.MbTypeName)
	mb.usingInterMbPredMode = false
	mb.cbpLuma = CodedBlockPatternLuma(data)
	mb.cbpChroma = CodedBlockPatternChroma(data)
}
