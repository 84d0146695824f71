/*
DESCRIPTION
  cavlc.go provides utilities for context-adaptive variable-length coding
  for the parsing of H.264 syntax structure fields.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved. 

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/


package h264dec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/mediacore/codec/h264/h264dec/bits"
)

// TODO: find where these are defined in the specifications.
const (
	chromaDCLevel = iota
	intra16x16DCLevel
	intra16x16ACLevel
	cbIntra16x16DCLevel
	cbIntra16x16ACLevel
	crIntra16x16DCLevel
	crIntra16x16ACLevel
	lumaLevel4x4
	cbLevel4x4
	crLevel4x4
)

// Initialize the CAVLC coeff_token mapping table.
func init() {
	lines, err := csv.NewReader(strings.NewReader(coeffTokenTable)).ReadAll()
	if err != nil {
		panic(fmt.Sprintf("could not read lines from coeffTokenTable string, failed with error: %v", err))
	}

	coeffTokenMaps, err = formCoeffTokenMap(lines)
	if err != nil {
		panic(fmt.Sprintf("could not form coeff_token map, failed with err: %v", err))
	}
}

// tokenMap maps coeff_token to values of TrailingOnes(coeff_token) and
// TotalCoeff(coeff_token) given as tokenMap[ number of leading zeros in
// coeff_token][ coeff_token val ][ 0 for trailing ones and 1 for totalCoef ]
type tokenMap map[int]map[int][2]int

// The number of columns in the coeffTokenMap defined below. This is
// representative of the number of defined nC ranges in table 9-5.
const nColumns = 6

// coeffTokenMaps holds a representation of table 9-5 from the specifications, and
// is indexed as follows, coeffToken[ nC group ][ number of coeff_token leading
// zeros ][ value of coeff_token ][ 0 for TrailingOnes(coeff_token) and 1 for
// TotalCoef(coeff_token) ].
var coeffTokenMaps [nColumns]tokenMap

// formCoeffTokenMap populates the global [nColumns]tokenMap coeffTokenMaps
// representation of table 9-5 in the specifications using the coeffTokenTable
// const string defined in cavlctab.go.
func formCoeffTokenMap(lines [][]string) ([nColumns]tokenMap, error) {
	var maps [nColumns]tokenMap

	for i := range maps {
		maps[i] = make(tokenMap)
	}

	for _, line := range lines {
		trailingOnes, err := strconv.Atoi(line[0])
		if err != nil {
			return maps, fmt.Errorf("could not convert trailingOnes string to int, failed with error: %w", err)
		}

		totalCoeff, err := strconv.Atoi(line[1])
		if err != nil {
			return maps, fmt.Errorf("could not convert totalCoeff string to int, failed with error: %w", err)
		}

		// For each column in this row, therefore each nC category, load the
		// coeff_token leading zeros and value into the map.
		for j, v := range line[2:] {
			if v[0] == '-' {
				continue
			}

			// Count the leading zeros.
			var nZeros int
			for _, c := range v {
				if c == '1' {
					break
				}

				if c == '0' {
					nZeros++
				}
			}

			// This will be the value of the coeff_token (without leading zeros).
			val, err := binToInt(v[nZeros:])
			if err != nil {
				return maps, fmt.Errorf("could not get value of remaining binary, failed with error: %w", err)
			}

			// Add the TrailingOnes(coeff_token) and TotalCoeff(coeff_token) values
			// into the map for the coeff_token leading zeros and value.
			if maps[j][nZeros] == nil {
				maps[j][nZeros] = make(map[int][2]int)
			}
			maps[j][nZeros][val] = [2]int{trailingOnes, totalCoeff}
		}
	}
	return maps, nil
}

// Sentinel mb_type categories used by the neighbouring-block derivation in
// section 9.2.1 step 6. These are distinct from the raw mb_type syntax
// element, whose meaning depends on slice type; mbTypeCategory below maps
// a parsed MbTypeName string onto one of these.
const (
	mbTypeOther = iota
	pSkip
	bSkip
	iPCM
)

// mbTypeCategory maps a decoded macroblock type name (as produced by
// MbTypeName) onto the coarse category used by 9.2.1 step 6.
func mbTypeCategory(name string) int {
	switch name {
	case "P_Skip":
		return pSkip
	case "B_Skip":
		return bSkip
	case "I_PCM":
		return iPCM
	default:
		return mbTypeOther
	}
}

// block carries the neighbouring-block state that 9.2.1 steps 5 and 6
// need for a single blkA or blkB candidate.
type block struct {
	isAvailable          bool
	usingInterMbPredMode bool
	mbType               int // one of mbTypeOther, pSkip, bSkip, iPCM.
	totalCoef            int
	cbpZero              bool // AC residual known zero via CodedBlockPattern.
}

// available reports whether b refers to a macroblock that exists and has
// already been decoded (9.2.1 step 5).
func available(b block) bool { return b.isAvailable }

// resTransformCoeffLevelsZero reports whether the AC residual transform
// coefficient levels of the neighbouring block are known to be zero
// because the relevant bit of CodedBlockPatternLuma/Chroma is zero,
// following 9.2.1 step 6.
func resTransformCoeffLevelsZero(b block) bool { return b.cbpZero }

// mbInfo is the decoded state of one macroblock that later macroblocks in
// raster scan order need for CAVLC's neighbour derivation (6.4.11).
type mbInfo struct {
	decoded              bool
	mbType               int // one of mbTypeOther, pSkip, bSkip, iPCM.
	usingInterMbPredMode bool
	cbpLuma              int // 4 bits, one per 8x8 luma region (table 6-2 grouping).
	cbpChroma            int
	// totalCoeff holds TotalCoeff(coeff_token) for this macroblock's
	// already-decoded blocks, keyed by a neighborKey* constant. DC keys
	// hold a single-element slice; 4x4 keys hold one element per
	// luma4x4BlkIdx/chroma4x4BlkIdx position.
	totalCoeff map[int][]int
}

// Canonical neighbour-lookup keys, grouping the cavlc level constants by
// which plane/transform they describe (9.2.1's blkA/blkB are defined per
// macroblock position, independent of whether the *current* macroblock
// shares the neighbour's transform size).
const (
	neighborKeyLumaDC = iota
	neighborKeyLuma4x4
	neighborKeyCbDC
	neighborKeyCb4x4
	neighborKeyCrDC
	neighborKeyCr4x4
	neighborKeyChromaDC
)

func neighborKeyFor(level int) int {
	switch level {
	case intra16x16DCLevel:
		return neighborKeyLumaDC
	case intra16x16ACLevel, lumaLevel4x4:
		return neighborKeyLuma4x4
	case cbIntra16x16DCLevel:
		return neighborKeyCbDC
	case cbIntra16x16ACLevel, cbLevel4x4:
		return neighborKeyCb4x4
	case crIntra16x16DCLevel:
		return neighborKeyCrDC
	case crIntra16x16ACLevel, crLevel4x4:
		return neighborKeyCr4x4
	default:
		return neighborKeyChromaDC
	}
}

// luma4x4BlkXY maps luma4x4BlkIdx (and, identically, chroma/Cb/Cr 4x4
// block indices within a 16x16 macroblock) to its (x,y) position in
// 4x4-block units, per table 6-2. The grouping into four quadrants of four
// blocks each also gives the corresponding 8x8 region (blkIdx/4) used to
// look up CodedBlockPatternLuma bits.
var luma4x4BlkXY = [16][2]int{
	{0, 0}, {1, 0}, {0, 1}, {1, 1},
	{2, 0}, {3, 0}, {2, 1}, {3, 1},
	{0, 2}, {1, 2}, {0, 3}, {1, 3},
	{2, 2}, {3, 2}, {2, 3}, {3, 3},
}

func luma4x4BlkIdxFromXY(x, y int) int {
	for idx, xy := range luma4x4BlkXY {
		if xy[0] == x && xy[1] == y {
			return idx
		}
	}
	return -1
}

// chroma4x4BlkXY maps chroma4x4BlkIdx to its (x,y) position in
// 4x4-block units for ChromaArrayType 1 (4:2:0, a 2x2 grid of blocks).
var chroma4x4BlkXY = [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

func chroma4x4BlkIdxFromXY(x, y int) int {
	for idx, xy := range chroma4x4BlkXY {
		if xy[0] == x && xy[1] == y {
			return idx
		}
	}
	return -1
}

func onLeftEdge(mbAddr, picWidthInMbs int) bool {
	return picWidthInMbs == 0 || mbAddr%picWidthInMbs == 0
}

// mbAt returns the decode state for macroblock address addr, or nil if
// addr is out of range.
func (vid *VideoStream) mbAt(addr int) *mbInfo {
	if addr < 0 || addr >= len(vid.mbs) {
		return nil
	}
	return &vid.mbs[addr]
}

// neighborBlockInfo builds the block value for one neighbour candidate,
// honouring 9.2.1 step 5's availability rule.
func (vid *VideoStream) neighborBlockInfo(neighborAddr int, offPicture bool, level, blkIdx int) block {
	if offPicture || neighborAddr < 0 {
		return block{}
	}
	mb := vid.mbAt(neighborAddr)
	if mb == nil || !mb.decoded {
		return block{}
	}
	b := block{isAvailable: true, usingInterMbPredMode: mb.usingInterMbPredMode, mbType: mb.mbType}
	key := neighborKeyFor(level)
	if tc, ok := mb.totalCoeff[key]; ok && blkIdx >= 0 && blkIdx < len(tc) {
		b.totalCoef = tc[blkIdx]
	}
	switch key {
	case neighborKeyLuma4x4, neighborKeyCb4x4, neighborKeyCr4x4:
		if blkIdx >= 0 {
			b.cbpZero = (mb.cbpLuma>>(blkIdx/4))&1 == 0
		}
	case neighborKeyChromaDC:
		b.cbpZero = mb.cbpChroma == 0
	}
	return b
}

// luma4x4Neighbors derives blkA and blkB for a 4x4-indexed luma, Cb or Cr
// block, per 6.4.11.4 (non-MBAFF case).
func (vid *VideoStream) luma4x4Neighbors(currMbAddr, picWidthInMbs, level, blkIdx int) (blkA, blkB block) {
	x, y := luma4x4BlkXY[blkIdx][0], luma4x4BlkXY[blkIdx][1]

	ax, ay := x-1, y
	aAddr := currMbAddr
	aOff := false
	if ax < 0 {
		ax = 3
		if onLeftEdge(currMbAddr, picWidthInMbs) {
			aOff = true
		} else {
			aAddr = currMbAddr - 1
		}
	}
	blkA = vid.neighborBlockInfo(aAddr, aOff, level, luma4x4BlkIdxFromXY(ax, ay))

	bx, by := x, y-1
	bAddr := currMbAddr
	bOff := false
	if by < 0 {
		by = 3
		if currMbAddr < picWidthInMbs {
			bOff = true
		} else {
			bAddr = currMbAddr - picWidthInMbs
		}
	}
	blkB = vid.neighborBlockInfo(bAddr, bOff, level, luma4x4BlkIdxFromXY(bx, by))
	return blkA, blkB
}

// chroma4x4Neighbors derives blkA and blkB for a chroma AC 4x4 block, per
// 6.4.11.6 for ChromaArrayType 1 (4:2:0, the only chroma format this
// decoder reconstructs).
func (vid *VideoStream) chroma4x4Neighbors(currMbAddr, picWidthInMbs, level, blkIdx int) (blkA, blkB block) {
	x, y := chroma4x4BlkXY[blkIdx][0], chroma4x4BlkXY[blkIdx][1]

	ax, ay := x-1, y
	aAddr := currMbAddr
	aOff := false
	if ax < 0 {
		ax = 1
		if onLeftEdge(currMbAddr, picWidthInMbs) {
			aOff = true
		} else {
			aAddr = currMbAddr - 1
		}
	}
	blkA = vid.neighborBlockInfo(aAddr, aOff, level, chroma4x4BlkIdxFromXY(ax, ay))

	bx, by := x, y-1
	bAddr := currMbAddr
	bOff := false
	if by < 0 {
		by = 1
		if currMbAddr < picWidthInMbs {
			bOff = true
		} else {
			bAddr = currMbAddr - picWidthInMbs
		}
	}
	blkB = vid.neighborBlockInfo(bAddr, bOff, level, chroma4x4BlkIdxFromXY(bx, by))
	return blkA, blkB
}

// blockNeighbors derives the blkA/blkB neighbouring blocks used to compute
// nC for a given residual level type and block index, per 6.4.11.4 (luma)
// and 6.4.11.6 (chroma, ChromaArrayType 1). currMbAddr is the raster-scan
// address of the macroblock currently being decoded. MBAFF macroblock
// pairs (6.4.10) are not supported; both neighbours are reported
// unavailable in that case rather than risking a wrong address.
func (vid *VideoStream) blockNeighbors(ctx *SliceContext, currMbAddr, level, blkIdx int) (blkA, blkB block) {
	if vid.SPS != nil && vid.SPS.MBAdaptiveFrameFieldFlag && ctx.SliceHeader != nil && !ctx.SliceHeader.FieldPic {
		return block{}, block{}
	}

	picWidthInMbs := PicWidthInMbs(vid.SPS)

	switch level {
	case intra16x16DCLevel, cbIntra16x16DCLevel, crIntra16x16DCLevel:
		blkA = vid.neighborBlockInfo(currMbAddr-1, onLeftEdge(currMbAddr, picWidthInMbs), level, 0)
		blkB = vid.neighborBlockInfo(currMbAddr-picWidthInMbs, currMbAddr < picWidthInMbs, level, 0)
		return blkA, blkB
	case intra16x16ACLevel, lumaLevel4x4, cbIntra16x16ACLevel, cbLevel4x4, crIntra16x16ACLevel, crLevel4x4:
		return vid.luma4x4Neighbors(currMbAddr, picWidthInMbs, level, blkIdx)
	default:
		return vid.chroma4x4Neighbors(currMbAddr, picWidthInMbs, level, blkIdx)
	}
}

// parseTotalCoeffAndTrailingOnes will use logic provided in section 9.2.1 of
// the specifications to obtain a value of nC, parse coeff_token from br and
// then use table 9-5 to find corresponding values of TrailingOnes(coeff_token)
// and TotalCoeff(coeff_token) which are then subsequently returned.
func parseTotalCoeffAndTrailingOnes(br *bits.BitReader, vid *VideoStream, ctx *SliceContext, currMbAddr int, usingMbPredMode bool, level, maxNumCoef, inBlockIdx int) (totalCoeff, trailingOnes, nC, outBlockIdx int, err error) {
	outBlockIdx = inBlockIdx
	if level == chromaDCLevel {
		if ctx.chromaArrayType == 1 {
			nC = -1
		} else {
			nC = -2
		}
	} else {
		// Steps 1,2 and 3.
		if level == intra16x16DCLevel || level == cbIntra16x16DCLevel || level == crIntra16x16DCLevel {
			outBlockIdx = 0
		}

		// Step 4: derive blkA and blkB.
		blkA, blkB := vid.blockNeighbors(ctx, currMbAddr, level, outBlockIdx)
		mbAddr := [2]block{blkA, blkB}
		blk := [2]block{blkA, blkB}

		var availableFlag [2]bool
		var n [2]int
		for i := range availableFlag {
			// Step 5.
			if !(!available(mbAddr[i]) || usingMbPredMode || vid.ConstrainedIntraPred ||
				mbAddr[i].usingInterMbPredMode || ctx.nalType == 2 || ctx.nalType == 3 || ctx.nalType == 4) {
				availableFlag[i] = true
			}

			// Step 6.
			if availableFlag[i] {
				switch {
				case mbAddr[i].mbType == pSkip || mbAddr[i].mbType == bSkip || (mbAddr[i].mbType != iPCM && resTransformCoeffLevelsZero(blk[i])):
					n[i] = 0
				case mbAddr[i].mbType == iPCM:
					n[i] = 16
				default:
					// "Otherwise, nN is set equal to the value TotalCoeff( coeff_token )
					// of the neighbouring block blkN", already resolved by
					// blockNeighbors/neighborBlockInfo above.
					n[i] = blk[i].totalCoef
				}
			}
		}

		// Step 7.
		switch {
		case availableFlag[0] && availableFlag[1]:
			nC = (n[0] + n[1] + 1) >> 1
		case availableFlag[0]:
			nC = n[0]
		case availableFlag[1]:
			nC = n[1]
		default:
			nC = 0
		}
	}

	trailingOnes, totalCoeff, _, err = readCoeffToken(br, nC)
	if err != nil {
		err = fmt.Errorf("could not get trailingOnes and totalCoeff vars, failed with error: %w", err)
		return
	}
	return
}

var (
	errInvalidNC = errors.New("invalid value of nC")
	errBadToken  = errors.New("could not find coeff_token value in map")
)

// readCoeffToken will read the coeff_token from br and find a match in the
// coeff_token mapping table (table 9-5 in the specifications) given also nC.
// The resultant TrailingOnes(coeff_token) and TotalCoeff(coeff_token) are
// returned as well as the value of coeff_token.
func readCoeffToken(br *bits.BitReader, nC int) (trailingOnes, totalCoeff, coeffToken int, err error) {
	// Get the number of leading zeros.
	var b uint64
	nZeros := -1
	for ; b == 0; nZeros++ {
		b, err = br.ReadBits(1)
		if err != nil {
			err = fmt.Errorf("could not read coeff_token leading zeros, failed with error: %w", err)
			return
		}
	}

	// Get the column idx for the map.
	var nCIdx int
	switch {
	case 0 <= nC && nC < 2:
		nCIdx = 0
	case 2 <= nC && nC < 4:
		nCIdx = 1
	case 4 <= nC && nC < 8:
		nCIdx = 2
	case 8 <= nC:
		nCIdx = 3
	case nC == -1:
		nCIdx = 4
	case nC == -2:
		nCIdx = 5
	default:
		err = errInvalidNC
		return
	}

	// Get the value of coeff_token.
	val := b
	nBits := nZeros
	for {
		vars, ok := coeffTokenMaps[nCIdx][nZeros][int(val)]
		if ok {
			trailingOnes = vars[0]
			totalCoeff = vars[1]
			coeffToken = int(val)
			return
		}

		const maxCoeffTokenBits = 16
		if !ok && nBits == maxCoeffTokenBits {
			err = errBadToken
			return
		}

		b, err = br.ReadBits(1)
		if err != nil {
			err = fmt.Errorf("could not read next bit of coeff_token, failed with error: %w", err)
			return
		}

		nBits++
		val <<= 1
		val |= b
	}
}

// parseLevelPrefix parses the level_prefix variable as specified by the process
// outlined in section 9.2.2.1 in the specifications.
func parseLevelPrefix(br *bits.BitReader) (int, error) {
	zeros := -1
	for b := 0; b != 1; zeros++ {
		_b, err := br.ReadBits(1)
		if err != nil {
			return -1, fmt.Errorf("could not read bit, failed with error: %w", err)
		}
		b = int(_b)
	}
	return zeros, nil
}

// parseLevelInformation parses level information and returns the resultant
// levelVal list using the process defined by section 9.2.2 in the specifications.
func parseLevelInformation(br *bits.BitReader, totalCoeff, trailingOnes int) ([]int, error) {
	var levelVal []int
	var i int
	for ; i < trailingOnes; i++ {
		b, err := br.ReadBits(1)
		if err != nil {
			return nil, fmt.Errorf("could not read trailing_ones_sign_flag, failed with error: %w", err)
		}
		levelVal = append(levelVal, 1-int(b)*2)
	}

	var suffixLen int
	switch {
	case totalCoeff > 10 && trailingOnes < 3:
		suffixLen = 1
	case totalCoeff <= 10 || trailingOnes == 3:
		suffixLen = 0
	default:
		return nil, errors.New("invalid TotalCoeff and TrailingOnes combination")
	}

	for j := 0; j < totalCoeff-trailingOnes; j++ {
		levelPrefix, err := parseLevelPrefix(br)
		if err != nil {
			return nil, fmt.Errorf("could not parse level prefix, failed with error: %w", err)
		}

		var levelSuffixSize int
		switch {
		case levelPrefix == 14 && suffixLen == 0:
			levelSuffixSize = 4
		case levelPrefix >= 15:
			levelSuffixSize = levelPrefix - 3
		default:
			levelSuffixSize = suffixLen
		}

		var levelSuffix int
		if levelSuffixSize > 0 {
			b, err := br.ReadBits(levelSuffixSize)
			if err != nil {
				return nil, fmt.Errorf("could not parse levelSuffix, failed with error: %w", err)
			}
			levelSuffix = int(b)
		} else {
			levelSuffix = 0
		}

		levelCode := (mini(15, levelPrefix) << uint(suffixLen)) + levelSuffix

		if levelPrefix >= 15 && suffixLen == 0 {
			levelCode += 15
		}

		if levelPrefix >= 16 {
			levelCode += (1 << uint(levelPrefix-3)) - 4096
		}

		if i == trailingOnes && trailingOnes < 3 {
			levelCode += 2
		}

		if levelCode%2 == 0 {
			levelVal = append(levelVal, (levelCode+2)>>1)
		} else {
			levelVal = append(levelVal, (-levelCode-1)>>1)
		}

		if suffixLen == 0 {
			suffixLen = 1
		}

		if absi(levelVal[i]) > (3<<uint(suffixLen-1)) && suffixLen < 6 {
			suffixLen++
		}
		i++
	}
	return levelVal, nil
}

// combineLevelRunInfo combines the level and run information obtained prior
// using the process defined in section 9.2.4 of the specifications and returns
// the corresponding coeffLevel list.
func combineLevelRunInfo(levelVal, runVal []int, totalCoeff int) []int {
	coeffNum := -1
	i := totalCoeff - 1
	var coeffLevel []int
	for j := 0; j < totalCoeff; j++ {
		coeffNum += runVal[i] + 1
		if coeffNum >= len(coeffLevel) {
			coeffLevel = append(coeffLevel, make([]int, (coeffNum+1)-len(coeffLevel))...)
		}
		coeffLevel[coeffNum] = levelVal[i]
		i--
	}
	return coeffLevel
}

// readVLC reads bits from br one at a time, accumulating them into a
// binary string, until the accumulated string matches an entry in table.
// It relies on table being prefix-free, which tables 9-7 through 9-10 are.
func readVLC(br *bits.BitReader, table map[string]int) (int, error) {
	var code string
	const maxBits = 32
	for i := 0; i < maxBits; i++ {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, fmt.Errorf("could not read VLC bit: %w", err)
		}
		if b == 1 {
			code += "1"
		} else {
			code += "0"
		}
		if v, ok := table[code]; ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no matching VLC code found after %d bits", maxBits)
}

// parseTotalZeros parses total_zeros using table 9-7/9-8 (4x4 luma/Cb/Cr
// blocks) or table 9-9(a) (chroma DC, ChromaArrayType 1), selected by
// level and maxNumCoef, per 9.2.3.
func parseTotalZeros(br *bits.BitReader, level, totalCoeff, maxNumCoef int) (int, error) {
	if level == chromaDCLevel {
		if totalCoeff < 1 || totalCoeff >= len(chromaDCTotalZerosTable) {
			return 0, fmt.Errorf("total_zeros: totalCoeff %d out of range for chroma DC", totalCoeff)
		}
		return readVLC(br, chromaDCTotalZerosTable[totalCoeff])
	}
	if totalCoeff < 1 || totalCoeff >= len(totalZerosTable) {
		return 0, fmt.Errorf("total_zeros: totalCoeff %d out of range", totalCoeff)
	}
	return readVLC(br, totalZerosTable[totalCoeff])
}

// parseRunBefore parses run_before using table 9-10, per 9.2.3. For
// zerosLeft > 6 the table's tail is a self-terminating code: the number of
// leading zero bits before the terminating one gives run_before-6.
func parseRunBefore(br *bits.BitReader, zerosLeft int) (int, error) {
	if zerosLeft <= 0 {
		return 0, nil
	}
	if zerosLeft <= 6 {
		return readVLC(br, runBeforeTable[zerosLeft])
	}

	n := 0
	for {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, fmt.Errorf("could not read run_before bit: %w", err)
		}
		if b == 1 {
			break
		}
		n++
		const maxZeroRun = 32
		if n > maxZeroRun {
			return 0, fmt.Errorf("run_before: zero run exceeded %d bits", maxZeroRun)
		}
	}
	return n + 6, nil
}

// residualBlockCAVLC decodes one residual block (a 4x4 luma/Cb/Cr block, a
// 2x2 chroma DC block, or an intra16x16 DC/AC block) using CAVLC, per
// clause 9.2 end to end: coeff_token (9.2.1), levels (9.2.2), total_zeros
// and run_before (9.2.3), and the level/run combination (9.2.4). The
// returned coeffLevel slice has maxNumCoef entries in scanning order.
func residualBlockCAVLC(br *bits.BitReader, vid *VideoStream, ctx *SliceContext, currMbAddr int, usingMbPredMode bool, level, maxNumCoef, blkIdx int) (coeffLevel []int, totalCoeff int, err error) {
	var trailingOnes, nC, outBlockIdx int
	totalCoeff, trailingOnes, nC, outBlockIdx, err = parseTotalCoeffAndTrailingOnes(br, vid, ctx, currMbAddr, usingMbPredMode, level, maxNumCoef, blkIdx)
	if err != nil {
		return nil, 0, fmt.Errorf("could not parse coeff_token: %w", err)
	}
	_ = nC
	_ = outBlockIdx

	coeffLevel = make([]int, maxNumCoef)
	if totalCoeff == 0 {
		return coeffLevel, 0, nil
	}

	levelVal, err := parseLevelInformation(br, totalCoeff, trailingOnes)
	if err != nil {
		return nil, 0, fmt.Errorf("could not parse level information: %w", err)
	}

	totalZeros := 0
	if totalCoeff < maxNumCoef {
		totalZeros, err = parseTotalZeros(br, level, totalCoeff, maxNumCoef)
		if err != nil {
			return nil, 0, fmt.Errorf("could not parse total_zeros: %w", err)
		}
	}

	runVal := make([]int, totalCoeff)
	zerosLeft := totalZeros
	for i := 0; i < totalCoeff-1; i++ {
		if zerosLeft > 0 {
			runVal[i], err = parseRunBefore(br, zerosLeft)
			if err != nil {
				return nil, 0, fmt.Errorf("could not parse run_before: %w", err)
			}
			zerosLeft -= runVal[i]
		}
	}
	runVal[totalCoeff-1] = zerosLeft

	combined := combineLevelRunInfo(levelVal, runVal, totalCoeff)
	copy(coeffLevel, combined)
	return coeffLevel, totalCoeff, nil
}
