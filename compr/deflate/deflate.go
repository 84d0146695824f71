/*
DESCRIPTION
  deflate.go implements a resumable RFC 1951 Deflate decompressor: an
  explicit state machine that can be fed input and drained of output in
  arbitrarily small chunks, suspending at ShortData/OutputFull and
  resuming exactly where it left off.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package deflate implements a coroutine-free, resumable RFC 1951
// decompressor. Unlike compress/flate it never blocks on an io.Reader:
// DecompressData is handed whatever input and output slices happen to be
// available and reports ShortData or OutputFull instead of reading more,
// so a caller streaming packets off a demuxer can resume decoding across
// calls without buffering the whole payload first.
package deflate

import "github.com/pkg/errors"

// Error sentinels for the decoder's suspension and failure states.
var (
	ErrInvalidArgument = errors.New("deflate: invalid argument")
	ErrShortData       = errors.New("deflate: short data")
	ErrOutputFull      = errors.New("deflate: output full")
	ErrInvalidHeader   = errors.New("deflate: invalid header")
	ErrInvalidData     = errors.New("deflate: invalid data")
)

const (
	numLiterals = 287
	numDists    = 32
	windowSize  = 32768 // distance <= full_pos, masked into [0,32768)
	windowMask  = windowSize - 1
)

var (
	lengthAddBits = [29]uint8{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1,
		1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
		4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
	lengthBase = [29]uint16{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13,
		15, 17, 19, 23, 27, 31, 35, 43, 51, 59,
		67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	distAddBits = [30]uint8{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
		4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
		9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}
	distBase = [30]uint16{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25,
		33, 49, 65, 97, 129, 193, 257, 385, 513, 769,
		1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	}
	// lenRecode is the fixed scan order for the code-length alphabet.
	lenRecode = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}
	repeatBits = [3]uint8{2, 3, 7}
	repeatBase = [3]uint8{3, 3, 11}
)

// state is the explicit resumption point, matching InflateState in the
// reference decoder 1:1 so its coroutine-like control flow carries over
// unchanged.
type state int

const (
	stStart state = iota
	stBlockStart
	stBlockMode
	stStaticBlockLen
	stStaticBlockInvLen
	stStaticBlockCopy
	stFixedBlock
	stFixedBlockLengthExt
	stFixedBlockDist
	stFixedBlockDistExt
	stFixedBlockCopy
	stFixedBlockLiteral
	stDynBlockHlit
	stDynBlockHdist
	stDynBlockHclen
	stDynLengths
	stDynCodeLengths
	stDynCodeLengthsAdd
	stDynBlock
	stDynBlockLengthExt
	stDynBlockDist
	stDynBlockDistExt
	stDynCopy
	stDynBlockLiteral
	stEnd
)

// bitReaderState is the bit-reader snapshot preserved across ShortData
// suspension points, mirroring BitReaderState in the reference.
type bitReaderState struct {
	pos    int
	bitbuf uint32
	bits   uint8
}

// currentSource wraps one decompress_data call's input slice with the
// carried-over bit-reader state, refilling LSB-first as RFC 1951 packs
// bits (least-significant bit of the stream first).
type currentSource struct {
	src []byte
	br  bitReaderState
}

func newCurrentSource(src []byte, br bitReaderState) *currentSource {
	c := &currentSource{src: src, br: br}
	c.br.pos = 0
	c.refill()
	return c
}

func reinitCurrentSource(src []byte, br bitReaderState) *currentSource {
	c := &currentSource{src: src, br: br}
	c.refill()
	return c
}

func (c *currentSource) refill() {
	for c.br.bits <= 24 && c.br.pos < len(c.src) {
		c.br.bitbuf |= uint32(c.src[c.br.pos]) << c.br.bits
		c.br.bits += 8
		c.br.pos++
	}
}

func (c *currentSource) skipCache(n uint8) {
	c.br.bitbuf >>= n
	c.br.bits -= n
}

func (c *currentSource) read(nbits uint8) (uint32, error) {
	if nbits == 0 {
		return 0, nil
	}
	if nbits > 16 {
		return 0, ErrShortData // caller never requests >16 here; defensive
	}
	if c.br.bits < nbits {
		c.refill()
		if c.br.bits < nbits {
			return 0, errShortBits
		}
	}
	ret := c.br.bitbuf & ((1 << nbits) - 1)
	c.skipCache(nbits)
	return ret, nil
}

func (c *currentSource) readBool() (bool, error) {
	if c.br.bits == 0 {
		c.refill()
		if c.br.bits == 0 {
			return false, errShortBits
		}
	}
	ret := c.br.bitbuf&1 != 0
	c.skipCache(1)
	return ret, nil
}

func (c *currentSource) peek(nbits uint8) uint32 {
	if nbits == 0 || nbits > 16 {
		return 0
	}
	if c.br.bits < nbits {
		c.refill()
	}
	return c.br.bitbuf & ((1 << nbits) - 1)
}

func (c *currentSource) skip(nbits uint8) { c.skipCache(nbits) }

func (c *currentSource) align() {
	b := c.br.bits & 7
	if b != 0 {
		c.skipCache(8 - b)
	}
}

func (c *currentSource) left() int {
	return (len(c.src)-c.br.pos)*8 + int(c.br.bits)
}

// errShortBits is an internal marker distinguishing "need more input bits"
// from other read errors; callers translate it to ErrShortData.
var errShortBits = errors.New("deflate: short bits")

// canonCode is one symbol's canonical Huffman code (LSB-first, bit-reversed
// per lengthsToCodes below).
type canonCode struct {
	code uint32
	bits uint8
}

// fixedLitTable holds the fixed literal/length codebook (RFC 1951 section
// 3.2.6), built once and reused by every Inflate instance.
var fixedLitTable = buildFixedLitTable()

func buildFixedLitTable() []canonCode {
	lens := make([]uint8, numLiterals+1)
	for i := range lens {
		switch {
		case i < 144:
			lens[i] = 8
		case i < 256:
			lens[i] = 9
		case i < 280:
			lens[i] = 7
		default:
			lens[i] = 8
		}
	}
	codes, _ := lengthsToCodes(lens)
	return codes
}

// reverseBits reverses the low n bits of v.
func reverseBits(v uint32, n uint8) uint32 {
	var r uint32
	for i := uint8(0); i < n; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}

// lengthsToCodes performs the canonical Huffman construction from RFC 1951
// section 3.2.2: count codes per length, derive the first code per length via the
// cumulative (code+count)<<1 recurrence, then assign ascending codes to
// symbols in original order, bit-reversed for LSB-first use. This mirrors
// the reference's lengths_to_codes exactly.
func lengthsToCodes(lens []uint8) ([]canonCode, error) {
	var bits [32]uint32
	for _, l := range lens {
		if int(l) >= len(bits) {
			return nil, ErrInvalidHeader
		}
		bits[l]++
	}
	bits[0] = 0

	var pfx [33]uint32
	var code uint32
	for i := 0; i < len(bits); i++ {
		code = (code + bits[i]) << 1
		pfx[i+1] = code
	}

	codes := make([]canonCode, len(lens))
	for i, l := range lens {
		if l == 0 {
			continue
		}
		codes[i] = canonCode{code: reverseBits(pfx[l], l), bits: l}
		pfx[l]++
	}
	return codes, nil
}

// codebook is a table-driven canonical decoder built directly from
// LSB-first canonical codes, matching the reference's two-level
// root-table/escape-subtable Codebook design (internal/huffman implements
// the general version; deflate inlines its own because it needs to expose
// MemoryError/partial-read semantics distinct from huffman.ErrInvalidCode).
type subTable struct {
	bits  uint8
	table []int32 // leaf slots only: low 7 bits consumed bits, bits8..: index
}

type codebook struct {
	lutBits   uint8
	table     []int32 // low byte: consumed bits (7 bits); bit7: escape flag; bits8..: index or subtable index
	subTables []subTable
	syms      []uint32
}

const tableFillValue = -1
const escapeFlag = 0x80

// rootBits bounds the root table width; codes longer than this chain
// through a per-prefix escape subtable sized to the longest code sharing
// that prefix, so codebooks with 15-bit dynamic-block codes still decode
// correctly instead of erroring out.
const rootBits = 9

func newCodebook(codes []canonCode, syms []uint32) (*codebook, error) {
	maxBits := uint8(0)
	for _, c := range codes {
		if c.bits > maxBits {
			maxBits = c.bits
		}
	}
	if maxBits == 0 {
		return nil, errors.New("deflate: empty codebook")
	}
	lutBits := maxBits
	if lutBits > rootBits {
		lutBits = rootBits
	}

	cb := &codebook{lutBits: lutBits, syms: syms}
	cb.table = make([]int32, 1<<lutBits)
	for i := range cb.table {
		cb.table[i] = tableFillValue
	}

	type longEntry struct {
		idx int
		c   canonCode
	}
	groups := make(map[uint32][]longEntry)
	groupMaxSub := make(map[uint32]uint8)

	for i, c := range codes {
		if c.bits == 0 {
			continue
		}
		if c.bits <= lutBits {
			step := uint32(1) << c.bits
			for v := c.code; v < uint32(len(cb.table)); v += step {
				cb.table[v] = int32(c.bits) | (int32(i) << 8)
			}
			continue
		}
		prefix := c.code & (uint32(1)<<lutBits - 1)
		groups[prefix] = append(groups[prefix], longEntry{idx: i, c: c})
		subBits := c.bits - lutBits
		if subBits > groupMaxSub[prefix] {
			groupMaxSub[prefix] = subBits
		}
	}

	for prefix, entries := range groups {
		subBits := groupMaxSub[prefix]
		st := subTable{bits: subBits, table: make([]int32, 1<<subBits)}
		for i := range st.table {
			st.table[i] = tableFillValue
		}
		for _, e := range entries {
			remBits := e.c.bits - lutBits
			rem := e.c.code >> lutBits
			step := uint32(1) << remBits
			for v := rem; v < uint32(len(st.table)); v += step {
				st.table[v] = int32(remBits) | (int32(e.idx) << 8)
			}
		}
		cb.subTables = append(cb.subTables, st)
		cb.table[prefix] = escapeFlag | (int32(len(cb.subTables)-1) << 8)
	}
	return cb, nil
}

func (cb *codebook) read(c *currentSource) (uint32, error) {
	lutIdx := c.peek(cb.lutBits)
	slot := cb.table[lutIdx]
	if slot == tableFillValue {
		return 0, errInvalidCode
	}
	if slot&escapeFlag != 0 {
		if int(cb.lutBits) > c.left() {
			return 0, errMemory
		}
		c.skip(cb.lutBits)
		st := cb.subTables[slot>>8]
		subIdx := c.peek(st.bits)
		subSlot := st.table[subIdx]
		if subSlot == tableFillValue {
			return 0, errInvalidCode
		}
		bits := uint8(subSlot & 0x7F)
		if int(bits) > c.left() {
			return 0, errMemory
		}
		c.skip(bits)
		return cb.syms[subSlot>>8], nil
	}
	bits := uint8(slot & 0x7F)
	if int(bits) > c.left() {
		return 0, errMemory
	}
	c.skip(bits)
	return cb.syms[slot>>8], nil
}

var (
	errInvalidCode = errors.New("deflate: invalid code")
	errMemory      = errors.New("deflate: truncated codebook read")
)

// Inflate is a resumable Deflate decompressor. The zero value is the same
// as the value New returns: ready to decompress from the start of a stream.
type Inflate struct {
	br bitReaderState

	buf       [windowSize]byte
	bpos      int
	outputIdx int
	fullPos   int

	state       state
	finalBlock  bool
	hlit, hdist int
	dynLenCB    *codebook
	dynLitCB    *codebook
	dynDistCB   *codebook
	lenLengths  [19]uint8
	allLengths  [numLiterals + numDists]uint8
	curLenIdx   int

	// Pending values carried between suspension and resumption, replacing
	// the reference's per-variant state payload (Go's state enum carries
	// no associated data).
	pendLen, pendBase, pendDist, pendLength int
	pendBits                                uint8
	pendSym                                 uint8
}

// New returns a fresh Inflate ready to decompress from the start of a
// stream.
func New() *Inflate {
	return &Inflate{state: stStart}
}

// IsFinished reports whether the terminal state has been reached.
func (fl *Inflate) IsFinished() bool { return fl.state == stEnd }

// CurrentOutputSize reports bytes written into dst by the last call.
func (fl *Inflate) CurrentOutputSize() int { return fl.outputIdx }

// TotalOutputSize reports total bytes decoded across the stream's lifetime.
func (fl *Inflate) TotalOutputSize() int { return fl.fullPos }

func (fl *Inflate) putLiteral(v byte) {
	fl.buf[fl.bpos] = v
	fl.bpos = (fl.bpos + 1) & windowMask
	fl.fullPos++
}

func (fl *Inflate) lzCopy(offset, length int, dst []byte) error {
	if offset > fl.fullPos {
		return ErrInvalidData
	}
	cstart := (fl.bpos - offset) & windowMask
	for i := 0; i < length; i++ {
		b := fl.buf[(cstart+i)&windowMask]
		fl.buf[(fl.bpos+i)&windowMask] = b
		dst[i] = b
	}
	fl.bpos = (fl.bpos + length) & windowMask
	fl.fullPos += length
	return nil
}

// Uncompress decompresses src into dst in one call (dst must be large
// enough to hold the whole output), skipping a leading zlib header
// (0x78 0x9C) if present.
func Uncompress(src []byte, dst []byte) (int, error) {
	fl := New()
	off := 0
	if len(src) > 2 && src[0] == 0x78 && src[1] == 0x9C {
		off = 2
	}
	return fl.DecompressData(src[off:], dst, false)
}

// DecompressData feeds src into the state machine and writes decompressed
// bytes into dst, resuming from wherever the last call left off when
// continueBlock is true. See the package doc for the suspension contract.
func (fl *Inflate) DecompressData(src []byte, dst []byte, continueBlock bool) (int, error) {
	if len(src) == 0 || len(dst) == 0 {
		return 0, ErrInvalidArgument
	}
	var c *currentSource
	if !continueBlock {
		c = newCurrentSource(src, fl.br)
	} else {
		fl.outputIdx = 0
		c = reinitCurrentSource(src, fl.br)
	}

	readBits := func(n uint8) (uint32, bool, error) {
		if c.left() < int(n) {
			fl.br = c.br
			return 0, false, ErrShortData
		}
		v, _ := c.read(n)
		return v, true, nil
	}
	readCB := func(cb *codebook) (uint32, bool, error) {
		v, err := cb.read(c)
		if err == errMemory {
			fl.br = c.br
			return 0, false, ErrShortData
		}
		if err != nil {
			fl.state = stEnd
			return 0, false, ErrInvalidData
		}
		return v, true, nil
	}

	for {
		switch fl.state {
		case stStart, stBlockStart:
			if c.left() == 0 {
				fl.br = c.br
				return fl.outputIdx, ErrShortData
			}
			b, err := c.readBool()
			if err != nil {
				fl.br = c.br
				return fl.outputIdx, ErrShortData
			}
			fl.finalBlock = b
			fl.state = stBlockMode

		case stBlockMode:
			bmode, ok, err := readBits(2)
			if !ok {
				return fl.outputIdx, err
			}
			switch bmode {
			case 0:
				c.align()
				fl.state = stStaticBlockLen
			case 1:
				fl.state = stFixedBlock
			case 2:
				fl.state = stDynBlockHlit
			default:
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}

		case stStaticBlockLen:
			l, ok, err := readBits(16)
			if !ok {
				return fl.outputIdx, err
			}
			fl.pendLen = int(l)
			fl.state = stStaticBlockInvLen

		case stStaticBlockInvLen:
			inv, ok, err := readBits(16)
			if !ok {
				return fl.outputIdx, err
			}
			if uint16(fl.pendLen) != ^uint16(inv) {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			fl.state = stStaticBlockCopy

		case stStaticBlockCopy:
			for fl.pendLen > 0 {
				if fl.outputIdx >= len(dst) {
					fl.br = c.br
					return fl.outputIdx, ErrOutputFull
				}
				if c.left() < 8 {
					fl.br = c.br
					return fl.outputIdx, ErrShortData
				}
				v, _ := c.read(8)
				fl.putLiteral(byte(v))
				dst[fl.outputIdx] = byte(v)
				fl.outputIdx++
				fl.pendLen--
			}
			if fl.finalBlock {
				fl.state = stEnd
				return fl.outputIdx, nil
			}
			fl.state = stBlockStart

		case stFixedBlock:
			val, ok, err := readFixedSym(c)
			if !ok {
				if err == ErrShortData {
					fl.br = c.br
				} else {
					fl.state = stEnd
				}
				return fl.outputIdx, err
			}
			done, errOut := fl.handleLitLen(val, dst, stFixedBlockLiteral, stFixedBlockLengthExt, stFixedBlockDist, c)
			if errOut != nil {
				return fl.outputIdx, errOut
			}
			if done {
				return fl.outputIdx, nil
			}

		case stFixedBlockLiteral:
			if fl.outputIdx >= len(dst) {
				fl.br = c.br
				return fl.outputIdx, ErrOutputFull
			}
			fl.putLiteral(fl.pendSym)
			dst[fl.outputIdx] = fl.pendSym
			fl.outputIdx++
			fl.state = stFixedBlock

		case stFixedBlockLengthExt:
			add, ok, err := readBits(fl.pendBits)
			if !ok {
				return fl.outputIdx, err
			}
			fl.pendLen = fl.pendBase + int(add)
			fl.state = stFixedBlockDist

		case stFixedBlockDist:
			idxRaw, ok, err := readBits(5)
			if !ok {
				return fl.outputIdx, err
			}
			distIdx := int(reverseBits(idxRaw, 5))
			if distIdx >= len(distBase) {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidData
			}
			bits := distAddBits[distIdx]
			base := int(distBase[distIdx])
			if bits == 0 {
				fl.pendDist = base
				fl.state = stFixedBlockCopy
			} else {
				fl.pendBase, fl.pendBits = base, bits
				fl.state = stFixedBlockDistExt
			}

		case stFixedBlockDistExt:
			add, ok, err := readBits(fl.pendBits)
			if !ok {
				return fl.outputIdx, err
			}
			fl.pendDist = fl.pendBase + int(add)
			fl.state = stFixedBlockCopy

		case stFixedBlockCopy:
			done, errOut := fl.doCopy(dst, c, stFixedBlockCopy, stFixedBlock)
			if errOut != nil {
				return fl.outputIdx, errOut
			}
			if done {
				return fl.outputIdx, nil
			}

		case stDynBlockHlit:
			v, ok, err := readBits(5)
			if !ok {
				return fl.outputIdx, err
			}
			fl.hlit = int(v) + 257
			if fl.hlit >= 287 {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			fl.state = stDynBlockHdist

		case stDynBlockHdist:
			v, ok, err := readBits(5)
			if !ok {
				return fl.outputIdx, err
			}
			fl.hdist = int(v) + 1
			fl.state = stDynBlockHclen

		case stDynBlockHclen:
			v, ok, err := readBits(4)
			if !ok {
				return fl.outputIdx, err
			}
			fl.pendLen = int(v) + 4
			fl.curLenIdx = 0
			fl.lenLengths = [19]uint8{}
			fl.allLengths = [numLiterals + numDists]uint8{}
			fl.state = stDynLengths

		case stDynLengths:
			for fl.pendLen > 0 {
				if c.left() < 3 {
					fl.br = c.br
					return fl.outputIdx, ErrShortData
				}
				v, _ := c.read(3)
				fl.lenLengths[lenRecode[fl.curLenIdx]] = uint8(v)
				fl.curLenIdx++
				fl.pendLen--
			}
			codes, err := lengthsToCodes(fl.lenLengths[:])
			if err != nil {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			syms := make([]uint32, 19)
			for i := range syms {
				syms[i] = uint32(i)
			}
			cb, err := newCodebook(codes, syms)
			if err != nil {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			fl.dynLenCB = cb
			fl.curLenIdx = 0
			fl.state = stDynCodeLengths

		case stDynCodeLengths:
			advanced := false
			for fl.curLenIdx < fl.hlit+fl.hdist {
				val, ok, err := readCB(fl.dynLenCB)
				if !ok {
					return fl.outputIdx, err
				}
				if val < 16 {
					fl.allLengths[fl.curLenIdx] = uint8(val)
					fl.curLenIdx++
					continue
				}
				idx := int(val) - 16
				if idx > 2 {
					fl.state = stEnd
					return fl.outputIdx, ErrInvalidHeader
				}
				fl.pendLen = idx
				fl.state = stDynCodeLengthsAdd
				advanced = true
				break
			}
			if advanced {
				continue
			}
			litLens := fl.allLengths[:fl.hlit]
			distLens := fl.allLengths[fl.hlit : fl.hlit+fl.hdist]

			litCodes, err := lengthsToCodes(litLens)
			if err != nil {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			litSyms := make([]uint32, len(litCodes))
			for i := range litSyms {
				litSyms[i] = uint32(i)
			}
			litCB, err := newCodebook(litCodes, litSyms)
			if err != nil {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			fl.dynLitCB = litCB

			distCodes, err := lengthsToCodes(distLens)
			if err != nil {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			distSyms := make([]uint32, len(distCodes))
			for i := range distSyms {
				distSyms[i] = uint32(i)
			}
			distCB, err := newCodebook(distCodes, distSyms)
			if err != nil {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			fl.dynDistCB = distCB
			fl.state = stDynBlock

		case stDynCodeLengthsAdd:
			mode := fl.pendLen
			base := int(repeatBase[mode])
			bits := repeatBits[mode]
			addV, ok, err := readBits(bits)
			if !ok {
				return fl.outputIdx, err
			}
			length := base + int(addV)
			if fl.curLenIdx+length > fl.hlit+fl.hdist {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidHeader
			}
			var rpt uint8
			if mode == 0 {
				if fl.curLenIdx == 0 {
					fl.state = stEnd
					return fl.outputIdx, ErrInvalidHeader
				}
				rpt = fl.allLengths[fl.curLenIdx-1]
			}
			for i := 0; i < length; i++ {
				fl.allLengths[fl.curLenIdx] = rpt
				fl.curLenIdx++
			}
			fl.state = stDynCodeLengths

		case stDynBlock:
			val, ok, err := readCB(fl.dynLitCB)
			if !ok {
				fl.br = c.br
				return fl.outputIdx, err
			}
			done, errOut := fl.handleLitLen(val, dst, stDynBlockLiteral, stDynBlockLengthExt, stDynBlockDist, c)
			if errOut != nil {
				return fl.outputIdx, errOut
			}
			if done {
				return fl.outputIdx, nil
			}

		case stDynBlockLiteral:
			if fl.outputIdx >= len(dst) {
				fl.br = c.br
				return fl.outputIdx, ErrOutputFull
			}
			fl.putLiteral(fl.pendSym)
			dst[fl.outputIdx] = fl.pendSym
			fl.outputIdx++
			fl.state = stDynBlock

		case stDynBlockLengthExt:
			add, ok, err := readBits(fl.pendBits)
			if !ok {
				return fl.outputIdx, err
			}
			fl.pendLen = fl.pendBase + int(add)
			fl.state = stDynBlockDist

		case stDynBlockDist:
			idx, ok, err := readCB(fl.dynDistCB)
			if !ok {
				return fl.outputIdx, err
			}
			distIdx := int(idx)
			if distIdx >= len(distBase) {
				fl.state = stEnd
				return fl.outputIdx, ErrInvalidData
			}
			bits := distAddBits[distIdx]
			base := int(distBase[distIdx])
			if bits == 0 {
				fl.pendDist = base
				fl.state = stDynCopy
			} else {
				fl.pendBase, fl.pendBits = base, bits
				fl.state = stDynBlockDistExt
			}

		case stDynBlockDistExt:
			add, ok, err := readBits(fl.pendBits)
			if !ok {
				return fl.outputIdx, err
			}
			fl.pendDist = fl.pendBase + int(add)
			fl.state = stDynCopy

		case stDynCopy:
			done, errOut := fl.doCopy(dst, c, stDynCopy, stDynBlock)
			if errOut != nil {
				return fl.outputIdx, errOut
			}
			if done {
				return fl.outputIdx, nil
			}

		case stEnd:
			return 0, nil
		}
	}
}

// readFixedSym reads one symbol from the fixed literal/length codebook,
// built once at package initialisation (package-level, shared).
var fixedCodebook = mustFixedCodebook()

func mustFixedCodebook() *codebook {
	syms := make([]uint32, numLiterals+1)
	for i := range syms {
		syms[i] = uint32(i)
	}
	cb, err := newCodebook(fixedLitTable, syms)
	if err != nil {
		panic(err)
	}
	return cb
}

func readFixedSym(c *currentSource) (uint32, bool, error) {
	v, err := fixedCodebook.read(c)
	if err == errMemory {
		return 0, false, ErrShortData
	}
	if err != nil {
		return 0, false, ErrInvalidData
	}
	return v, true, nil
}

// handleLitLen processes one literal/length/end-of-block symbol common to
// both the fixed and dynamic block states.
func (fl *Inflate) handleLitLen(val uint32, dst []byte, litState, lenExtState, distState state, c *currentSource) (done bool, err error) {
	switch {
	case val < 256:
		if fl.outputIdx >= len(dst) {
			fl.br = c.br
			fl.pendSym = uint8(val)
			fl.state = litState
			return false, ErrOutputFull
		}
		fl.putLiteral(uint8(val))
		dst[fl.outputIdx] = uint8(val)
		fl.outputIdx++
		return false, nil
	case val == 256:
		if fl.finalBlock {
			fl.state = stEnd
			return true, nil
		}
		fl.state = stBlockStart
		return false, nil
	default:
		lenIdx := int(val) - 257
		if lenIdx >= len(lengthBase) {
			fl.state = stEnd
			return false, ErrInvalidData
		}
		bits := lengthAddBits[lenIdx]
		base := int(lengthBase[lenIdx])
		if bits > 0 {
			fl.pendBase, fl.pendBits = base, bits
			fl.state = lenExtState
		} else {
			fl.pendLen = base
			fl.state = distState
		}
		return false, nil
	}
}

// doCopy performs (or resumes) an LZ77 copy of fl.pendLen bytes from
// fl.pendDist, splitting across an OutputFull boundary and preserving
// (remaining length, dist) in fl.pendLen/fl.pendDist exactly as the
// reference's FixedBlockCopy/DynCopy states do.
func (fl *Inflate) doCopy(dst []byte, c *currentSource, copyState, nextState state) (done bool, err error) {
	length, dist := fl.pendLen, fl.pendDist
	if fl.outputIdx+length > len(dst) {
		copySize := len(dst) - fl.outputIdx
		if e := fl.lzCopy(dist, copySize, dst[fl.outputIdx:]); e != nil {
			fl.state = stEnd
			return false, ErrInvalidData
		}
		fl.outputIdx += copySize
		fl.br = c.br
		fl.pendLen = length - copySize
		fl.pendDist = dist
		fl.state = copyState
		return false, ErrOutputFull
	}
	if e := fl.lzCopy(dist, length, dst[fl.outputIdx:]); e != nil {
		fl.state = stEnd
		return false, ErrInvalidData
	}
	fl.outputIdx += length
	fl.state = nextState
	return false, nil
}
