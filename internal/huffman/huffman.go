/*
DESCRIPTION
  huffman.go builds canonical Huffman codebooks from code-length arrays and
  provides a table-driven reader over an internal/bitio.BitReader.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package huffman builds canonical Huffman codebooks the way RFC 1951
// builds its literal/length, distance, and code-length trees, and reads
// them back with a root-table-plus-escape-subtable decoder so long codes
// do not force a 2^maxbits root table.
package huffman

import "github.com/pkg/errors"

var (
	ErrInvalidCode  = errors.New("huffman: invalid code")
	ErrMemoryError  = errors.New("huffman: codebook construction failed")
)

// entry is one symbol's canonical code.
type entry struct {
	code uint32
	bits uint8
	sym  uint16
}

// LengthsToCodes assigns canonical Huffman codes to symbols given their bit
// lengths (0 meaning "unused"), following RFC 1951 §3.2.2: count codes per
// length, derive the first code of each length via the cumulative
// (code+count)<<1 recurrence, then assign ascending codes to symbols in
// their original order. This mirrors nihav's deflate.rs lengths_to_codes
// exactly, since Cinepak/Deflate/other canonical codebooks in this module
// all rely on bit-for-bit identical construction to interoperate with real
// encoders.
func LengthsToCodes(lengths []uint8) ([]uint32, error) {
	const maxBits = 15
	var blCount [maxBits + 1]int
	for _, l := range lengths {
		if l > maxBits {
			return nil, errors.Wrapf(ErrMemoryError, "length %d exceeds max %d", l, maxBits)
		}
		blCount[l]++
	}
	blCount[0] = 0

	var nextCode [maxBits + 1]uint32
	var code uint32
	for bits := 1; bits <= maxBits; bits++ {
		code = (code + uint32(blCount[bits-1])) << 1
		nextCode[bits] = code
	}

	codes := make([]uint32, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		codes[sym] = nextCode[l]
		nextCode[l]++
	}
	return codes, nil
}

// reverseBits reverses the low n bits of v (LSB-first codebooks, as used by
// Deflate, store codes bit-reversed relative to their canonical MSB-first
// assignment).
func reverseBits(v uint32, n uint8) uint32 {
	var r uint32
	for i := uint8(0); i < n; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}

// BitOrder mirrors bitio.BitOrder without importing it, so huffman stays
// reusable over either a MSB-first (H.264-style) or LSB-first (Deflate)
// bit source; the caller's reader determines which applies.
type BitOrder int

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// Codebook is a table-driven canonical Huffman decoder. Codes up to
// rootBits are resolved directly; longer codes chain through an escape
// subtable, matching nihav's CodebookReader two-level table design so a
// codebook with one 15-bit code does not force a 32768-entry root table.
type Codebook struct {
	order    BitOrder
	rootBits uint8
	root     []tableSlot
	subs     [][]tableSlot
}

type tableSlot struct {
	sym     uint16
	bits    uint8 // bits consumed; 0 means "escape to subtable"
	sub     int   // subtable index when bits == 0 and escape
	escape  bool
	subBits uint8
}

// NewCodebook builds a Codebook from parallel lengths/symbols arrays (a
// length of 0 excludes that symbol). rootBits bounds the root table size to
// 2^rootBits entries; codes longer than rootBits escape to a per-prefix
// subtable sized to the longest code sharing that prefix.
func NewCodebook(lengths []uint8, symbols []uint16, order BitOrder, rootBits uint8) (*Codebook, error) {
	if len(lengths) != len(symbols) {
		return nil, errors.Wrap(ErrMemoryError, "lengths/symbols length mismatch")
	}
	codes, err := LengthsToCodes(lengths)
	if err != nil {
		return nil, err
	}

	var entries []entry
	maxLen := uint8(0)
	for i, l := range lengths {
		if l == 0 {
			continue
		}
		c := codes[i]
		if order == LSBFirst {
			c = reverseBits(c, l)
		}
		entries = append(entries, entry{code: c, bits: l, sym: symbols[i]})
		if l > maxLen {
			maxLen = l
		}
	}
	if len(entries) == 0 {
		return nil, errors.Wrap(ErrMemoryError, "codebook has no symbols")
	}
	if rootBits > maxLen {
		rootBits = maxLen
	}

	cb := &Codebook{order: order, rootBits: rootBits, root: make([]tableSlot, 1<<rootBits)}

	// Group entries needing an escape subtable by their rootBits-length
	// prefix.
	subGroups := map[uint32][]entry{}
	for _, e := range entries {
		if e.bits <= rootBits {
			fillDirect(cb.root, e, rootBits, order)
			continue
		}
		prefix := prefixBits(e.code, e.bits, rootBits, order)
		subGroups[prefix] = append(subGroups[prefix], e)
	}
	for prefix, group := range subGroups {
		subMax := uint8(0)
		for _, e := range group {
			if e.bits-rootBits > subMax {
				subMax = e.bits - rootBits
			}
		}
		sub := make([]tableSlot, 1<<subMax)
		for _, e := range group {
			rem := entry{code: remBits(e.code, e.bits, rootBits, order), bits: e.bits - rootBits, sym: e.sym}
			fillDirect(sub, rem, subMax, order)
		}
		idx := len(cb.subs)
		cb.subs = append(cb.subs, sub)
		cb.root[prefix] = tableSlot{escape: true, sub: idx, subBits: subMax}
	}
	return cb, nil
}

func prefixBits(code uint32, bits, rootBits uint8, order BitOrder) uint32 {
	if order == MSBFirst {
		return code >> (bits - rootBits)
	}
	return code & ((1 << rootBits) - 1)
}

func remBits(code uint32, bits, rootBits uint8, order BitOrder) uint32 {
	if order == MSBFirst {
		return code & ((1 << (bits - rootBits)) - 1)
	}
	return code >> rootBits
}

func fillDirect(table []tableSlot, e entry, width uint8, order BitOrder) {
	step := uint32(1) << e.bits
	for base := e.code; base < uint32(len(table)); base += step {
		if order == MSBFirst {
			lo := base << (width - e.bits)
			hi := lo + (1 << (width - e.bits))
			for i := lo; i < hi; i++ {
				table[i] = tableSlot{sym: e.sym, bits: e.bits}
			}
		} else {
			table[base] = tableSlot{sym: e.sym, bits: e.bits}
		}
		if order == MSBFirst {
			break
		}
	}
}

// BitSource is the minimal interface Codebook.Read needs; bitio.BitReader
// satisfies it.
type BitSource interface {
	Peek(n int) (uint32, error)
	Skip(n int) error
}

// Read decodes the next symbol from src.
func (cb *Codebook) Read(src BitSource) (uint16, error) {
	peek, err := src.Peek(int(cb.rootBits))
	if err != nil {
		return 0, err
	}
	slot := cb.root[peek]
	if slot.escape {
		sub := cb.subs[slot.sub]
		if err := src.Skip(int(cb.rootBits)); err != nil {
			return 0, err
		}
		peek2, err := src.Peek(int(slot.subBits))
		if err != nil {
			return 0, err
		}
		s2 := sub[peek2]
		if s2.bits == 0 {
			return 0, ErrInvalidCode
		}
		if err := src.Skip(int(s2.bits)); err != nil {
			return 0, err
		}
		return s2.sym, nil
	}
	if slot.bits == 0 {
		return 0, ErrInvalidCode
	}
	if err := src.Skip(int(slot.bits)); err != nil {
		return 0, err
	}
	return slot.sym, nil
}
