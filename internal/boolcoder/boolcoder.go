/*
DESCRIPTION
  boolcoder.go implements the binary range (bool) coder used by the VP
  codec family, decoding a sequence of booleans each carrying an explicit
  probability rather than a generic arithmetic-coded bitstream.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package boolcoder implements the VP3/VP6-style binary range decoder: a
// renormalizing range coder where every decoded bit carries an explicit
// 8-bit probability supplied by the caller, rather than an adaptive model
// built into the coder itself.
package boolcoder

import "github.com/pkg/errors"

var ErrBitstreamEnd = errors.New("boolcoder: bitstream end")

// Decoder holds range coder state: value, range, and the byte source.
type Decoder struct {
	src   []byte
	pos   int
	value uint32
	rng   uint32
	bits  int
}

// New constructs a Decoder over src, priming the initial value from the
// first two bytes as VP6's bool coder does.
func New(src []byte) *Decoder {
	d := &Decoder{src: src, rng: 255}
	d.value = uint32(d.nextByte())<<8 | uint32(d.nextByte())
	d.bits = 0
	return d
}

func (d *Decoder) nextByte() byte {
	if d.pos >= len(d.src) {
		return 0
	}
	b := d.src[d.pos]
	d.pos++
	return b
}

// Bool decodes one boolean given an 8-bit probability (of the bit being 0)
// in [1,255].
func (d *Decoder) Bool(prob uint8) (bool, error) {
	split := 1 + (((d.rng - 1) * uint32(prob)) >> 8)
	bigSplit := split << 8

	var bit bool
	if d.value >= bigSplit {
		bit = true
		d.rng -= split
		d.value -= bigSplit
	} else {
		bit = false
		d.rng = split
	}

	for d.rng < 128 {
		d.rng <<= 1
		d.value <<= 1
		d.bits++
		if d.bits == 8 {
			d.bits = 0
			d.value |= uint32(d.nextByte())
		}
	}
	return bit, nil
}

// Flag decodes a single equiprobable bit (probability 128), used for raw
// flag bits embedded in a VP6 bitstream.
func (d *Decoder) Flag() (bool, error) { return d.Bool(128) }

// Literal decodes an n-bit unsigned value MSB-first using equiprobable
// bits, matching VP6's vp56_rac_gets helper.
func (d *Decoder) Literal(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		b, err := d.Flag()
		if err != nil {
			return 0, err
		}
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, nil
}

// Tree decodes a symbol by walking a VP-style binary tree encoded as a
// flat []int8 of node pairs: the decoded bit picks entry i or i+1 of the
// pair at index i; a positive entry n is the index of the next pair, an
// entry v <= 0 is a leaf holding symbol -v. probs[i>>1] gives the
// probability for the pair at index i. Root is the pair at index 0.
func (d *Decoder) Tree(tree []int8, probs []uint8) (int, error) {
	i := 0
	for {
		b, err := d.Bool(probs[i>>1])
		if err != nil {
			return 0, err
		}
		idx := i
		if b {
			idx++
		}
		v := tree[idx]
		if v <= 0 {
			return int(-v), nil
		}
		i = int(v)
	}
}
