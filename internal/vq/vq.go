/*
DESCRIPTION
  vq.go implements a generic median-cut vector quantiser: split the widest
  dimension of the training set repeatedly until the target codebook size
  is reached, then centroid each resulting cell.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package vq provides a generic median-cut vector quantiser and the
// deterministic xorshift fill used to seed codebook entries that receive
// no training vectors, matching the Cinepak encoder's quantise_median_cut
// and RNG from the nihav reference encoder.
package vq

import "gonum.org/v1/gonum/floats"

// Element is the trait a vector-quantisable type must implement: enough to
// measure distance, find componentwise extremes for median-cut splitting,
// and sort along a chosen axis. This generalises nihav's YUVCode, letting
// Cinepak's {y0,y1,y2,y3,u,v} cells and any future codec's pixel cells
// share one quantiser.
type Element interface {
	// Components returns the element's coordinates (e.g. Y0..Y3,U,V).
	Components() []float64
}

// Sum accumulates Elements into a running centroid, mirroring nihav's
// YUVCodeSum: add members one at a time, then Mean divides by count. Using
// gonum/floats for the accumulation generalises the teacher's existing
// direct dependency on gonum (there used for audio DSP) into this VQ path.
type Sum struct {
	total []float64
	n     int
}

// Add folds e into the running sum.
func (s *Sum) Add(e Element) {
	c := e.Components()
	if s.total == nil {
		s.total = make([]float64, len(c))
	}
	floats.Add(s.total, c)
	s.n++
}

// Count returns how many elements have been added.
func (s *Sum) Count() int { return s.n }

// Mean returns the centroid, or nil if nothing was added.
func (s *Sum) Mean() []float64 {
	if s.n == 0 {
		return nil
	}
	out := make([]float64, len(s.total))
	copy(out, s.total)
	floats.Scale(1/float64(s.n), out)
	return out
}

// Cell is one leaf of the median-cut split: the training vectors assigned
// to it and their running centroid.
type Cell struct {
	Members []Element
	Sum     Sum
}

// MedianCut splits items into at most k cells by repeatedly bisecting the
// cell with the most members along its widest-spread coordinate axis,
// matching nihav's quantise_median_cut (split by max-range dimension, not
// by variance), which produces deterministic, order-independent results
// given the same training set.
func MedianCut(items []Element, k int) []Cell {
	if len(items) == 0 || k <= 0 {
		return nil
	}
	cells := []Cell{{Members: items}}
	for len(cells) < k {
		// Find the largest cell with more than one distinct value to split.
		splitIdx := -1
		best := 1
		for i, c := range cells {
			if len(c.Members) > best && splittable(c.Members) {
				best = len(c.Members)
				splitIdx = i
			}
		}
		if splitIdx < 0 {
			break
		}
		a, b := splitCell(cells[splitIdx].Members)
		cells[splitIdx] = Cell{Members: a}
		cells = append(cells, Cell{Members: b})
	}
	for i := range cells {
		for _, m := range cells[i].Members {
			cells[i].Sum.Add(m)
		}
	}
	return cells
}

func splittable(items []Element) bool {
	if len(items) < 2 {
		return false
	}
	first := items[0].Components()
	for _, it := range items[1:] {
		c := it.Components()
		for i := range c {
			if c[i] != first[i] {
				return true
			}
		}
	}
	return false
}

// splitCell finds the coordinate axis with the widest min/max spread,
// sorts members along it, and divides at the median.
func splitCell(items []Element) (lo, hi []Element) {
	dims := len(items[0].Components())
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	for i := range mins {
		mins[i] = items[0].Components()[i]
		maxs[i] = mins[i]
	}
	for _, it := range items {
		c := it.Components()
		for i, v := range c {
			if v < mins[i] {
				mins[i] = v
			}
			if v > maxs[i] {
				maxs[i] = v
			}
		}
	}
	axis := 0
	spread := -1.0
	for i := range mins {
		if d := maxs[i] - mins[i]; d > spread {
			spread = d
			axis = i
		}
	}

	sorted := make([]Element, len(items))
	copy(sorted, items)
	// Insertion sort: training sets per strip are small (<=256 pixels per
	// cell at the top split), and this keeps the split deterministic and
	// stable without pulling in sort.Slice's less-predictable pivoting for
	// ties, matching the encoder's need for reproducible output.
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		vc := v.Components()[axis]
		j := i - 1
		for j >= 0 && sorted[j].Components()[axis] > vc {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	mid := len(sorted) / 2
	return sorted[:mid], sorted[mid:]
}

// Xorshift is the deterministic 32-bit PRNG used to fill codebook entries
// that received no training vectors, seeded at 0x12345678 and advanced by
// x ^= x<<13; x ^= x>>17; x ^= x<<5 as in the reference encoder. This must
// never be replaced with math/rand: callers depend on the exact sequence
// for reproducible encoder output across runs.
type Xorshift struct {
	state uint32
}

// NewXorshift returns a generator seeded at the canonical 0x12345678.
func NewXorshift() *Xorshift { return &Xorshift{state: 0x12345678} }

// Next advances and returns the next 32-bit value.
func (x *Xorshift) Next() uint32 {
	v := x.state
	v ^= v << 13
	v ^= v >> 17
	v ^= v << 5
	x.state = v
	return v
}

// FillByte returns the next pseudo-random byte, used to pad unused
// codebook components.
func (x *Xorshift) FillByte() byte { return byte(x.Next()) }
