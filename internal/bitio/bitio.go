/*
DESCRIPTION
  bitio.go provides the byte- and bit-oriented readers and writers that every
  codec and demuxer front-end in this module is built on top of.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bitio provides the L0 bit/byte I/O substrate: a byte-oriented
// reader with peek/seek, and MSB-first/LSB-first bit readers and writers.
// It generalises the BitReader design from ausocean/av's h264dec/bits
// package to cover both bit orderings and add write support, since every
// codec front-end above it (Cinepak, Indeo, VP6, H.264, TM2) needs one or
// the other.
package bitio

import "github.com/pkg/errors"

// Error kinds returned at bitio's boundary. Callers compare with errors.Is;
// wrapping with errors.Wrap preserves these as the root cause.
var (
	ErrBitstreamEnd         = errors.New("bitio: bitstream end")
	ErrTooManyBitsRequested = errors.New("bitio: too many bits requested")
	ErrInvalidValue         = errors.New("bitio: invalid value")
)

// ByteReader is a seekable, peekable byte-oriented reader over an in-memory
// packet. Unlike io.Reader it never blocks: a packet is fully buffered
// before any codec sees it, consistent with the single-threaded cooperative
// per-pipeline decoding model.
type ByteReader struct {
	buf []byte
	pos int
}

// NewByteReader wraps buf for sequential and random-access reads.
func NewByteReader(buf []byte) *ByteReader {
	return &ByteReader{buf: buf}
}

// Len returns the number of unread bytes.
func (r *ByteReader) Len() int { return len(r.buf) - r.pos }

// Tell returns the current byte offset.
func (r *ByteReader) Tell() int { return r.pos }

// Seek moves the read cursor to an absolute byte offset.
func (r *ByteReader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return errors.Wrapf(ErrInvalidValue, "seek to %d out of [0,%d]", pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (r *ByteReader) Skip(n int) error {
	if n < 0 || n > r.Len() {
		return errors.Wrapf(ErrBitstreamEnd, "skip %d with %d left", n, r.Len())
	}
	r.pos += n
	return nil
}

// Peek returns the next n bytes without advancing the cursor.
func (r *ByteReader) Peek(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, errors.Wrapf(ErrBitstreamEnd, "peek %d with %d left", n, r.Len())
	}
	return r.buf[r.pos : r.pos+n], nil
}

// ReadBytes reads and returns the next n bytes, advancing the cursor.
func (r *ByteReader) ReadBytes(n int) ([]byte, error) {
	b, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

// ReadByte implements io.ByteReader.
func (r *ByteReader) ReadByte() (byte, error) {
	if r.Len() < 1 {
		return 0, ErrBitstreamEnd
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// U8 reads a single byte.
func (r *ByteReader) U8() (uint8, error) { return r.ReadByte() }

// U16BE reads a big-endian uint16.
func (r *ByteReader) U16BE() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// U24BE reads a big-endian 24-bit unsigned integer (used pervasively by
// Cinepak and MOV chunk headers).
func (r *ByteReader) U24BE() (uint32, error) {
	b, err := r.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// U32BE reads a big-endian uint32.
func (r *ByteReader) U32BE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// U64BE reads a big-endian uint64.
func (r *ByteReader) U64BE() (uint64, error) {
	hi, err := r.U32BE()
	if err != nil {
		return 0, err
	}
	lo, err := r.U32BE()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// U16LE reads a little-endian uint16 (AVI, gzip, IMA4, RIFF chunks).
func (r *ByteReader) U16LE() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[1])<<8 | uint16(b[0]), nil
}

// U32LE reads a little-endian uint32.
func (r *ByteReader) U32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0]), nil
}

// BitOrder selects whether BitReader/BitWriter consume bits MSB-first
// (H.264, Indeo) or LSB-first within each 32-bit refill word (Deflate).
type BitOrder int

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// BitReader reads individual bits out of a byte slice, buffering up to 64
// bits at a time. The bit ordering is fixed at construction: MSBFirst reads
// the most significant unread bit of the stream first (H.264/CAVLC/CABAC
// framing, Indeo cell trees); LSBFirst reads bits from the least
// significant end of each refilled byte first (Deflate, matching RFC 1951's
// bit packing).
type BitReader struct {
	buf   []byte
	pos   int // next unread byte
	cache uint64
	bits  uint // valid bits currently in cache
	order BitOrder
}

// NewBitReader constructs a BitReader over buf with the given bit order.
func NewBitReader(buf []byte, order BitOrder) *BitReader {
	return &BitReader{buf: buf, order: order}
}

func (br *BitReader) refill() {
	for br.bits <= 56 && br.pos < len(br.buf) {
		b := uint64(br.buf[br.pos])
		br.pos++
		if br.order == MSBFirst {
			br.cache = (br.cache << 8) | b
		} else {
			br.cache |= b << br.bits
		}
		br.bits += 8
	}
}

// Left returns the number of unread bits.
func (br *BitReader) Left() int {
	return (len(br.buf)-br.pos)*8 + int(br.bits)
}

// Tell returns bits consumed so far.
func (br *BitReader) Tell() int { return br.pos*8 - int(br.bits) }

// ByteAligned reports whether the cursor sits on a byte boundary.
func (br *BitReader) ByteAligned() bool { return br.Tell()%8 == 0 }

// Read reads n (0..=32) bits and returns them right-justified.
func (br *BitReader) Read(n int) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if n > 32 {
		return 0, ErrTooManyBitsRequested
	}
	if int(br.bits) < n {
		br.refill()
		if int(br.bits) < n {
			return 0, ErrBitstreamEnd
		}
	}
	var v uint32
	if br.order == MSBFirst {
		v = uint32((br.cache >> (br.bits - uint(n))) & ((1 << uint(n)) - 1))
	} else {
		v = uint32(br.cache & ((1 << uint(n)) - 1))
		br.cache >>= uint(n)
	}
	br.bits -= uint(n)
	return v, nil
}

// ReadBool reads a single bit as a boolean; a specialised fast path.
func (br *BitReader) ReadBool() (bool, error) {
	v, err := br.Read(1)
	return v != 0, err
}

// Peek returns the next n bits without advancing, for lookahead decode
// tables (Huffman root tables, H.264 exp-golomb prefix scanning).
func (br *BitReader) Peek(n int) (uint32, error) {
	if n > 32 {
		return 0, ErrTooManyBitsRequested
	}
	if int(br.bits) < n {
		br.refill()
	}
	avail := int(br.bits)
	if avail >= n {
		if br.order == MSBFirst {
			return uint32((br.cache >> (br.bits - uint(n))) & ((1 << uint(n)) - 1)), nil
		}
		return uint32(br.cache & ((1 << uint(n)) - 1)), nil
	}
	// Not enough bits remain in the stream: pad with zero on the right
	// (MSBFirst) so callers probing near EOF degrade gracefully instead of
	// erroring, matching codebook escape-table probing semantics.
	v, _ := br.Peek(avail)
	if br.order == MSBFirst {
		return v << uint(n-avail), nil
	}
	return v, nil
}

// Skip advances the cursor by n bits without returning their value.
func (br *BitReader) Skip(n int) error {
	if br.Left() < n {
		return ErrBitstreamEnd
	}
	for n > 32 {
		if _, err := br.Read(32); err != nil {
			return err
		}
		n -= 32
	}
	_, err := br.Read(n)
	return err
}

// Align discards bits up to the next byte boundary.
func (br *BitReader) Align() {
	n := int(br.bits) % 8
	if n != 0 {
		_, _ = br.Read(n)
	}
}

// BitWriter accumulates bits MSB-first and flushes whole bytes to an
// internal buffer. It is used by the Cinepak encoder's bit-level helpers
// and any future bit-packed encoder.
type BitWriter struct {
	out   []byte
	cache uint64
	bits  uint
}

// NewBitWriter returns an empty BitWriter.
func NewBitWriter() *BitWriter { return &BitWriter{} }

// WriteBits appends the low n bits of v, MSB-first.
func (bw *BitWriter) WriteBits(v uint32, n int) {
	bw.cache = (bw.cache << uint(n)) | uint64(v&((1<<uint(n))-1))
	bw.bits += uint(n)
	for bw.bits >= 8 {
		bw.bits -= 8
		bw.out = append(bw.out, byte(bw.cache>>bw.bits))
	}
}

// Align pads with zero bits to the next byte boundary.
func (bw *BitWriter) Align() {
	if bw.bits%8 != 0 {
		bw.WriteBits(0, int(8-bw.bits%8))
	}
}

// Bytes returns the accumulated, byte-aligned output. Align must be called
// first if a partial byte is pending.
func (bw *BitWriter) Bytes() []byte { return bw.out }
