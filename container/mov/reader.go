/*
DESCRIPTION
  reader.go provides the seekable big/little-endian byte reader the MOV
  atom walker reads chunk headers and fixed-layout atom bodies through.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mov

import (
	"io"

	"github.com/pkg/errors"
)

// reader wraps an io.ReadSeeker with an explicit cursor and the
// fixed-width big/little-endian reads MOV atom bodies are built from.
type reader struct {
	r   io.ReadSeeker
	pos int64
	end int64 // total stream length, filled at construction
}

func newReader(r io.ReadSeeker) (*reader, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "mov: seeking to end to size source")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "mov: seeking back to start")
	}
	return &reader{r: r, end: end}, nil
}

func (r *reader) tell() int64 { return r.pos }

func (r *reader) left() int64 { return r.end - r.pos }

func (r *reader) seekTo(pos int64) error {
	if _, err := r.r.Seek(pos, io.SeekStart); err != nil {
		return errors.Wrapf(err, "mov: seek to %d", pos)
	}
	r.pos = pos
	return nil
}

func (r *reader) skip(n int64) error {
	if n == 0 {
		return nil
	}
	return r.seekTo(r.pos + n)
}

func (r *reader) readFull(buf []byte) error {
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return errors.Wrap(err, "mov: short read")
	}
	r.pos += int64(len(buf))
	return nil
}

func (r *reader) readByte() (byte, error) {
	var b [1]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readU16be() (uint16, error) {
	var b [2]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func (r *reader) readU16le() (uint16, error) {
	var b [2]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return uint16(b[1])<<8 | uint16(b[0]), nil
}

func (r *reader) readU24be() (uint32, error) {
	var b [3]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (r *reader) readU32be() (uint32, error) {
	var b [4]byte
	if err := r.readFull(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (r *reader) readU64be() (uint64, error) {
	hi, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	lo, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}
