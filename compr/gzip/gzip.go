/*
DESCRIPTION
  gzip.go decodes RFC 1952 gzip streams by driving compr/deflate's
  resumable Inflate engine in a chunked read/write loop and validating the
  trailing CRC32/ISIZE.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package gzip decodes RFC 1952 gzip containers on top of compr/deflate,
// validating the header, trailer CRC32, and ISIZE the way the reference
// gzip_decode does rather than relying on compress/gzip (this module's
// Inflate is the resumable engine requires, so the wrapper stays
// hand-rolled over it instead of mixing in the standard library's gzip,
// which owns its own non-resumable flate reader).
package gzip

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/compr/deflate"
)

var (
	ErrInvalidHeader = errors.New("gzip: invalid header")
	ErrUnsupported   = errors.New("gzip: unsupported flag bits")
	ErrCRC           = errors.New("gzip: crc or size mismatch")
	ErrIO            = errors.New("gzip: io error")
)

const (
	flagHCRC    = 0x02
	flagExtra   = 0x04
	flagName    = 0x08
	flagComment = 0x10
)

// crc32Table is the IEEE/gzip polynomial table (0xEDB88320), built once.
var crc32Table = buildCRC32Table()

func buildCRC32Table() [256]uint32 {
	var tab [256]uint32
	for i := range tab {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		tab[i] = c
	}
	return tab
}

type crc32State struct{ crc uint32 }

func (s *crc32State) update(data []byte) {
	c := ^s.crc
	for _, b := range data {
		c = crc32Table[(c^uint32(b))&0xFF] ^ (c >> 8)
	}
	s.crc = ^c
}

// readByte reads one byte, translating io.EOF to ErrIO since a truncated
// gzip header is always an error (unlike mid-payload EOF, which signals
// end of the compressed stream).
func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(ErrIO, err.Error())
	}
	return b[0], nil
}

func readU16LE(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(ErrIO, err.Error())
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(ErrIO, err.Error())
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func skip(r io.Reader, n int) error {
	if n == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

func readCString(r io.Reader) error {
	for {
		b, err := readByte(r)
		if err != nil {
			return err
		}
		if b == 0 {
			return nil
		}
	}
}

// Decode reads one gzip member from r and returns its decompressed
// payload. If skipCRC is false, the trailing CRC32 and ISIZE are verified
// against the decompressed output and ErrCRC is returned on mismatch.
func Decode(r io.Reader, skipCRC bool) ([]byte, error) {
	id1, err := readByte(r)
	if err != nil {
		return nil, err
	}
	id2, err := readByte(r)
	if err != nil {
		return nil, err
	}
	cm, err := readByte(r)
	if err != nil {
		return nil, err
	}
	flg, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if _, err := readU32LE(r); err != nil { // mtime
		return nil, err
	}
	if _, err := readByte(r); err != nil { // xfl
		return nil, err
	}
	if _, err := readByte(r); err != nil { // os
		return nil, err
	}
	if id1 != 0x1F || id2 != 0x8B || cm != 8 {
		return nil, ErrInvalidHeader
	}

	if flg&flagExtra != 0 {
		xlen, err := readU16LE(r)
		if err != nil {
			return nil, err
		}
		if err := skip(r, int(xlen)); err != nil {
			return nil, err
		}
	}
	if flg&flagName != 0 {
		if err := readCString(r); err != nil {
			return nil, err
		}
	}
	if flg&flagComment != 0 {
		if err := readCString(r); err != nil {
			return nil, err
		}
	}
	if flg&flagHCRC != 0 {
		if _, err := readU16LE(r); err != nil {
			return nil, err
		}
	}
	if flg&0xE0 != 0 {
		return nil, ErrUnsupported
	}

	var output []byte
	var tail [8]byte
	inblk := make([]byte, 1024)
	oblk := make([]byte, 4096)
	infl := deflate.New()
	checker := &crc32State{}

	for {
		n, err := io.ReadFull(r, inblk)
		if n == 0 && err != nil {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			break
		}
		repeat := false
		for {
			outlen, derr := infl.DecompressData(inblk[:n], oblk, repeat)
			switch derr {
			case nil:
				checker.update(oblk[:outlen])
				output = append(output, oblk[:outlen]...)
				goto doneBlock
			case deflate.ErrShortData:
				goto doneBlock
			case deflate.ErrOutputFull:
				repeat = true
				checker.update(oblk)
				output = append(output, oblk...)
			default:
				return nil, derr
			}
		}
	doneBlock:

		if n >= 8 {
			copy(tail[:], inblk[n-8:n])
		} else {
			shift := 8 - n
			copy(tail[:shift], tail[shift:])
			copy(tail[shift:], inblk[:n])
		}
		if err != nil {
			break
		}
	}

	if !skipCRC {
		crc := binary.LittleEndian.Uint32(tail[0:4])
		size := binary.LittleEndian.Uint32(tail[4:8])
		if size != uint32(len(output)) {
			return nil, ErrCRC
		}
		if crc != checker.crc {
			return nil, ErrCRC
		}
	}
	return output, nil
}
