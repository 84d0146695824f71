/*
DESCRIPTION
  mov.go implements the MOV/QuickTime demuxer: a recursive-descent atom
  walker over a two-level handler table (root, then per-nesting-level
  track handlers), track chunk/sample bookkeeping, round-robin packet
  emission, and seek-index construction from stss.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mov demuxes MOV/QuickTime containers: ftyp/mdat/moov atoms at
// the root, trak/mdia/minf/stbl nested inside moov, sample tables driving
// per-track chunk iteration, and a round-robin packet scheduler matching
// the reference NihAV demuxer's get_frame behaviour.
package mov

import (
	"io"

	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/internal/mlog"
	"github.com/ausocean/mediacore/media"
)

var (
	ErrInvalidData = errors.New("mov: invalid data")
	ErrEOF         = errors.New("mov: eof")
	ErrSeek        = errors.New("mov: seek error")
)

const maxDepth = 32

func tag(s string) uint32 {
	b := []byte(s)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

var ignoredChunks = map[uint32]bool{
	tag("free"): true,
	tag("skip"): true,
	tag("udta"): true,
	tag("wide"): true,
}

// readChunkHeader reads a MOV chunk header: 32-bit size, 32-bit tag; a
// size of 1 means a 64-bit extended size follows; a size of 0 means the
// chunk extends to the end of the file.
func readChunkHeader(r *reader) (ctype uint32, size int64, err error) {
	sz32, err := r.readU32be()
	if err != nil {
		return 0, 0, err
	}
	ctype, err = r.readU32be()
	if err != nil {
		return 0, 0, err
	}
	switch sz32 {
	case 0:
		return ctype, r.left(), nil
	case 1:
		sz64, err := r.readU64be()
		if err != nil {
			return 0, 0, err
		}
		if sz64 < 16 {
			return 0, 0, ErrInvalidData
		}
		return ctype, int64(sz64) - 16, nil
	default:
		if sz32 < 8 {
			return 0, 0, ErrInvalidData
		}
		return ctype, int64(sz32) - 8, nil
	}
}

// readPalette reads the on-disk palette layout: seed:u32be, flags:u16be,
// count-1:u16be, then count entries of {a,r,g,b} each u16be truncated to
// the top byte, into the 256*4-byte RGBA layout media.SideData.Palette
// carries.
func readPalette(r *reader, size int64) ([1024]byte, int64, error) {
	var pal [1024]byte
	if _, err := r.readU32be(); err != nil { // seed
		return pal, 0, err
	}
	if _, err := r.readU16be(); err != nil { // flags
		return pal, 0, err
	}
	cnt, err := r.readU16be()
	if err != nil {
		return pal, 0, err
	}
	palSize := int(cnt) + 1
	if palSize > 256 {
		return pal, 0, ErrInvalidData
	}
	if int64(palSize)*8+8 != size {
		return pal, 0, ErrInvalidData
	}
	for i := 0; i < palSize; i++ {
		a, err := r.readU16be()
		if err != nil {
			return pal, 0, err
		}
		rr, err := r.readU16be()
		if err != nil {
			return pal, 0, err
		}
		g, err := r.readU16be()
		if err != nil {
			return pal, 0, err
		}
		b, err := r.readU16be()
		if err != nil {
			return pal, 0, err
		}
		pal[i*4] = byte(rr >> 8)
		pal[i*4+1] = byte(g >> 8)
		pal[i*4+2] = byte(b >> 8)
		pal[i*4+3] = byte(a >> 8)
	}
	return pal, size, nil
}

// Demuxer reads MOV atoms from a seekable source and emits packets in
// round-robin order across tracks.
type Demuxer struct {
	src      *reader
	depth    int
	mdatPos  int64
	mdatSize int64
	tracks   []*Track
	curTrack int
	tbDen    uint32
	duration uint32
	pal      *[1024]byte

	streams []*media.Stream
	log     *mlog.Logger
}

// New wraps src for demuxing. log may be nil.
func New(src io.ReadSeeker, log *mlog.Logger) (*Demuxer, error) {
	r, err := newReader(src)
	if err != nil {
		return nil, err
	}
	return &Demuxer{src: r, log: log}, nil
}

// SeekEntry is one entry in the index Open builds from each track's stss.
type SeekEntry struct {
	TrackNo int
	TimeMS  int64
	PTS     uint64
	Pos     int64
}

// Open walks the root atom list, validates that at least one track and an
// mdat were found, and seeks to the start of sample data.
func (d *Demuxer) Open() ([]SeekEntry, error) {
	if err := d.readRoot(); err != nil {
		return nil, err
	}
	if d.mdatPos == 0 {
		return nil, errors.Wrap(ErrInvalidData, "no mdat atom found")
	}
	if len(d.tracks) == 0 {
		return nil, errors.Wrap(ErrInvalidData, "no tracks found")
	}
	var index []SeekEntry
	for _, t := range d.tracks {
		index = append(index, t.fillSeekIndex()...)
	}
	if err := d.src.seekTo(d.mdatPos); err != nil {
		return nil, err
	}
	d.curTrack = 0
	return index, nil
}

// Streams returns the demuxed track metadata in track order.
func (d *Demuxer) Streams() []*media.Stream { return d.streams }

// GetFrame returns the next packet in round-robin track order, matching
// the reference: iterate tracks starting at curTrack, return the first
// one with a sample left, or ErrEOF if none do.
func (d *Demuxer) GetFrame() (*media.Packet, error) {
	if len(d.tracks) == 0 {
		return nil, ErrEOF
	}
	for i := 0; i < len(d.tracks); i++ {
		if d.curTrack >= len(d.tracks) {
			d.curTrack = 0
		}
		t := d.tracks[d.curTrack]
		d.curTrack++
		first := t.curSample == 0
		pts, offset, size, ok := t.getNextChunk()
		if !ok {
			continue
		}
		if err := d.src.seekTo(offset); err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		if err := d.src.readFull(buf); err != nil {
			return nil, err
		}
		pkt := &media.Packet{StreamID: t.trackID, Data: buf, PTS: int64(pts), Keyframe: first}
		if t.pal != nil {
			var sd media.SideData
			sd.Kind = media.SideDataPalette
			sd.IsNew = first
			sd.Palette = *t.pal
			pkt.SideData = append(pkt.SideData, sd)
		}
		return pkt, nil
	}
	return nil, ErrEOF
}

// Seek maps timeMs through idx (as built by Open) and repositions every
// track's iteration cursor.
func (d *Demuxer) Seek(timeMs int64, idx []SeekEntry) error {
	var found *SeekEntry
	for i := range idx {
		if idx[i].TimeMS <= timeMs && (found == nil || idx[i].TimeMS > found.TimeMS) {
			e := idx[i]
			found = &e
		}
	}
	if found == nil {
		return ErrSeek
	}
	for _, t := range d.tracks {
		t.seek(found.PTS)
	}
	return nil
}

func (d *Demuxer) readRoot() error {
	d.depth = 0
	for d.src.left() != 0 {
		ctype, size, err := readChunkHeader(d.src)
		if err != nil {
			break
		}
		if ignoredChunks[ctype] {
			if err := d.src.skip(size); err != nil {
				return err
			}
			continue
		}
		var readSize int64
		switch ctype {
		case tag("ftyp"):
			readSize, err = d.readFtyp(size)
		case tag("mdat"):
			readSize, err = d.readMdat(size)
		case tag("moov"):
			readSize, err = d.readMoov(size)
		default:
			readSize = 0
		}
		if err != nil {
			return err
		}
		if readSize > size {
			return errors.Wrap(ErrInvalidData, "root handler overread")
		}
		if err := d.src.skip(size - readSize); err != nil {
			return err
		}
	}
	return nil
}

func (d *Demuxer) readFtyp(size int64) (int64, error) {
	return size, d.src.skip(size)
}

func (d *Demuxer) readMdat(size int64) (int64, error) {
	d.mdatPos = d.src.tell()
	d.mdatSize = size
	return size, d.src.skip(size)
}

var moovHandlers = map[uint32]func(d *Demuxer, size int64) (int64, error){}

func init() {
	moovHandlers[tag("mvhd")] = (*Demuxer).readMvhd
	moovHandlers[tag("ctab")] = (*Demuxer).readCtab
	moovHandlers[tag("trak")] = (*Demuxer).readTrakAtom
	moovHandlers[tag("meta")] = (*Demuxer).readMeta
}

func (d *Demuxer) readMoov(size int64) (int64, error) {
	d.depth++
	if d.depth >= maxDepth {
		return 0, errors.Wrap(ErrInvalidData, "atom nesting too deep")
	}
	listEnd := d.src.tell() + size
	for d.src.tell() < listEnd {
		ctype, csize, err := readChunkHeader(d.src)
		if err != nil {
			break
		}
		if d.src.tell()+csize > listEnd {
			break
		}
		if ignoredChunks[ctype] {
			if err := d.src.skip(csize); err != nil {
				return 0, err
			}
			continue
		}
		var readSize int64
		if h, ok := moovHandlers[ctype]; ok {
			readSize, err = h(d, csize)
			if err != nil {
				return 0, err
			}
		}
		if readSize > csize {
			return 0, errors.Wrap(ErrInvalidData, "moov handler overread")
		}
		if err := d.src.skip(csize - readSize); err != nil {
			return 0, err
		}
	}
	d.depth--
	if d.src.tell() != listEnd {
		return 0, errors.Wrap(ErrInvalidData, "moov list did not end exactly")
	}
	return size, nil
}

const knownMvhdSize = 100

func (d *Demuxer) readMvhd(size int64) (int64, error) {
	if size < knownMvhdSize {
		return 0, ErrInvalidData
	}
	r := d.src
	version, err := r.readByte()
	if err != nil || version != 0 {
		return 0, ErrInvalidData
	}
	if _, err := r.readU24be(); err != nil { // flags
		return 0, err
	}
	if _, err := r.readU32be(); err != nil { // ctime
		return 0, err
	}
	if _, err := r.readU32be(); err != nil { // mtime
		return 0, err
	}
	tscale, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	duration, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if _, err := r.readU32be(); err != nil { // preferred rate
		return 0, err
	}
	if _, err := r.readU16be(); err != nil { // preferred volume
		return 0, err
	}
	if err := r.skip(10); err != nil {
		return 0, err
	}
	if err := r.skip(36); err != nil { // matrix
		return 0, err
	}
	// preview_time, preview_duration, poster_time, selection_time,
	// selection_duration, current_time, next_track_id.
	for i := 0; i < 7; i++ {
		if _, err := r.readU32be(); err != nil {
			return 0, err
		}
	}
	d.duration = duration
	d.tbDen = tscale
	return knownMvhdSize, nil
}

func (d *Demuxer) readCtab(size int64) (int64, error) {
	pal, n, err := readPalette(d.src, size)
	if err != nil {
		return 0, err
	}
	d.pal = &pal
	return n, nil
}

func (d *Demuxer) readMeta(size int64) (int64, error) {
	return size, d.src.skip(size)
}

func (d *Demuxer) readTrakAtom(size int64) (int64, error) {
	t := newTrack(len(d.tracks), d.tbDen)
	if err := t.readTrak(d.src, size); err != nil {
		return 0, err
	}
	if !t.tkhdFound || !t.stsdFound {
		return 0, errors.Wrap(ErrInvalidData, "trak missing tkhd or stsd")
	}
	d.tracks = append(d.tracks, t)
	if t.stream != nil {
		d.streams = append(d.streams, t.stream)
	}
	return size, nil
}
