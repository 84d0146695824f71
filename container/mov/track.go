/*
DESCRIPTION
  track.go implements the per-track atom walk (trak/mdia/minf/stbl) and
  the sample-table-driven chunk iteration that turns stco/stsc/stsz (or a
  flat chunk_offsets/chunk_sizes pair) into a sequence of packet offsets.

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
	"github.com/pkg/errors"

	"github.com/ausocean/mediacore/media"
)

// sampleMapEntry is one (first_chunk, samples_per_chunk) run from stsc.
type sampleMapEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

// Track holds one trak's parsed sample tables and its iteration cursor.
type Track struct {
	trackID   int
	trackNo   int
	tbDen     uint32
	depth     uint32

	tkhdFound bool
	stsdFound bool

	streamType media.StreamKind
	width, height int
	channels      int
	bits          int
	fcc           uint32
	sampleSize    uint32 // stsz constant size, 0 if per-sample sizes follow

	keyframes    []uint32 // 1-based sample numbers, ascending
	chunkSizes   []uint32
	chunkOffsets []uint64
	sampleMap    []sampleMapEntry

	stream *media.Stream
	pal    *[1024]byte

	curChunk    int
	curSample   uint64 // samples emitted so far (0-based)
	samplesLeft int    // remaining samples in the current chunk (sampleMap path)
	lastOffset  uint64 // byte offset of next sample within the current chunk
}

func newTrack(idx int, tbDen uint32) *Track {
	return &Track{trackNo: idx, tbDen: tbDen}
}

func tell(r *reader) int64 { return r.tell() }

// readTrak walks a single trak atom's direct children.
func (t *Track) readTrak(r *reader, size int64) error {
	listEnd := tell(r) + size
	for tell(r) < listEnd {
		ctype, csize, err := readChunkHeader(r)
		if err != nil {
			break
		}
		if tell(r)+csize > listEnd {
			break
		}
		if ignoredChunks[ctype] {
			if err := r.skip(csize); err != nil {
				return err
			}
			continue
		}
		var readSize int64
		switch ctype {
		case tag("tkhd"):
			readSize, err = t.readTkhd(r, csize)
		case tag("mdia"):
			readSize, err = t.readMdia(r, csize)
		case tag("clip"), tag("matt"), tag("edts"), tag("tref"), tag("load"), tag("imap"):
			readSize = 0
		default:
			readSize = 0
		}
		if err != nil {
			return err
		}
		if readSize > csize {
			return errors.Wrap(ErrInvalidData, "trak handler overread")
		}
		if err := r.skip(csize - readSize); err != nil {
			return err
		}
	}
	if tell(r) != listEnd {
		return errors.Wrap(ErrInvalidData, "trak list did not end exactly")
	}
	return nil
}

const knownTkhdSize = 84

func (t *Track) readTkhd(r *reader, size int64) (int64, error) {
	if size != knownTkhdSize {
		return 0, ErrInvalidData
	}
	if _, err := r.readByte(); err != nil { // version
		return 0, err
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
	trackID, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if err := r.skip(4); err != nil { // reserved
		return 0, err
	}
	if _, err := r.readU32be(); err != nil { // duration
		return 0, err
	}
	if err := r.skip(8); err != nil { // reserved
		return 0, err
	}
	if _, err := r.readU16be(); err != nil { // layer
		return 0, err
	}
	if _, err := r.readU16be(); err != nil { // alternate group
		return 0, err
	}
	if _, err := r.readU16be(); err != nil { // volume
		return 0, err
	}
	if err := r.skip(2); err != nil { // reserved
		return 0, err
	}
	if err := r.skip(36); err != nil { // matrix
		return 0, err
	}
	widthFixed, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	heightFixed, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	t.trackID = int(trackID)
	t.width = int(widthFixed >> 16)
	t.height = int(heightFixed >> 16)
	t.tkhdFound = true
	return knownTkhdSize, nil
}

func (t *Track) readMdia(r *reader, size int64) (int64, error) {
	listEnd := tell(r) + size
	for tell(r) < listEnd {
		ctype, csize, err := readChunkHeader(r)
		if err != nil {
			break
		}
		if tell(r)+csize > listEnd {
			break
		}
		if ignoredChunks[ctype] {
			if err := r.skip(csize); err != nil {
				return 0, err
			}
			continue
		}
		var readSize int64
		switch ctype {
		case tag("mdhd"):
			readSize = 0
		case tag("hdlr"):
			readSize, err = t.readHdlr(r, csize)
		case tag("minf"):
			readSize, err = t.readMinf(r, csize)
		default:
			readSize = 0
		}
		if err != nil {
			return 0, err
		}
		if readSize > csize {
			return 0, errors.Wrap(ErrInvalidData, "mdia handler overread")
		}
		if err := r.skip(csize - readSize); err != nil {
			return 0, err
		}
	}
	if tell(r) != listEnd {
		return 0, errors.Wrap(ErrInvalidData, "mdia list did not end exactly")
	}
	return size, nil
}

const knownHdlrSize = 24

func (t *Track) readHdlr(r *reader, size int64) (int64, error) {
	if size < knownHdlrSize {
		return 0, ErrInvalidData
	}
	if _, err := r.readByte(); err != nil { // version
		return 0, err
	}
	flags, err := r.readU24be()
	if err != nil {
		return 0, err
	}
	if flags != 0 {
		return 0, ErrInvalidData
	}
	if _, err := r.readU32be(); err != nil { // component type
		return 0, err
	}
	compSubtype, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if err := r.skip(12); err != nil { // reserved
		return 0, err
	}
	switch compSubtype {
	case tag("vide"):
		t.streamType = media.StreamVideo
	case tag("soun"):
		t.streamType = media.StreamAudio
	default:
		t.streamType = media.StreamData
	}
	return knownHdlrSize, nil
}

func (t *Track) readMinf(r *reader, size int64) (int64, error) {
	listEnd := tell(r) + size
	for tell(r) < listEnd {
		ctype, csize, err := readChunkHeader(r)
		if err != nil {
			break
		}
		if tell(r)+csize > listEnd {
			break
		}
		if ignoredChunks[ctype] {
			if err := r.skip(csize); err != nil {
				return 0, err
			}
			continue
		}
		var readSize int64
		switch ctype {
		case tag("hdlr"), tag("dinf"):
			readSize = 0
		case tag("vmhd"):
			readSize, err = readFixedAtom(r, csize, 12, "vmhd")
		case tag("smhd"):
			readSize, err = readFixedAtom(r, csize, 8, "smhd")
		case tag("gmhd"):
			readSize = 0
		case tag("gmin"):
			readSize, err = readFixedAtom(r, csize, 16, "gmin")
		case tag("stbl"):
			readSize, err = t.readStbl(r, csize)
		default:
			readSize = 0
		}
		if err != nil {
			return 0, err
		}
		if readSize > csize {
			return 0, errors.Wrap(ErrInvalidData, "minf handler overread")
		}
		if err := r.skip(csize - readSize); err != nil {
			return 0, err
		}
	}
	if tell(r) != listEnd {
		return 0, errors.Wrap(ErrInvalidData, "minf list did not end exactly")
	}
	return size, nil
}

// readFixedAtom validates and consumes a fixed-size atom body without
// decoding its fields, for the media-header atoms whose contents this
// demuxer does not need.
func readFixedAtom(r *reader, size int64, want int64, name string) (int64, error) {
	if size != want {
		return 0, errors.Wrapf(ErrInvalidData, "%s: unexpected size %d", name, size)
	}
	if err := r.skip(size); err != nil {
		return 0, err
	}
	return size, nil
}

func (t *Track) readStbl(r *reader, size int64) (int64, error) {
	listEnd := tell(r) + size
	for tell(r) < listEnd {
		ctype, csize, err := readChunkHeader(r)
		if err != nil {
			break
		}
		if tell(r)+csize > listEnd {
			break
		}
		var readSize int64
		switch ctype {
		case tag("stsd"):
			readSize, err = t.readStsd(r, csize)
		case tag("stts"), tag("stsh"):
			readSize = 0
		case tag("stss"):
			readSize, err = t.readStss(r, csize)
		case tag("stsc"):
			readSize, err = t.readStsc(r, csize)
		case tag("stsz"):
			readSize, err = t.readStsz(r, csize)
		case tag("stco"):
			readSize, err = t.readStco(r, csize)
		default:
			readSize = 0
		}
		if err != nil {
			return 0, err
		}
		if readSize > csize {
			return 0, errors.Wrap(ErrInvalidData, "stbl handler overread")
		}
		if err := r.skip(csize - readSize); err != nil {
			return 0, err
		}
	}
	if tell(r) != listEnd {
		return 0, errors.Wrap(ErrInvalidData, "stbl list did not end exactly")
	}
	return size, nil
}

const knownStsdSize = 24

func (t *Track) readStsd(r *reader, size int64) (int64, error) {
	if size < knownStsdSize {
		return 0, ErrInvalidData
	}
	if _, err := r.readByte(); err != nil { // version
		return 0, err
	}
	if _, err := r.readU24be(); err != nil { // flags
		return 0, err
	}
	entries, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if entries == 0 {
		return 0, ErrInvalidData
	}
	esize, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	fcc, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	t.fcc = fcc
	read := int64(16)

	switch t.streamType {
	case media.StreamVideo:
		if _, err := r.readU16be(); err != nil { // version
			return 0, err
		}
		if _, err := r.readU16be(); err != nil { // revision
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // vendor
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // temporal quality
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // spatial quality
			return 0, err
		}
		width, err := r.readU16be()
		if err != nil {
			return 0, err
		}
		height, err := r.readU16be()
		if err != nil {
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // horiz resolution
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // vert resolution
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // data size
			return 0, err
		}
		if _, err := r.readU16be(); err != nil { // frame count
			return 0, err
		}
		if err := r.skip(32); err != nil { // compressor name
			return 0, err
		}
		depth, err := r.readU16be()
		if err != nil {
			return 0, err
		}
		ctableID, err := r.readU16be()
		if err != nil {
			return 0, err
		}
		read += 2 + 2 + 4 + 4 + 4 + 2 + 2 + 4 + 4 + 4 + 2 + 32 + 2 + 2
		t.width = int(width)
		t.height = int(height)
		t.bits = int(depth)
		if ctableID == 0 {
			palSize := esize - uint32(read) - 8
			if int64(palSize)+8 <= size-read {
				pal, n, err := readPalette(r, int64(palSize)+8)
				if err != nil {
					return 0, err
				}
				t.pal = &pal
				read += n
			}
		}
		t.stream = &media.Stream{
			ID:    t.trackID,
			Kind:  media.StreamVideo,
			TBNum: 1,
			TBDen: t.tbDen,
			Info: media.CodecInfo{
				Name: fourccName(fcc),
				TypeInfo: media.VideoInfo{
					Width:  t.width,
					Height: t.height,
				},
			},
		}
	case media.StreamAudio:
		if _, err := r.readU16be(); err != nil { // version
			return 0, err
		}
		if _, err := r.readU16be(); err != nil { // revision
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // vendor
			return 0, err
		}
		channels, err := r.readU16be()
		if err != nil {
			return 0, err
		}
		sampleSize, err := r.readU16be()
		if err != nil {
			return 0, err
		}
		if _, err := r.readU16be(); err != nil { // compression id
			return 0, err
		}
		if _, err := r.readU16be(); err != nil { // packet size
			return 0, err
		}
		sampleRate, err := r.readU32be()
		if err != nil {
			return 0, err
		}
		read += 2 + 2 + 4 + 2 + 2 + 2 + 2 + 4
		t.channels = int(channels)
		t.bits = int(sampleSize)
		t.stream = &media.Stream{
			ID:    t.trackID,
			Kind:  media.StreamAudio,
			TBNum: 1,
			TBDen: sampleRate >> 16,
			Info: media.CodecInfo{
				Name: fourccName(fcc),
			},
		}
	default:
		t.stream = &media.Stream{ID: t.trackID, Kind: media.StreamData}
	}

	if read < size {
		extra := make([]byte, size-read)
		if err := r.readFull(extra); err != nil {
			return 0, err
		}
		if t.stream != nil {
			t.stream.Info.ExtraData = extra
		}
		read = size
	}
	t.stsdFound = true
	return read, nil
}

// fourccName renders a packed fourcc tag as its ASCII string, used as the
// stable codec name in media.CodecInfo.
func fourccName(fcc uint32) string {
	b := []byte{byte(fcc >> 24), byte(fcc >> 16), byte(fcc >> 8), byte(fcc)}
	return string(b)
}

func (t *Track) readStss(r *reader, size int64) (int64, error) {
	if _, err := r.readByte(); err != nil { // version
		return 0, err
	}
	if _, err := r.readU24be(); err != nil { // flags
		return 0, err
	}
	entries, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if int64(entries)*4+8 != size {
		return 0, ErrInvalidData
	}
	keyframes := make([]uint32, entries)
	var prev uint32
	for i := range keyframes {
		v, err := r.readU32be()
		if err != nil {
			return 0, err
		}
		if i > 0 && v <= prev {
			return 0, ErrInvalidData
		}
		keyframes[i] = v
		prev = v
	}
	t.keyframes = keyframes
	return size, nil
}

func (t *Track) readStsc(r *reader, size int64) (int64, error) {
	if _, err := r.readByte(); err != nil {
		return 0, err
	}
	if _, err := r.readU24be(); err != nil {
		return 0, err
	}
	entries, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if int64(entries)*12+8 != size {
		return 0, ErrInvalidData
	}
	sm := make([]sampleMapEntry, entries)
	for i := range sm {
		first, err := r.readU32be()
		if err != nil {
			return 0, err
		}
		spc, err := r.readU32be()
		if err != nil {
			return 0, err
		}
		if _, err := r.readU32be(); err != nil { // sample description index
			return 0, err
		}
		sm[i] = sampleMapEntry{firstChunk: first, samplesPerChunk: spc}
	}
	t.sampleMap = sm
	return size, nil
}

func (t *Track) readStsz(r *reader, size int64) (int64, error) {
	if _, err := r.readByte(); err != nil {
		return 0, err
	}
	if _, err := r.readU24be(); err != nil {
		return 0, err
	}
	sampleSize, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	entries, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if sampleSize != 0 {
		if size != 12 {
			return 0, ErrInvalidData
		}
		t.sampleSize = sampleSize
		return size, nil
	}
	if int64(entries)*4+12 != size {
		return 0, ErrInvalidData
	}
	sizes := make([]uint32, entries)
	for i := range sizes {
		v, err := r.readU32be()
		if err != nil {
			return 0, err
		}
		sizes[i] = v
	}
	t.chunkSizes = sizes
	return size, nil
}

func (t *Track) readStco(r *reader, size int64) (int64, error) {
	if _, err := r.readByte(); err != nil {
		return 0, err
	}
	if _, err := r.readU24be(); err != nil {
		return 0, err
	}
	entries, err := r.readU32be()
	if err != nil {
		return 0, err
	}
	if int64(entries)*4+8 != size {
		return 0, ErrInvalidData
	}
	offs := make([]uint64, entries)
	for i := range offs {
		v, err := r.readU32be()
		if err != nil {
			return 0, err
		}
		offs[i] = uint64(v)
	}
	t.chunkOffsets = offs
	return size, nil
}

// calculateChunkSize derives the byte size of nsamp consecutive samples in
// a sampleMap-driven (samples-per-chunk) audio track, keyed by fourcc, for
// the compressed formats whose per-sample size is computed rather than
// looked up in stsz.
func (t *Track) calculateChunkSize(nsamp uint32) uint32 {
	ch := uint32(t.channels)
	if ch == 0 {
		ch = 1
	}
	switch t.fcc {
	case 0, tag("raw "), tag("twos"), tag("sowt"):
		return (nsamp*uint32(t.bits)*ch + 7) >> 3
	case tag("ima4"):
		return ((nsamp + 63) >> 6) * 34 * ch
	case tag("MAC3"):
		return (nsamp + 5) / 6 * 2 * ch
	case tag("MAC6"):
		return (nsamp + 5) / 6 * ch
	case tag("in24"):
		return nsamp * 3 * ch
	case tag("in32"), tag("fl32"):
		return nsamp * 4 * ch
	case tag("fl64"):
		return nsamp * 8 * ch
	case tag("ulaw"), tag("alaw"):
		return nsamp
	case 0x6D730002: // "ms\x00\x02" MS ADPCM
		return ((nsamp-1)/2 + 7) * ch
	case 0x6D730021: // "ms\x00\x21" IMA ADPCM
		return (nsamp/2 + 4) * ch
	default:
		return t.sampleSize
	}
}

// fillSeekIndex derives seek-index entries from this track's keyframe list,
// mapping each keyframe's 1-based sample number to its chunk offset.
func (t *Track) fillSeekIndex() []SeekEntry {
	if len(t.keyframes) == 0 || t.stream == nil {
		return nil
	}
	var entries []SeekEntry
	for _, kf := range t.keyframes {
		idx := int(kf - 1)
		if idx < 0 || idx >= len(t.chunkOffsets) {
			continue
		}
		pts := uint64(kf - 1)
		entries = append(entries, SeekEntry{
			TrackNo: t.trackNo,
			TimeMS:  t.stream.TimeMS(int64(pts)),
			PTS:     pts,
			Pos:     int64(t.chunkOffsets[idx]),
		})
	}
	return entries
}

// getNextChunk returns the next sample's (pts, offset, size), advancing the
// iteration cursor. The two iteration modes mirror the on-disk duality: a
// flat one-to-one chunk_offsets/chunk_sizes mapping, or a sampleMap-driven
// (samples-per-chunk) mapping requiring per-sample-size arithmetic.
func (t *Track) getNextChunk() (pts uint64, offset int64, size uint32, ok bool) {
	if len(t.chunkOffsets) > 0 && len(t.chunkOffsets) == len(t.chunkSizes) {
		if t.curChunk >= len(t.chunkOffsets) {
			return 0, 0, 0, false
		}
		pts = t.curSample
		offset = int64(t.chunkOffsets[t.curChunk])
		size = t.chunkSizes[t.curChunk]
		t.curChunk++
		t.curSample++
		return pts, offset, size, true
	}
	if len(t.sampleMap) == 0 || len(t.chunkOffsets) == 0 {
		return 0, 0, 0, false
	}
	if t.samplesLeft == 0 {
		if t.curChunk >= len(t.chunkOffsets) {
			return 0, 0, 0, false
		}
		t.samplesLeft = int(samplesPerChunkAt(t.sampleMap, uint32(t.curChunk+1)))
		t.lastOffset = t.chunkOffsets[t.curChunk]
		if t.samplesLeft == 0 {
			t.curChunk++
			return t.getNextChunk()
		}
	}
	nsamp := uint32(1)
	if t.sampleSize != 0 {
		size = t.sampleSize
	} else if t.fcc != 0 {
		size = t.calculateChunkSize(nsamp)
	} else if t.curChunk < len(t.chunkSizes) {
		size = t.chunkSizes[t.curChunk]
	}
	pts = t.curSample
	offset = int64(t.lastOffset)
	t.lastOffset += uint64(size)
	t.curSample++
	t.samplesLeft--
	if t.samplesLeft == 0 {
		t.curChunk++
	}
	return pts, offset, size, true
}

// samplesPerChunkAt resolves the samples-per-chunk run covering the given
// 1-based chunk index from the stsc run table.
func samplesPerChunkAt(sm []sampleMapEntry, chunkNo uint32) uint32 {
	var spc uint32
	for i, e := range sm {
		if e.firstChunk > chunkNo {
			break
		}
		spc = e.samplesPerChunk
		_ = i
	}
	return spc
}

// getSize returns the total sample count this track will iterate, used by
// callers that need to pre-size buffers. It is known only for the flat
// chunkOffsets/chunkSizes layout; sampleMap-driven tracks return -1.
func (t *Track) getSize() int {
	if len(t.chunkOffsets) > 0 && len(t.chunkOffsets) == len(t.chunkSizes) {
		return len(t.chunkOffsets)
	}
	return -1
}

// seek resets the iteration cursor to the sample whose pts is targetPTS,
// matching the reference's pts-based cursor reset (exact in both layouts:
// sampleMap-driven tracks advance within the chunk to the target sample).
func (t *Track) seek(targetPTS uint64) {
	if len(t.chunkOffsets) > 0 && len(t.chunkOffsets) == len(t.chunkSizes) {
		idx := int(targetPTS)
		if idx < 0 {
			idx = 0
		}
		if idx > len(t.chunkOffsets) {
			idx = len(t.chunkOffsets)
		}
		t.curChunk = idx
		t.curSample = uint64(idx)
		return
	}
	// sampleMap-driven: find the chunk containing targetPTS by replaying
	// run lengths, since sample sizes for compressed audio are derived
	// rather than stored per-sample.
	var sample uint64
	for chunk := 0; chunk < len(t.chunkOffsets); chunk++ {
		spc := uint64(samplesPerChunkAt(t.sampleMap, uint32(chunk+1)))
		if sample+spc > targetPTS {
			t.curChunk = chunk
			t.curSample = sample
			t.samplesLeft = int(spc)
			t.lastOffset = t.chunkOffsets[chunk]
			// advance within the chunk to the exact sample
			for t.curSample < targetPTS && t.samplesLeft > 0 {
				sz := t.sampleSize
				if sz == 0 {
					sz = t.calculateChunkSize(1)
				}
				t.lastOffset += uint64(sz)
				t.curSample++
				t.samplesLeft--
			}
			return
		}
		sample += spc
	}
	t.curChunk = len(t.chunkOffsets)
	t.curSample = sample
	t.samplesLeft = 0
}
