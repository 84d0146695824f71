/*
DESCRIPTION
  mov_test.go exercises the atom walker and sample iterator against a
  hand-built minimal MOV file: one video track with a flat (one sample
  per chunk) chunk_offsets/chunk_sizes table. The
  "stsz with sample_size != 0" boundary case is covered separately by
  TestConstantSizeSamples.

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
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// atomBuilder assembles a big-endian MOV atom tree by hand, the same
// chunk-header format container/mov's readChunkHeader parses: 32-bit size,
// 32-bit tag, body.
type atomBuilder struct {
	buf bytes.Buffer
}

func u32be(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func u16be(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

// atom renders one chunk with the given 4-char tag and body.
func atom(tag string, body []byte) []byte {
	var out bytes.Buffer
	out.Write(u32be(uint32(len(body) + 8)))
	out.WriteString(tag)
	out.Write(body)
	return out.Bytes()
}

// mvhdBody builds a 100-byte mvhd body (version/flags/times/matrix/7
// trailing predefined fields) sufficient to satisfy readMvhd.
func mvhdBody(tscale, duration uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0)             // version
	b.Write([]byte{0, 0, 0})   // flags
	b.Write(u32be(0))          // ctime
	b.Write(u32be(0))          // mtime
	b.Write(u32be(tscale))     // time scale
	b.Write(u32be(duration))   // duration
	b.Write(u32be(0x00010000)) // preferred rate
	b.Write(u16be(0x0100))     // preferred volume
	b.Write(make([]byte, 10))  // reserved
	b.Write(make([]byte, 36))  // matrix
	for i := 0; i < 7; i++ {
		b.Write(u32be(0))
	}
	if b.Len() != 100 {
		panic("mvhdBody: wrong size")
	}
	return b.Bytes()
}

// tkhdBody builds an 84-byte tkhd body.
func tkhdBody(trackID uint32, width, height uint16) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(0)) // ctime
	b.Write(u32be(0)) // mtime
	b.Write(u32be(trackID))
	b.Write(make([]byte, 4)) // reserved
	b.Write(u32be(0))        // duration
	b.Write(make([]byte, 8)) // reserved
	b.Write(u16be(0))        // layer
	b.Write(u16be(0))        // alternate group
	b.Write(u16be(0))        // volume
	b.Write(make([]byte, 2)) // reserved
	b.Write(make([]byte, 36))
	b.Write(u32be(uint32(width) << 16))
	b.Write(u32be(uint32(height) << 16))
	if b.Len() != 84 {
		panic("tkhdBody: wrong size")
	}
	return b.Bytes()
}

// hdlrBody builds a 24-byte hdlr body selecting the "vide" component
// subtype.
func hdlrBody(subtype string) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(0)) // component type
	b.WriteString(subtype)
	b.Write(make([]byte, 12))
	if b.Len() != 24 {
		panic("hdlrBody: wrong size")
	}
	return b.Bytes()
}

// stsdVideoBody builds an 86-byte stsd body with a single video sample
// description entry and no palette (ctableID != 0).
func stsdVideoBody(fcc string, width, height uint16) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(1))  // entry count
	b.Write(u32be(78)) // entry size
	b.WriteString(fcc)
	b.Write(u16be(0)) // version
	b.Write(u16be(0)) // revision
	b.Write(u32be(0)) // vendor
	b.Write(u32be(0)) // temporal quality
	b.Write(u32be(0)) // spatial quality
	b.Write(u16be(width))
	b.Write(u16be(height))
	b.Write(u32be(0x00480000)) // horiz resolution
	b.Write(u32be(0x00480000)) // vert resolution
	b.Write(u32be(0))          // data size
	b.Write(u16be(1))          // frame count
	b.Write(make([]byte, 32))  // compressor name
	b.Write(u16be(24))         // depth
	b.Write(u16be(0xFFFF))     // color table id: no palette
	if b.Len() != 86 {
		panic("stsdVideoBody: wrong size")
	}
	return b.Bytes()
}

func stszBody(sizes []uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(0)) // sample size: 0 -> per-sample table follows
	b.Write(u32be(uint32(len(sizes))))
	for _, s := range sizes {
		b.Write(u32be(s))
	}
	return b.Bytes()
}

func stcoBody(offsets []uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(uint32(len(offsets))))
	for _, o := range offsets {
		b.Write(u32be(o))
	}
	return b.Bytes()
}

// stscBody builds a single-run stsc table: every chunk from chunk 1
// onward carries samplesPerChunk samples.
func stscBody(samplesPerChunk uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(1)) // one run
	b.Write(u32be(1)) // first_chunk
	b.Write(u32be(samplesPerChunk))
	b.Write(u32be(1)) // sample description index
	return b.Bytes()
}

// stszConstBody builds an stsz atom body declaring a fixed per-sample
// size (entries == 0, no per-sample size table follows).
func stszConstBody(sampleSize uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(sampleSize))
	b.Write(u32be(0)) // entries
	return b.Bytes()
}

func stssBody(keyframes []uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.Write([]byte{0, 0, 0})
	b.Write(u32be(uint32(len(keyframes))))
	for _, k := range keyframes {
		b.Write(u32be(k))
	}
	return b.Bytes()
}

// buildTrack assembles one trak atom for a video track with a flat
// (one-to-one) chunk_offsets/chunk_sizes sample table.
func buildTrack(trackID uint32, width, height uint16, sizes []uint32, offsets []uint32, keyframes []uint32) []byte {
	stsd := atom("stsd", stsdVideoBody("cvid", width, height))
	stsz := atom("stsz", stszBody(sizes))
	stco := atom("stco", stcoBody(offsets))
	var stblBody bytes.Buffer
	stblBody.Write(stsd)
	if len(keyframes) > 0 {
		stblBody.Write(atom("stss", stssBody(keyframes)))
	}
	stblBody.Write(stsz)
	stblBody.Write(stco)
	stbl := atom("stbl", stblBody.Bytes())

	minf := atom("minf", stbl)

	var mdiaBody bytes.Buffer
	mdiaBody.Write(atom("hdlr", hdlrBody("vide")))
	mdiaBody.Write(minf)
	mdia := atom("mdia", mdiaBody.Bytes())

	var trakBody bytes.Buffer
	trakBody.Write(atom("tkhd", tkhdBody(trackID, width, height)))
	trakBody.Write(mdia)
	return atom("trak", trakBody.Bytes())
}

// buildMOVFile lays out ftyp/moov/mdat with nTracks video tracks, each
// with the given number of fixed-size samples, back to back inside mdat.
// It returns the file bytes and, per track, the list of sample sizes
// used so callers can verify offsets/content.
func buildMOVFile(t *testing.T, trackSampleCounts []int) ([]byte, [][]byte) {
	t.Helper()

	ftyp := atom("ftyp", nil)

	// mdat payload: per-track, per-sample byte content, tagged so a test
	// can recognise which bytes came back out.
	var mdatBody bytes.Buffer
	var trackSizes [][]uint32
	var trackOffsets [][]uint32
	var trackData [][]byte
	headerLen := int64(len(ftyp))

	// moov's size isn't known until the traks (which embed per-track
	// stco offsets, which depend on mdat's absolute position) are built.
	// stco offsets are absolute file offsets, so build with a placeholder
	// moov size first to find mdat's start, exactly as a real encoder
	// would reserve space before backpatching - here we just compute it
	// directly since trak body sizes are deterministic.
	var traks [][]byte
	for ti, n := range trackSampleCounts {
		sizes := make([]uint32, n)
		data := make([]byte, 0, n*8)
		for i := 0; i < n; i++ {
			sz := uint32(8 + i)
			sizes[i] = sz
			sample := make([]byte, sz)
			for j := range sample {
				sample[j] = byte(ti*100 + i)
			}
			data = append(data, sample...)
		}
		trackSizes = append(trackSizes, sizes)
		trackData = append(trackData, data)
	}

	// First pass: build traks with offset 0 placeholders to measure moov
	// size, then rebuild with real offsets once mdat's start is known.
	placeholderOffsets := make([][]uint32, len(trackSampleCounts))
	for ti, sizes := range trackSizes {
		offs := make([]uint32, len(sizes))
		placeholderOffsets[ti] = offs
		traks = append(traks, buildTrack(uint32(ti+1), 64, 48, sizes, offs, []uint32{1}))
	}
	mvhd := atom("mvhd", mvhdBody(600, 0))
	var moovBody bytes.Buffer
	moovBody.Write(mvhd)
	for _, tr := range traks {
		moovBody.Write(tr)
	}
	moov := atom("moov", moovBody.Bytes())

	mdatHeaderLen := int64(8)
	mdatStart := headerLen + int64(len(moov)) + mdatHeaderLen

	cursor := uint32(mdatStart)
	for ti, sizes := range trackSizes {
		offs := make([]uint32, len(sizes))
		for i, sz := range sizes {
			offs[i] = cursor
			cursor += sz
		}
		trackOffsets = append(trackOffsets, offs)
		mdatBody.Write(trackData[ti])
	}

	traks = nil
	for ti, sizes := range trackSizes {
		traks = append(traks, buildTrack(uint32(ti+1), 64, 48, sizes, trackOffsets[ti], []uint32{1}))
	}
	moovBody.Reset()
	moovBody.Write(mvhd)
	for _, tr := range traks {
		moovBody.Write(tr)
	}
	moov = atom("moov", moovBody.Bytes())

	mdat := atom("mdat", mdatBody.Bytes())

	var file bytes.Buffer
	file.Write(ftyp)
	file.Write(moov)
	file.Write(mdat)

	return file.Bytes(), trackData
}

// buildConstSizeMOVFile lays out a single video track whose stsz declares
// a fixed sample_size (no per-sample chunkSizes table) and whose stsc
// declares one sample per chunk, matching the boundary case.
func buildConstSizeMOVFile(nSamples int, sampleSize uint32) ([]byte, []byte) {
	ftyp := atom("ftyp", nil)

	data := make([]byte, int(sampleSize)*nSamples)
	for i := range data {
		data[i] = byte(i)
	}

	offsets := make([]uint32, nSamples)

	buildTrak := func() []byte {
		stsd := atom("stsd", stsdVideoBody("raw ", 64, 48))
		stsc := atom("stsc", stscBody(1))
		stsz := atom("stsz", stszConstBody(sampleSize))
		stco := atom("stco", stcoBody(offsets))
		var stblBody bytes.Buffer
		stblBody.Write(stsd)
		stblBody.Write(stsc)
		stblBody.Write(stsz)
		stblBody.Write(stco)
		stbl := atom("stbl", stblBody.Bytes())
		minf := atom("minf", stbl)
		var mdiaBody bytes.Buffer
		mdiaBody.Write(atom("hdlr", hdlrBody("vide")))
		mdiaBody.Write(minf)
		mdia := atom("mdia", mdiaBody.Bytes())
		var trakBody bytes.Buffer
		trakBody.Write(atom("tkhd", tkhdBody(1, 64, 48)))
		trakBody.Write(mdia)
		return atom("trak", trakBody.Bytes())
	}

	mvhd := atom("mvhd", mvhdBody(600, 0))
	var moovBody bytes.Buffer
	moovBody.Write(mvhd)
	moovBody.Write(buildTrak())
	moov := atom("moov", moovBody.Bytes())

	mdatStart := uint32(len(ftyp) + len(moov) + 8)
	cur := mdatStart
	for i := range offsets {
		offsets[i] = cur
		cur += sampleSize
	}

	moovBody.Reset()
	moovBody.Write(mvhd)
	moovBody.Write(buildTrak())
	moov = atom("moov", moovBody.Bytes())

	mdat := atom("mdat", data)

	var file bytes.Buffer
	file.Write(ftyp)
	file.Write(moov)
	file.Write(mdat)
	return file.Bytes(), data
}

func newSeekReader(b []byte) io.ReadSeeker { return bytes.NewReader(b) }

func TestOpenAndStreams(t *testing.T) {
	fileBytes, _ := buildMOVFile(t, []int{3})

	d, err := New(newSeekReader(fileBytes), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	streams := d.Streams()
	if len(streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(streams))
	}
	if streams[0].Kind != 0 { // media.StreamVideo == 0
		t.Fatalf("stream kind = %v, want StreamVideo", streams[0].Kind)
	}
}

// TestSampleEnumeration covers a file with 3
// video tracks of 10/5/7 samples returning 22 packets in round-robin
// order, track 0 sample 0 first, then track 1 sample 0, then track 2
// sample 0, then track 0 sample 1, ... terminating with EOF.
func TestSampleEnumeration(t *testing.T) {
	counts := []int{10, 5, 7}
	fileBytes, trackData := buildMOVFile(t, counts)

	d, err := New(newSeekReader(fileBytes), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	type want struct {
		track, sample int
	}
	var order []want
	left := append([]int{}, counts...)
	for {
		any := false
		for ti := range counts {
			if left[ti] > 0 {
				order = append(order, want{ti, counts[ti] - left[ti]})
				left[ti]--
				any = true
			}
		}
		if !any {
			break
		}
	}
	if len(order) != 22 {
		t.Fatalf("expected order len 22, got %d", len(order))
	}

	// running offsets into each track's sample data for content checks.
	sizeOf := func(track, sample int) uint32 { return uint32(8 + sample) }
	offsetOf := func(track, sample int) int {
		off := 0
		for i := 0; i < sample; i++ {
			off += int(sizeOf(track, i))
		}
		return off
	}

	for i, w := range order {
		pkt, err := d.GetFrame()
		if err != nil {
			t.Fatalf("packet %d: GetFrame: %v", i, err)
		}
		if pkt.StreamID != w.track+1 {
			t.Fatalf("packet %d: track = %d, want %d", i, pkt.StreamID, w.track+1)
		}
		wantSize := int(sizeOf(w.track, w.sample))
		if len(pkt.Data) != wantSize {
			t.Fatalf("packet %d: size = %d, want %d", i, len(pkt.Data), wantSize)
		}
		off := offsetOf(w.track, w.sample)
		want := trackData[w.track][off : off+wantSize]
		if !bytes.Equal(pkt.Data, want) {
			t.Fatalf("packet %d: content mismatch for track %d sample %d", i, w.track, w.sample)
		}
	}

	if _, err := d.GetFrame(); err != ErrEOF {
		t.Fatalf("final GetFrame: got %v, want ErrEOF", err)
	}
}

// TestConstantSizeSamples covers the boundary case: an stsz
// with sample_size != 0 (so chunkSizes is empty) driven by an stsc
// table of one sample per chunk must still iterate every constant-size
// sample correctly.
func TestConstantSizeSamples(t *testing.T) {
	const n, sz = 4, 16
	fileBytes, data := buildConstSizeMOVFile(n, sz)
	d, err := New(newSeekReader(fileBytes), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	var got []byte
	for i := 0; i < n; i++ {
		pkt, err := d.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame %d: %v", i, err)
		}
		if len(pkt.Data) != sz {
			t.Fatalf("GetFrame %d: size = %d, want %d", i, len(pkt.Data), sz)
		}
		got = append(got, pkt.Data...)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("concatenated sample data mismatch")
	}
	if _, err := d.GetFrame(); err != ErrEOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
