package bmff

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// Box is a node in a decoded ISOBMFF box tree. Children preserves the
// on-disk sibling order. Exactly one of the typed payload fields below
// is non-nil for a recognised box kind; Raw carries the verbatim payload
// (header excluded) for anything this package does not interpret, so
// unknown box kinds round-trip byte for byte. Recognised kinds are
// re-encoded from their typed fields only: fields those do not carry
// (creation times, matrices, the contents of vmhd/smhd/dref, sample-entry
// children other than avcC/hvcC/esds) come out in canonical form, so a
// decoded tree is not in general re-encoded byte for byte.
type Box struct {
	Type       BoxType
	Size       int64
	HasFullBox bool
	Version    uint8
	Flags      uint32
	Children   []*Box
	Raw        []byte

	Ftyp   *FtypBox
	Mvhd   *MvhdBox
	Tkhd   *TkhdBox
	Mdhd   *MdhdBox
	Hdlr   *HdlrBox
	Dref   *DrefBox
	Stsd   *StsdBox
	Sample *SampleEntry
	Stsz   *StszBox
	Stco   *StcoBox
	Co64   *Co64Box
	Stss   *StssBox
	Stts   *SttsBox
	Ctts   *CttsBox
	Stsc   *StscBox
	Elst   *ElstBox
	Mehd   *MehdBox
	Trex   *TrexBox
	Mfhd   *MfhdBox
	Tfhd   *TfhdBox
	Tfdt   *TfdtBox
	Trun   *TrunBox
	Sidx   *SidxBox
	AvcC   *AvcCBox
	HvcC   *HvcCBox
	Esds   *EsdsBox
	Mdat   *MdatBox
}

// Child returns the first child of the given type, or nil.
func (b *Box) Child(t BoxType) *Box {
	for _, c := range b.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildList returns every child of the given type, in source order.
func (b *Box) ChildList(t BoxType) []*Box {
	var out []*Box
	for _, c := range b.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Decode parses a single box (and its full subtree) starting at
// buf[start], expecting the box to end at or before end. The returned
// Box.Size reports how many bytes the box occupied; callers decoding a
// sequence of sibling boxes advance start by that amount and call Decode
// again. Decode requires the box's declared content to be wholly present
// in buf — it is not suitable for scanning a file's top-level layout
// without first loading the box, which is what Scanner is for.
func Decode(buf []byte, start, end int) (*Box, error) {
	if start < 0 || end > len(buf) || start >= end {
		return nil, newError(Malformed, fmt.Errorf("invalid range [%d:%d) in %d-byte buffer", start, end, len(buf)))
	}
	r := newBoxReader(buf[start:end])
	if !r.Next() {
		return nil, newError(Malformed, fmt.Errorf("truncated box header at offset %d", start))
	}
	return decodeCurrent(&r, start)
}

// DecodeAll decodes every sibling box in buf[start:end], in order.
func DecodeAll(buf []byte, start, end int) ([]*Box, error) {
	var boxes []*Box
	ptr := start
	for ptr < end {
		b, err := Decode(buf, ptr, end)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
		if b.Size <= 0 {
			return nil, newError(Malformed, fmt.Errorf("box at offset %d has non-positive size", ptr))
		}
		ptr += int(b.Size)
	}
	return boxes, nil
}

func decodeCurrent(r *boxReader, base int) (*Box, error) {
	t := r.Type()
	box := &Box{
		Type:       t,
		Size:       int64(r.Size()),
		HasFullBox: IsFullBox(t),
		Version:    r.Version(),
		Flags:      r.Flags(),
	}

	switch t {
	case TypeMdat:
		box.Mdat = &MdatBox{
			ByteOffset: int64(base) + int64(r.DataOffset()),
			ByteSize:   box.Size - int64(r.HeaderSize()),
		}
		return box, nil
	case TypeFtyp, TypeStyp:
		info := readFtyp(r.Data())
		box.Ftyp = &FtypBox{MajorBrand: info.MajorBrand, MinorVersion: info.MinorVersion, CompatibleBrands: info.Compatible}
		return box, nil
	case TypeMvhd:
		ts, dur, next := r.ReadMvhd()
		box.Mvhd = &MvhdBox{Timescale: ts, Duration: dur, NextTrackId: next}
		return box, nil
	case TypeTkhd:
		id, dur, w, h := r.ReadTkhd()
		box.Tkhd = &TkhdBox{Flags: r.Flags(), TrackId: id, Duration: dur, Width: w, Height: h}
		return box, nil
	case TypeMdhd:
		ts, dur, lang := r.ReadMdhd()
		box.Mdhd = &MdhdBox{Timescale: ts, Duration: dur, Language: lang}
		return box, nil
	case TypeHdlr:
		ht := r.ReadHdlr()
		box.Hdlr = &HdlrBox{HandlerType: ht, Name: r.ReadHdlrName()}
		return box, nil
	case TypeVmhd, TypeSmhd:
		// Fixed-content leaves; Encode regenerates them canonically.
		return box, nil
	case TypeMehd:
		box.Mehd = &MehdBox{FragmentDuration: r.ReadMehd()}
		return box, nil
	case TypeTrex:
		id, descIdx, dur, size, flags := r.ReadTrex()
		box.Trex = &TrexBox{TrackId: id, DefaultSampleDescriptionIndex: descIdx, DefaultSampleDuration: dur, DefaultSampleSize: size, DefaultSampleFlags: flags}
		return box, nil
	case TypeMfhd:
		box.Mfhd = &MfhdBox{SequenceNumber: r.ReadMfhd()}
		return box, nil
	case TypeTfhd:
		box.Tfhd = decodeTfhd(r.Flags(), r.ReadTfhd(), r.Data())
		return box, nil
	case TypeTfdt:
		box.Tfdt = &TfdtBox{BaseMediaDecodeTime: r.ReadTfdt()}
		return box, nil
	case TypeTrun:
		box.Trun = decodeTrun(r.Flags(), r.Data())
		return box, nil
	case TypeStsz:
		box.Stsz = decodeStsz(r.Data())
		return box, nil
	case TypeStco:
		box.Stco = &StcoBox{Entries: collectUint32(r.Data())}
		return box, nil
	case TypeCo64:
		box.Co64 = decodeCo64(r.Data())
		return box, nil
	case TypeStss:
		box.Stss = &StssBox{Entries: collectUint32(r.Data())}
		return box, nil
	case TypeStts:
		box.Stts = decodeStts(r.Data())
		return box, nil
	case TypeCtts:
		box.Ctts = decodeCtts(r.Data(), r.Version())
		return box, nil
	case TypeStsc:
		box.Stsc = decodeStsc(r.Data())
		return box, nil
	case TypeElst:
		box.Elst = decodeElst(r.Data(), r.Version())
		return box, nil
	case TypeSidx:
		box.Sidx = decodeSidx(r.Data())
		return box, nil
	case TypeAvcC:
		box.AvcC = &AvcCBox{ProfileLevel: readAvcCCodec(r.Data()), Raw: cloneBytes(r.Data())}
		return box, nil
	case TypeHvcC:
		box.HvcC = &HvcCBox{Raw: cloneBytes(r.Data())}
		return box, nil
	case TypeEsds:
		box.Esds = &EsdsBox{Codec: readEsdsCodec(r.Data()), Raw: cloneBytes(r.Data())}
		return box, nil
	case TypeStsd:
		return decodeStsd(r, base, box)
	case TypeDref:
		return decodeDref(r, base, box)
	case TypeAvc1, TypeHvc1:
		return decodeVisualSampleEntry(r, base, box)
	case TypeMp4a:
		return decodeAudioSampleEntry(r, base, box)
	case TypeTx3g:
		return decodeTx3gSampleEntry(r, base, box)
	}

	if IsContainerBox(t) {
		children, err := decodeChildren(r, base)
		if err != nil {
			return nil, err
		}
		box.Children = children
		return box, nil
	}

	box.Raw = cloneBytes(r.Data())
	return box, nil
}

func decodeChildren(r *boxReader, base int) ([]*Box, error) {
	r.Enter()
	var children []*Box
	for r.Next() {
		c, err := decodeCurrent(r, base)
		if err != nil {
			r.Exit()
			return nil, err
		}
		children = append(children, c)
	}
	r.Exit()
	return children, nil
}

func decodeStsd(r *boxReader, base int, box *Box) (*Box, error) {
	box.Stsd = &StsdBox{EntryCount: r.EntryCount()}
	r.Enter()
	r.Skip(4)
	var children []*Box
	for r.Next() {
		c, err := decodeCurrent(r, base)
		if err != nil {
			r.Exit()
			return nil, err
		}
		children = append(children, c)
	}
	r.Exit()
	box.Children = children
	return box, nil
}

func decodeDref(r *boxReader, base int, box *Box) (*Box, error) {
	box.Dref = &DrefBox{EntryCount: r.EntryCount()}
	r.Enter()
	r.Skip(4)
	var children []*Box
	for r.Next() {
		c, err := decodeCurrent(r, base)
		if err != nil {
			r.Exit()
			return nil, err
		}
		children = append(children, c)
	}
	r.Exit()
	box.Children = children
	return box, nil
}

func decodeVisualSampleEntry(r *boxReader, base int, box *Box) (*Box, error) {
	data := r.Data()
	v := readVisualSampleEntry(data)
	box.Sample = &SampleEntry{
		DataReferenceIndex: v.DataReferenceIndex,
		Width:              v.Width,
		Height:             v.Height,
		HResolution:        v.HResolution,
		VResolution:        v.VResolution,
		FrameCount:         v.FrameCount,
		CompressorName:     v.CompressorName,
		Depth:              v.Depth,
	}
	r.Enter()
	r.Skip(v.ChildOffset)
	var children []*Box
	for r.Next() {
		c, err := decodeCurrent(r, base)
		if err != nil {
			r.Exit()
			return nil, err
		}
		if c.AvcC != nil {
			box.Sample.AvcC = c.AvcC
		}
		if c.HvcC != nil {
			box.Sample.HvcC = c.HvcC
		}
		children = append(children, c)
	}
	r.Exit()
	box.Children = children
	return box, nil
}

func decodeAudioSampleEntry(r *boxReader, base int, box *Box) (*Box, error) {
	data := r.Data()
	a := readAudioSampleEntry(data)
	box.Sample = &SampleEntry{
		DataReferenceIndex: a.DataReferenceIndex,
		ChannelCount:       a.ChannelCount,
		SampleSize:         a.SampleSize,
		SampleRate:         a.SampleRate,
	}
	r.Enter()
	r.Skip(a.ChildOffset)
	var children []*Box
	for r.Next() {
		c, err := decodeCurrent(r, base)
		if err != nil {
			r.Exit()
			return nil, err
		}
		if c.Esds != nil {
			box.Sample.Esds = c.Esds
		}
		children = append(children, c)
	}
	r.Exit()
	box.Children = children
	return box, nil
}

// tx3gFixedHeaderSize is the fixed portion of a tx3g sample entry before
// its optional child boxes (reserved+dataRefIdx+displayFlags+
// justification+textColor+defaultTextBox+fontStyleRecord = 38 bytes).
const tx3gFixedHeaderSize = 38

func decodeTx3gSampleEntry(r *boxReader, base int, box *Box) (*Box, error) {
	data := r.Data()
	var dataRefIdx uint16
	if len(data) >= 8 {
		dataRefIdx = be.Uint16(data[6:8])
	}
	box.Sample = &SampleEntry{
		DataReferenceIndex: dataRefIdx,
		Tx3g:               &Tx3gBox{Raw: cloneBytes(data)},
	}
	if len(data) <= tx3gFixedHeaderSize {
		return box, nil
	}
	r.Enter()
	r.Skip(tx3gFixedHeaderSize)
	var children []*Box
	for r.Next() {
		c, err := decodeCurrent(r, base)
		if err != nil {
			r.Exit()
			return nil, err
		}
		children = append(children, c)
	}
	r.Exit()
	box.Children = children
	return box, nil
}

func decodeTfhd(flags, trackId uint32, data []byte) *TfhdBox {
	tf := &TfhdBox{Flags: flags, TrackId: trackId}
	ptr := 4
	if flags&TfhdBaseDataOffsetPresent != 0 && ptr+8 <= len(data) {
		tf.BaseDataOffset = be.Uint64(data[ptr:])
		ptr += 8
	}
	if flags&TfhdSampleDescriptionIndexPresent != 0 && ptr+4 <= len(data) {
		tf.SampleDescriptionIndex = be.Uint32(data[ptr:])
		ptr += 4
	}
	if flags&TfhdDefaultSampleDurationPresent != 0 && ptr+4 <= len(data) {
		tf.DefaultSampleDuration = be.Uint32(data[ptr:])
		ptr += 4
	}
	if flags&TfhdDefaultSampleSizePresent != 0 && ptr+4 <= len(data) {
		tf.DefaultSampleSize = be.Uint32(data[ptr:])
		ptr += 4
	}
	if flags&TfhdDefaultSampleFlagsPresent != 0 && ptr+4 <= len(data) {
		tf.DefaultSampleFlags = be.Uint32(data[ptr:])
	}
	return tf
}

func decodeTrun(flags uint32, data []byte) *TrunBox {
	it := newTrunIter(data, flags)
	tr := &TrunBox{Flags: flags, DataOffset: it.DataOffset()}
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		tr.Entries = append(tr.Entries, e)
	}
	return tr
}

func decodeStsz(data []byte) *StszBox {
	it := newStszIter(data)
	s := &StszBox{SampleCount: it.Count()}
	if len(data) >= 4 {
		s.SampleSize = be.Uint32(data[0:4])
	}
	if s.SampleSize == 0 {
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			s.Entries = append(s.Entries, v)
		}
	}
	return s
}

func decodeCo64(data []byte) *Co64Box {
	it := newCo64Iter(data)
	c := &Co64Box{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		c.Entries = append(c.Entries, v)
	}
	return c
}

func decodeStts(data []byte) *SttsBox {
	it := newSttsIter(data)
	s := &SttsBox{}
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, e)
	}
	return s
}

func decodeCtts(data []byte, version uint8) *CttsBox {
	it := newCttsIter(data, version)
	c := &CttsBox{}
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		c.Entries = append(c.Entries, e)
	}
	return c
}

func decodeStsc(data []byte) *StscBox {
	it := newStscIter(data)
	s := &StscBox{}
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, e)
	}
	return s
}

func decodeElst(data []byte, version uint8) *ElstBox {
	it := newElstIter(data, version)
	e := &ElstBox{}
	for {
		entry, ok := it.Next()
		if !ok {
			break
		}
		e.Entries = append(e.Entries, entry)
	}
	return e
}

func decodeSidx(data []byte) *SidxBox {
	if len(data) < 28 {
		return &SidxBox{}
	}
	s := &SidxBox{
		ReferenceId: be.Uint32(data[0:4]),
		Timescale:   be.Uint32(data[4:8]),
	}
	// version is not threaded through here; the writer always emits v1
	// (64-bit times), and every sidx this package decodes was produced
	// by the same writer, so v1 layout is assumed.
	s.EarliestPresentationTime = be.Uint64(data[8:16])
	s.FirstOffset = be.Uint64(data[16:24])
	refCount := be.Uint16(data[26:28])
	ptr := 28
	for i := 0; i < int(refCount); i++ {
		if ptr+12 > len(data) {
			break
		}
		word0 := be.Uint32(data[ptr:])
		word1 := be.Uint32(data[ptr+4:])
		word2 := be.Uint32(data[ptr+8:])
		s.Entries = append(s.Entries, SidxEntry{
			ReferenceType:  word0&0x80000000 != 0,
			ReferencedSize: word0 & 0x7fffffff,
			SubsegDuration: word1,
			StartsWithSAP:  word2&0x80000000 != 0,
			SAPType:        uint8(word2 >> 28),
		})
		ptr += 12
	}
	return s
}

func collectUint32(data []byte) []uint32 {
	it := newUint32Iter(data)
	var out []uint32
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// maxDepth limits the box reader's nesting stack.
const maxDepth = 16

// boxReaderFrame stores parent state when entering a container box.
type boxReaderFrame struct {
	end    int // parent's iteration end boundary
	boxEnd int // position to resume after exiting this container
}

// boxReader provides streaming, single-pass parsing of a flat run of
// ISOBMFF boxes, used by decodeCurrent to walk a buffer already known to
// hold one complete box tree (see Scanner for locating that buffer in
// the first place, when the file's overall layout isn't known yet).
type boxReader struct {
	buf []byte
	pos int // next position to parse from
	end int // iteration end boundary

	// Current box state
	boxType   BoxType
	boxSize   uint64
	boxStart  int
	boxEnd    int
	dataStart int

	// Full box fields
	version uint8
	flags   uint32

	// Nesting stack
	stack [maxDepth]boxReaderFrame
	depth int
}

// newBoxReader creates a boxReader for the given buffer.
func newBoxReader(buf []byte) boxReader {
	return boxReader{
		buf: buf,
		end: len(buf),
	}
}

// Next advances to the next sibling box. Returns false if no more boxes.
func (r *boxReader) Next() bool {
	// Skip past current box
	if r.boxEnd > r.pos {
		r.pos = r.boxEnd
	}

	if r.end-r.pos < 8 {
		return false
	}

	r.boxStart = r.pos
	size := uint64(be.Uint32(r.buf[r.pos:]))
	copy(r.boxType[:], r.buf[r.pos+4:r.pos+8])
	ptr := r.pos + 8

	// Extended size
	if size == 1 {
		if r.end-r.pos < 16 {
			return false
		}
		size = be.Uint64(r.buf[ptr:])
		ptr += 8
	}

	// Size 0 means box extends to end of data
	if size == 0 {
		size = uint64(r.end - r.pos)
	}

	r.boxSize = size
	r.boxEnd = r.boxStart + int(size)

	if r.boxEnd > r.end {
		return false
	}

	// Parse full box header if applicable
	if IsFullBox(r.boxType) {
		if r.boxEnd-ptr < 4 {
			return false
		}
		vf := be.Uint32(r.buf[ptr:])
		r.version = uint8(vf >> 24)
		r.flags = vf & 0x00ffffff
		ptr += 4
	} else {
		r.version = 0
		r.flags = 0
	}

	r.dataStart = ptr
	return true
}

// Type returns the current box's type.
func (r *boxReader) Type() BoxType { return r.boxType }

// Size returns the current box's total size including header.
func (r *boxReader) Size() uint64 { return r.boxSize }

// Version returns the version field for full boxes.
func (r *boxReader) Version() uint8 { return r.version }

// Flags returns the flags field for full boxes.
func (r *boxReader) Flags() uint32 { return r.flags }

// DataOffset returns the byte offset where the current box's data begins.
func (r *boxReader) DataOffset() int { return r.dataStart }

// HeaderSize returns the size of the current box's header in bytes.
func (r *boxReader) HeaderSize() int { return r.dataStart - r.boxStart }

// Data returns the current box's data (after all headers).
// Note that, the returned slice points into the original buffer.
func (r *boxReader) Data() []byte {
	return r.buf[r.dataStart:r.boxEnd]
}

// Enter descends into the current container box to iterate its children.
// After Enter, call Next to advance to the first child box.
// Call Exit when done to return to the parent level.
//
// For boxes like stsd or dref that have an entry count before child boxes,
// call Skip(4) after Enter to skip past the count field.
//
// For sample entry boxes like avc1 (78 bytes) or mp4a (28 bytes),
// call Skip with the fixed header size after Enter to reach child boxes.
func (r *boxReader) Enter() {
	r.stack[r.depth] = boxReaderFrame{
		end:    r.end,
		boxEnd: r.boxEnd,
	}
	r.depth++
	r.end = r.boxEnd
	r.pos = r.dataStart
	r.boxEnd = r.dataStart // prevent Next from skipping
}

// Exit returns to the parent container level.
// After Exit, the next call to Next will advance to the next sibling.
func (r *boxReader) Exit() {
	r.depth--
	f := r.stack[r.depth]
	r.end = f.end
	r.pos = f.boxEnd
	r.boxEnd = f.boxEnd
}

// Skip advances the data position by n bytes within the current container.
// Use after Enter to skip fixed-size headers before child boxes.
func (r *boxReader) Skip(n int) {
	r.pos += n
	r.boxEnd = r.pos
}

// EntryCount reads the uint32 entry count at the start of box data.
// Used for boxes like stsd and dref that begin with a count field.
func (r *boxReader) EntryCount() uint32 {
	data := r.Data()
	return be.Uint32(data[0:4])
}

// ReadMvhd extracts key fields from an mvhd box.
// Returns timescale, duration, and nextTrackId.
func (r *boxReader) ReadMvhd() (timescale uint32, duration uint64, nextTrackId uint32) {
	data := r.Data()
	version := r.Version()
	if version == 1 {
		// v1: ctime(8)+mtime(8)+timescale(4)+duration(8)+rate(4)+volume(2)+reserved(10)+matrix(36)+predefined(24)+nextTrackId(4) = 108
		timescale = be.Uint32(data[16:20])
		duration = be.Uint64(data[20:28])
		nextTrackId = be.Uint32(data[104:108])
	} else {
		// v0: ctime(4)+mtime(4)+timescale(4)+duration(4)+rate(4)+volume(2)+reserved(10)+matrix(36)+predefined(24)+nextTrackId(4) = 96
		timescale = be.Uint32(data[8:12])
		duration = uint64(be.Uint32(data[12:16]))
		nextTrackId = be.Uint32(data[92:96])
	}
	return
}

// ReadTkhd extracts key fields from a tkhd box.
// Returns trackId, duration, width, height.
// Width and height are 16.16 fixed-point values; shift right by 16 for pixels.
func (r *boxReader) ReadTkhd() (trackId uint32, duration uint64, width, height uint32) {
	data := r.Data()
	version := r.Version()
	if version == 1 {
		// v1: ctime(8)+mtime(8)+trackId(4)+reserved(4)+duration(8)
		trackId = be.Uint32(data[16:20])
		duration = be.Uint64(data[24:32])
		// +reserved(8)+layer(2)+altGroup(2)+volume(2)+reserved(2)+matrix(36)+width(4)+height(4)
		width = be.Uint32(data[84:88])
		height = be.Uint32(data[88:92])
	} else {
		// v0: ctime(4)+mtime(4)+trackId(4)+reserved(4)+duration(4)
		trackId = be.Uint32(data[8:12])
		duration = uint64(be.Uint32(data[16:20]))
		// +reserved(8)+layer(2)+altGroup(2)+volume(2)+reserved(2)+matrix(36)+width(4)+height(4)
		width = be.Uint32(data[72:76])
		height = be.Uint32(data[76:80])
	}
	return
}

// ReadMdhd extracts key fields from an mdhd box.
// Returns timescale, duration, and language code.
func (r *boxReader) ReadMdhd() (timescale uint32, duration uint64, language uint16) {
	data := r.Data()
	version := r.Version()
	if version == 1 {
		// v1: ctime(8)+mtime(8)+timescale(4)+duration(8)+lang(2)+quality(2)
		timescale = be.Uint32(data[16:20])
		duration = be.Uint64(data[20:28])
		language = be.Uint16(data[28:30])
	} else {
		// v0: ctime(4)+mtime(4)+timescale(4)+duration(4)+lang(2)+quality(2)
		timescale = be.Uint32(data[8:12])
		duration = uint64(be.Uint32(data[12:16]))
		language = be.Uint16(data[16:18])
	}
	return
}

// ReadHdlr extracts the handler type from an hdlr box.
// Returns the 4-byte handler type string.
func (r *boxReader) ReadHdlr() [4]byte {
	data := r.Data()
	var t [4]byte
	copy(t[:], data[4:8])
	return t
}

// ReadHdlrName extracts the handler name from an hdlr box.
func (r *boxReader) ReadHdlrName() string {
	data := r.Data()
	if len(data) <= 20 {
		return ""
	}
	end := 20
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[20:end])
}

// ReadMehd extracts the fragment duration from an mehd box.
func (r *boxReader) ReadMehd() (fragmentDuration uint64) {
	data := r.Data()
	version := r.Version()
	if version == 1 {
		fragmentDuration = be.Uint64(data[0:8])
	} else {
		fragmentDuration = uint64(be.Uint32(data[0:4]))
	}
	return
}

// ReadTrex extracts fields from a trex box.
// Returns trackId, default sample description index, default sample duration,
// default sample size, and default sample flags.
func (r *boxReader) ReadTrex() (trackId, defSampleDescIdx, defSampleDuration, defSampleSize, defSampleFlags uint32) {
	data := r.Data()
	trackId = be.Uint32(data[0:4])
	defSampleDescIdx = be.Uint32(data[4:8])
	defSampleDuration = be.Uint32(data[8:12])
	defSampleSize = be.Uint32(data[12:16])
	defSampleFlags = be.Uint32(data[16:20])
	return
}

// ReadMfhd extracts the sequence number from an mfhd box.
func (r *boxReader) ReadMfhd() (sequenceNumber uint32) {
	data := r.Data()
	sequenceNumber = be.Uint32(data[0:4])
	return
}

// ReadTfhd extracts the track ID from a tfhd box.
func (r *boxReader) ReadTfhd() (trackId uint32) {
	data := r.Data()
	trackId = be.Uint32(data[0:4])
	return
}

// ReadTfdt extracts the base media decode time from a tfdt box.
func (r *boxReader) ReadTfdt() (baseMediaDecodeTime uint64) {
	data := r.Data()
	version := r.Version()
	if version == 1 {
		baseMediaDecodeTime = be.Uint64(data[0:8])
	} else {
		baseMediaDecodeTime = uint64(be.Uint32(data[0:4]))
	}
	return
}

// stszIter iterates over sample sizes in an stsz box.
type stszIter struct {
	buf        []byte
	sampleSize uint32
	count      uint32
	index      uint32
}

func newStszIter(data []byte) stszIter {
	if len(data) < 8 {
		return stszIter{}
	}
	return stszIter{
		buf:        data,
		sampleSize: be.Uint32(data[0:4]),
		count:      be.Uint32(data[4:8]),
	}
}

func (it *stszIter) Count() uint32 { return it.count }

func (it *stszIter) Next() (uint32, bool) {
	if it.index >= it.count {
		return 0, false
	}
	var size uint32
	if it.sampleSize != 0 {
		size = it.sampleSize
	} else {
		offset := 8 + int(it.index)*4
		if offset+4 > len(it.buf) {
			return 0, false
		}
		size = be.Uint32(it.buf[offset:])
	}
	it.index++
	return size, true
}

// co64Iter iterates over uint64 chunk offsets in a co64 box.
type co64Iter struct {
	buf   []byte
	count uint32
	index uint32
}

func newCo64Iter(data []byte) co64Iter {
	if len(data) < 4 {
		return co64Iter{}
	}
	return co64Iter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

func (it *co64Iter) Next() (uint64, bool) {
	if it.index >= it.count {
		return 0, false
	}
	offset := 4 + int(it.index)*8
	if offset+8 > len(it.buf) {
		return 0, false
	}
	v := be.Uint64(it.buf[offset:])
	it.index++
	return v, true
}

// SttsEntry is a time-to-sample entry.
type SttsEntry struct {
	Count    uint32
	Duration uint32
}

// sttsIter iterates over stts entries.
type sttsIter struct {
	buf   []byte
	count uint32
	index uint32
}

func newSttsIter(data []byte) sttsIter {
	if len(data) < 4 {
		return sttsIter{}
	}
	return sttsIter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

func (it *sttsIter) Next() (SttsEntry, bool) {
	if it.index >= it.count {
		return SttsEntry{}, false
	}
	offset := 4 + int(it.index)*8
	if offset+8 > len(it.buf) {
		return SttsEntry{}, false
	}
	e := SttsEntry{
		Count:    be.Uint32(it.buf[offset:]),
		Duration: be.Uint32(it.buf[offset+4:]),
	}
	it.index++
	return e, true
}

// CttsEntry is a composition offset entry.
type CttsEntry struct {
	Count  uint32
	Offset int32 // Signed offset (version 1), or unsigned treated as signed (version 0)
}

// cttsIter iterates over ctts entries.
type cttsIter struct {
	buf     []byte
	count   uint32
	index   uint32
	version uint8
}

// newCttsIter creates an iterator from ctts box data. version should be 0
// or 1 from the ctts box version field: v0 offsets are stored as uint32
// but interpreted as a composition time offset, v1 offsets are
// explicitly signed.
func newCttsIter(data []byte, version uint8) cttsIter {
	if len(data) < 4 {
		return cttsIter{}
	}
	return cttsIter{
		buf:     data,
		count:   be.Uint32(data[0:4]),
		version: version,
	}
}

func (it *cttsIter) Next() (CttsEntry, bool) {
	if it.index >= it.count {
		return CttsEntry{}, false
	}
	offset := 4 + int(it.index)*8
	if offset+8 > len(it.buf) {
		return CttsEntry{}, false
	}
	e := CttsEntry{
		Count:  be.Uint32(it.buf[offset:]),
		Offset: int32(be.Uint32(it.buf[offset+4:])),
	}
	it.index++
	return e, true
}

// StscEntry is a sample-to-chunk entry.
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionId uint32
}

// stscIter iterates over stsc entries.
type stscIter struct {
	buf   []byte
	count uint32
	index uint32
}

func newStscIter(data []byte) stscIter {
	if len(data) < 4 {
		return stscIter{}
	}
	return stscIter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

func (it *stscIter) Next() (StscEntry, bool) {
	if it.index >= it.count {
		return StscEntry{}, false
	}
	offset := 4 + int(it.index)*12
	if offset+12 > len(it.buf) {
		return StscEntry{}, false
	}
	e := StscEntry{
		FirstChunk:          be.Uint32(it.buf[offset:]),
		SamplesPerChunk:     be.Uint32(it.buf[offset+4:]),
		SampleDescriptionId: be.Uint32(it.buf[offset+8:]),
	}
	it.index++
	return e, true
}

// ElstEntry is an edit list entry.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// elstIter iterates over elst entries.
type elstIter struct {
	buf     []byte
	count   uint32
	index   uint32
	version uint8
}

func newElstIter(data []byte, version uint8) elstIter {
	if len(data) < 4 {
		return elstIter{}
	}
	return elstIter{
		buf:     data,
		count:   be.Uint32(data[0:4]),
		version: version,
	}
}

func (it *elstIter) Next() (ElstEntry, bool) {
	if it.index >= it.count {
		return ElstEntry{}, false
	}
	var e ElstEntry
	if it.version == 1 {
		stride := 20
		offset := 4 + int(it.index)*stride
		if offset+stride > len(it.buf) {
			return ElstEntry{}, false
		}
		e.SegmentDuration = be.Uint64(it.buf[offset:])
		e.MediaTime = int64(be.Uint64(it.buf[offset+8:]))
		e.MediaRateInt = int16(be.Uint16(it.buf[offset+16:]))
		e.MediaRateFrac = int16(be.Uint16(it.buf[offset+18:]))
	} else {
		stride := 12
		offset := 4 + int(it.index)*stride
		if offset+stride > len(it.buf) {
			return ElstEntry{}, false
		}
		e.SegmentDuration = uint64(be.Uint32(it.buf[offset:]))
		e.MediaTime = int64(int32(be.Uint32(it.buf[offset+4:])))
		e.MediaRateInt = int16(be.Uint16(it.buf[offset+8:]))
		e.MediaRateFrac = int16(be.Uint16(it.buf[offset+10:]))
	}
	it.index++
	return e, true
}

// TrunEntry is a track run sample entry.
type TrunEntry struct {
	Duration              uint32
	Size                  uint32
	Flags                 uint32
	CompositionTimeOffset int32
}

// Trun flags.
const (
	TrunDataOffsetPresent                  = 0x000001
	TrunFirstSampleFlagsPresent            = 0x000004
	TrunSampleDurationPresent              = 0x000100
	TrunSampleSizePresent                  = 0x000200
	TrunSampleFlagsPresent                 = 0x000400
	TrunSampleCompositionTimeOffsetPresent = 0x000800
)

// Tfhd flags (Track Fragment Header Box).
const (
	TfhdBaseDataOffsetPresent         = 0x000001
	TfhdSampleDescriptionIndexPresent = 0x000002
	TfhdDefaultSampleDurationPresent  = 0x000008
	TfhdDefaultSampleSizePresent      = 0x000010
	TfhdDefaultSampleFlagsPresent     = 0x000020
	TfhdDurationIsEmpty               = 0x010000
	TfhdDefaultBaseIsMoof             = 0x020000
)

// trunIter iterates over trun entries.
type trunIter struct {
	buf              []byte
	flags            uint32
	count            uint32
	index            uint32
	dataOffset       int32
	firstSampleFlags uint32
	stride           int
	entriesStart     int
}

func newTrunIter(data []byte, flags uint32) trunIter {
	if len(data) < 4 {
		return trunIter{}
	}
	it := trunIter{
		buf:   data,
		flags: flags,
		count: be.Uint32(data[0:4]),
	}
	ptr := 4
	if flags&TrunDataOffsetPresent != 0 {
		if ptr+4 > len(data) {
			return trunIter{}
		}
		it.dataOffset = int32(be.Uint32(data[ptr:]))
		ptr += 4
	}
	if flags&TrunFirstSampleFlagsPresent != 0 {
		if ptr+4 > len(data) {
			return trunIter{}
		}
		it.firstSampleFlags = be.Uint32(data[ptr:])
		ptr += 4
	}
	it.entriesStart = ptr

	if flags&TrunSampleDurationPresent != 0 {
		it.stride += 4
	}
	if flags&TrunSampleSizePresent != 0 {
		it.stride += 4
	}
	if flags&TrunSampleFlagsPresent != 0 {
		it.stride += 4
	}
	if flags&TrunSampleCompositionTimeOffsetPresent != 0 {
		it.stride += 4
	}
	return it
}

func (it *trunIter) DataOffset() int32 { return it.dataOffset }

func (it *trunIter) Next() (TrunEntry, bool) {
	if it.index >= it.count {
		return TrunEntry{}, false
	}
	offset := it.entriesStart + int(it.index)*it.stride
	if offset+it.stride > len(it.buf) {
		return TrunEntry{}, false
	}
	var e TrunEntry
	p := offset
	if it.flags&TrunSampleDurationPresent != 0 {
		e.Duration = be.Uint32(it.buf[p:])
		p += 4
	}
	if it.flags&TrunSampleSizePresent != 0 {
		e.Size = be.Uint32(it.buf[p:])
		p += 4
	}
	if it.flags&TrunSampleFlagsPresent != 0 {
		e.Flags = be.Uint32(it.buf[p:])
		p += 4
	}
	if it.flags&TrunSampleCompositionTimeOffsetPresent != 0 {
		e.CompositionTimeOffset = int32(be.Uint32(it.buf[p:]))
	}
	it.index++
	return e, true
}

// uint32Iter iterates over uint32 entries (stco, stss).
type uint32Iter struct {
	buf   []byte
	count uint32
	index uint32
}

func newUint32Iter(data []byte) uint32Iter {
	if len(data) < 4 {
		return uint32Iter{}
	}
	return uint32Iter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

func (it *uint32Iter) Next() (uint32, bool) {
	if it.index >= it.count {
		return 0, false
	}
	offset := 4 + int(it.index)*4
	if offset+4 > len(it.buf) {
		return 0, false
	}
	v := be.Uint32(it.buf[offset:])
	it.index++
	return v, true
}

// ftypParsed holds parsed fields from an ftyp box.
type ftypParsed struct {
	MajorBrand   [4]byte
	MinorVersion uint32
	Compatible   [][4]byte
}

func readFtyp(data []byte) ftypParsed {
	f := ftypParsed{
		MinorVersion: be.Uint32(data[4:8]),
	}
	copy(f.MajorBrand[:], data[0:4])
	for i := 8; i+4 <= len(data); i += 4 {
		var b [4]byte
		copy(b[:], data[i:i+4])
		f.Compatible = append(f.Compatible, b)
	}
	return f
}

// visualSampleEntryParsed holds parsed fields from a visual sample entry
// (e.g. avc1).
type visualSampleEntryParsed struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	HResolution        uint32 // 16.16 fixed point
	VResolution        uint32 // 16.16 fixed point
	FrameCount         uint16
	CompressorName     string
	Depth              uint16
	ChildOffset        int // byte offset within data where child boxes begin
}

func readVisualSampleEntry(data []byte) visualSampleEntryParsed {
	nameLen := min(int(data[42]), 31)
	return visualSampleEntryParsed{
		DataReferenceIndex: be.Uint16(data[6:8]),
		Width:              be.Uint16(data[24:26]),
		Height:             be.Uint16(data[26:28]),
		HResolution:        be.Uint32(data[28:32]),
		VResolution:        be.Uint32(data[32:36]),
		FrameCount:         be.Uint16(data[40:42]),
		CompressorName:     string(data[43 : 43+nameLen]),
		Depth:              be.Uint16(data[74:76]),
		ChildOffset:        78,
	}
}

// audioSampleEntryParsed holds parsed fields from an audio sample entry
// (e.g. mp4a).
type audioSampleEntryParsed struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32 // 16.16 fixed point
	ChildOffset        int    // byte offset within data where child boxes begin
}

func readAudioSampleEntry(data []byte) audioSampleEntryParsed {
	return audioSampleEntryParsed{
		DataReferenceIndex: be.Uint16(data[6:8]),
		ChannelCount:       be.Uint16(data[16:18]),
		SampleSize:         be.Uint16(data[18:20]),
		SampleRate:         be.Uint32(data[24:28]),
		ChildOffset:        28,
	}
}

// readAvcCCodec extracts the codec profile string from avcC box data.
// Returns a string like "64001f" for use in MIME type codec parameters.
func readAvcCCodec(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	var buf [6]byte
	buf[0] = hexDigit(data[1] >> 4)
	buf[1] = hexDigit(data[1] & 0x0f)
	buf[2] = hexDigit(data[2] >> 4)
	buf[3] = hexDigit(data[2] & 0x0f)
	buf[4] = hexDigit(data[3] >> 4)
	buf[5] = hexDigit(data[3] & 0x0f)
	return string(buf[:])
}

const hexChars = "0123456789abcdef"

// hexDigit returns the lowercase hex character for a 4-bit nibble.
func hexDigit(b byte) byte {
	return hexChars[b&0x0f]
}

// readEsdsCodec extracts the MIME codec string from esds box data. It
// parses the MPEG-4 descriptor chain to find the OTI (Object Type
// Indication) and audio configuration. Returns a string like "40.2" for
// AAC-LC.
func readEsdsCodec(data []byte) string {
	if len(data) < 2 {
		return ""
	}

	// Expect ESDescriptor (tag 0x03)
	ptr, end := 0, len(data)
	if data[ptr] != 0x03 {
		return ""
	}
	ptr++

	// Skip length bytes (variable-length encoding)
	ptr = skipDescriptorLength(data, ptr, end)
	if ptr < 0 || ptr+3 > end {
		return ""
	}

	// ES_ID (2 bytes) + stream dependency flags (1 byte)
	flags := data[ptr+2]
	ptr += 3

	// Skip optional fields based on flags
	if flags&0x80 != 0 { // streamDependenceFlag
		ptr += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if ptr >= end {
			return ""
		}
		urlLen := int(data[ptr])
		ptr += 1 + urlLen
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		ptr += 2
	}

	if ptr >= end {
		return ""
	}

	// Expect DecoderConfigDescriptor (tag 0x04)
	if data[ptr] != 0x04 {
		return ""
	}
	ptr++
	ptr = skipDescriptorLength(data, ptr, end)
	if ptr < 0 || ptr+13 > end {
		return ""
	}

	oti := data[ptr]
	if oti == 0 {
		return ""
	}

	// Format OTI as hex
	otiStr := hexByte(oti)

	// Skip to DecoderSpecificInfo: OTI(1)+streamType(1)+bufferSizeDB(3)+maxBitrate(4)+avgBitrate(4) = 13
	ptr += 13

	if ptr >= end || data[ptr] != 0x05 {
		// No DecoderSpecificInfo, return just OTI
		return otiStr
	}
	ptr++
	ptr = skipDescriptorLength(data, ptr, end)
	if ptr < 0 || ptr >= end {
		return otiStr
	}

	// Extract audio object type from first byte
	audioConfig := (data[ptr] & 0xf8) >> 3
	if audioConfig == 0 {
		return otiStr
	}
	return otiStr + "." + strconv.Itoa(int(audioConfig))
}

// hexByte formats a byte as a lowercase hex string without leading zeros
// beyond one digit.
func hexByte(b byte) string {
	if b < 16 {
		return string(hexDigit(b))
	}
	var buf [2]byte
	buf[0] = hexDigit(b >> 4)
	buf[1] = hexDigit(b & 0x0f)
	return string(buf[:])
}

// skipDescriptorLength skips the variable-length descriptor length field.
// Returns the new position, or -1 on error.
func skipDescriptorLength(data []byte, ptr, end int) int {
	for ptr < end {
		b := data[ptr]
		ptr++
		if b&0x80 == 0 {
			return ptr
		}
	}
	return -1
}
