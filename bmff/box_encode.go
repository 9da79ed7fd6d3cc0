package bmff

import "fmt"

// EncodeToBytes serialises a box tree back into its wire representation.
// It assumes the tree fits comfortably under the 32-bit box size limit,
// which holds for every tree this package builds (ftyp, moov, moof, init
// segments): media data itself is never routed through this path — see
// remux's streaming writer, which emits mdat directly against a
// source.ByteReader instead of materialising it into a Box.
func EncodeToBytes(box *Box) ([]byte, error) {
	n, err := sizeOf(box)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	w := newBoxWriter(buf)
	if err := encodeBox(&w, box); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeAll serialises a sequence of sibling boxes in order.
func EncodeAll(boxes []*Box) ([]byte, error) {
	total := 0
	sizes := make([]int, len(boxes))
	for i, b := range boxes {
		n, err := sizeOf(b)
		if err != nil {
			return nil, err
		}
		sizes[i] = n
		total += n
	}
	buf := make([]byte, total)
	w := newBoxWriter(buf)
	for _, b := range boxes {
		if err := encodeBox(&w, b); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func headerSize(b *Box) int {
	if b.HasFullBox {
		return 12
	}
	return 8
}

func sizeOfChildren(children []*Box) (int, error) {
	total := 0
	for _, c := range children {
		n, err := sizeOf(c)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func sizeOf(b *Box) (int, error) {
	switch {
	case b.Ftyp != nil:
		return 8 + 8 + 4*len(b.Ftyp.CompatibleBrands), nil
	case b.Mvhd != nil:
		if b.Mvhd.Duration > uint32Max {
			return 12 + 108, nil
		}
		return 12 + 96, nil
	case b.Tkhd != nil:
		if b.Tkhd.Duration > uint32Max {
			return 12 + 92, nil
		}
		return 12 + 80, nil
	case b.Mdhd != nil:
		if b.Mdhd.Duration > uint32Max {
			return 12 + 32, nil
		}
		return 12 + 20, nil
	case b.Hdlr != nil:
		return 12 + 21 + len(b.Hdlr.Name), nil
	case b.Type == TypeVmhd:
		return 20, nil
	case b.Type == TypeSmhd:
		return 16, nil
	case b.Dref != nil:
		return 28, nil
	case b.Stsd != nil:
		n, err := sizeOfChildren(b.Children)
		if err != nil {
			return 0, err
		}
		return 16 + n, nil
	case b.Sample != nil:
		return sizeOfSampleEntry(b)
	case b.Stsz != nil:
		n := 8
		if b.Stsz.SampleSize == 0 {
			n += 4 * len(b.Stsz.Entries)
		}
		return 12 + n, nil
	case b.Stco != nil:
		return 12 + 4 + 4*len(b.Stco.Entries), nil
	case b.Co64 != nil:
		return 12 + 4 + 8*len(b.Co64.Entries), nil
	case b.Stss != nil:
		return 12 + 4 + 4*len(b.Stss.Entries), nil
	case b.Stts != nil:
		return 12 + 4 + 8*len(b.Stts.Entries), nil
	case b.Ctts != nil:
		return 12 + 4 + 8*len(b.Ctts.Entries), nil
	case b.Stsc != nil:
		return 12 + 4 + 12*len(b.Stsc.Entries), nil
	case b.Elst != nil:
		stride := elstStride(b.Elst.Entries)
		return 12 + 4 + stride*len(b.Elst.Entries), nil
	case b.Mehd != nil:
		if b.Mehd.FragmentDuration > uint32Max {
			return 12 + 8, nil
		}
		return 12 + 4, nil
	case b.Trex != nil:
		return 12 + 20, nil
	case b.Mfhd != nil:
		return 12 + 4, nil
	case b.Tfhd != nil:
		return 12 + tfhdContentSize(b.Tfhd), nil
	case b.Tfdt != nil:
		if b.Tfdt.BaseMediaDecodeTime > uint32Max {
			return 12 + 8, nil
		}
		return 12 + 4, nil
	case b.Trun != nil:
		return 12 + trunContentSize(b.Trun), nil
	case b.Sidx != nil:
		return 12 + 28 + 12*len(b.Sidx.Entries), nil
	case b.AvcC != nil:
		return 8 + len(b.AvcC.Raw), nil
	case b.HvcC != nil:
		return 8 + len(b.HvcC.Raw), nil
	case b.Esds != nil:
		return 12 + len(b.Esds.Raw), nil
	case b.Mdat != nil:
		if b.Mdat.Raw == nil {
			return 0, newBoxError(Encoding, TypeMdat, fmt.Errorf("mdat has no in-memory payload to encode; stream it separately"))
		}
		return 8 + len(b.Mdat.Raw), nil
	}

	if IsContainerBox(b.Type) {
		n, err := sizeOfChildren(b.Children)
		if err != nil {
			return 0, err
		}
		return headerSize(b) + n, nil
	}

	return headerSize(b) + len(b.Raw), nil
}

func sizeOfSampleEntry(b *Box) (int, error) {
	s := b.Sample
	switch b.Type {
	case TypeAvc1, TypeHvc1:
		n := 0
		if s.AvcC != nil {
			n += 8 + len(s.AvcC.Raw)
		}
		if s.HvcC != nil {
			n += 8 + len(s.HvcC.Raw)
		}
		return 8 + 78 + n, nil
	case TypeMp4a:
		n := 0
		if s.Esds != nil {
			n += 12 + len(s.Esds.Raw)
		}
		return 8 + 28 + n, nil
	case TypeTx3g:
		if s.Tx3g != nil {
			return 8 + len(s.Tx3g.Raw), nil
		}
		return 8 + tx3gFixedHeaderSize, nil
	}
	return 0, newBoxError(Encoding, b.Type, fmt.Errorf("unrecognised sample entry kind"))
}

func elstStride(entries []ElstEntry) int {
	for _, e := range entries {
		if e.SegmentDuration > uint32Max || e.MediaTime > int64(int32(e.MediaTime)) {
			return 20
		}
	}
	return 12
}

func tfhdContentSize(t *TfhdBox) int {
	n := 4
	if t.Flags&TfhdBaseDataOffsetPresent != 0 {
		n += 8
	}
	if t.Flags&TfhdSampleDescriptionIndexPresent != 0 {
		n += 4
	}
	if t.Flags&TfhdDefaultSampleDurationPresent != 0 {
		n += 4
	}
	if t.Flags&TfhdDefaultSampleSizePresent != 0 {
		n += 4
	}
	if t.Flags&TfhdDefaultSampleFlagsPresent != 0 {
		n += 4
	}
	return n
}

func trunContentSize(t *TrunBox) int {
	n := 4
	if t.Flags&TrunDataOffsetPresent != 0 {
		n += 4
	}
	stride := 0
	if t.Flags&TrunSampleDurationPresent != 0 {
		stride += 4
	}
	if t.Flags&TrunSampleSizePresent != 0 {
		stride += 4
	}
	if t.Flags&TrunSampleFlagsPresent != 0 {
		stride += 4
	}
	if t.Flags&TrunSampleCompositionTimeOffsetPresent != 0 {
		stride += 4
	}
	return n + stride*len(t.Entries)
}

func encodeBox(w *boxWriter, b *Box) error {
	switch {
	case b.Ftyp != nil:
		t := b.Type
		if t != TypeFtyp && t != TypeStyp {
			t = TypeFtyp
		}
		if t == TypeStyp {
			w.WriteStyp(b.Ftyp.MajorBrand, b.Ftyp.MinorVersion, b.Ftyp.CompatibleBrands)
		} else {
			w.WriteFtyp(b.Ftyp.MajorBrand, b.Ftyp.MinorVersion, b.Ftyp.CompatibleBrands)
		}
		return nil
	case b.Mvhd != nil:
		w.WriteMvhd(b.Mvhd.Timescale, b.Mvhd.Duration, b.Mvhd.NextTrackId)
		return nil
	case b.Tkhd != nil:
		w.WriteTkhd(b.Tkhd.Flags, b.Tkhd.TrackId, b.Tkhd.Duration, b.Tkhd.Width, b.Tkhd.Height)
		return nil
	case b.Mdhd != nil:
		w.WriteMdhd(b.Mdhd.Timescale, b.Mdhd.Duration, b.Mdhd.Language)
		return nil
	case b.Hdlr != nil:
		w.WriteHdlr(b.Hdlr.HandlerType, b.Hdlr.Name)
		return nil
	case b.Type == TypeVmhd:
		w.WriteVmhd()
		return nil
	case b.Type == TypeSmhd:
		w.WriteSmhd()
		return nil
	case b.Dref != nil:
		w.WriteDref()
		return nil
	case b.Stsd != nil:
		w.StartFullBox(TypeStsd, 0, 0)
		w.Write(encodeUint32(uint32(len(b.Children))))
		for _, c := range b.Children {
			if err := encodeBox(w, c); err != nil {
				return err
			}
		}
		w.EndBox()
		return nil
	case b.Sample != nil:
		return encodeSampleEntry(w, b)
	case b.Stsz != nil:
		s := b.Stsz
		count := s.SampleCount
		if s.SampleSize == 0 {
			count = uint32(len(s.Entries))
		}
		w.StartFullBox(TypeStsz, 0, 0)
		w.Write(encodeUint32(s.SampleSize))
		w.Write(encodeUint32(count))
		if s.SampleSize == 0 {
			for _, e := range s.Entries {
				w.Write(encodeUint32(e))
			}
		}
		w.EndBox()
		return nil
	case b.Stco != nil:
		w.WriteStco(b.Stco.Entries)
		return nil
	case b.Co64 != nil:
		w.WriteCo64(b.Co64.Entries)
		return nil
	case b.Stss != nil:
		w.WriteStss(b.Stss.Entries)
		return nil
	case b.Stts != nil:
		w.WriteStts(b.Stts.Entries)
		return nil
	case b.Ctts != nil:
		w.WriteCtts(b.Ctts.Entries)
		return nil
	case b.Stsc != nil:
		w.WriteStsc(b.Stsc.Entries)
		return nil
	case b.Elst != nil:
		w.WriteElst(b.Elst.Entries)
		return nil
	case b.Mehd != nil:
		w.WriteMehd(b.Mehd.FragmentDuration)
		return nil
	case b.Trex != nil:
		t := b.Trex
		w.WriteTrex(t.TrackId, t.DefaultSampleDescriptionIndex, t.DefaultSampleDuration, t.DefaultSampleSize, t.DefaultSampleFlags)
		return nil
	case b.Mfhd != nil:
		w.WriteMfhd(b.Mfhd.SequenceNumber)
		return nil
	case b.Tfhd != nil:
		return encodeTfhd(w, b)
	case b.Tfdt != nil:
		w.WriteTfdt(b.Tfdt.BaseMediaDecodeTime)
		return nil
	case b.Trun != nil:
		w.WriteTrun(b.Trun.Flags, b.Trun.DataOffset, b.Trun.Entries)
		return nil
	case b.Sidx != nil:
		s := b.Sidx
		w.WriteSidx(s.ReferenceId, s.Timescale, s.EarliestPresentationTime, s.FirstOffset, s.Entries)
		return nil
	case b.AvcC != nil:
		w.StartBox(TypeAvcC)
		w.Write(b.AvcC.Raw)
		w.EndBox()
		return nil
	case b.HvcC != nil:
		w.StartBox(TypeHvcC)
		w.Write(b.HvcC.Raw)
		w.EndBox()
		return nil
	case b.Esds != nil:
		w.StartFullBox(TypeEsds, 0, 0)
		w.Write(b.Esds.Raw)
		w.EndBox()
		return nil
	case b.Mdat != nil:
		if b.Mdat.Raw == nil {
			return newBoxError(Encoding, TypeMdat, fmt.Errorf("mdat has no in-memory payload to encode"))
		}
		w.StartBox(TypeMdat)
		w.Write(b.Mdat.Raw)
		w.EndBox()
		return nil
	}

	if IsContainerBox(b.Type) {
		if b.HasFullBox {
			w.StartFullBox(b.Type, b.Version, b.Flags)
		} else {
			w.StartBox(b.Type)
		}
		for _, c := range b.Children {
			if err := encodeBox(w, c); err != nil {
				return err
			}
		}
		w.EndBox()
		return nil
	}

	if b.HasFullBox {
		w.StartFullBox(b.Type, b.Version, b.Flags)
	} else {
		w.StartBox(b.Type)
	}
	w.Write(b.Raw)
	w.EndBox()
	return nil
}

func encodeTfhd(w *boxWriter, b *Box) error {
	t := b.Tfhd
	w.StartFullBox(TypeTfhd, b.Version, t.Flags)
	w.Write(encodeUint32(t.TrackId))
	if t.Flags&TfhdBaseDataOffsetPresent != 0 {
		w.Write(encodeUint64(t.BaseDataOffset))
	}
	if t.Flags&TfhdSampleDescriptionIndexPresent != 0 {
		w.Write(encodeUint32(t.SampleDescriptionIndex))
	}
	if t.Flags&TfhdDefaultSampleDurationPresent != 0 {
		w.Write(encodeUint32(t.DefaultSampleDuration))
	}
	if t.Flags&TfhdDefaultSampleSizePresent != 0 {
		w.Write(encodeUint32(t.DefaultSampleSize))
	}
	if t.Flags&TfhdDefaultSampleFlagsPresent != 0 {
		w.Write(encodeUint32(t.DefaultSampleFlags))
	}
	w.EndBox()
	return nil
}

func encodeSampleEntry(w *boxWriter, b *Box) error {
	s := b.Sample
	switch b.Type {
	case TypeAvc1, TypeHvc1:
		w.StartBox(b.Type)
		w.WriteVisualSampleEntry(s.DataReferenceIndex, s.Width, s.Height, s.FrameCount, s.Depth, s.CompressorName)
		if s.AvcC != nil {
			w.StartBox(TypeAvcC)
			w.Write(s.AvcC.Raw)
			w.EndBox()
		}
		if s.HvcC != nil {
			w.StartBox(TypeHvcC)
			w.Write(s.HvcC.Raw)
			w.EndBox()
		}
		w.EndBox()
		return nil
	case TypeMp4a:
		w.StartBox(TypeMp4a)
		w.WriteAudioSampleEntry(s.DataReferenceIndex, s.ChannelCount, s.SampleSize, s.SampleRate)
		if s.Esds != nil {
			w.StartFullBox(TypeEsds, 0, 0)
			w.Write(s.Esds.Raw)
			w.EndBox()
		}
		w.EndBox()
		return nil
	case TypeTx3g:
		w.StartBox(TypeTx3g)
		if s.Tx3g != nil {
			w.Write(s.Tx3g.Raw)
		}
		w.EndBox()
		return nil
	}
	return newBoxError(Encoding, b.Type, fmt.Errorf("unrecognised sample entry kind"))
}

func encodeUint32(v uint32) []byte {
	var buf [4]byte
	be.PutUint32(buf[:], v)
	return buf[:]
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	be.PutUint64(buf[:], v)
	return buf[:]
}

// writerFrame tracks the start offset of a box for size backpatching.
type writerFrame struct {
	offset int
}

// boxWriter encodes ISOBMFF boxes into a byte buffer.
type boxWriter struct {
	buf   []byte
	pos   int
	stack [maxDepth]writerFrame
	depth int
}

// newBoxWriter creates a boxWriter that writes into buf.
func newBoxWriter(buf []byte) boxWriter {
	return boxWriter{buf: buf[:cap(buf)]}
}

// Bytes returns the written data.
func (w *boxWriter) Bytes() []byte {
	return w.buf[:w.pos]
}

// Len returns the number of bytes written.
func (w *boxWriter) Len() int { return w.pos }

// Write appends raw bytes. Implements io.Writer.
func (w *boxWriter) Write(p []byte) (int, error) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

// putUint8 appends a single byte.
func (w *boxWriter) putUint8(v byte) {
	w.buf[w.pos] = v
	w.pos++
}

// putUint16 appends a big-endian uint16.
func (w *boxWriter) putUint16(v uint16) {
	be.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

// putUint32 appends a big-endian uint32.
func (w *boxWriter) putUint32(v uint32) {
	be.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

// putUint64 appends a big-endian uint64.
func (w *boxWriter) putUint64(v uint64) {
	be.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

// putInt32 appends a big-endian int32.
func (w *boxWriter) putInt32(v int32) {
	w.putUint32(uint32(v))
}

// putZeros appends n zero bytes.
func (w *boxWriter) putZeros(n int) {
	clear(w.buf[w.pos : w.pos+n])
	w.pos += n
}

// putBytes appends raw bytes.
func (w *boxWriter) putBytes(p []byte) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
}

// putFixedString writes a fixed-length string field with null padding.
func (w *boxWriter) putFixedString(s string, length int) {
	n := copy(w.buf[w.pos:w.pos+length], s)
	clear(w.buf[w.pos+n : w.pos+length])
	w.pos += length
}

// StartBox begins a new box. Write content, then call EndBox.
func (w *boxWriter) StartBox(t BoxType) {
	w.stack[w.depth] = writerFrame{offset: w.pos}
	w.depth++
	w.putUint32(0) // placeholder size
	w.putBytes(t[:])
}

// StartFullBox begins a new full box with version and flags.
func (w *boxWriter) StartFullBox(t BoxType, version uint8, flags uint32) {
	w.StartBox(t)
	vf := (uint32(version) << 24) | (flags & 0x00ffffff)
	w.putUint32(vf)
}

// EndBox finishes the current box by backpatching its size.
func (w *boxWriter) EndBox() {
	w.depth--
	f := w.stack[w.depth]
	size := uint32(w.pos - f.offset)
	be.PutUint32(w.buf[f.offset:], size)
}

// WriteFtyp writes a complete ftyp box.
func (w *boxWriter) WriteFtyp(brand [4]byte, brandVersion uint32, compat [][4]byte) {
	w.StartBox(TypeFtyp)
	w.putBytes(brand[:])
	w.putUint32(brandVersion)
	for _, c := range compat {
		w.putBytes(c[:])
	}
	w.EndBox()
}

// WriteMvhd writes a complete mvhd box.
func (w *boxWriter) WriteMvhd(timescale uint32, duration uint64, nextTrackId uint32) {
	if duration > uint32Max {
		w.StartFullBox(TypeMvhd, 1, 0)
		w.putUint64(0) // creation time
		w.putUint64(0) // modification time
		w.putUint32(timescale)
		w.putUint64(duration)
	} else {
		w.StartFullBox(TypeMvhd, 0, 0)
		w.putUint32(0) // creation time
		w.putUint32(0) // modification time
		w.putUint32(timescale)
		w.putUint32(uint32(duration))
	}
	w.putUint32(0x00010000) // rate 1.0
	w.putUint16(0x0100)     // volume 1.0
	w.putZeros(10)          // reserved
	// Identity matrix
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x40000000)
	w.putZeros(24) // predefined
	w.putUint32(nextTrackId)
	w.EndBox()
}

// WriteTkhd writes a complete tkhd box.
func (w *boxWriter) WriteTkhd(flags uint32, trackId uint32, duration uint64, width, height uint32) {
	if duration > uint32Max {
		w.StartFullBox(TypeTkhd, 1, flags)
		w.putUint64(0) // creation time
		w.putUint64(0) // modification time
		w.putUint32(trackId)
		w.putUint32(0) // reserved
		w.putUint64(duration)
	} else {
		w.StartFullBox(TypeTkhd, 0, flags)
		w.putUint32(0) // creation time
		w.putUint32(0) // modification time
		w.putUint32(trackId)
		w.putUint32(0) // reserved
		w.putUint32(uint32(duration))
	}
	w.putZeros(8)  // reserved
	w.putUint16(0) // layer
	w.putUint16(0) // alternate group
	w.putUint16(0) // volume
	w.putUint16(0) // reserved
	// Identity matrix
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x40000000)
	w.putUint32(width)
	w.putUint32(height)
	w.EndBox()
}

// WriteMdhd writes a complete mdhd box.
func (w *boxWriter) WriteMdhd(timescale uint32, duration uint64, language uint16) {
	if duration > uint32Max {
		w.StartFullBox(TypeMdhd, 1, 0)
		w.putUint64(0) // creation time
		w.putUint64(0) // modification time
		w.putUint32(timescale)
		w.putUint64(duration)
	} else {
		w.StartFullBox(TypeMdhd, 0, 0)
		w.putUint32(0) // creation time
		w.putUint32(0) // modification time
		w.putUint32(timescale)
		w.putUint32(uint32(duration))
	}
	w.putUint16(language)
	w.putUint16(0) // quality
	w.EndBox()
}

// WriteHdlr writes a complete hdlr box.
func (w *boxWriter) WriteHdlr(handlerType [4]byte, name string) {
	w.StartFullBox(TypeHdlr, 0, 0)
	w.putUint32(0) // predefined
	w.putBytes(handlerType[:])
	w.putZeros(12) // reserved
	w.putBytes([]byte(name))
	w.putUint8(0) // null terminator
	w.EndBox()
}

// WriteVmhd writes a complete vmhd box.
func (w *boxWriter) WriteVmhd() {
	w.StartFullBox(TypeVmhd, 0, 1)
	w.putUint16(0) // graphicsmode
	w.putZeros(6)  // opcolor
	w.EndBox()
}

// WriteSmhd writes a complete smhd box.
func (w *boxWriter) WriteSmhd() {
	w.StartFullBox(TypeSmhd, 0, 0)
	w.putUint16(0) // balance
	w.putUint16(0) // reserved
	w.EndBox()
}

// WriteDref writes a dref box with a single self-referencing url entry.
func (w *boxWriter) WriteDref() {
	w.StartFullBox(TypeDref, 0, 0)
	w.putUint32(1) // entry count
	// url entry: self-contained
	w.StartFullBox(TypeUrl, 0, 1)
	w.EndBox()
	w.EndBox()
}

// WriteStco writes a complete stco box.
func (w *boxWriter) WriteStco(entries []uint32) {
	w.StartFullBox(TypeStco, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e)
	}
	w.EndBox()
}

// WriteCo64 writes a complete co64 box.
func (w *boxWriter) WriteCo64(entries []uint64) {
	w.StartFullBox(TypeCo64, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint64(e)
	}
	w.EndBox()
}

// WriteStss writes a complete stss box.
func (w *boxWriter) WriteStss(entries []uint32) {
	w.StartFullBox(TypeStss, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e)
	}
	w.EndBox()
}

// WriteStts writes a complete stts box.
func (w *boxWriter) WriteStts(entries []SttsEntry) {
	w.StartFullBox(TypeStts, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.Count)
		w.putUint32(e.Duration)
	}
	w.EndBox()
}

// WriteCtts writes a complete ctts box.
func (w *boxWriter) WriteCtts(entries []CttsEntry) {
	w.StartFullBox(TypeCtts, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.Count)
		w.putUint32(uint32(e.Offset))
	}
	w.EndBox()
}

// WriteStsc writes a complete stsc box.
func (w *boxWriter) WriteStsc(entries []StscEntry) {
	w.StartFullBox(TypeStsc, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.FirstChunk)
		w.putUint32(e.SamplesPerChunk)
		w.putUint32(e.SampleDescriptionId)
	}
	w.EndBox()
}

// WriteElst writes a complete elst box.
func (w *boxWriter) WriteElst(entries []ElstEntry) {
	v1 := elstStride(entries) == 20
	if v1 {
		w.StartFullBox(TypeElst, 1, 0)
	} else {
		w.StartFullBox(TypeElst, 0, 0)
	}
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		if v1 {
			w.putUint64(e.SegmentDuration)
			w.putUint64(uint64(e.MediaTime))
		} else {
			w.putUint32(uint32(e.SegmentDuration))
			w.putUint32(uint32(e.MediaTime))
		}
		w.putUint16(uint16(e.MediaRateInt))
		w.putUint16(uint16(e.MediaRateFrac))
	}
	w.EndBox()
}

// WriteMehd writes a complete mehd box.
func (w *boxWriter) WriteMehd(fragmentDuration uint64) {
	if fragmentDuration > uint32Max {
		w.StartFullBox(TypeMehd, 1, 0)
		w.putUint64(fragmentDuration)
	} else {
		w.StartFullBox(TypeMehd, 0, 0)
		w.putUint32(uint32(fragmentDuration))
	}
	w.EndBox()
}

// WriteTrex writes a complete trex box.
func (w *boxWriter) WriteTrex(trackId, descIdx, defDuration, defSize, defFlags uint32) {
	w.StartFullBox(TypeTrex, 0, 0)
	w.putUint32(trackId)
	w.putUint32(descIdx)
	w.putUint32(defDuration)
	w.putUint32(defSize)
	w.putUint32(defFlags)
	w.EndBox()
}

// WriteMfhd writes a complete mfhd box.
func (w *boxWriter) WriteMfhd(sequenceNumber uint32) {
	w.StartFullBox(TypeMfhd, 0, 0)
	w.putUint32(sequenceNumber)
	w.EndBox()
}

// WriteTfdt writes a complete tfdt box.
func (w *boxWriter) WriteTfdt(baseMediaDecodeTime uint64) {
	if baseMediaDecodeTime > uint32Max {
		w.StartFullBox(TypeTfdt, 1, 0)
		w.putUint64(baseMediaDecodeTime)
	} else {
		w.StartFullBox(TypeTfdt, 0, 0)
		w.putUint32(uint32(baseMediaDecodeTime))
	}
	w.EndBox()
}

// WriteTrun writes a complete trun box.
func (w *boxWriter) WriteTrun(flags uint32, dataOffset int32, entries []TrunEntry) {
	w.StartFullBox(TypeTrun, 0, flags)
	w.putUint32(uint32(len(entries)))
	if flags&TrunDataOffsetPresent != 0 {
		w.putInt32(dataOffset)
	}
	for _, e := range entries {
		if flags&TrunSampleDurationPresent != 0 {
			w.putUint32(e.Duration)
		}
		if flags&TrunSampleSizePresent != 0 {
			w.putUint32(e.Size)
		}
		if flags&TrunSampleFlagsPresent != 0 {
			w.putUint32(e.Flags)
		}
		if flags&TrunSampleCompositionTimeOffsetPresent != 0 {
			w.putInt32(e.CompositionTimeOffset)
		}
	}
	w.EndBox()
}

// WriteVisualSampleEntry writes the 78-byte visual sample entry header.
// The caller must start the box (e.g. avc1) and end it after writing children.
func (w *boxWriter) WriteVisualSampleEntry(dataRefIdx, width, height, frameCount, depth uint16, compressor string) {
	w.putZeros(6)           // reserved
	w.putUint16(dataRefIdx) // data reference index
	w.putZeros(16)          // predefined + reserved
	w.putUint16(width)      // width
	w.putUint16(height)     // height
	w.putUint32(0x00480000) // hresolution 72 dpi
	w.putUint32(0x00480000) // vresolution 72 dpi
	w.putZeros(4)           // reserved
	w.putUint16(frameCount) // frame count
	nameLen := min(len(compressor), 31)
	w.putUint8(byte(nameLen))
	w.putFixedString(compressor, 31)
	w.putUint16(depth)  // depth
	w.putUint16(0xffff) // predefined = -1
}

// WriteAudioSampleEntry writes the 28-byte audio sample entry header.
// The caller must start the box (e.g. mp4a) and end it after writing children.
func (w *boxWriter) WriteAudioSampleEntry(dataRefIdx, channelCount, sampleSize uint16, sampleRate uint32) {
	w.putZeros(6)             // reserved
	w.putUint16(dataRefIdx)   // data reference index
	w.putZeros(8)             // reserved
	w.putUint16(channelCount) // channel count
	w.putUint16(sampleSize)   // sample size
	w.putZeros(4)             // predefined + reserved
	w.putUint32(sampleRate)   // sample rate (16.16 fixed point)
}

// WriteStyp writes a segment type box (same format as ftyp).
func (w *boxWriter) WriteStyp(brand [4]byte, brandVersion uint32, compat [][4]byte) {
	w.StartBox(TypeStyp)
	w.putBytes(brand[:])
	w.putUint32(brandVersion)
	for _, c := range compat {
		w.putBytes(c[:])
	}
	w.EndBox()
}

// SidxEntry represents one reference in a sidx box.
type SidxEntry struct {
	ReferenceType  bool   // false = media, true = sub-sidx
	ReferencedSize uint32 // size in bytes of the referenced material
	SubsegDuration uint32 // duration in timescale units
	StartsWithSAP  bool   // starts with a stream access point
	SAPType        uint8  // SAP type (1-6)
}

// WriteSidx writes a segment index box (version 1, 64-bit times).
func (w *boxWriter) WriteSidx(trackID uint32, timescale uint32, earliestPTS uint64, firstOffset uint64, entries []SidxEntry) {
	w.StartFullBox(TypeSidx, 1, 0)
	w.putUint32(trackID) // reference_ID
	w.putUint32(timescale)
	w.putUint64(earliestPTS)          // earliest_presentation_time
	w.putUint64(firstOffset)          // first_offset
	w.putUint16(0)                    // reserved
	w.putUint16(uint16(len(entries))) // reference_count
	for _, e := range entries {
		var refTypeAndSize uint32
		if e.ReferenceType {
			refTypeAndSize = 0x80000000
		}
		refTypeAndSize |= e.ReferencedSize & 0x7FFFFFFF
		w.putUint32(refTypeAndSize)
		w.putUint32(e.SubsegDuration)
		var sapField uint32
		if e.StartsWithSAP {
			sapField = 0x80000000
		}
		sapField |= uint32(e.SAPType) << 28
		w.putUint32(sapField)
	}
	w.EndBox()
}
