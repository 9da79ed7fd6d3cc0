package remux

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/track"
)

// Fragmenter produces fMP4/CMAF initialization sections and media segments
// for one track, built around an arbitrary caller-supplied
// track.SampleRange (rather than a fixed whole-track dump), so the
// ranges built by the hls package are served as exact segments.
type Fragmenter struct {
	Mvhd  *bmff.Box // the source movie header, for full-presentation duration
	Trak  *bmff.Box // the source trak, for tkhd/mdia/minf/stsd reuse
	Track *track.Track

	editShape         track.EditShape
	editDwellTicks    uint64
	editSkipMediaTime int64
}

// NewFragmenter resolves tr's edit list once (it must be one of the three
// shapes in spec.md §4.4) and returns a ready-to-use Fragmenter.
func NewFragmenter(mvhd, trak *bmff.Box, tr *track.Track) (*Fragmenter, error) {
	shape, dwell, skip, err := tr.ClassifyEdits()
	if err != nil {
		return nil, err
	}
	return &Fragmenter{
		Mvhd:              mvhd,
		Trak:              trak,
		Track:             tr,
		editShape:         shape,
		editDwellTicks:    dwell,
		editSkipMediaTime: skip,
	}, nil
}

// InitSegment builds ftyp+moov for this track with an empty sample table,
// full-presentation mvhd/tkhd durations, and populated mvex/trex defaults
// (spec.md §4.4).
func (f *Fragmenter) InitSegment() ([]byte, error) {
	tkhdBox := f.Trak.Child(bmff.TypeTkhd)
	mdiaBox := f.Trak.Child(bmff.TypeMdia)
	mdhdBox := mdiaBox.Child(bmff.TypeMdhd)
	hdlrBox := mdiaBox.Child(bmff.TypeHdlr)
	minfBox := mdiaBox.Child(bmff.TypeMinf)
	stblBox := minfBox.Child(bmff.TypeStbl)
	stsdBox := stblBox.Child(bmff.TypeStsd)

	var minfChildren []*bmff.Box
	if vmhd := minfBox.Child(bmff.TypeVmhd); vmhd != nil {
		minfChildren = append(minfChildren, vmhd)
	}
	if smhd := minfBox.Child(bmff.TypeSmhd); smhd != nil {
		minfChildren = append(minfChildren, smhd)
	}
	if dinf := minfBox.Child(bmff.TypeDinf); dinf != nil {
		minfChildren = append(minfChildren, dinf)
	}

	stblNew := &bmff.Box{
		Type: bmff.TypeStbl,
		Children: []*bmff.Box{
			stsdBox,
			{Type: bmff.TypeStts, HasFullBox: true, Stts: &bmff.SttsBox{}},
			{Type: bmff.TypeStsc, HasFullBox: true, Stsc: &bmff.StscBox{}},
			{Type: bmff.TypeStsz, HasFullBox: true, Stsz: &bmff.StszBox{}},
			{Type: bmff.TypeStco, HasFullBox: true, Stco: &bmff.StcoBox{}},
		},
	}
	minfChildren = append(minfChildren, stblNew)

	moov := &bmff.Box{
		Type: bmff.TypeMoov,
		Children: []*bmff.Box{
			{Type: bmff.TypeMvhd, HasFullBox: true, Version: f.Mvhd.Version, Flags: f.Mvhd.Flags, Mvhd: f.Mvhd.Mvhd},
			{
				Type: bmff.TypeTrak,
				Children: []*bmff.Box{
					{Type: bmff.TypeTkhd, HasFullBox: true, Version: tkhdBox.Version, Flags: tkhdBox.Flags, Tkhd: tkhdBox.Tkhd},
					{
						Type: bmff.TypeMdia,
						Children: []*bmff.Box{
							{Type: bmff.TypeMdhd, HasFullBox: true, Version: mdhdBox.Version, Flags: mdhdBox.Flags, Mdhd: mdhdBox.Mdhd},
							hdlrBox,
							{Type: bmff.TypeMinf, Children: minfChildren},
						},
					},
				},
			},
			{
				Type: bmff.TypeMvex,
				Children: []*bmff.Box{
					{Type: bmff.TypeMehd, HasFullBox: true, Mehd: &bmff.MehdBox{FragmentDuration: f.Mvhd.Mvhd.Duration}},
					{Type: bmff.TypeTrex, HasFullBox: true, Trex: &bmff.TrexBox{
						TrackId:                       f.Track.TrackId,
						DefaultSampleDescriptionIndex: f.Track.DefaultSampleDescriptionIndex,
					}},
				},
			},
		},
	}

	ftyp := &bmff.Box{
		Type: bmff.TypeFtyp,
		Ftyp: &bmff.FtypBox{
			MajorBrand:       [4]byte{'i', 's', 'o', 'm'},
			MinorVersion:     0,
			CompatibleBrands: [][4]byte{{'i', 's', 'o', '5'}, {'m', 'p', '4', '1'}, {'d', 'a', 's', 'h'}, {'c', 'm', 'f', 'c'}},
		},
	}

	return bmff.EncodeAll([]*bmff.Box{ftyp, moov})
}

// baseMediaDecodeTime translates rng's decode-time origin into the fMP4
// tfdt value, applying the edit-list rewrite rules of spec.md §4.4.
func (f *Fragmenter) baseMediaDecodeTime(rng track.SampleRange) uint64 {
	base := rng.DecodeTimeOrigin
	switch f.editShape {
	case track.EditShapeInitialDwell:
		if rng.First == 0 {
			return f.editDwellTicks + uint64(base)
		}
		return uint64(base)
	case track.EditShapeLeadingNegative:
		// This track itself starts at zero. Fragmenter only sees one
		// track at a time and does not advance any other track's tfdt;
		// SiblingSkipTicks reports the skipped duration in another
		// track's timescale, and no caller in this repository
		// (server.handleSegment included) applies it.
		return uint64(base)
	case track.EditShapePositiveShift:
		// No tfdt adjustment: the shift only moves ctts into
		// non-negative territory (applied to each trun entry in
		// MediaSegment).
		return uint64(base)
	default:
		return uint64(base)
	}
}

// SiblingSkipTicks returns, for an EditShapeLeadingNegative track (spec.md
// §4.4 shape 2), the amount every other track's tfdt must be advanced by,
// converted into timescale ticks of the given track.
func (f *Fragmenter) SiblingSkipTicks(otherTimescale uint32) uint64 {
	if f.editShape != track.EditShapeLeadingNegative {
		return 0
	}
	return uint64(f.editSkipMediaTime) * uint64(otherTimescale) / uint64(f.Track.Timescale)
}

// MediaSegment writes styp+sidx+moof+mdat for rng to w, reading sample
// bytes from src. ctx is checked before any I/O begins.
func (f *Fragmenter) MediaSegment(ctx context.Context, w io.Writer, src io.ReaderAt, rng track.SampleRange, seqNum uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	samples := f.Track.Table.Entries[rng.First:rng.Last]
	n := len(samples)
	if n == 0 {
		return nil
	}

	entries := make([]bmff.TrunEntry, n)
	var totalLen int64
	var trunVersion uint8
	for i, s := range samples {
		if s.PresentationOffset < 0 || f.editShape == track.EditShapePositiveShift {
			trunVersion = 1
		}
		flags := uint32(0x2000000)
		if !s.Sync {
			flags = 0x1010000
		}
		offset := s.PresentationOffset
		if f.editShape == track.EditShapePositiveShift {
			offset -= int32(f.editSkipMediaTime)
		}
		entries[i] = bmff.TrunEntry{
			Duration:              s.Duration,
			Size:                  s.Size,
			Flags:                 flags,
			CompositionTimeOffset: offset,
		}
		totalLen += int64(s.Size)
	}

	styp := &bmff.Box{
		Type: bmff.TypeStyp,
		Ftyp: &bmff.FtypBox{
			MajorBrand:       [4]byte{'m', 's', 'd', 'h'},
			MinorVersion:     0,
			CompatibleBrands: [][4]byte{{'m', 's', 'd', 'h'}, {'m', 's', 'i', 'x'}},
		},
	}
	stypBytes, err := bmff.EncodeToBytes(styp)
	if err != nil {
		return err
	}
	if _, err := w.Write(stypBytes); err != nil {
		return err
	}

	baseMediaDecodeTime := f.baseMediaDecodeTime(rng)

	// One sidx reference per segment, covering the moof+mdat that follow
	// it in the stream, so the segment stays DASH-compatible (spec.md §1).
	trunSize := 20 + n*16
	trafSize := 8 + 16 + 16 + trunSize
	moofSize := 8 + 16 + trafSize
	referencedSize := uint32(moofSize + 8 + int(totalLen))

	sidx := &bmff.Box{
		Type: bmff.TypeSidx,
		Sidx: &bmff.SidxBox{
			ReferenceId:              f.Track.TrackId,
			Timescale:                f.Track.Timescale,
			EarliestPresentationTime: uint64(samples[0].PTS()),
			Entries: []bmff.SidxEntry{{
				ReferencedSize: referencedSize,
				SubsegDuration: trunTotalDuration(samples),
				StartsWithSAP:  samples[0].Sync,
				SAPType:        1,
			}},
		},
	}
	sidxBytes, err := bmff.EncodeToBytes(sidx)
	if err != nil {
		return err
	}
	if _, err := w.Write(sidxBytes); err != nil {
		return err
	}

	var buf []byte
	buf, err = writeMoof(w, seqNum, f.Track.TrackId, uint32(baseMediaDecodeTime), entries, trunVersion, buf)
	if err != nil {
		return err
	}

	var mdatHdr [8]byte
	binary.BigEndian.PutUint32(mdatHdr[:4], uint32(8+totalLen))
	copy(mdatHdr[4:8], "mdat")
	if _, err := w.Write(mdatHdr[:]); err != nil {
		return err
	}

	copyBuf := make([]byte, 32768)
	var rangeStart, rangeEnd int64
	flushRange := func() error {
		if rangeEnd <= rangeStart {
			return nil
		}
		off := rangeStart
		remaining := rangeEnd - rangeStart
		for remaining > 0 {
			n := min(int64(len(copyBuf)), remaining)
			nr, err := src.ReadAt(copyBuf[:n], off)
			if nr > 0 {
				if _, werr := w.Write(copyBuf[:nr]); werr != nil {
					return werr
				}
				off += int64(nr)
				remaining -= int64(nr)
			}
			if err != nil && err != io.EOF {
				return err
			}
			if err == io.EOF && remaining > 0 {
				return io.ErrUnexpectedEOF
			}
		}
		return nil
	}
	for _, s := range samples {
		sStart := s.Offset
		sEnd := s.Offset + int64(s.Size)
		if rangeEnd == sStart {
			rangeEnd = sEnd
			continue
		}
		if err := flushRange(); err != nil {
			return err
		}
		rangeStart, rangeEnd = sStart, sEnd
	}
	return flushRange()
}

func trunTotalDuration(samples []track.Sample) uint32 {
	var total uint32
	for _, s := range samples {
		total += s.Duration
	}
	return total
}
