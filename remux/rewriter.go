package remux

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/internal/trackcache"
)

// RewriteOptions configures Rewrite.
type RewriteOptions struct {
	// TrackIDs selects which tracks appear in the rewritten movie, and in
	// what order: the first id becomes track_id 1 in the output, the
	// second becomes 2, and so on. Must be non-empty.
	TrackIDs []uint32

	// Interleave merges every selected track's samples into a single mdat
	// ordered by decode time (ties broken by the renumbered track id)
	// instead of writing each track's samples as one contiguous run.
	Interleave bool
}

// Rewrite builds the progressive single-moov, single-mdat movie spec.md
// §4.3 calls for: it selects a subset of tracks, renumbers them 1..=k,
// drops tref/trex entries that referenced a track outside the selection,
// and writes the result (ftyp+moov+mdat) to w. src supplies the original
// sample bytes; it is read only through io.ReaderAt, so it is safe to call
// concurrently against a shared *source.File.
func Rewrite(ctx context.Context, w io.Writer, src io.ReaderAt, movie *trackcache.Movie, opts RewriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(opts.TrackIDs) == 0 {
		return &bmff.Error{Kind: bmff.Malformed, Err: fmt.Errorf("remux: Rewrite requires at least one track id")}
	}

	selected, newID, err := selectTracks(movie, opts.TrackIDs)
	if err != nil {
		return err
	}
	order := sampleWriteOrder(selected, opts.Interleave)

	var mdatSize int64
	for _, s := range order {
		mdatSize += int64(selected[s.track].samples[s.sample].Size)
	}

	ftyp := &bmff.Box{
		Type: bmff.TypeFtyp,
		Ftyp: &bmff.FtypBox{
			MajorBrand:       [4]byte{'i', 's', 'o', '5'},
			MinorVersion:     0,
			CompatibleBrands: [][4]byte{{'i', 's', 'o', '5'}, {'i', 's', 'o', 'm'}},
		},
	}
	ftypBytes, err := bmff.EncodeToBytes(ftyp)
	if err != nil {
		return err
	}

	// Size the moov with 64-bit chunk offsets first (a safe upper bound on
	// its encoded length); only fall back to the smaller 32-bit stco once
	// the real prefix length proves the final file fits under 2^32.
	moov, coBoxes := buildRewrittenMoov(movie, selected, newID, true)
	trial, err := bmff.EncodeToBytes(moov)
	if err != nil {
		return err
	}
	prefix := int64(len(ftypBytes)) + int64(len(trial)) + 8
	if prefix+mdatSize <= 0xFFFFFFFF {
		moov, coBoxes = buildRewrittenMoov(movie, selected, newID, false)
		trial, err = bmff.EncodeToBytes(moov)
		if err != nil {
			return err
		}
		prefix = int64(len(ftypBytes)) + int64(len(trial)) + 8
	}

	relOffset := make([][]int64, len(selected))
	for i, st := range selected {
		relOffset[i] = make([]int64, len(st.samples))
	}
	var running int64
	for _, s := range order {
		relOffset[s.track][s.sample] = running
		running += int64(selected[s.track].samples[s.sample].Size)
	}
	for i, box := range coBoxes {
		n := len(selected[i].samples)
		if box.Co64 != nil {
			box.Co64.Entries = make([]uint64, n)
			for j := range n {
				box.Co64.Entries[j] = uint64(prefix + relOffset[i][j])
			}
		} else {
			box.Stco.Entries = make([]uint32, n)
			for j := range n {
				box.Stco.Entries[j] = uint32(prefix + relOffset[i][j])
			}
		}
	}

	moovBytes, err := bmff.EncodeToBytes(moov)
	if err != nil {
		return err
	}
	if int64(len(moovBytes)) != prefix-int64(len(ftypBytes))-8 {
		return &bmff.Error{Kind: bmff.Encoding, Err: fmt.Errorf("remux: moov size changed after offset assignment")}
	}

	if _, err := w.Write(ftypBytes); err != nil {
		return err
	}
	if _, err := w.Write(moovBytes); err != nil {
		return err
	}
	var mdatHdr [8]byte
	binary.BigEndian.PutUint32(mdatHdr[:4], uint32(8+mdatSize))
	copy(mdatHdr[4:8], "mdat")
	if _, err := w.Write(mdatHdr[:]); err != nil {
		return err
	}

	copyBuf := make([]byte, 32768)
	for _, s := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample := selected[s.track].samples[s.sample]
		off, remaining := sample.Offset, int64(sample.Size)
		for remaining > 0 {
			n := min(int64(len(copyBuf)), remaining)
			nr, rerr := src.ReadAt(copyBuf[:n], off)
			if nr > 0 {
				if _, werr := w.Write(copyBuf[:nr]); werr != nil {
					return werr
				}
				off += int64(nr)
				remaining -= int64(nr)
			}
			if rerr != nil {
				if rerr == io.EOF && remaining == 0 {
					break
				}
				return rerr
			}
		}
	}
	return nil
}

// rewriteSample is the subset of track.Sample the rewriter needs to order
// and relocate samples, plus the track's own timescale, needed to compare
// decode times across tracks that don't share one.
type rewriteSample struct {
	Offset    int64
	Size      uint32
	DTS       int64
	Timescale uint32
}

// rewriteTrack is one selected track, renumbered and still carrying its
// original trak box (for tkhd/mdia/minf/stsd reuse) and sample table.
type rewriteTrack struct {
	newID   uint32
	oldID   uint32
	trak    *bmff.Box
	samples []rewriteSample
}

// selectTracks resolves ids against movie, in order, assigning each a new
// sequential id starting at 1. Returns an error if ids contains a
// duplicate or names a track movie doesn't have; an empty ids is rejected
// earlier, by Rewrite.
func selectTracks(movie *trackcache.Movie, ids []uint32) ([]rewriteTrack, map[uint32]uint32, error) {
	seen := make(map[uint32]bool, len(ids))
	out := make([]rewriteTrack, 0, len(ids))
	newID := make(map[uint32]uint32, len(ids))

	for i, id := range ids {
		if seen[id] {
			return nil, nil, &bmff.Error{Kind: bmff.Malformed, TrackId: id, Err: fmt.Errorf("remux: track id requested more than once")}
		}
		seen[id] = true

		trak := movie.Trak(id)
		trk := movie.Track(id)
		if trak == nil || trk == nil {
			return nil, nil, &bmff.Error{Kind: bmff.UnknownTrack, TrackId: id}
		}

		samples := make([]rewriteSample, len(trk.Table.Entries))
		for j, s := range trk.Table.Entries {
			samples[j] = rewriteSample{Offset: s.Offset, Size: s.Size, DTS: s.DTS, Timescale: trk.Timescale}
		}

		id32 := uint32(i + 1)
		newID[id] = id32
		out = append(out, rewriteTrack{newID: id32, oldID: id, trak: trak, samples: samples})
	}
	return out, newID, nil
}

// orderedSample names one sample by its position in a []rewriteTrack.
type orderedSample struct {
	track  int
	sample int
}

// sampleWriteOrder decides the order selected tracks' samples are written
// into the merged mdat. Without interleaving, each track's samples are
// written as one contiguous run, in selection order. With interleaving,
// every sample across every track is merged into a single run ordered by
// decode time in seconds (tracks can have different timescales), ties
// broken by the renumbered (ascending) track id.
func sampleWriteOrder(selected []rewriteTrack, interleave bool) []orderedSample {
	var total int
	for _, t := range selected {
		total += len(t.samples)
	}
	order := make([]orderedSample, 0, total)
	for ti, t := range selected {
		for si := range t.samples {
			order = append(order, orderedSample{track: ti, sample: si})
		}
	}
	if !interleave {
		return order
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		sa, sb := selected[a.track].samples[a.sample], selected[b.track].samples[b.sample]
		ta := float64(sa.DTS) / float64(sa.Timescale)
		tb := float64(sb.DTS) / float64(sb.Timescale)
		if ta != tb {
			return ta < tb
		}
		return selected[a.track].newID < selected[b.track].newID
	})
	return order
}

// buildRewrittenMoov assembles the renumbered moov tree. co64 selects
// whether every track's chunk offset box is a co64 (64-bit) instead of an
// stco (32-bit); the caller decides this once it knows whether the final
// file fits in 32 bits. The returned slice holds, per selected track, the
// Box whose Stco or Co64 field the caller fills in with final offsets.
func buildRewrittenMoov(movie *trackcache.Movie, selected []rewriteTrack, newID map[uint32]uint32, co64 bool) (*bmff.Box, []*bmff.Box) {
	traks := make([]*bmff.Box, len(selected))
	offsetBoxes := make([]*bmff.Box, len(selected))
	var trexEntries []*bmff.Box

	for i, st := range selected {
		tkhdBox := st.trak.Child(bmff.TypeTkhd)
		mdiaBox := st.trak.Child(bmff.TypeMdia)
		minfBox := mdiaBox.Child(bmff.TypeMinf)
		stblBox := minfBox.Child(bmff.TypeStbl)

		tkhdClone := *tkhdBox.Tkhd
		tkhdClone.TrackId = st.newID

		var refBox *bmff.Box
		if tref := st.trak.Child(bmff.TypeTref); tref != nil {
			refBox = filterTref(tref, newID)
		}

		var offsetBox *bmff.Box
		if co64 {
			offsetBox = &bmff.Box{Type: bmff.TypeCo64, HasFullBox: true, Co64: &bmff.Co64Box{}}
		} else {
			offsetBox = &bmff.Box{Type: bmff.TypeStco, HasFullBox: true, Stco: &bmff.StcoBox{}}
		}
		offsetBoxes[i] = offsetBox

		var sdi uint32 = 1
		if orig := stblBox.Child(bmff.TypeStsc); orig != nil && orig.Stsc != nil && len(orig.Stsc.Entries) > 0 {
			sdi = orig.Stsc.Entries[0].SampleDescriptionId
		}
		stscBox := &bmff.Box{
			Type: bmff.TypeStsc, HasFullBox: true,
			Stsc: &bmff.StscBox{Entries: []bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: sdi}}},
		}

		stblChildren := []*bmff.Box{stblBox.Child(bmff.TypeStsd), stblBox.Child(bmff.TypeStts)}
		if ctts := stblBox.Child(bmff.TypeCtts); ctts != nil {
			stblChildren = append(stblChildren, ctts)
		}
		stblChildren = append(stblChildren, stscBox, stblBox.Child(bmff.TypeStsz), offsetBox)
		if stss := stblBox.Child(bmff.TypeStss); stss != nil {
			stblChildren = append(stblChildren, stss)
		}

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
		minfChildren = append(minfChildren, &bmff.Box{Type: bmff.TypeStbl, Children: stblChildren})

		trakChildren := []*bmff.Box{{Type: bmff.TypeTkhd, HasFullBox: true, Version: tkhdBox.Version, Flags: tkhdBox.Flags, Tkhd: &tkhdClone}}
		if refBox != nil {
			trakChildren = append(trakChildren, refBox)
		}
		if edts := st.trak.Child(bmff.TypeEdts); edts != nil {
			trakChildren = append(trakChildren, edts)
		}
		trakChildren = append(trakChildren, &bmff.Box{
			Type: bmff.TypeMdia,
			Children: []*bmff.Box{
				mdiaBox.Child(bmff.TypeMdhd),
				mdiaBox.Child(bmff.TypeHdlr),
				{Type: bmff.TypeMinf, Children: minfChildren},
			},
		})
		traks[i] = &bmff.Box{Type: bmff.TypeTrak, Children: trakChildren}

		if trex := movie.Trex(st.oldID); trex != nil {
			clone := *trex.Trex
			clone.TrackId = st.newID
			trexEntries = append(trexEntries, &bmff.Box{Type: bmff.TypeTrex, HasFullBox: true, Version: trex.Version, Flags: trex.Flags, Trex: &clone})
		}
	}

	moovChildren := []*bmff.Box{
		{Type: bmff.TypeMvhd, HasFullBox: true, Version: movie.Mvhd.Version, Flags: movie.Mvhd.Flags, Mvhd: movie.Mvhd.Mvhd},
	}
	moovChildren = append(moovChildren, traks...)
	if len(trexEntries) > 0 {
		var mehd *bmff.Box
		if movie.Mvex != nil {
			mehd = movie.Mvex.Child(bmff.TypeMehd)
		}
		mvexChildren := make([]*bmff.Box, 0, len(trexEntries)+1)
		if mehd != nil {
			mvexChildren = append(mvexChildren, mehd)
		}
		mvexChildren = append(mvexChildren, trexEntries...)
		moovChildren = append(moovChildren, &bmff.Box{Type: bmff.TypeMvex, Children: mvexChildren})
	}

	return &bmff.Box{Type: bmff.TypeMoov, Children: moovChildren}, offsetBoxes
}

// filterTref returns a copy of tref with every reference-type child's
// track id list restricted to ids present in newID, remapped to their new
// numbering. A reference-type child left with no ids is dropped; tref
// itself is dropped (nil) if every child ends up empty.
func filterTref(tref *bmff.Box, newID map[uint32]uint32) *bmff.Box {
	var children []*bmff.Box
	for _, c := range tref.Children {
		var kept []uint32
		for _, id := range decodeUint32List(c.Raw) {
			if mapped, ok := newID[id]; ok {
				kept = append(kept, mapped)
			}
		}
		if len(kept) == 0 {
			continue
		}
		children = append(children, &bmff.Box{Type: c.Type, Raw: encodeUint32List(kept)})
	}
	if len(children) == 0 {
		return nil
	}
	return &bmff.Box{Type: bmff.TypeTref, Children: children}
}

func decodeUint32List(raw []byte) []uint32 {
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(raw[i*4:])
	}
	return out
}

func encodeUint32List(ids []uint32) []byte {
	out := make([]byte, len(ids)*4)
	for i, id := range ids {
		binary.BigEndian.PutUint32(out[i*4:], id)
	}
	return out
}
