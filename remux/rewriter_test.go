package remux

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/internal/trackcache"
)

// buildRewriteTrak assembles a minimal trak subtree for trackId with four
// 100-byte samples in one chunk at chunkOffset, optionally referencing
// other tracks via a tref box, mirroring track_test.go's buildTrak helper.
func buildRewriteTrak(trackId uint32, chunkOffset int64, refType bmff.BoxType, refIds []uint32) *bmff.Box {
	stbl := &bmff.Box{
		Type: bmff.TypeStbl,
		Children: []*bmff.Box{
			{Type: bmff.TypeStsd, Stsd: &bmff.StsdBox{EntryCount: 1}},
			{Type: bmff.TypeStts, Stts: &bmff.SttsBox{Entries: []bmff.SttsEntry{{Count: 4, Duration: 10}}}},
			{Type: bmff.TypeStsc, Stsc: &bmff.StscBox{Entries: []bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 4, SampleDescriptionId: 1}}}},
			{Type: bmff.TypeStsz, Stsz: &bmff.StszBox{SampleSize: 100, SampleCount: 4}},
			{Type: bmff.TypeStco, Stco: &bmff.StcoBox{Entries: []uint32{uint32(chunkOffset)}}},
			{Type: bmff.TypeStss, Stss: &bmff.StssBox{Entries: []uint32{1}}},
		},
	}
	minf := &bmff.Box{Type: bmff.TypeMinf, Children: []*bmff.Box{stbl}}
	mdia := &bmff.Box{
		Type: bmff.TypeMdia,
		Children: []*bmff.Box{
			{Type: bmff.TypeMdhd, Mdhd: &bmff.MdhdBox{Timescale: 1000, Duration: 40}},
			{Type: bmff.TypeHdlr, Hdlr: &bmff.HdlrBox{HandlerType: [4]byte{'v', 'i', 'd', 'e'}}},
			minf,
		},
	}
	trak := &bmff.Box{
		Type: bmff.TypeTrak,
		Children: []*bmff.Box{
			{Type: bmff.TypeTkhd, Tkhd: &bmff.TkhdBox{TrackId: trackId}},
		},
	}
	if len(refIds) > 0 {
		trak.Children = append(trak.Children, &bmff.Box{
			Type:     bmff.TypeTref,
			Children: []*bmff.Box{{Type: refType, Raw: encodeUint32List(refIds)}},
		})
	}
	trak.Children = append(trak.Children, mdia)
	return trak
}

// fakeSource is an in-memory io.ReaderAt returning the same fill byte for
// every position inside [start, start+n) and zero elsewhere, so a test can
// identify which track a copied mdat byte range came from.
type fakeSource struct {
	buf []byte
}

func newFakeSource(size int) *fakeSource {
	return &fakeSource{buf: make([]byte, size)}
}

func (f *fakeSource) fill(offset int64, n int, b byte) {
	for i := 0; i < n; i++ {
		f.buf[int(offset)+i] = b
	}
}

func (f *fakeSource) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, bytes.ErrTooLarge
	}
	return n, nil
}

func buildRewriteMovie(t *testing.T) (*trackcache.Movie, *fakeSource) {
	t.Helper()

	// track 1: chunk at 1000, marked 0xAA
	// track 2: chunk at 5000, marked 0xBB
	// track 3: chunk at 9000, unselected, referenced by track 1's tref
	trak1 := buildRewriteTrak(1, 1000, bmff.BoxType{'c', 'h', 'a', 'p'}, []uint32{3})
	trak2 := buildRewriteTrak(2, 5000, bmff.BoxType{}, nil)
	trak3 := buildRewriteTrak(3, 9000, bmff.BoxType{}, nil)

	mvhd := &bmff.Box{Type: bmff.TypeMvhd, Mvhd: &bmff.MvhdBox{Timescale: 1000, Duration: 40, NextTrackId: 4}}
	mvex := &bmff.Box{
		Type: bmff.TypeMvex,
		Children: []*bmff.Box{
			{Type: bmff.TypeTrex, HasFullBox: true, Trex: &bmff.TrexBox{TrackId: 1, DefaultSampleDescriptionIndex: 1}},
			{Type: bmff.TypeTrex, HasFullBox: true, Trex: &bmff.TrexBox{TrackId: 2, DefaultSampleDescriptionIndex: 1}},
			{Type: bmff.TypeTrex, HasFullBox: true, Trex: &bmff.TrexBox{TrackId: 3, DefaultSampleDescriptionIndex: 1}},
		},
	}
	moov := &bmff.Box{Type: bmff.TypeMoov, Children: []*bmff.Box{mvhd, trak1, trak2, trak3, mvex}}

	movie, err := trackcache.BuildMovie(moov)
	require.NoError(t, err)

	src := newFakeSource(10000)
	for i := 0; i < 4; i++ {
		src.fill(1000+int64(i*100), 100, 0xAA)
		src.fill(5000+int64(i*100), 100, 0xBB)
		src.fill(9000+int64(i*100), 100, 0xCC)
	}
	return movie, src
}

func TestRewriteSelectRenumberAndDropTref(t *testing.T) {
	movie, src := buildRewriteMovie(t)

	var out bytes.Buffer
	err := Rewrite(context.Background(), &out, src, movie, RewriteOptions{TrackIDs: []uint32{2, 1}, Interleave: true})
	require.NoError(t, err)

	boxes, err := bmff.DecodeAll(out.Bytes(), 0, out.Len())
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	assert.Equal(t, bmff.TypeFtyp, boxes[0].Type)

	moov := boxes[1]
	require.Equal(t, bmff.TypeMoov, moov.Type)
	traks := moov.ChildList(bmff.TypeTrak)
	require.Len(t, traks, 2, "only the two selected tracks survive")

	gotTkhd0 := traks[0].Child(bmff.TypeTkhd)
	gotTkhd1 := traks[1].Child(bmff.TypeTkhd)
	assert.Equal(t, uint32(1), gotTkhd0.Tkhd.TrackId, "track 2 becomes track_id 1 (first in TrackIDs)")
	assert.Equal(t, uint32(2), gotTkhd1.Tkhd.TrackId, "track 1 becomes track_id 2 (second in TrackIDs)")

	// track 1's tref only named track 3, which isn't selected: it must be dropped.
	assert.Nil(t, traks[1].Child(bmff.TypeTref))

	mvex := moov.Child(bmff.TypeMvex)
	require.NotNil(t, mvex)
	trexes := mvex.ChildList(bmff.TypeTrex)
	require.Len(t, trexes, 2, "trex for the unselected track 3 is dropped")
	gotTrackIds := []uint32{trexes[0].Trex.TrackId, trexes[1].Trex.TrackId}
	assert.ElementsMatch(t, []uint32{1, 2}, gotTrackIds)

	mdat := boxes[2]
	require.Equal(t, bmff.TypeMdat, mdat.Type)
	require.NotNil(t, mdat.Mdat)
	mdatBytes := out.Bytes()[mdat.Mdat.ByteOffset : mdat.Mdat.ByteOffset+mdat.Mdat.ByteSize]
	require.Len(t, mdatBytes, 800)

	// Both tracks share identical DTS values (0,10,20,30), so interleaving
	// orders by ascending renumbered track id at every tie: track 2
	// (new id 1, marker 0xBB) before track 1 (new id 2, marker 0xAA).
	for i := 0; i < 4; i++ {
		chunk := mdatBytes[i*200 : i*200+200]
		assert.Equal(t, byte(0xBB), chunk[0], "sample %d: track with new id 1 goes first", i)
		assert.Equal(t, byte(0xAA), chunk[100], "sample %d: track with new id 2 goes second", i)
	}
}

func TestRewriteNoInterleaveWritesContiguousRuns(t *testing.T) {
	movie, src := buildRewriteMovie(t)

	var out bytes.Buffer
	err := Rewrite(context.Background(), &out, src, movie, RewriteOptions{TrackIDs: []uint32{1, 2}, Interleave: false})
	require.NoError(t, err)

	boxes, err := bmff.DecodeAll(out.Bytes(), 0, out.Len())
	require.NoError(t, err)
	mdat := boxes[2]
	mdatBytes := out.Bytes()[mdat.Mdat.ByteOffset : mdat.Mdat.ByteOffset+mdat.Mdat.ByteSize]

	for i := 0; i < 4; i++ {
		assert.Equal(t, byte(0xAA), mdatBytes[i*100])
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, byte(0xBB), mdatBytes[400+i*100])
	}
}

func TestRewriteRejectsEmptySelection(t *testing.T) {
	movie, src := buildRewriteMovie(t)
	err := Rewrite(context.Background(), &bytes.Buffer{}, src, movie, RewriteOptions{})
	require.Error(t, err)
	var berr *bmff.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bmff.Malformed, berr.Kind)
}

func TestRewriteUnknownTrackId(t *testing.T) {
	movie, src := buildRewriteMovie(t)
	err := Rewrite(context.Background(), &bytes.Buffer{}, src, movie, RewriteOptions{TrackIDs: []uint32{99}})
	require.Error(t, err)
	var berr *bmff.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bmff.UnknownTrack, berr.Kind)
	assert.Equal(t, uint32(99), berr.TrackId)
}
